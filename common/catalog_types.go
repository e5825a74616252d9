package common

// Resolved configuration handed to the pipeline by the catalog collaborators

type SyncStrategy string

const (
	SyncStrategyFullRefresh SyncStrategy = "full_refresh"
	SyncStrategyIncremental SyncStrategy = "incremental"
)

type DestinationType string

const (
	DestinationTypePostgres DestinationType = "postgres"
	DestinationTypeDuckdb   DestinationType = "duckdb"
	DestinationTypeTrino    DestinationType = "trino"
)

type FieldMapping struct {
	SchemaField string `yaml:"schemaField" json:"schemaField"`
	MappedField string `yaml:"mappedField" json:"mappedField"`
}

type ObjectFieldMappings struct {
	Object        string         `yaml:"object"`
	FieldMappings []FieldMapping `yaml:"fieldMappings"`
}

// Customer overrides per object kind
type SchemaMappingsConfig struct {
	Common   []ObjectFieldMappings `yaml:"common"`
	Standard []ObjectFieldMappings `yaml:"standard"`
	Custom   []ObjectFieldMappings `yaml:"custom"`
}

func (config SchemaMappingsConfig) FieldMappings(object ObjectDescriptor) []FieldMapping {
	var objectMappings []ObjectFieldMappings
	switch object.ObjectKind {
	case ObjectKindCommon:
		objectMappings = config.Common
	case ObjectKindStandard:
		objectMappings = config.Standard
	case ObjectKindCustom:
		objectMappings = config.Custom
	}

	for _, mappings := range objectMappings {
		if mappings.Object == object.ObjectName {
			return mappings.FieldMappings
		}
	}
	return nil
}

type Connection struct {
	Id                   string
	ProviderId           string
	ProviderName         string
	CustomerId           string
	ApplicationId        string
	Category             Category
	AccessToken          string
	ApiUrl               string // optional, overrides the provider's default base URL
	SchemaMappingsConfig SchemaMappingsConfig
}

type ProviderObject struct {
	Name     string `yaml:"name"`
	SchemaId string `yaml:"schemaId"` // optional
}

type ProviderObjects struct {
	Common   []ProviderObject `yaml:"common"`
	Standard []ProviderObject `yaml:"standard"`
	Custom   []ProviderObject `yaml:"custom"`
}

type ProviderConfig struct {
	Id       string
	Name     string
	Category Category
	Objects  ProviderObjects
}

// FindObject returns the enabled object entry, or nil when the provider does not sync it
func (provider ProviderConfig) FindObject(object ObjectDescriptor) *ProviderObject {
	var objects []ProviderObject
	switch object.ObjectKind {
	case ObjectKindCommon:
		objects = provider.Objects.Common
	case ObjectKindStandard:
		objects = provider.Objects.Standard
	case ObjectKindCustom:
		objects = provider.Objects.Custom
	}

	for i := range objects {
		if objects[i].Name == object.ObjectName {
			return &objects[i]
		}
	}
	return nil
}

type SchemaFieldType string

const (
	SchemaFieldTypeAny      SchemaFieldType = ""
	SchemaFieldTypeString   SchemaFieldType = "string"
	SchemaFieldTypeNumber   SchemaFieldType = "number"
	SchemaFieldTypeBoolean  SchemaFieldType = "boolean"
	SchemaFieldTypeDatetime SchemaFieldType = "datetime"
)

type SchemaField struct {
	Name       string          `yaml:"name"`
	MappedName string          `yaml:"mappedName"` // default provider field, optional
	Type       SchemaFieldType `yaml:"type"`
}

type SchemaConfig struct {
	Id                           string
	Fields                       []SchemaField
	AllowAdditionalFieldMappings bool
}

type SyncConfig struct {
	Id            string
	DestinationId string
	Strategy      SyncStrategy
}

type DestinationConfig struct {
	Id           string
	Type         DestinationType
	Schema       string
	DatabaseUrl  string // postgres, trino
	DatabasePath string // duckdb, empty for in-memory
	TrinoCatalog string
}
