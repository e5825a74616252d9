package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/config"

	"github.com/BemiHQ/BemiSync/common"
)

// Catalog is the sync configuration loaded from YAML. ${ENV_VAR} and ${ENV_VAR:default} are expanded on load.
//
//	providers:     [{id, name, category, objects: {common, standard, custom: [{name, schemaId}]}}]
//	schemas:       [{id, allowAdditionalFieldMappings, fields: [{name, mappedName, type}]}]
//	connections:   [{id, providerId, customerId, applicationId, accessToken, apiUrl, schemaMappings}]
//	destinations:  [{id, type, schema, databaseUrl, databasePath, trinoCatalog}]
//	syncConfigs:   [{id, destinationId, strategy}]
type Catalog struct {
	providers    map[string]common.ProviderConfig
	schemas      map[string]common.SchemaConfig
	connections  map[string]common.Connection
	destinations map[string]common.DestinationConfig
	syncConfigs  map[string]common.SyncConfig
}

type providerEntry struct {
	Id       string                 `yaml:"id"`
	Name     string                 `yaml:"name"`
	Category common.Category        `yaml:"category"`
	Objects  common.ProviderObjects `yaml:"objects"`
}

type schemaEntry struct {
	Id                           string               `yaml:"id"`
	Fields                       []common.SchemaField `yaml:"fields"`
	AllowAdditionalFieldMappings bool                 `yaml:"allowAdditionalFieldMappings"`
}

type connectionEntry struct {
	Id             string                      `yaml:"id"`
	ProviderId     string                      `yaml:"providerId"`
	CustomerId     string                      `yaml:"customerId"`
	ApplicationId  string                      `yaml:"applicationId"`
	AccessToken    string                      `yaml:"accessToken"`
	ApiUrl         string                      `yaml:"apiUrl"`
	SchemaMappings common.SchemaMappingsConfig `yaml:"schemaMappings"`
}

type destinationEntry struct {
	Id           string                 `yaml:"id"`
	Type         common.DestinationType `yaml:"type"`
	Schema       string                 `yaml:"schema"`
	DatabaseUrl  string                 `yaml:"databaseUrl"`
	DatabasePath string                 `yaml:"databasePath"`
	TrinoCatalog string                 `yaml:"trinoCatalog"`
}

type syncConfigEntry struct {
	Id            string              `yaml:"id"`
	DestinationId string              `yaml:"destinationId"`
	Strategy      common.SyncStrategy `yaml:"strategy"`
}

func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.NewConfigurationError("cannot open catalog %s: %v", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Load merges the sources in order, later sources overriding earlier ones
func Load(sources ...io.Reader) (*Catalog, error) {
	var options []config.YAMLOption
	for _, source := range sources {
		options = append(options, config.Source(source))
	}
	options = append(options, config.Expand(os.LookupEnv))

	yaml, err := config.NewYAML(options...)
	if err != nil {
		return nil, common.NewConfigurationError("failed to read yaml catalog: %v", err)
	}

	var providers []providerEntry
	var schemas []schemaEntry
	var connections []connectionEntry
	var destinations []destinationEntry
	var syncConfigs []syncConfigEntry
	for key, target := range map[string]interface{}{
		"providers":    &providers,
		"schemas":      &schemas,
		"connections":  &connections,
		"destinations": &destinations,
		"syncConfigs":  &syncConfigs,
	} {
		if !yaml.Get(key).HasValue() {
			continue
		}
		err = yaml.Get(key).Populate(target)
		if err != nil {
			return nil, common.NewConfigurationError("failed to read '%s' from yaml catalog: %v", key, err)
		}
	}

	catalog := &Catalog{
		providers:    make(map[string]common.ProviderConfig),
		schemas:      make(map[string]common.SchemaConfig),
		connections:  make(map[string]common.Connection),
		destinations: make(map[string]common.DestinationConfig),
		syncConfigs:  make(map[string]common.SyncConfig),
	}

	for _, entry := range providers {
		if err := catalog.addProvider(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range schemas {
		if err := catalog.addSchema(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range connections {
		if err := catalog.addConnection(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range destinations {
		if err := catalog.addDestination(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range syncConfigs {
		if err := catalog.addSyncConfig(entry); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}

func (catalog *Catalog) addProvider(entry providerEntry) error {
	if err := requireUniqueId("provider", entry.Id, catalog.providers); err != nil {
		return err
	}
	if entry.Name == "" {
		return common.NewConfigurationError("provider %s has no name", entry.Id)
	}
	if entry.Category != common.CategoryCrm && entry.Category != common.CategoryEngagement {
		return common.NewConfigurationError("provider %s has unknown category %q", entry.Id, entry.Category)
	}

	catalog.providers[entry.Id] = common.ProviderConfig{Id: entry.Id, Name: entry.Name, Category: entry.Category, Objects: entry.Objects}
	return nil
}

func (catalog *Catalog) addSchema(entry schemaEntry) error {
	if err := requireUniqueId("schema", entry.Id, catalog.schemas); err != nil {
		return err
	}

	fieldTypes := []common.SchemaFieldType{
		common.SchemaFieldTypeAny,
		common.SchemaFieldTypeString,
		common.SchemaFieldTypeNumber,
		common.SchemaFieldTypeBoolean,
		common.SchemaFieldTypeDatetime,
	}
	for _, field := range entry.Fields {
		if field.Name == "" {
			return common.NewConfigurationError("schema %s has a field without a name", entry.Id)
		}
		if !slices.Contains(fieldTypes, field.Type) {
			return common.NewConfigurationError("schema %s field %s has unknown type %q", entry.Id, field.Name, field.Type)
		}
	}

	catalog.schemas[entry.Id] = common.SchemaConfig{Id: entry.Id, Fields: entry.Fields, AllowAdditionalFieldMappings: entry.AllowAdditionalFieldMappings}
	return nil
}

// Connections take their provider name and category from the provider they reference
func (catalog *Catalog) addConnection(entry connectionEntry) error {
	if err := requireUniqueId("connection", entry.Id, catalog.connections); err != nil {
		return err
	}
	provider, ok := catalog.providers[entry.ProviderId]
	if !ok {
		return common.NewConfigurationError("connection %s references unknown provider %q", entry.Id, entry.ProviderId)
	}
	if entry.CustomerId == "" {
		return common.NewConfigurationError("connection %s has no customer id", entry.Id)
	}

	catalog.connections[entry.Id] = common.Connection{
		Id:                   entry.Id,
		ProviderId:           provider.Id,
		ProviderName:         provider.Name,
		CustomerId:           entry.CustomerId,
		ApplicationId:        entry.ApplicationId,
		Category:             provider.Category,
		AccessToken:          entry.AccessToken,
		ApiUrl:               entry.ApiUrl,
		SchemaMappingsConfig: entry.SchemaMappings,
	}
	return nil
}

func (catalog *Catalog) addDestination(entry destinationEntry) error {
	if err := requireUniqueId("destination", entry.Id, catalog.destinations); err != nil {
		return err
	}
	if entry.Type != common.DestinationTypePostgres && entry.Type != common.DestinationTypeDuckdb && entry.Type != common.DestinationTypeTrino {
		return common.NewConfigurationError("destination %s has unknown type %q", entry.Id, entry.Type)
	}

	catalog.destinations[entry.Id] = common.DestinationConfig{
		Id:           entry.Id,
		Type:         entry.Type,
		Schema:       entry.Schema,
		DatabaseUrl:  entry.DatabaseUrl,
		DatabasePath: entry.DatabasePath,
		TrinoCatalog: entry.TrinoCatalog,
	}
	return nil
}

func (catalog *Catalog) addSyncConfig(entry syncConfigEntry) error {
	if err := requireUniqueId("sync config", entry.Id, catalog.syncConfigs); err != nil {
		return err
	}
	if entry.Strategy == "" {
		entry.Strategy = common.SyncStrategyIncremental
	}
	if entry.Strategy != common.SyncStrategyIncremental && entry.Strategy != common.SyncStrategyFullRefresh {
		return common.NewConfigurationError("sync config %s has unknown strategy %q", entry.Id, entry.Strategy)
	}
	if entry.DestinationId != "" {
		if _, ok := catalog.destinations[entry.DestinationId]; !ok {
			return common.NewConfigurationError("sync config %s references unknown destination %q", entry.Id, entry.DestinationId)
		}
	}

	catalog.syncConfigs[entry.Id] = common.SyncConfig{Id: entry.Id, DestinationId: entry.DestinationId, Strategy: entry.Strategy}
	return nil
}

func requireUniqueId[T any](kind string, id string, existing map[string]T) error {
	if id == "" {
		return common.NewConfigurationError("%s without an id", kind)
	}
	if _, ok := existing[id]; ok {
		return common.NewConfigurationError("duplicate %s %q", kind, id)
	}
	return nil
}

// -------------------------------------------------------------------------------------------------

func (catalog *Catalog) GetSyncConfig(ctx context.Context, syncConfigId string) (common.SyncConfig, error) {
	return lookup("sync config", syncConfigId, catalog.syncConfigs)
}

func (catalog *Catalog) GetConnection(ctx context.Context, connectionId string) (common.Connection, error) {
	return lookup("connection", connectionId, catalog.connections)
}

func (catalog *Catalog) GetProvider(ctx context.Context, providerId string) (common.ProviderConfig, error) {
	return lookup("provider", providerId, catalog.providers)
}

func (catalog *Catalog) GetSchema(ctx context.Context, schemaId string) (common.SchemaConfig, error) {
	return lookup("schema", schemaId, catalog.schemas)
}

func (catalog *Catalog) GetDestination(ctx context.Context, destinationId string) (common.DestinationConfig, error) {
	return lookup("destination", destinationId, catalog.destinations)
}

func lookup[T any](kind string, id string, entries map[string]T) (T, error) {
	entry, ok := entries[id]
	if !ok {
		return entry, common.NewConfigurationError("%s %q not found", kind, id)
	}
	return entry, nil
}

func (catalog *Catalog) String() string {
	return fmt.Sprintf("catalog with %d providers, %d schemas, %d connections, %d destinations, %d sync configs",
		len(catalog.providers), len(catalog.schemas), len(catalog.connections), len(catalog.destinations), len(catalog.syncConfigs))
}
