package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/BemiHQ/BemiSync/common"
)

type FieldMappingConfigType string

const (
	FieldMappingConfigTypeInheritAllFields FieldMappingConfigType = "inherit_all_fields"
	FieldMappingConfigTypeDefined          FieldMappingConfigType = "defined"
)

type TypedFieldMapping struct {
	common.FieldMapping
	Type common.SchemaFieldType
}

type FieldMappingConfig struct {
	Type                    FieldMappingConfigType
	CoreFieldMappings       []TypedFieldMapping
	AdditionalFieldMappings []common.FieldMapping
}

// NewFieldMappingConfig merges the object's schema with the customer's overrides.
// Without a schema every provider field is kept as is.
func NewFieldMappingConfig(schema *common.SchemaConfig, customerFieldMappings []common.FieldMapping) FieldMappingConfig {
	if schema == nil {
		return FieldMappingConfig{Type: FieldMappingConfigTypeInheritAllFields}
	}

	customerMappedFields := make(map[string]string, len(customerFieldMappings))
	for _, mapping := range customerFieldMappings {
		customerMappedFields[mapping.SchemaField] = mapping.MappedField
	}

	config := FieldMappingConfig{Type: FieldMappingConfigTypeDefined}
	schemaFieldNames := common.NewSet[string]()
	for _, field := range schema.Fields {
		schemaFieldNames.Add(field.Name)

		mappedField := customerMappedFields[field.Name]
		if mappedField == "" {
			mappedField = field.MappedName
		}
		if mappedField == "" {
			mappedField = field.Name
		}
		config.CoreFieldMappings = append(config.CoreFieldMappings, TypedFieldMapping{
			FieldMapping: common.FieldMapping{SchemaField: field.Name, MappedField: mappedField},
			Type:         field.Type,
		})
	}

	if schema.AllowAdditionalFieldMappings {
		for _, mapping := range customerFieldMappings {
			if !schemaFieldNames.Contains(mapping.SchemaField) {
				config.AdditionalFieldMappings = append(config.AdditionalFieldMappings, mapping)
			}
		}
	}

	return config
}

// FieldMapper renames and selects provider-native fields. Mapped fields are gjson paths into the native document.
type FieldMapper struct {
	Config FieldMappingConfig
}

func NewFieldMapper(config FieldMappingConfig) *FieldMapper {
	return &FieldMapper{Config: config}
}

func (mapper *FieldMapper) InheritsAllFields() bool {
	return mapper.Config.Type != FieldMappingConfigTypeDefined
}

// MappedFieldNames returns the top-level provider fields the mapping reads, for providers that need to request them explicitly
func (mapper *FieldMapper) MappedFieldNames() []string {
	names := common.NewSet[string]()
	for _, mapping := range mapper.Config.CoreFieldMappings {
		names.Add(strings.SplitN(mapping.MappedField, ".", 2)[0])
	}
	for _, mapping := range mapper.Config.AdditionalFieldMappings {
		names.Add(strings.SplitN(mapping.MappedField, ".", 2)[0])
	}
	return names.Values()
}

func (mapper *FieldMapper) MapFields(nativeFields []byte) ([]byte, error) {
	if !gjson.ValidBytes(nativeFields) {
		return nil, fmt.Errorf("provider record is not valid JSON")
	}
	if mapper.InheritsAllFields() {
		return nativeFields, nil
	}

	var err error
	mapped := []byte("{}")
	for _, mapping := range mapper.Config.CoreFieldMappings {
		value := gjson.GetBytes(nativeFields, mapping.MappedField)
		err = validateFieldType(mapping, value)
		if err != nil {
			return nil, err
		}
		mapped, err = setMappedField(mapped, mapping.SchemaField, value)
		if err != nil {
			return nil, err
		}
	}
	for _, mapping := range mapper.Config.AdditionalFieldMappings {
		mapped, err = setMappedField(mapped, mapping.SchemaField, gjson.GetBytes(nativeFields, mapping.MappedField))
		if err != nil {
			return nil, err
		}
	}

	return mapped, nil
}

func setMappedField(mapped []byte, schemaField string, value gjson.Result) ([]byte, error) {
	path := escapeSjsonPath(schemaField)
	if !value.Exists() {
		return sjson.SetRawBytes(mapped, path, []byte("null"))
	}
	return sjson.SetRawBytes(mapped, path, []byte(value.Raw))
}

func escapeSjsonPath(fieldName string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, ":", `\:`)
	return replacer.Replace(fieldName)
}

// Providers often send numbers and booleans as strings, those are accepted when they parse
func validateFieldType(mapping TypedFieldMapping, value gjson.Result) error {
	if !value.Exists() || value.Type == gjson.Null || mapping.Type == common.SchemaFieldTypeAny {
		return nil
	}

	valid := false
	switch mapping.Type {
	case common.SchemaFieldTypeString:
		valid = value.Type == gjson.String
	case common.SchemaFieldTypeNumber:
		if value.Type == gjson.Number {
			valid = true
		} else if value.Type == gjson.String {
			_, err := strconv.ParseFloat(value.Str, 64)
			valid = err == nil
		}
	case common.SchemaFieldTypeBoolean:
		valid = value.Type == gjson.True || value.Type == gjson.False || value.Str == "true" || value.Str == "false"
	case common.SchemaFieldTypeDatetime:
		if value.Type == gjson.Number {
			valid = true
		} else if value.Type == gjson.String {
			_, err := common.ParseTimestamp(value.Str)
			valid = err == nil
		}
	default:
		return fmt.Errorf("field %q has unknown type %q", mapping.SchemaField, mapping.Type)
	}

	if !valid {
		return fmt.Errorf("field %q: expected %s, got %s", mapping.SchemaField, mapping.Type, value.Raw)
	}
	return nil
}

// -------------------------------------------------------------------------------------------------

type DataQualityPolicy string

const (
	DataQualityPolicyAbort DataQualityPolicy = "abort"
	DataQualityPolicySkip  DataQualityPolicy = "skip"

	DEFAULT_DATA_QUALITY_POLICY = DataQualityPolicyAbort
)

var DATA_QUALITY_POLICIES = []string{string(DataQualityPolicyAbort), string(DataQualityPolicySkip)}

type RejectedRecord struct {
	Object     string          `json:"object"`
	RemoteId   string          `json:"remoteId"`
	Error      string          `json:"error"`
	RawData    json.RawMessage `json:"rawData"`
	RejectedAt time.Time       `json:"rejectedAt"`
}

// RecordMapper applies the field mapping to every extracted record and enforces the data quality policy
type RecordMapper struct {
	Config      *common.CommonConfig
	FieldMapper *FieldMapper
	Policy      DataQualityPolicy
	OnRejected  func(rejectedRecord RejectedRecord) // optional, skip policy only

	numSkipped atomic.Int64
}

func NewRecordMapper(config *common.CommonConfig, fieldMapper *FieldMapper, policy DataQualityPolicy) *RecordMapper {
	if policy == "" {
		policy = DEFAULT_DATA_QUALITY_POLICY
	}
	return &RecordMapper{Config: config, FieldMapper: fieldMapper, Policy: policy}
}

func (mapper *RecordMapper) NumSkipped() int {
	return int(mapper.numSkipped.Load())
}

// Apply maps nativeFields onto the record. rawPayload is the provider's full document.
// Returns false when the record has to be skipped.
func (mapper *RecordMapper) Apply(object common.ObjectDescriptor, record *common.CommonRecord, nativeFields []byte, rawPayload []byte) (bool, error) {
	mapped, err := mapper.FieldMapper.MapFields(nativeFields)
	if err != nil {
		if mapper.Policy == DataQualityPolicySkip {
			mapper.numSkipped.Add(1)
			common.LogWarn(mapper.Config, "Skipping", object.String(), "record", record.RemoteId+":", err.Error())
			if mapper.OnRejected != nil {
				mapper.OnRejected(RejectedRecord{
					Object:     object.String(),
					RemoteId:   record.RemoteId,
					Error:      err.Error(),
					RawData:    validJsonOrString(rawPayload),
					RejectedAt: time.Now().UTC(),
				})
			}
			return false, nil
		}
		return false, common.NewDataQualityError(err, "mapping %s record %s", object.String(), record.RemoteId)
	}

	if object.ObjectKind == common.ObjectKindCommon {
		if mapper.FieldMapper.InheritsAllFields() {
			record.RawData = rawPayload
		} else {
			record.RawData = mapped
		}
	} else {
		record.MappedData = mapped
		record.RawData = rawPayload
	}
	return true, nil
}

func validJsonOrString(payload []byte) json.RawMessage {
	if gjson.ValidBytes(payload) {
		return payload
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}
