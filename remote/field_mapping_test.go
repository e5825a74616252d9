package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BemiHQ/BemiSync/common"
)

var testSchema = &common.SchemaConfig{
	Id: "schema-1",
	Fields: []common.SchemaField{
		{Name: "name", Type: common.SchemaFieldTypeString},
		{Name: "size", MappedName: "employees", Type: common.SchemaFieldTypeNumber},
		{Name: "closed", Type: common.SchemaFieldTypeBoolean},
		{Name: "closed_at", Type: common.SchemaFieldTypeDatetime},
	},
}

func TestNewFieldMappingConfig(t *testing.T) {
	t.Run("Inherits all fields without a schema", func(t *testing.T) {
		config := NewFieldMappingConfig(nil, []common.FieldMapping{{SchemaField: "name", MappedField: "title"}})

		assert.Equal(t, FieldMappingConfigTypeInheritAllFields, config.Type)
		assert.Empty(t, config.CoreFieldMappings)
	})

	t.Run("Prefers customer mappings over schema defaults", func(t *testing.T) {
		config := NewFieldMappingConfig(testSchema, []common.FieldMapping{{SchemaField: "name", MappedField: "company_name"}})

		assert.Equal(t, FieldMappingConfigTypeDefined, config.Type)
		assert.Equal(t, "company_name", config.CoreFieldMappings[0].MappedField)
		assert.Equal(t, "employees", config.CoreFieldMappings[1].MappedField)
		assert.Equal(t, "closed", config.CoreFieldMappings[2].MappedField)
	})

	t.Run("Ignores additional mappings unless the schema allows them", func(t *testing.T) {
		customerMappings := []common.FieldMapping{{SchemaField: "region", MappedField: "hs_region"}}

		config := NewFieldMappingConfig(testSchema, customerMappings)
		assert.Empty(t, config.AdditionalFieldMappings)

		openSchema := *testSchema
		openSchema.AllowAdditionalFieldMappings = true
		config = NewFieldMappingConfig(&openSchema, customerMappings)
		assert.Equal(t, customerMappings, config.AdditionalFieldMappings)
	})
}

func TestFieldMapper(t *testing.T) {
	t.Run("Renames and selects fields", func(t *testing.T) {
		mapper := NewFieldMapper(NewFieldMappingConfig(testSchema, nil))

		mapped, err := mapper.MapFields([]byte(`{"name":"Acme","employees":"42","closed":true,"closed_at":"2025-01-02T03:04:05Z","ignored":1}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Acme","size":"42","closed":true,"closed_at":"2025-01-02T03:04:05Z"}`, string(mapped))
	})

	t.Run("Maps missing fields to null", func(t *testing.T) {
		mapper := NewFieldMapper(NewFieldMappingConfig(testSchema, nil))

		mapped, err := mapper.MapFields([]byte(`{"name":"Acme"}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Acme","size":null,"closed":null,"closed_at":null}`, string(mapped))
	})

	t.Run("Reads nested paths and escapes dotted schema fields", func(t *testing.T) {
		schema := &common.SchemaConfig{Fields: []common.SchemaField{{Name: "address.city", MappedName: "location.city"}}}
		mapper := NewFieldMapper(NewFieldMappingConfig(schema, nil))

		mapped, err := mapper.MapFields([]byte(`{"location":{"city":"Paris"}}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"address.city":"Paris"}`, string(mapped))
		assert.Equal(t, []string{"location"}, mapper.MappedFieldNames())
	})

	t.Run("Rejects values of the wrong type", func(t *testing.T) {
		mapper := NewFieldMapper(NewFieldMappingConfig(testSchema, nil))

		_, err := mapper.MapFields([]byte(`{"name":"Acme","employees":"many"}`))

		assert.ErrorContains(t, err, `field "size": expected number`)
	})

	t.Run("Rejects invalid JSON", func(t *testing.T) {
		mapper := NewFieldMapper(NewFieldMappingConfig(nil, nil))

		_, err := mapper.MapFields([]byte(`{"name":`))

		assert.Error(t, err)
	})

	t.Run("Passes documents through when inheriting all fields", func(t *testing.T) {
		mapper := NewFieldMapper(NewFieldMappingConfig(nil, nil))

		mapped, err := mapper.MapFields([]byte(`{"anything":[1,2]}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"anything":[1,2]}`, string(mapped))
	})
}

func TestRecordMapper(t *testing.T) {
	config := testConfig()
	commonObject := common.ObjectDescriptor{Category: common.CategoryCrm, ObjectKind: common.ObjectKindCommon, ObjectName: "account"}
	customObject := common.ObjectDescriptor{Category: common.CategoryCrm, ObjectKind: common.ObjectKindCustom, ObjectName: "car"}
	invalidFields := []byte(`{"employees":"many"}`)

	t.Run("Fails the run on a bad record by default", func(t *testing.T) {
		mapper := NewRecordMapper(config, NewFieldMapper(NewFieldMappingConfig(testSchema, nil)), "")

		keep, err := mapper.Apply(commonObject, &common.CommonRecord{RemoteId: "1"}, invalidFields, invalidFields)

		assert.False(t, keep)
		assert.Equal(t, common.ErrorKindDataQuality, common.ErrorKindOf(err))
	})

	t.Run("Skips and reports bad records under the skip policy", func(t *testing.T) {
		mapper := NewRecordMapper(config, NewFieldMapper(NewFieldMappingConfig(testSchema, nil)), DataQualityPolicySkip)
		rejected := []RejectedRecord{}
		mapper.OnRejected = func(rejectedRecord RejectedRecord) { rejected = append(rejected, rejectedRecord) }

		keep, err := mapper.Apply(commonObject, &common.CommonRecord{RemoteId: "1"}, invalidFields, invalidFields)

		require.NoError(t, err)
		assert.False(t, keep)
		assert.Equal(t, 1, mapper.NumSkipped())
		require.Len(t, rejected, 1)
		assert.Equal(t, "crm/common/account", rejected[0].Object)
		assert.JSONEq(t, string(invalidFields), string(rejected[0].RawData))
	})

	t.Run("Keeps the raw payload for common objects inheriting all fields", func(t *testing.T) {
		mapper := inheritAllMapper()
		record := &common.CommonRecord{RemoteId: "1"}

		keep, err := mapper.Apply(commonObject, record, []byte(`{"name":"Acme"}`), []byte(`{"id":"1","properties":{"name":"Acme"}}`))

		require.NoError(t, err)
		assert.True(t, keep)
		assert.JSONEq(t, `{"id":"1","properties":{"name":"Acme"}}`, string(record.RawData))
		assert.Nil(t, record.MappedData)
	})

	t.Run("Keeps the mapped fields for common objects with a schema", func(t *testing.T) {
		mapper := NewRecordMapper(config, NewFieldMapper(NewFieldMappingConfig(testSchema, nil)), "")
		record := &common.CommonRecord{RemoteId: "1"}

		_, err := mapper.Apply(commonObject, record, []byte(`{"name":"Acme"}`), []byte(`{"id":"1"}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Acme","size":null,"closed":null,"closed_at":null}`, string(record.RawData))
	})

	t.Run("Fills mapped data for custom objects", func(t *testing.T) {
		mapper := NewRecordMapper(config, NewFieldMapper(NewFieldMappingConfig(testSchema, nil)), "")
		record := &common.CommonRecord{RemoteId: "1"}

		_, err := mapper.Apply(customObject, record, []byte(`{"name":"Model T"}`), []byte(`{"id":"1"}`))

		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Model T","size":null,"closed":null,"closed_at":null}`, string(record.MappedData))
		assert.JSONEq(t, `{"id":"1"}`, string(record.RawData))
	})
}
