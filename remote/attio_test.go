package remote

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/BemiHQ/BemiSync/common"
)

func attioPerson(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":         map[string]interface{}{"record_id": id},
		"created_at": "2025-01-01T00:00:00.000000000Z",
		"values": map[string]interface{}{
			"name": []interface{}{map[string]interface{}{"first_name": "Ada", "last_name": "Lovelace", "full_name": "Ada Lovelace"}},
			"email_addresses": []interface{}{
				map[string]interface{}{"email_address": "ada@example.com"},
				map[string]interface{}{"email_address": "ada@work.example.com"},
			},
			"company":       []interface{}{map[string]interface{}{"target_record_id": "company-1"}},
			"phone_numbers": []interface{}{},
		},
	}
}

func TestAttioClient(t *testing.T) {
	t.Run("Pages through records by offset", func(t *testing.T) {
		offsets := []int64{}
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v2/objects/people/records/query", r.URL.Path)
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			offset := gjson.GetBytes(body, "offset").Int()
			offsets = append(offsets, offset)

			people := []interface{}{}
			if offset == 0 {
				for i := 0; i < ATTIO_API_LIMIT; i++ {
					people = append(people, attioPerson("p"+common.IntToString(i)))
				}
			} else {
				people = append(people, attioPerson("last"))
			}
			writeJson(t, w, map[string]interface{}{"data": people})
		})
		client, err := NewAttioClient(testConfig(), testConnection(ATTIO_PROVIDER_NAME, common.CategoryCrm, server.URL))
		require.NoError(t, err)

		records, liveness, err := listAll(t, client, "crm/common/contact", inheritAllMapper())

		require.NoError(t, err)
		assert.Equal(t, []int64{0, ATTIO_API_LIMIT}, offsets)
		assert.Equal(t, 2, liveness)
		require.Len(t, records, ATTIO_API_LIMIT+1)

		last := records[ATTIO_API_LIMIT]
		assert.Equal(t, "last", last.RemoteId)
		assert.Equal(t, "Ada", last.Fields["first_name"])
		assert.Equal(t, "Lovelace", last.Fields["last_name"])
		assert.Equal(t, "company-1", last.Fields["account_id"])
		assert.Len(t, last.Fields["email_addresses"], 2)
		assert.Nil(t, last.LastModifiedAt)
	})

	t.Run("Maps flattened values for custom objects", func(t *testing.T) {
		schema := &common.SchemaConfig{Fields: []common.SchemaField{{Name: "model", Type: common.SchemaFieldTypeString}}}
		mapper := NewRecordMapper(testConfig(), NewFieldMapper(NewFieldMappingConfig(schema, nil)), DataQualityPolicyAbort)
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/objects/car_models/records/query", r.URL.Path)
			writeJson(t, w, map[string]interface{}{"data": []interface{}{
				map[string]interface{}{
					"id":     map[string]interface{}{"record_id": "car-1"},
					"values": map[string]interface{}{"model": []interface{}{map[string]interface{}{"value": "T"}}},
				},
			}})
		})
		client, err := NewAttioClient(testConfig(), testConnection(ATTIO_PROVIDER_NAME, common.CategoryCrm, server.URL))
		require.NoError(t, err)

		records, _, err := listAll(t, client, "crm/custom/car_models", mapper)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.JSONEq(t, `{"model":"T"}`, string(records[0].MappedData))
	})
}

func TestFlattenAttioValues(t *testing.T) {
	values := gjson.Parse(`{
		"name": [{"value": "Acme", "active_from": "2025-01-01"}],
		"domains": [{"domain": "acme.com"}, {"domain": "acme.io"}],
		"stage": [{"status": {"title": "Won"}}],
		"categories": [{"option": {"title": "SaaS"}}],
		"value": [{"currency_value": 1200.5}],
		"owner": [{"referenced_actor_id": "member-1"}],
		"empty": [],
		"primary_location": [{"line_1": "1 Main St", "locality": "Berlin", "country_code": "DE"}]
	}`)

	flattened, err := flattenAttioValues(values)

	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(flattened, &result))
	assert.Equal(t, "Acme", result["name"])
	assert.Equal(t, []interface{}{"acme.com", "acme.io"}, result["domains"])
	assert.Equal(t, "Won", result["stage"])
	assert.Equal(t, "SaaS", result["categories"])
	assert.Equal(t, 1200.5, result["value"])
	assert.Equal(t, "member-1", result["owner"])
	assert.Nil(t, result["empty"])
	assert.Equal(t, "Berlin", result["primary_location"].(map[string]interface{})["locality"])

	fields := normalizeAttioRecord("opportunity", NewParser(flattened))
	assert.Equal(t, "WON", fields["status"])
	assert.Equal(t, int64(1201), fields["amount"])
}
