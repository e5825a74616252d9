package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BemiHQ/BemiSync/common"
)

func testConfig() *common.CommonConfig {
	return &common.CommonConfig{LogLevel: common.LOG_LEVEL_ERROR}
}

func testConnection(providerName string, category common.Category, apiUrl string) common.Connection {
	return common.Connection{
		Id:           "conn-1",
		ProviderName: providerName,
		CustomerId:   "customer-1",
		Category:     category,
		AccessToken:  "token",
		ApiUrl:       apiUrl,
	}
}

func inheritAllMapper() *RecordMapper {
	return NewRecordMapper(testConfig(), NewFieldMapper(NewFieldMappingConfig(nil, nil)), DataQualityPolicyAbort)
}

func drain(t *testing.T, stream RecordStream) ([]*common.CommonRecord, error) {
	t.Helper()
	defer stream.Close()

	records := []*common.CommonRecord{}
	for {
		record, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

func writeJson(t *testing.T, w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func listAll(t *testing.T, client Client, object string, mapper *RecordMapper) ([]*common.CommonRecord, int, error) {
	t.Helper()

	liveness := 0
	stream, err := client.ListRecords(context.Background(), mustParseObject(t, object), mapper, nil, func() { liveness++ })
	require.NoError(t, err)
	records, err := drain(t, stream)
	return records, liveness, err
}

func mustParseObject(t *testing.T, value string) common.ObjectDescriptor {
	object, err := common.ParseObjectDescriptor(value)
	require.NoError(t, err)
	return object
}
