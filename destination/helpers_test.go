package destination

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BemiHQ/BemiSync/common"
)

const TEST_SCHEMA = "sync"

var testConnection = common.Connection{Id: "conn-1", ProviderName: "hubspot", CustomerId: "customer-1", Category: common.CategoryCrm}

var accountObject = common.ObjectDescriptor{Category: common.CategoryCrm, ObjectKind: common.ObjectKindCommon, ObjectName: "account"}

func testConfig() *common.CommonConfig {
	return &common.CommonConfig{LogLevel: common.LOG_LEVEL_ERROR}
}

type sliceStream struct {
	records []*common.CommonRecord
	err     error
}

func (stream *sliceStream) Next() (*common.CommonRecord, error) {
	if len(stream.records) == 0 {
		if stream.err != nil {
			return nil, stream.err
		}
		return nil, io.EOF
	}
	record := stream.records[0]
	stream.records = stream.records[1:]
	return record, nil
}

func testTime(day int) *time.Time {
	value := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return &value
}

func account(remoteId string, name string, lastModifiedAt *time.Time) *common.CommonRecord {
	return &common.CommonRecord{
		RemoteId:        remoteId,
		RemoteUpdatedAt: lastModifiedAt,
		LastModifiedAt:  lastModifiedAt,
		Fields:          map[string]interface{}{"name": name, "number_of_employees": float64(10)},
		RawData:         []byte(`{"id":"` + remoteId + `"}`),
	}
}

func newDuckdbTestWriter(t *testing.T) (*StagingWriter, *common.DuckdbClient) {
	config := testConfig()
	client, err := common.NewDuckdbClient(config, "")
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return NewDuckdbWriter(config, client, TEST_SCHEMA), client
}

func writeAccounts(t *testing.T, writer Writer, records ...*common.CommonRecord) (common.SyncRunResult, []common.BatchProgress, error) {
	progress := []common.BatchProgress{}
	result, err := writer.WriteRecords(context.Background(), testConnection, accountObject, &sliceStream{records: records}, func(batchProgress common.BatchProgress) {
		progress = append(progress, batchProgress)
	})
	return result, progress, err
}

func countRows(t *testing.T, client *common.DuckdbClient, where string) int {
	var count int
	query := "SELECT count(*) FROM sync.crm_accounts"
	if where != "" {
		query += " WHERE " + where
	}
	require.NoError(t, client.QueryRowContext(context.Background(), query).Scan(&count))
	return count
}

func accountName(t *testing.T, client *common.DuckdbClient, remoteId string) string {
	var name string
	require.NoError(t, client.QueryRowContext(context.Background(), "SELECT name FROM sync.crm_accounts WHERE remote_id = ?", remoteId).Scan(&name))
	return name
}
