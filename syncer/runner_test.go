package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/remote"
)

func TestRunner(t *testing.T) {
	t.Run("Syncs records and advances the cursor", func(t *testing.T) {
		harness := newTestHarness(t,
			accountRecord("1", "Acme", testTime(3)),
			accountRecord("2", "Globex", testTime(5)),
			accountRecord("3", "Initech", testTime(4)),
		)

		report, err := harness.run(t)

		require.NoError(t, err)
		assert.Equal(t, RunStateCompleted, report.State)
		assert.Equal(t, 3, report.Result.NumRecordsSynced)
		assert.Equal(t, testTime(5), report.Result.MaxLastModifiedAt)
		assert.Equal(t, msOf(testTime(5)), harness.cursor(t).LastModifiedAtMs)
		assert.Equal(t, map[string]string{"1": "Acme", "2": "Globex", "3": "Initech"}, harness.accountNames(t))
		assert.Equal(t, []LifecycleEventType{LifecycleEventSyncStarted, LifecycleEventSyncSucceeded}, harness.lifecycle.Types())
		assert.Equal(t, "hubspot", harness.lifecycle.Last().ProviderName)
		assert.Equal(t, 3, harness.lifecycle.Last().NumRecordsSynced)
		assert.Empty(t, harness.deadLetters.runIds)
	})

	t.Run("Requests only changes since the cursor on incremental runs", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))

		_, err := harness.run(t)
		require.NoError(t, err)
		harness.client.records = []fakeRecord{accountRecord("1", "Acme Inc", testTime(7))}
		report, err := harness.run(t)
		require.NoError(t, err)

		updatedAfters := harness.client.UpdatedAfters()
		assert.Nil(t, updatedAfters[0])
		assert.Equal(t, testTime(3), updatedAfters[1])
		assert.Equal(t, testTime(3), report.UpdatedAfter)
		assert.Equal(t, msOf(testTime(7)), harness.cursor(t).LastModifiedAtMs)
		assert.Equal(t, map[string]string{"1": "Acme Inc"}, harness.accountNames(t))
	})

	t.Run("Replays an unchanged data set idempotently", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)), accountRecord("2", "Globex", testTime(4)))
		harness.catalog.syncConfigs[TEST_SYNC_CONFIG_ID] = common.SyncConfig{Id: TEST_SYNC_CONFIG_ID, DestinationId: TEST_DESTINATION_ID, Strategy: common.SyncStrategyFullRefresh}

		_, err := harness.run(t)
		require.NoError(t, err)
		first := harness.accountNames(t)
		_, err = harness.run(t)
		require.NoError(t, err)

		assert.Equal(t, first, harness.accountNames(t))
		assert.Equal(t, []*time.Time{nil, nil}, harness.client.UpdatedAfters())
	})

	t.Run("Never moves the cursor backwards", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(9)))
		harness.catalog.syncConfigs[TEST_SYNC_CONFIG_ID] = common.SyncConfig{Id: TEST_SYNC_CONFIG_ID, DestinationId: TEST_DESTINATION_ID, Strategy: common.SyncStrategyFullRefresh}

		_, err := harness.run(t)
		require.NoError(t, err)
		harness.client.records = []fakeRecord{accountRecord("2", "Globex", testTime(2))}
		_, err = harness.run(t)
		require.NoError(t, err)
		harness.client.records = nil
		report, err := harness.run(t)
		require.NoError(t, err)

		assert.Equal(t, 0, report.Result.NumRecordsSynced)
		assert.Nil(t, report.Result.MaxLastModifiedAt)
		assert.Equal(t, msOf(testTime(9)), harness.cursor(t).LastModifiedAtMs)
	})

	t.Run("Fails without a configured destination", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))
		harness.catalog.syncConfigs[TEST_SYNC_CONFIG_ID] = common.SyncConfig{Id: TEST_SYNC_CONFIG_ID, DestinationId: "missing"}

		report, err := harness.run(t)

		assert.Equal(t, common.ErrorKindConfiguration, common.ErrorKindOf(err))
		assert.Equal(t, RunStateFailed, report.State)
		assert.False(t, report.Retryable())
		assert.Equal(t, 0, harness.factory.calls)
		assert.Equal(t, []LifecycleEventType{LifecycleEventSyncFailed}, harness.lifecycle.Types())
		assert.Equal(t, common.ErrorKindConfiguration, harness.lifecycle.Last().ErrorKind)
	})

	t.Run("Fails when the provider does not sync the object", func(t *testing.T) {
		harness := newTestHarness(t)
		harness.catalog.providers[TEST_PROVIDER_ID] = common.ProviderConfig{Id: TEST_PROVIDER_ID, Name: "hubspot", Category: common.CategoryCrm}

		_, err := harness.run(t)

		assert.Equal(t, common.ErrorKindConfiguration, common.ErrorKindOf(err))
		assert.ErrorContains(t, err, "not enabled")
	})

	t.Run("Fails on an invalid object", func(t *testing.T) {
		harness := newTestHarness(t)

		_, err := harness.runner.Run(context.Background(), RunRequest{SyncConfigId: TEST_SYNC_CONFIG_ID, ConnectionId: TEST_CONNECTION_ID, Object: "crm/account"}, nil)

		assert.Equal(t, common.ErrorKindConfiguration, common.ErrorKindOf(err))
	})

	t.Run("Keeps the remote classification and the cursor on remote failures", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))
		_, err := harness.run(t)
		require.NoError(t, err)

		harness.client.records = []fakeRecord{accountRecord("1", "Changed", testTime(8))}
		harness.client.err = common.NewSyncError(common.ErrorKindTransientRemote, errors.New("429"), "listing companies")
		report, err := harness.run(t)

		assert.Equal(t, common.ErrorKindTransientRemote, common.ErrorKindOf(err))
		assert.True(t, report.Retryable())
		assert.Equal(t, RunStateFailed, report.State)
		assert.Equal(t, msOf(testTime(3)), harness.cursor(t).LastModifiedAtMs)
		assert.Equal(t, map[string]string{"1": "Acme"}, harness.accountNames(t))
		assert.Equal(t, LifecycleEventSyncFailed, harness.lifecycle.Last().Type)
		assert.True(t, harness.lifecycle.Last().Retryable)
	})

	t.Run("Aborts on a malformed record by default", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))
		_, err := harness.run(t)
		require.NoError(t, err)

		harness.withEmployeesSchema()
		malformed := accountRecord("2", "Globex", testTime(4))
		malformed.native = `{"id":"2","employees":"many"}`
		harness.client.records = []fakeRecord{accountRecord("1", "Changed", testTime(5)), malformed}
		report, err := harness.run(t)

		assert.Equal(t, common.ErrorKindDataQuality, common.ErrorKindOf(err))
		assert.False(t, report.Retryable())
		assert.Equal(t, map[string]string{"1": "Acme"}, harness.accountNames(t))
		assert.Equal(t, msOf(testTime(3)), harness.cursor(t).LastModifiedAtMs)
	})

	t.Run("Skips and archives malformed records with the skip policy", func(t *testing.T) {
		malformed := accountRecord("2", "Globex", testTime(4))
		malformed.native = `{"id":"2","employees":"many"}`
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)), malformed)
		harness.withEmployeesSchema()
		harness.runner.DataQualityPolicy = remote.DataQualityPolicySkip

		report, err := harness.run(t)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Result.NumRecordsSynced)
		assert.Equal(t, 1, report.Result.NumRecordsSkipped)
		assert.Equal(t, map[string]string{"1": "Acme"}, harness.accountNames(t))
		assert.Equal(t, []string{report.RunId}, harness.deadLetters.runIds)
		require.Len(t, harness.deadLetters.records, 1)
		assert.Equal(t, "2", harness.deadLetters.records[0].RemoteId)
		assert.Equal(t, 1, harness.lifecycle.Last().NumRecordsSkipped)
	})

	t.Run("Fails a stalled extraction as a transient remote failure", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))
		harness.client.delay = time.Second
		harness.runner.StallTimeout = 50 * time.Millisecond

		startedAt := time.Now()
		_, err := harness.run(t)

		assert.Equal(t, common.ErrorKindTransientRemote, common.ErrorKindOf(err))
		assert.ErrorIs(t, err, errExtractionStalled)
		assert.Less(t, time.Since(startedAt), time.Second)
	})

	t.Run("Reports a cancelled run as retryable", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)))
		harness.client.delay = time.Second
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		report, err := harness.runner.Run(ctx, RunRequest{SyncConfigId: TEST_SYNC_CONFIG_ID, ConnectionId: TEST_CONNECTION_ID, Object: TEST_ACCOUNT_OBJECT}, nil)

		assert.Error(t, err)
		assert.True(t, report.Retryable())
		assert.Nil(t, harness.cursor(t).LastModifiedAtMs)
	})

	t.Run("Signals liveness while extracting", func(t *testing.T) {
		harness := newTestHarness(t, accountRecord("1", "Acme", testTime(3)), accountRecord("2", "Globex", testTime(4)))
		harness.runner.LivenessInterval = time.Nanosecond
		signals := make(chan struct{}, 100)

		_, err := harness.runner.Run(context.Background(), RunRequest{SyncConfigId: TEST_SYNC_CONFIG_ID, ConnectionId: TEST_CONNECTION_ID, Object: TEST_ACCOUNT_OBJECT}, func() {
			signals <- struct{}{}
		})

		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(signals), 3)
	})
}

func (harness *testHarness) withEmployeesSchema() {
	harness.catalog.schemas["account-schema"] = common.SchemaConfig{
		Id: "account-schema",
		Fields: []common.SchemaField{
			{Name: "name", Type: common.SchemaFieldTypeString},
			{Name: "number_of_employees", MappedName: "employees", Type: common.SchemaFieldTypeNumber},
		},
	}
	harness.catalog.providers[TEST_PROVIDER_ID] = common.ProviderConfig{
		Id:       TEST_PROVIDER_ID,
		Name:     "hubspot",
		Category: common.CategoryCrm,
		Objects:  common.ProviderObjects{Common: []common.ProviderObject{{Name: "account", SchemaId: "account-schema"}}},
	}
}
