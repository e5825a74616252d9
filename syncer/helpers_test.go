package syncer

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/destination"
	"github.com/BemiHQ/BemiSync/remote"
)

const (
	TEST_SYNC_CONFIG_ID = "sync-1"
	TEST_CONNECTION_ID  = "conn-1"
	TEST_PROVIDER_ID    = "provider-1"
	TEST_DESTINATION_ID = "warehouse"
	TEST_ACCOUNT_OBJECT = "crm/common/account"
)

func testConfig() *common.CommonConfig {
	return &common.CommonConfig{LogLevel: common.LOG_LEVEL_ERROR}
}

func testTime(day int) *time.Time {
	value := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return &value
}

// -------------------------------------------------------------------------------------------------

type fakeCatalog struct {
	syncConfigs map[string]common.SyncConfig
	connections map[string]common.Connection
	providers   map[string]common.ProviderConfig
	schemas     map[string]common.SchemaConfig
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		syncConfigs: map[string]common.SyncConfig{
			TEST_SYNC_CONFIG_ID: {Id: TEST_SYNC_CONFIG_ID, DestinationId: TEST_DESTINATION_ID, Strategy: common.SyncStrategyIncremental},
		},
		connections: map[string]common.Connection{
			TEST_CONNECTION_ID: {
				Id:           TEST_CONNECTION_ID,
				ProviderId:   TEST_PROVIDER_ID,
				ProviderName: "hubspot",
				CustomerId:   "customer-1",
				Category:     common.CategoryCrm,
				AccessToken:  "token",
			},
		},
		providers: map[string]common.ProviderConfig{
			TEST_PROVIDER_ID: {
				Id:       TEST_PROVIDER_ID,
				Name:     "hubspot",
				Category: common.CategoryCrm,
				Objects:  common.ProviderObjects{Common: []common.ProviderObject{{Name: "account"}}},
			},
		},
		schemas: map[string]common.SchemaConfig{},
	}
}

func (catalog *fakeCatalog) GetSyncConfig(ctx context.Context, syncConfigId string) (common.SyncConfig, error) {
	syncConfig, ok := catalog.syncConfigs[syncConfigId]
	if !ok {
		return syncConfig, common.NewConfigurationError("sync config %s not found", syncConfigId)
	}
	return syncConfig, nil
}

func (catalog *fakeCatalog) GetConnection(ctx context.Context, connectionId string) (common.Connection, error) {
	connection, ok := catalog.connections[connectionId]
	if !ok {
		return connection, common.NewConfigurationError("connection %s not found", connectionId)
	}
	return connection, nil
}

func (catalog *fakeCatalog) GetProvider(ctx context.Context, providerId string) (common.ProviderConfig, error) {
	provider, ok := catalog.providers[providerId]
	if !ok {
		return provider, common.NewConfigurationError("provider %s not found", providerId)
	}
	return provider, nil
}

func (catalog *fakeCatalog) GetSchema(ctx context.Context, schemaId string) (common.SchemaConfig, error) {
	schema, ok := catalog.schemas[schemaId]
	if !ok {
		return schema, common.NewConfigurationError("schema %s not found", schemaId)
	}
	return schema, nil
}

type fakeDestinations struct {
	writer destination.Writer
}

func (destinations *fakeDestinations) GetWriter(ctx context.Context, destinationId string) (destination.Writer, error) {
	if destinationId != TEST_DESTINATION_ID {
		return nil, common.NewConfigurationError("destination %s not found", destinationId)
	}
	return destinations.writer, nil
}

// -------------------------------------------------------------------------------------------------

type fakeRecord struct {
	record common.CommonRecord
	native string
}

func accountRecord(remoteId string, name string, lastModifiedAt *time.Time) fakeRecord {
	return fakeRecord{
		record: common.CommonRecord{
			RemoteId:        remoteId,
			RemoteUpdatedAt: lastModifiedAt,
			LastModifiedAt:  lastModifiedAt,
			Fields:          map[string]interface{}{"name": name},
		},
		native: `{"id":"` + remoteId + `","name":"` + name + `","employees":"12"}`,
	}
}

type fakeClient struct {
	config  *common.CommonConfig
	records []fakeRecord
	err     error
	delay   time.Duration

	mutex         sync.Mutex
	updatedAfters []*time.Time
}

func (client *fakeClient) ProviderName() string {
	return "hubspot"
}

func (client *fakeClient) ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *remote.RecordMapper, updatedAfter *time.Time, onLiveness func()) (remote.RecordStream, error) {
	client.mutex.Lock()
	client.updatedAfters = append(client.updatedAfters, updatedAfter)
	client.mutex.Unlock()

	return remote.NewRecordStream(ctx, client.config, common.DEFAULT_CAPPED_BUFFER_SIZE, func(ctx context.Context, emit remote.EmitFunc) error {
		onLiveness()
		for _, fake := range client.records {
			if client.delay > 0 {
				select {
				case <-time.After(client.delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			record := fake.record
			ok, err := mapper.Apply(object, &record, []byte(fake.native), []byte(fake.native))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			err = emit(&record)
			if err != nil {
				return err
			}
		}
		return client.err
	}), nil
}

func (client *fakeClient) UpdatedAfters() []*time.Time {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return client.updatedAfters
}

type fakeClientFactory struct {
	client remote.Client
	calls  int
}

func (factory *fakeClientFactory) NewClient(config *common.CommonConfig, connection common.Connection) (remote.Client, error) {
	factory.calls++
	return factory.client, nil
}

// -------------------------------------------------------------------------------------------------

type recordingLifecycleSink struct {
	mutex  sync.Mutex
	events []LifecycleEvent
}

func (sink *recordingLifecycleSink) Publish(ctx context.Context, event LifecycleEvent) error {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.events = append(sink.events, event)
	return nil
}

func (sink *recordingLifecycleSink) Types() []LifecycleEventType {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	types := []LifecycleEventType{}
	for _, event := range sink.events {
		types = append(types, event.Type)
	}
	return types
}

func (sink *recordingLifecycleSink) Last() LifecycleEvent {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return sink.events[len(sink.events)-1]
}

type recordingDeadLetterSink struct {
	runIds  []string
	records []remote.RejectedRecord
}

func (sink *recordingDeadLetterSink) Archive(ctx context.Context, runId string, object common.ObjectDescriptor, connection common.Connection, rejectedRecords []remote.RejectedRecord) error {
	sink.runIds = append(sink.runIds, runId)
	sink.records = append(sink.records, rejectedRecords...)
	return nil
}

type recordingUploader struct {
	key         string
	contentType string
	body        []byte
}

func (uploader *recordingUploader) UploadObject(ctx context.Context, fileKey string, contentType string, body io.Reader) error {
	uploader.key = fileKey
	uploader.contentType = contentType
	var err error
	uploader.body, err = io.ReadAll(body)
	return err
}

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (publisher *recordingPublisher) Publish(subject string, data []byte) error {
	publisher.subjects = append(publisher.subjects, subject)
	publisher.payloads = append(publisher.payloads, data)
	return publisher.err
}

// -------------------------------------------------------------------------------------------------

type testHarness struct {
	runner      *Runner
	catalog     *fakeCatalog
	client      *fakeClient
	factory     *fakeClientFactory
	cursors     *MemoryCursorStore
	lifecycle   *recordingLifecycleSink
	duckdb      *common.DuckdbClient
	deadLetters *recordingDeadLetterSink
}

func newTestHarness(t *testing.T, records ...fakeRecord) *testHarness {
	config := testConfig()
	duckdbClient, err := common.NewDuckdbClient(config, "")
	require.NoError(t, err)
	t.Cleanup(duckdbClient.Close)

	harness := &testHarness{
		catalog:     newFakeCatalog(),
		client:      &fakeClient{config: config, records: records},
		cursors:     NewMemoryCursorStore(),
		lifecycle:   &recordingLifecycleSink{},
		duckdb:      duckdbClient,
		deadLetters: &recordingDeadLetterSink{},
	}
	harness.factory = &fakeClientFactory{client: harness.client}
	harness.runner = &Runner{
		Config:        config,
		SyncConfigs:   harness.catalog,
		Connections:   harness.catalog,
		Providers:     harness.catalog,
		Schemas:       harness.catalog,
		Destinations:  &fakeDestinations{writer: destination.NewDuckdbWriter(config, duckdbClient, "sync")},
		RemoteClients: harness.factory,
		Cursors:       harness.cursors,
		Lifecycle:     harness.lifecycle,
		DeadLetters:   harness.deadLetters,
	}
	return harness
}

func (harness *testHarness) run(t *testing.T) (RunReport, error) {
	return harness.runner.Run(context.Background(), RunRequest{SyncConfigId: TEST_SYNC_CONFIG_ID, ConnectionId: TEST_CONNECTION_ID, Object: TEST_ACCOUNT_OBJECT}, nil)
}

func (harness *testHarness) cursor(t *testing.T) common.SyncCursor {
	object, err := common.ParseObjectDescriptor(TEST_ACCOUNT_OBJECT)
	require.NoError(t, err)
	cursor, err := harness.cursors.GetCursor(context.Background(), TEST_CONNECTION_ID, object)
	require.NoError(t, err)
	return cursor
}

func (harness *testHarness) accountNames(t *testing.T) map[string]string {
	rows, err := harness.duckdb.Db.Query("SELECT remote_id, name FROM sync.crm_accounts ORDER BY remote_id")
	require.NoError(t, err)
	defer rows.Close()

	names := map[string]string{}
	for rows.Next() {
		var remoteId, name string
		require.NoError(t, rows.Scan(&remoteId, &name))
		names[remoteId] = name
	}
	require.NoError(t, rows.Err())
	return names
}

func msOf(value *time.Time) *int64 {
	ms := common.TimeToMs(*value)
	return &ms
}
