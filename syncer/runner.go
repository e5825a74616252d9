package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/destination"
	"github.com/BemiHQ/BemiSync/remote"
)

type RunState string

const (
	RunStateResolving         RunState = "RESOLVING"
	RunStateExtractingWriting RunState = "EXTRACTING_WRITING"
	RunStateFinalizing        RunState = "FINALIZING"
	RunStateCompleted         RunState = "COMPLETED"
	RunStateFailed            RunState = "FAILED"

	DEFAULT_LIVENESS_INTERVAL = 5 * time.Second
)

type RunRequest struct {
	SyncConfigId string `json:"syncConfigId"`
	ConnectionId string `json:"connectionId"`
	Object       string `json:"object"` // crm/common/contact
}

type RunReport struct {
	RunId        string
	Request      RunRequest
	State        RunState
	StartedAt    time.Time
	FinishedAt   time.Time
	UpdatedAfter *time.Time
	Cursor       common.SyncCursor
	Result       common.SyncRunResult
	Err          error
}

func (report RunReport) ErrorKind() common.ErrorKind {
	return common.ErrorKindOf(report.Err)
}

func (report RunReport) Retryable() bool {
	return common.IsRetryable(report.Err)
}

type Runner struct {
	Config *common.CommonConfig

	SyncConfigs     SyncConfigResolver
	Connections     ConnectionResolver
	Providers       ProviderConfigResolver
	Schemas         SchemaResolver
	Destinations    DestinationResolver
	RemoteClients   RemoteClientFactory
	Cursors         CursorStore
	Lifecycle       LifecycleSink  // optional
	DeadLetters     DeadLetterSink // optional, records skipped under the skip policy

	DataQualityPolicy remote.DataQualityPolicy
	LivenessInterval  time.Duration
	StallTimeout      time.Duration // 0 disables the stall watchdog
}

// Everything Resolving produces
type runPlan struct {
	object     common.ObjectDescriptor
	syncConfig common.SyncConfig
	connection common.Connection
	writer     destination.Writer
	client     remote.Client
	mapper     *remote.RecordMapper
	rejected   *deadLetterBuffer
}

// Run executes one sync of one object for one connection.
// The returned error is the report's error; its kind decides whether the supervisor may re-run the request.
func (runner *Runner) Run(ctx context.Context, request RunRequest, onLiveness func()) (RunReport, error) {
	report := RunReport{
		RunId:     uuid.NewString(),
		Request:   request,
		State:     RunStateResolving,
		StartedAt: time.Now().UTC(),
	}
	logger := common.Logger(runner.Config).With().
		Str("runId", report.RunId).
		Str("connectionId", request.ConnectionId).
		Str("object", request.Object).
		Logger()

	plan, err := runner.resolve(ctx, request)
	if err != nil {
		return runner.fail(ctx, logger, &report, plan, err)
	}
	logger = logger.With().Str("providerName", plan.connection.ProviderName).Str("customerId", plan.connection.CustomerId).Logger()
	runner.publish(ctx, logger, runner.event(LifecycleEventSyncStarted, &report, plan))
	logger.Info().Str("strategy", string(plan.syncConfig.Strategy)).Msg("Sync started")

	report.State = RunStateExtractingWriting
	cursor, err := runner.Cursors.GetCursor(ctx, plan.connection.Id, plan.object)
	if err != nil {
		return runner.fail(ctx, logger, &report, plan, err)
	}
	report.Cursor = cursor
	if plan.syncConfig.Strategy != common.SyncStrategyFullRefresh {
		report.UpdatedAfter = cursor.UpdatedAfter()
	}

	result, err := runner.extractAndWrite(ctx, logger, plan, report.UpdatedAfter, onLiveness)
	report.Result = result
	if err != nil {
		return runner.fail(ctx, logger, &report, plan, err)
	}

	report.State = RunStateFinalizing
	advancedCursor := cursor.Advance(result.MaxLastModifiedAt)
	if advancedCursor != cursor {
		err = runner.Cursors.SetCursor(ctx, plan.connection.Id, plan.object, advancedCursor)
		if err != nil {
			return runner.fail(ctx, logger, &report, plan, err)
		}
	}
	report.Cursor = advancedCursor
	runner.archiveRejected(ctx, logger, &report, plan)

	report.State = RunStateCompleted
	report.FinishedAt = time.Now().UTC()
	runner.publish(ctx, logger, runner.event(LifecycleEventSyncSucceeded, &report, plan))
	logger.Info().
		Int("numRecordsSynced", result.NumRecordsSynced).
		Int("numRecordsSkipped", result.NumRecordsSkipped).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Sync completed")
	return report, nil
}

func (runner *Runner) resolve(ctx context.Context, request RunRequest) (*runPlan, error) {
	plan := &runPlan{}

	object, err := common.ParseObjectDescriptor(request.Object)
	if err != nil {
		return plan, err
	}
	plan.object = object

	plan.syncConfig, err = runner.SyncConfigs.GetSyncConfig(ctx, request.SyncConfigId)
	if err != nil {
		return plan, err
	}
	if plan.syncConfig.DestinationId == "" {
		return plan, common.NewConfigurationError("sync config %s has no destination", plan.syncConfig.Id)
	}

	plan.connection, err = runner.Connections.GetConnection(ctx, request.ConnectionId)
	if err != nil {
		return plan, err
	}
	if plan.connection.Category != object.Category {
		return plan, common.NewConfigurationError("connection %s is %s, cannot sync %s", plan.connection.Id, plan.connection.Category, object)
	}

	provider, err := runner.Providers.GetProvider(ctx, plan.connection.ProviderId)
	if err != nil {
		return plan, err
	}
	providerObject := provider.FindObject(object)
	if providerObject == nil {
		return plan, common.NewConfigurationError("object %s is not enabled for provider %s", object, provider.Name)
	}

	var schema *common.SchemaConfig
	if providerObject.SchemaId != "" {
		resolvedSchema, err := runner.Schemas.GetSchema(ctx, providerObject.SchemaId)
		if err != nil {
			return plan, err
		}
		schema = &resolvedSchema
	}
	fieldMappingConfig := remote.NewFieldMappingConfig(schema, plan.connection.SchemaMappingsConfig.FieldMappings(object))

	plan.mapper = remote.NewRecordMapper(runner.Config, remote.NewFieldMapper(fieldMappingConfig), runner.DataQualityPolicy)
	if runner.DeadLetters != nil {
		plan.rejected = &deadLetterBuffer{}
		plan.mapper.OnRejected = plan.rejected.Add
	}

	plan.writer, err = runner.Destinations.GetWriter(ctx, plan.syncConfig.DestinationId)
	if err != nil {
		return plan, err
	}

	plan.client, err = runner.RemoteClients.NewClient(runner.Config, plan.connection)
	if err != nil {
		return plan, err
	}

	return plan, nil
}

func (runner *Runner) extractAndWrite(ctx context.Context, logger zerolog.Logger, plan *runPlan, updatedAfter *time.Time, onLiveness func()) (common.SyncRunResult, error) {
	livenessInterval := runner.LivenessInterval
	if livenessInterval == 0 {
		livenessInterval = DEFAULT_LIVENESS_INTERVAL
	}
	livenessReporter := NewLivenessReporter(onLiveness, livenessInterval)

	ctx, watchdog := newStallWatchdog(ctx, runner.StallTimeout)
	defer watchdog.Release()

	stream, err := plan.client.ListRecords(ctx, plan.object, plan.mapper, updatedAfter, livenessReporter.Signal)
	if err != nil {
		return common.SyncRunResult{}, watchdog.Classify(ctx, err)
	}
	defer stream.Close()

	result, err := plan.writer.WriteRecords(ctx, plan.connection, plan.object, livenessReporter.Wrap(watchdog.Wrap(stream)), func(batchProgress common.BatchProgress) {
		livenessReporter.Signal()
		logger.Debug().Int("offset", batchProgress.Offset).Int("totalStaged", batchProgress.TotalStaged).Msg("Merged batch")
	})
	result.NumRecordsSkipped = plan.mapper.NumSkipped()
	if err != nil {
		return result, watchdog.Classify(ctx, err)
	}
	return result, nil
}

func (runner *Runner) fail(ctx context.Context, logger zerolog.Logger, report *RunReport, plan *runPlan, err error) (RunReport, error) {
	report.State = RunStateFailed
	report.FinishedAt = time.Now().UTC()
	report.Err = err

	if plan != nil {
		runner.archiveRejected(ctx, logger, report, plan)
	}
	runner.publish(ctx, logger, runner.event(LifecycleEventSyncFailed, report, plan))
	logger.Error().
		Err(err).
		Str("errorKind", string(report.ErrorKind())).
		Bool("retryable", report.Retryable()).
		Msg("Sync failed")
	return *report, err
}

func (runner *Runner) archiveRejected(ctx context.Context, logger zerolog.Logger, report *RunReport, plan *runPlan) {
	if runner.DeadLetters == nil || plan.rejected == nil {
		return
	}

	rejectedRecords, numDropped := plan.rejected.Records()
	if len(rejectedRecords) == 0 && numDropped == 0 {
		return
	}
	if numDropped > 0 {
		logger.Warn().Int("numDropped", numDropped).Msg("Too many skipped records to archive")
	}
	err := runner.DeadLetters.Archive(context.WithoutCancel(ctx), report.RunId, plan.object, plan.connection, rejectedRecords)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to archive skipped records")
	}
}

// Lifecycle observers never change the outcome of a run
func (runner *Runner) publish(ctx context.Context, logger zerolog.Logger, event LifecycleEvent) {
	if runner.Lifecycle == nil {
		return
	}
	err := runner.Lifecycle.Publish(context.WithoutCancel(ctx), event)
	if err != nil {
		logger.Error().Err(err).Str("event", string(event.Type)).Msg("Failed to publish lifecycle event")
	}
}

func (runner *Runner) event(eventType LifecycleEventType, report *RunReport, plan *runPlan) LifecycleEvent {
	event := LifecycleEvent{
		Type:              eventType,
		RunId:             report.RunId,
		SyncConfigId:      report.Request.SyncConfigId,
		ConnectionId:      report.Request.ConnectionId,
		Object:            report.Request.Object,
		Timestamp:         time.Now().UTC(),
		NumRecordsSynced:  report.Result.NumRecordsSynced,
		NumRecordsSkipped: report.Result.NumRecordsSkipped,
	}
	if plan != nil {
		event.ProviderName = plan.connection.ProviderName
		event.CustomerId = plan.connection.CustomerId
	}
	if report.Err != nil {
		event.Error = report.Err.Error()
		event.ErrorKind = report.ErrorKind()
		event.Retryable = report.Retryable()
	}
	return event
}
