package destination

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BemiHQ/BemiSync/common"
)

const (
	MERGE_BATCH_SIZE = 10_000

	STAGING_TABLE_PREFIX    = "_staging_"
	STAGING_SEQUENCE_COLUMN = "_staging_sequence"
)

// RecordStream is the consumer side of a remote extraction
type RecordStream interface {
	Next() (*common.CommonRecord, error)
}

type Writer interface {
	WriteRecords(ctx context.Context, connection common.Connection, object common.ObjectDescriptor, stream RecordStream, onBatchProgress func(progress common.BatchProgress)) (common.SyncRunResult, error)
}

// dialect opens a session on one pooled connection.
// A session is used by a single run and must be released on every exit path.
type dialect interface {
	Name() common.DestinationType
	OpenSession(ctx context.Context) (session, error)
}

type session interface {
	EnsureTable(ctx context.Context, table common.TableSchema) error
	CreateStagingTable(ctx context.Context, table common.TableSchema, stagingTableName string) error
	StageRows(ctx context.Context, table common.TableSchema, stagingTableName string, rows *stagedRows) error
	// MergeBatch upserts one deduplicated slice of the staging table in a single statement
	MergeBatch(ctx context.Context, table common.TableSchema, stagingTableName string, offset int, limit int) error
	DropStagingTable(ctx context.Context, stagingTableName string) error
	Release()
}

// StagingWriter loads a record stream into a run-scoped staging table, then merges it
// into the destination table in batches ordered by remote id
type StagingWriter struct {
	Config    *common.CommonConfig
	BatchSize int

	dialect dialect
}

func newStagingWriter(config *common.CommonConfig, dialect dialect) *StagingWriter {
	return &StagingWriter{Config: config, BatchSize: MERGE_BATCH_SIZE, dialect: dialect}
}

func (writer *StagingWriter) WriteRecords(ctx context.Context, connection common.Connection, object common.ObjectDescriptor, stream RecordStream, onBatchProgress func(progress common.BatchProgress)) (result common.SyncRunResult, err error) {
	table, err := common.ObjectTableSchema(connection.ProviderName, object)
	if err != nil {
		return result, err
	}

	logger := common.Logger(writer.Config).With().
		Str("destination", string(writer.dialect.Name())).
		Str("connectionId", connection.Id).
		Str("providerName", connection.ProviderName).
		Str("customerId", connection.CustomerId).
		Str("table", table.TableName).
		Logger()

	session, err := writer.dialect.OpenSession(ctx)
	if err != nil {
		return result, common.WrapDestinationIoError(err, "connecting to %s destination", writer.dialect.Name())
	}
	defer session.Release()

	err = session.EnsureTable(ctx, table)
	if err != nil {
		return result, common.WrapDestinationIoError(err, "creating table %s", table.TableName)
	}

	stagingTableName := newStagingTableName()
	err = session.CreateStagingTable(ctx, table, stagingTableName)
	if err != nil {
		return result, common.WrapDestinationIoError(err, "creating staging table for %s", table.TableName)
	}
	defer dropStagingTable(ctx, logger, session, stagingTableName)

	logger.Info().Msg("Staging records [IN PROGRESS]")
	rows := newStagedRows(connection, table, stream)
	err = session.StageRows(ctx, table, stagingTableName, rows)
	if rows.Err() != nil {
		return result, rows.Err()
	}
	if err != nil {
		return result, common.WrapDestinationIoError(err, "staging records for %s", table.TableName)
	}
	logger.Info().Int("totalStaged", rows.Count()).Msg("Staging records [COMPLETED]")

	batchSize := writer.BatchSize
	if batchSize <= 0 {
		batchSize = MERGE_BATCH_SIZE
	}
	for offset := 0; offset < rows.Count(); offset += batchSize {
		logger.Debug().Int("offset", offset).Msg("Merging batch [IN PROGRESS]")
		err = session.MergeBatch(ctx, table, stagingTableName, offset, batchSize)
		if err != nil {
			return result, common.WrapDestinationIoError(err, "merging batch at offset %d into %s", offset, table.TableName)
		}
		if onBatchProgress != nil {
			onBatchProgress(common.BatchProgress{Offset: offset, TotalStaged: rows.Count()})
		}
	}
	logger.Info().Int("totalStaged", rows.Count()).Msg("Merging records [COMPLETED]")

	return common.SyncRunResult{
		MaxLastModifiedAt: rows.MaxLastModifiedAt(),
		NumRecordsSynced:  rows.Count(),
	}, nil
}

// Staging is dropped even when the run was cancelled
func dropStagingTable(ctx context.Context, logger zerolog.Logger, session session, stagingTableName string) {
	err := session.DropStagingTable(context.WithoutCancel(ctx), stagingTableName)
	if err != nil {
		logger.Warn().Err(err).Str("stagingTable", stagingTableName).Msg("Failed to drop staging table")
	}
}

func newStagingTableName() string {
	return STAGING_TABLE_PREFIX + strings.ReplaceAll(uuid.NewString(), "-", "")
}
