package destination

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BemiHQ/BemiSync/common"
)

func postgresColumnType(column common.SchemaColumn) string {
	switch column.ColumnType {
	case common.ColumnTypeInteger:
		return "BIGINT"
	case common.ColumnTypeBoolean:
		return "BOOLEAN"
	case common.ColumnTypeTimestamp:
		return "TIMESTAMPTZ(3)"
	case common.ColumnTypeJson:
		return "JSONB"
	default:
		return "TEXT"
	}
}

type postgresDialect struct {
	client *common.PostgresClient
	schema string
}

func NewPostgresWriter(config *common.CommonConfig, client *common.PostgresClient, schema string) *StagingWriter {
	return newStagingWriter(config, &postgresDialect{client: client, schema: schema})
}

func (dialect *postgresDialect) Name() common.DestinationType {
	return common.DestinationTypePostgres
}

func (dialect *postgresDialect) OpenSession(ctx context.Context) (session, error) {
	conn, err := dialect.client.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresSession{config: dialect.client.Config, conn: conn, schema: dialect.schema}, nil
}

// postgresSession holds one pooled connection, the temporary staging table only exists on it
type postgresSession struct {
	config *common.CommonConfig
	conn   *pgxpool.Conn
	schema string
}

func (session *postgresSession) qualifiedTable(tableName string) string {
	return quoteIdentifier(session.schema) + "." + quoteIdentifier(tableName)
}

func (session *postgresSession) exec(ctx context.Context, query string) error {
	common.LogDebug(session.config, "Postgres exec:", query)
	_, err := session.conn.Exec(ctx, query)
	return err
}

func (session *postgresSession) EnsureTable(ctx context.Context, table common.TableSchema) error {
	err := session.exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdentifier(session.schema))
	if err != nil {
		return err
	}

	err = session.exec(ctx, createTableSql(session.qualifiedTable(table.TableName), table, postgresColumnType, true))
	if err != nil {
		return err
	}

	// Incremental readers scan a tenant's rows by modification time
	return session.exec(ctx, "CREATE INDEX IF NOT EXISTS "+quoteIdentifier(table.TableName+"_customer_id_last_modified_at_idx")+
		" ON "+session.qualifiedTable(table.TableName)+" ("+quoteIdentifiers([]string{common.COLUMN_CUSTOMER_ID, common.COLUMN_LAST_MODIFIED_AT}, "")+")")
}

func (session *postgresSession) CreateStagingTable(ctx context.Context, table common.TableSchema, stagingTableName string) error {
	return session.exec(ctx, createStagingTableSql(quoteIdentifier(stagingTableName), table, postgresColumnType, "BIGINT", true))
}

func (session *postgresSession) StageRows(ctx context.Context, table common.TableSchema, stagingTableName string, rows *stagedRows) error {
	columnNames := append(table.ColumnNames(), STAGING_SEQUENCE_COLUMN)
	copiedCount, err := session.conn.CopyFrom(ctx, pgx.Identifier{stagingTableName}, columnNames, rows)
	if err != nil {
		return err
	}
	common.LogDebug(session.config, "Copied", copiedCount, "rows into", stagingTableName)
	return nil
}

func (session *postgresSession) MergeBatch(ctx context.Context, table common.TableSchema, stagingTableName string, offset int, limit int) error {
	return session.exec(ctx, upsertFromStagingSql(session.qualifiedTable(table.TableName), quoteIdentifier(stagingTableName), table, offset, limit))
}

func (session *postgresSession) DropStagingTable(ctx context.Context, stagingTableName string) error {
	return session.exec(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(stagingTableName))
}

func (session *postgresSession) Release() {
	session.conn.Release()
}
