package destination

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/BemiHQ/BemiSync/common"
)

func duckdbColumnType(column common.SchemaColumn) string {
	switch column.ColumnType {
	case common.ColumnTypeInteger:
		return "BIGINT"
	case common.ColumnTypeBoolean:
		return "BOOLEAN"
	case common.ColumnTypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR" // JSON is kept as text
	}
}

type duckdbDialect struct {
	client *common.DuckdbClient
	schema string
}

func NewDuckdbWriter(config *common.CommonConfig, client *common.DuckdbClient, schema string) *StagingWriter {
	return newStagingWriter(config, &duckdbDialect{client: client, schema: schema})
}

func (dialect *duckdbDialect) Name() common.DestinationType {
	return common.DestinationTypeDuckdb
}

func (dialect *duckdbDialect) OpenSession(ctx context.Context) (session, error) {
	conn, err := dialect.client.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &duckdbSession{client: dialect.client, conn: conn, schema: dialect.schema}, nil
}

// duckdbSession pins one connection so the appender and the merge statements share it.
// The staging table is a regular table in the destination schema, where the appender can resolve it.
type duckdbSession struct {
	client *common.DuckdbClient
	conn   *sql.Conn
	schema string
}

func (session *duckdbSession) qualifiedTable(tableName string) string {
	return quoteIdentifier(session.schema) + "." + quoteIdentifier(tableName)
}

func (session *duckdbSession) exec(ctx context.Context, query string) error {
	common.LogDebug(session.client.Config, "Querying DuckDBClient:", query)
	_, err := session.conn.ExecContext(ctx, query)
	return err
}

func (session *duckdbSession) EnsureTable(ctx context.Context, table common.TableSchema) error {
	err := session.exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdentifier(session.schema))
	if err != nil {
		return err
	}
	return session.exec(ctx, createTableSql(session.qualifiedTable(table.TableName), table, duckdbColumnType, true))
}

func (session *duckdbSession) CreateStagingTable(ctx context.Context, table common.TableSchema, stagingTableName string) error {
	return session.exec(ctx, createStagingTableSql(session.qualifiedTable(stagingTableName), table, duckdbColumnType, "BIGINT", false))
}

func (session *duckdbSession) StageRows(ctx context.Context, table common.TableSchema, stagingTableName string, rows *stagedRows) error {
	return session.client.AppendRows(session.conn, session.schema, stagingTableName, func(appender *duckdb.Appender) error {
		for rows.Next() {
			values, _ := rows.Values()
			driverValues := make([]driver.Value, len(values))
			for i, value := range values {
				if rawJson, ok := value.(json.RawMessage); ok {
					value = string(rawJson)
				}
				driverValues[i] = value
			}

			err := appender.AppendRow(driverValues...)
			if err != nil {
				return err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
}

func (session *duckdbSession) MergeBatch(ctx context.Context, table common.TableSchema, stagingTableName string, offset int, limit int) error {
	return session.exec(ctx, upsertFromStagingSql(session.qualifiedTable(table.TableName), session.qualifiedTable(stagingTableName), table, offset, limit))
}

func (session *duckdbSession) DropStagingTable(ctx context.Context, stagingTableName string) error {
	return session.exec(ctx, "DROP TABLE IF EXISTS "+session.qualifiedTable(stagingTableName))
}

func (session *duckdbSession) Release() {
	session.conn.Close()
}
