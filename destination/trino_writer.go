package destination

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/BemiHQ/BemiSync/common"
)

func trinoColumnType(column common.SchemaColumn) string {
	switch column.ColumnType {
	case common.ColumnTypeInteger:
		return "BIGINT"
	case common.ColumnTypeBoolean:
		return "BOOLEAN"
	case common.ColumnTypeTimestamp:
		return "TIMESTAMP(6)"
	default:
		return "VARCHAR"
	}
}

type trinoDialect struct {
	client *common.TrinoClient
}

func NewTrinoWriter(config *common.CommonConfig, client *common.TrinoClient) *StagingWriter {
	return newStagingWriter(config, &trinoDialect{client: client})
}

func (dialect *trinoDialect) Name() common.DestinationType {
	return common.DestinationTypeTrino
}

func (dialect *trinoDialect) OpenSession(ctx context.Context) (session, error) {
	return &trinoSession{client: dialect.client}, nil
}

// trinoSession runs over HTTP without a pinned connection; the staging table is a regular table.
// Trino tables have no primary keys, uniqueness comes from MERGE.
type trinoSession struct {
	client *common.TrinoClient
}

func (session *trinoSession) EnsureTable(ctx context.Context, table common.TableSchema) error {
	err := session.client.CreateSchemaIfNotExists(ctx)
	if err != nil {
		return err
	}
	_, err = session.client.ExecContext(ctx, createTableSql(session.client.QuotedTablePath(table.TableName), table, trinoColumnType, false))
	return err
}

func (session *trinoSession) CreateStagingTable(ctx context.Context, table common.TableSchema, stagingTableName string) error {
	_, err := session.client.ExecContext(ctx, createStagingTableSql(session.client.QuotedTablePath(stagingTableName), table, trinoColumnType, "BIGINT", false))
	return err
}

// StageRows inserts rows with multi-row VALUES statements bounded by TRINO_MAX_QUERY_LENGTH
func (session *trinoSession) StageRows(ctx context.Context, table common.TableSchema, stagingTableName string, rows *stagedRows) error {
	quotedTablePath := session.client.QuotedTablePath(stagingTableName)
	columnNames := append(table.ColumnNames(), STAGING_SEQUENCE_COLUMN)

	insertSqlPrefix := "INSERT INTO " + quotedTablePath + " (" + quoteIdentifiers(columnNames, "") + ") VALUES "
	currentSql := insertSqlPrefix
	currentRowCount := 0

	for rows.Next() {
		values, _ := rows.Values()
		rowValuesStatement := trinoRowValues(values)

		if len(currentSql)+len(rowValuesStatement)+1 < common.TRINO_MAX_QUERY_LENGTH { // +1 for the comma
			if currentSql != insertSqlPrefix {
				currentSql += ","
			}
			currentSql += rowValuesStatement
			currentRowCount++
		} else {
			_, err := session.client.ExecContext(ctx, currentSql)
			if err != nil {
				return err
			}
			common.LogDebug(session.client.Config, "Inserted", currentRowCount, "rows into table:", quotedTablePath)
			currentSql = insertSqlPrefix + rowValuesStatement
			currentRowCount = 1
		}
	}

	if currentSql != insertSqlPrefix {
		_, err := session.client.ExecContext(ctx, currentSql)
		if err != nil {
			return err
		}
		common.LogDebug(session.client.Config, "Inserted", currentRowCount, "rows into table:", quotedTablePath)
	}
	return nil
}

func (session *trinoSession) MergeBatch(ctx context.Context, table common.TableSchema, stagingTableName string, offset int, limit int) error {
	_, err := session.client.ExecContext(ctx, trinoMergeSql(session.client.QuotedTablePath(table.TableName), session.client.QuotedTablePath(stagingTableName), table, offset, limit))
	return err
}

func (session *trinoSession) DropStagingTable(ctx context.Context, stagingTableName string) error {
	_, err := session.client.ExecContext(ctx, "DROP TABLE IF EXISTS "+session.client.QuotedTablePath(stagingTableName))
	return err
}

func (session *trinoSession) Release() {}

// trinoMergeSql deduplicates one slice with row_number() and merges it on the primary key
func trinoMergeSql(quotedTablePath string, quotedStagingTablePath string, table common.TableSchema, offset int, limit int) string {
	columnNames := table.ColumnNames()

	updates := []string{}
	for _, columnName := range nonKeyColumnNames(table) {
		if columnName == common.COLUMN_DETECTED_OR_REMOTE_DELETED_AT {
			updates = append(updates, quoteIdentifier(columnName)+" = "+detectedDeletedAtSql("source", "target"))
		} else {
			updates = append(updates, quoteIdentifier(columnName)+" = source."+quoteIdentifier(columnName))
		}
	}

	return "MERGE INTO " + quotedTablePath + " AS target USING (" +
		"SELECT " + quoteIdentifiers(columnNames, "") + " FROM (" +
		"SELECT batch.*, row_number() OVER (PARTITION BY batch." + quoteIdentifier(common.COLUMN_REMOTE_ID) + " ORDER BY " + survivorOrder("batch.") + ") AS _staging_rank " +
		"FROM (SELECT * FROM " + quotedStagingTablePath + " ORDER BY " + stagingSliceOrder("") +
		" OFFSET " + common.IntToString(offset) + " LIMIT " + common.IntToString(limit) + ") AS batch" +
		") AS ranked WHERE _staging_rank = 1" +
		") AS source ON " + primaryKeyJoinSql("target", "source") + " " +
		"WHEN MATCHED THEN UPDATE SET " + strings.Join(updates, ", ") + " " +
		"WHEN NOT MATCHED THEN INSERT (" + quoteIdentifiers(columnNames, "") + ") VALUES (" + quoteIdentifiers(columnNames, "source.") + ")"
}

func trinoRowValues(values []interface{}) string {
	literals := make([]string, len(values))
	for i, value := range values {
		literals[i] = trinoLiteral(value)
	}
	return "(" + strings.Join(literals, ",") + ")"
}

func trinoLiteral(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return trinoString(typed)
	case json.RawMessage:
		return trinoString(string(typed))
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		if typed {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "TIMESTAMP '" + typed.UTC().Format("2006-01-02 15:04:05.000000") + "'"
	default:
		encoded, _ := json.Marshal(typed)
		return trinoString(string(encoded))
	}
}

func trinoString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
