package destination

import (
	"strings"

	"github.com/BemiHQ/BemiSync/common"
)

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteIdentifiers(identifiers []string, prefix string) string {
	quoted := make([]string, len(identifiers))
	for i, identifier := range identifiers {
		quoted[i] = prefix + quoteIdentifier(identifier)
	}
	return strings.Join(quoted, ", ")
}

func nonKeyColumnNames(table common.TableSchema) []string {
	columnNames := []string{}
	for _, column := range table.Columns {
		if !common.IsPrimaryKeyColumn(column.ColumnName) {
			columnNames = append(columnNames, column.ColumnName)
		}
	}
	return columnNames
}

func createTableSql(qualifiedTable string, table common.TableSchema, columnType func(column common.SchemaColumn) string, withPrimaryKey bool) string {
	definitions := []string{}
	for _, column := range table.Columns {
		definition := quoteIdentifier(column.ColumnName) + " " + columnType(column)
		if column.NotNull && withPrimaryKey {
			definition += " NOT NULL"
		}
		definitions = append(definitions, definition)
	}
	if withPrimaryKey {
		definitions = append(definitions, "PRIMARY KEY ("+quoteIdentifiers(common.PRIMARY_KEY_COLUMNS, "")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + qualifiedTable + " (" + strings.Join(definitions, ", ") + ")"
}

func createStagingTableSql(qualifiedStagingTable string, table common.TableSchema, columnType func(column common.SchemaColumn) string, sequenceType string, temporary bool) string {
	definitions := []string{}
	for _, column := range table.Columns {
		definitions = append(definitions, quoteIdentifier(column.ColumnName)+" "+columnType(column))
	}
	definitions = append(definitions, quoteIdentifier(STAGING_SEQUENCE_COLUMN)+" "+sequenceType)

	createTable := "CREATE TABLE "
	if temporary {
		createTable = "CREATE TEMP TABLE "
	}
	return createTable + qualifiedStagingTable + " (" + strings.Join(definitions, ", ") + ")"
}

// Slices are ordered so that every version of a remote id sits after its older versions.
// A remote id split across two slices therefore converges on its newest version.
func stagingSliceOrder(prefix string) string {
	return prefix + quoteIdentifier(common.COLUMN_REMOTE_ID) + " ASC, " +
		prefix + quoteIdentifier(common.COLUMN_LAST_MODIFIED_AT) + " ASC NULLS FIRST, " +
		prefix + quoteIdentifier(STAGING_SEQUENCE_COLUMN) + " ASC"
}

// Within a slice the survivor is the latest version, ties going to the latest arrival
func survivorOrder(prefix string) string {
	return prefix + quoteIdentifier(common.COLUMN_LAST_MODIFIED_AT) + " DESC NULLS LAST, " +
		prefix + quoteIdentifier(STAGING_SEQUENCE_COLUMN) + " DESC"
}

// A row that stays deleted keeps the deletion time first recorded for it; a restored row clears it
func detectedDeletedAtSql(incoming string, existing string) string {
	column := quoteIdentifier(common.COLUMN_DETECTED_OR_REMOTE_DELETED_AT)
	wasDeleted := quoteIdentifier(common.COLUMN_REMOTE_WAS_DELETED)
	return "CASE WHEN " + incoming + "." + wasDeleted + " AND " + existing + "." + wasDeleted +
		" THEN COALESCE(" + existing + "." + column + ", " + incoming + "." + column + ")" +
		" ELSE " + incoming + "." + column + " END"
}

func incomingColumnsSql(table common.TableSchema, incoming string, existing string) string {
	columns := []string{}
	for _, column := range table.Columns {
		if column.ColumnName == common.COLUMN_DETECTED_OR_REMOTE_DELETED_AT {
			columns = append(columns, detectedDeletedAtSql(incoming, existing)+" AS "+quoteIdentifier(column.ColumnName))
		} else {
			columns = append(columns, incoming+"."+quoteIdentifier(column.ColumnName))
		}
	}
	return strings.Join(columns, ", ")
}

func primaryKeyJoinSql(left string, right string) string {
	conditions := []string{}
	for _, columnName := range common.PRIMARY_KEY_COLUMNS {
		conditions = append(conditions, left+"."+quoteIdentifier(columnName)+" = "+right+"."+quoteIdentifier(columnName))
	}
	return strings.Join(conditions, " AND ")
}

// upsertFromStagingSql is the Postgres/DuckDB merge of one slice:
// INSERT ... SELECT DISTINCT ON (remote_id) ... ON CONFLICT (primary key) DO UPDATE
func upsertFromStagingSql(qualifiedTable string, qualifiedStagingTable string, table common.TableSchema, offset int, limit int) string {
	columnNames := quoteIdentifiers(table.ColumnNames(), "")

	updates := []string{}
	for _, columnName := range nonKeyColumnNames(table) {
		updates = append(updates, quoteIdentifier(columnName)+" = EXCLUDED."+quoteIdentifier(columnName))
	}

	return "INSERT INTO " + qualifiedTable + " (" + columnNames + ") " +
		"SELECT " + columnNames + " FROM (" +
		"SELECT DISTINCT ON (batch." + quoteIdentifier(common.COLUMN_REMOTE_ID) + ") " + incomingColumnsSql(table, "batch", "existing") + " " +
		"FROM (SELECT * FROM " + qualifiedStagingTable + " ORDER BY " + stagingSliceOrder("") +
		" LIMIT " + common.IntToString(limit) + " OFFSET " + common.IntToString(offset) + ") AS batch " +
		"LEFT JOIN " + qualifiedTable + " AS existing ON " + primaryKeyJoinSql("existing", "batch") + " " +
		"ORDER BY batch." + quoteIdentifier(common.COLUMN_REMOTE_ID) + ", " + survivorOrder("batch.") +
		") AS merged " +
		"ON CONFLICT (" + quoteIdentifiers(common.PRIMARY_KEY_COLUMNS, "") + ") DO UPDATE SET " + strings.Join(updates, ", ")
}
