package destination

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BemiHQ/BemiSync/common"
)

// stagedRows pulls records from the stream and projects them onto the table's columns.
// It implements pgx.CopyFromSource. Values are the table columns followed by the staging sequence.
type stagedRows struct {
	connection common.Connection
	table      common.TableSchema
	stream     RecordStream

	values            []interface{}
	count             int
	maxLastModifiedAt *time.Time
	err               error
}

func newStagedRows(connection common.Connection, table common.TableSchema, stream RecordStream) *stagedRows {
	return &stagedRows{connection: connection, table: table, stream: stream}
}

func (rows *stagedRows) Next() bool {
	if rows.err != nil {
		return false
	}

	record, err := rows.stream.Next()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		rows.err = err
		return false
	}

	values, err := projectRow(rows.connection, rows.table, record)
	if err != nil {
		rows.err = common.NewDataQualityError(err, "projecting record %s onto %s", record.RemoteId, rows.table.TableName)
		return false
	}

	rows.count++
	rows.maxLastModifiedAt = common.MaxTime(rows.maxLastModifiedAt, record.LastModifiedAt)
	rows.values = append(values, int64(rows.count))
	return true
}

func (rows *stagedRows) Values() ([]interface{}, error) {
	return rows.values, nil
}

// Err is the stream or projection error that stopped staging, with its classification intact
func (rows *stagedRows) Err() error {
	return rows.err
}

func (rows *stagedRows) Count() int {
	return rows.count
}

func (rows *stagedRows) MaxLastModifiedAt() *time.Time {
	return rows.maxLastModifiedAt
}

// projectRow returns one value per table column: string, int64, bool, time.Time, json.RawMessage or nil
func projectRow(connection common.Connection, table common.TableSchema, record *common.CommonRecord) ([]interface{}, error) {
	if record.RemoteId == "" {
		return nil, fmt.Errorf("record has no remote id")
	}

	values := make([]interface{}, len(table.Columns))
	for i, column := range table.Columns {
		var value interface{}
		switch column.ColumnName {
		case common.COLUMN_PROVIDER_NAME:
			value = connection.ProviderName
		case common.COLUMN_CUSTOMER_ID:
			value = connection.CustomerId
		case common.COLUMN_REMOTE_ID:
			value = record.RemoteId
		case common.COLUMN_REMOTE_CREATED_AT:
			value = timeOrNil(record.RemoteCreatedAt)
		case common.COLUMN_REMOTE_UPDATED_AT:
			value = timeOrNil(record.RemoteUpdatedAt)
		case common.COLUMN_REMOTE_WAS_DELETED:
			value = record.RemoteWasDeleted
		case common.COLUMN_REMOTE_DELETED_AT:
			value = timeOrNil(record.RemoteDeletedAt)
		case common.COLUMN_DETECTED_OR_REMOTE_DELETED_AT:
			value = timeOrNil(record.DetectedOrRemoteDeletedAt)
		case common.COLUMN_LAST_MODIFIED_AT:
			value = timeOrNil(record.LastModifiedAt)
		case common.COLUMN_RAW_DATA:
			value = rawJsonOrNil(record.RawData)
		case common.COLUMN_MAPPED_DATA:
			value = rawJsonOrNil(record.MappedData)
		default:
			coerced, err := coerceValue(column, record.Fields[column.ColumnName])
			if err != nil {
				return nil, err
			}
			value = coerced
		}

		if value == nil && column.NotNull {
			return nil, fmt.Errorf("column %s cannot be null", column.ColumnName)
		}
		values[i] = value
	}

	return values, nil
}

// coerceValue converts a decoded JSON field value to the column's type
func coerceValue(column common.SchemaColumn, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch column.ColumnType {
	case common.ColumnTypeString:
		switch typed := value.(type) {
		case string:
			return typed, nil
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64), nil
		case int64:
			return strconv.FormatInt(typed, 10), nil
		case json.Number:
			return typed.String(), nil
		case bool:
			return strconv.FormatBool(typed), nil
		}
	case common.ColumnTypeInteger:
		switch typed := value.(type) {
		case float64:
			return int64(math.Round(typed)), nil
		case int64:
			return typed, nil
		case json.Number:
			return numberToInt64(typed.String())
		case string:
			number, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err == nil {
				return int64(math.Round(number)), nil
			}
		}
	case common.ColumnTypeBoolean:
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			parsed, err := strconv.ParseBool(typed)
			if err == nil {
				return parsed, nil
			}
		}
	case common.ColumnTypeTimestamp:
		switch typed := value.(type) {
		case time.Time:
			return typed.UTC(), nil
		case string:
			parsed, err := common.ParseTimestamp(typed)
			if err == nil {
				return parsed, nil
			}
		case float64:
			return common.MsToTime(int64(typed)), nil
		case json.Number:
			ms, err := numberToInt64(typed.String())
			if err == nil {
				return common.MsToTime(ms), nil
			}
		}
	case common.ColumnTypeJson:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column.ColumnName, err)
		}
		return json.RawMessage(encoded), nil
	}

	return nil, fmt.Errorf("column %s: cannot convert %v (%T) to %s", column.ColumnName, value, value, column.ColumnType)
}

// Integers parse exactly; fractional numbers are rounded
func numberToInt64(value string) (int64, error) {
	integer, err := strconv.ParseInt(value, 10, 64)
	if err == nil {
		return integer, nil
	}
	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(number)), nil
}

func timeOrNil(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func rawJsonOrNil(value json.RawMessage) interface{} {
	if len(value) == 0 || string(value) == "null" {
		return nil
	}
	return value
}
