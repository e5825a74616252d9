package common

import (
	"github.com/iancoleman/strcase"
)

type ColumnType string

const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeInteger   ColumnType = "integer"
	ColumnTypeBoolean   ColumnType = "boolean"
	ColumnTypeTimestamp ColumnType = "timestamp"
	ColumnTypeJson      ColumnType = "json"
)

const (
	COLUMN_PROVIDER_NAME                 = "provider_name"
	COLUMN_CUSTOMER_ID                   = "customer_id"
	COLUMN_REMOTE_ID                     = "remote_id"
	COLUMN_REMOTE_CREATED_AT             = "remote_created_at"
	COLUMN_REMOTE_UPDATED_AT             = "remote_updated_at"
	COLUMN_REMOTE_WAS_DELETED            = "remote_was_deleted"
	COLUMN_REMOTE_DELETED_AT             = "remote_deleted_at"
	COLUMN_DETECTED_OR_REMOTE_DELETED_AT = "detected_or_remote_deleted_at"
	COLUMN_LAST_MODIFIED_AT              = "last_modified_at"
	COLUMN_RAW_DATA                      = "raw_data"
	COLUMN_MAPPED_DATA                   = "mapped_data"
)

type SchemaColumn struct {
	ColumnName string
	ColumnType ColumnType
	NotNull    bool
}

type TableSchema struct {
	TableName string
	Columns   []SchemaColumn
}

func (table TableSchema) ColumnNames() []string {
	names := make([]string, len(table.Columns))
	for i, column := range table.Columns {
		names[i] = column.ColumnName
	}
	return names
}

func IsPrimaryKeyColumn(columnName string) bool {
	return columnName == COLUMN_PROVIDER_NAME || columnName == COLUMN_CUSTOMER_ID || columnName == COLUMN_REMOTE_ID
}

var PRIMARY_KEY_COLUMNS = []string{COLUMN_PROVIDER_NAME, COLUMN_CUSTOMER_ID, COLUMN_REMOTE_ID}

var keyColumns = []SchemaColumn{
	{ColumnName: COLUMN_PROVIDER_NAME, ColumnType: ColumnTypeString, NotNull: true},
	{ColumnName: COLUMN_CUSTOMER_ID, ColumnType: ColumnTypeString, NotNull: true},
	{ColumnName: COLUMN_REMOTE_ID, ColumnType: ColumnTypeString, NotNull: true},
}

var trackingColumns = []SchemaColumn{
	{ColumnName: COLUMN_REMOTE_CREATED_AT, ColumnType: ColumnTypeTimestamp},
	{ColumnName: COLUMN_REMOTE_UPDATED_AT, ColumnType: ColumnTypeTimestamp},
	{ColumnName: COLUMN_REMOTE_WAS_DELETED, ColumnType: ColumnTypeBoolean, NotNull: true},
	{ColumnName: COLUMN_REMOTE_DELETED_AT, ColumnType: ColumnTypeTimestamp},
	{ColumnName: COLUMN_DETECTED_OR_REMOTE_DELETED_AT, ColumnType: ColumnTypeTimestamp},
	{ColumnName: COLUMN_LAST_MODIFIED_AT, ColumnType: ColumnTypeTimestamp},
	{ColumnName: COLUMN_RAW_DATA, ColumnType: ColumnTypeJson},
}

func text(name string) SchemaColumn      { return SchemaColumn{ColumnName: name, ColumnType: ColumnTypeString} }
func integer(name string) SchemaColumn   { return SchemaColumn{ColumnName: name, ColumnType: ColumnTypeInteger} }
func boolean(name string) SchemaColumn   { return SchemaColumn{ColumnName: name, ColumnType: ColumnTypeBoolean} }
func timestamp(name string) SchemaColumn { return SchemaColumn{ColumnName: name, ColumnType: ColumnTypeTimestamp} }
func jsonb(name string) SchemaColumn     { return SchemaColumn{ColumnName: name, ColumnType: ColumnTypeJson} }

type commonModel struct {
	tableName string
	columns   []SchemaColumn
}

var COMMON_MODELS = map[Category]map[string]commonModel{
	CategoryCrm: {
		"account": {tableName: "crm_accounts", columns: []SchemaColumn{
			text("name"), text("description"), text("industry"), text("website"), integer("number_of_employees"),
			jsonb("addresses"), jsonb("phone_numbers"), text("lifecycle_stage"), timestamp("last_activity_at"), text("owner_id"),
		}},
		"contact": {tableName: "crm_contacts", columns: []SchemaColumn{
			text("first_name"), text("last_name"), jsonb("addresses"), jsonb("email_addresses"), jsonb("phone_numbers"),
			timestamp("last_activity_at"), text("lifecycle_stage"), text("account_id"), text("owner_id"),
		}},
		"lead": {tableName: "crm_leads", columns: []SchemaColumn{
			text("lead_source"), text("title"), text("company"), text("first_name"), text("last_name"),
			jsonb("addresses"), jsonb("phone_numbers"), jsonb("email_addresses"), timestamp("converted_date"),
			text("converted_account_id"), text("converted_contact_id"), text("owner_id"),
		}},
		"opportunity": {tableName: "crm_opportunities", columns: []SchemaColumn{
			text("name"), text("description"), integer("amount"), text("stage"), text("status"), timestamp("last_activity_at"),
			text("pipeline"), timestamp("close_date"), text("account_id"), text("owner_id"),
		}},
		"user": {tableName: "crm_users", columns: []SchemaColumn{
			text("name"), text("email"), boolean("is_active"),
		}},
	},
	CategoryEngagement: {
		"contact": {tableName: "engagement_contacts", columns: []SchemaColumn{
			text("first_name"), text("last_name"), text("job_title"), jsonb("address"), jsonb("email_addresses"), jsonb("phone_numbers"),
			integer("open_count"), integer("click_count"), integer("reply_count"), integer("bounced_count"), text("owner_id"),
		}},
		"mailbox": {tableName: "engagement_mailboxes", columns: []SchemaColumn{
			text("email"), text("user_id"),
		}},
		"sequence": {tableName: "engagement_sequences", columns: []SchemaColumn{
			boolean("is_enabled"), text("name"), jsonb("tags"), integer("num_steps"), integer("schedule_count"), integer("open_count"),
			integer("opt_out_count"), integer("reply_count"), integer("click_count"), text("owner_id"),
		}},
		"sequence_state": {tableName: "engagement_sequence_states", columns: []SchemaColumn{
			text("state"), text("mailbox_id"), text("sequence_id"), text("contact_id"),
		}},
		"user": {tableName: "engagement_users", columns: []SchemaColumn{
			text("first_name"), text("last_name"), text("email"), boolean("is_active"),
		}},
	},
}

func IsCommonModel(category Category, objectName string) bool {
	_, ok := COMMON_MODELS[category][objectName]
	return ok
}

// ObjectTableSchema returns the destination table for an object synced from a provider.
// Common models share one table per category across providers; standard and custom objects are provider-specific.
func ObjectTableSchema(providerName string, object ObjectDescriptor) (TableSchema, error) {
	columns := append([]SchemaColumn{}, keyColumns...)

	switch object.ObjectKind {
	case ObjectKindCommon:
		model, ok := COMMON_MODELS[object.Category][object.ObjectName]
		if !ok {
			return TableSchema{}, NewConfigurationError("unknown %s common model %q", object.Category, object.ObjectName)
		}
		columns = append(columns, model.columns...)
		columns = append(columns, trackingColumns...)
		return TableSchema{TableName: model.tableName, Columns: columns}, nil
	case ObjectKindStandard, ObjectKindCustom:
		tableName := strcase.ToSnake(providerName) + "_"
		if object.ObjectKind == ObjectKindCustom {
			tableName += "custom_"
		}
		tableName += strcase.ToSnake(object.ObjectName)

		columns = append(columns, trackingColumns...)
		columns = append(columns, jsonb(COLUMN_MAPPED_DATA))
		return TableSchema{TableName: tableName, Columns: columns}, nil
	default:
		return TableSchema{}, NewConfigurationError("unknown object kind %q", object.ObjectKind)
	}
}
