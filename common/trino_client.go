package common

import (
	"context"
	"database/sql"

	_ "github.com/trinodb/trino-go-client/trino"
)

const (
	TRINO_MAX_QUERY_LENGTH = 1_000_000
)

type TrinoClient struct {
	Config      *CommonConfig
	Db          *sql.DB
	CatalogName string
	SchemaName  string
}

func NewTrinoClient(config *CommonConfig, databaseUrl string, catalogName string, schemaName string) (*TrinoClient, error) {
	db, err := sql.Open("trino", databaseUrl)
	if err != nil {
		return nil, err
	}

	return &TrinoClient{
		Config:      config,
		Db:          db,
		CatalogName: catalogName,
		SchemaName:  schemaName,
	}, nil
}

func (trino *TrinoClient) Schema() string {
	return `"` + trino.CatalogName + `"."` + trino.SchemaName + `"`
}

func (trino *TrinoClient) QuotedTablePath(tableName string) string {
	return trino.Schema() + `."` + tableName + `"`
}

func (trino *TrinoClient) Close() {
	err := trino.Db.Close()
	if err != nil {
		LogWarn(trino.Config, "Failed to close Trino client:", err)
	}
}

func (trino *TrinoClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	LogDebug(trino.Config, "Trino query:", query)
	result, err := trino.Db.ExecContext(ctx, query, args...)
	if err != nil {
		LogError(trino.Config, "Trino query failed:", query)
		return nil, err
	}

	return result, nil
}

func (trino *TrinoClient) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	LogDebug(trino.Config, "Trino query:", query)
	return trino.Db.QueryRowContext(ctx, query, args...)
}

func (trino *TrinoClient) CreateSchemaIfNotExists(ctx context.Context) error {
	_, err := trino.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+trino.Schema())
	return err
}
