package common

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/marcboeker/go-duckdb/v2"
)

var DUCKDB_BOOT_QUERIES = []string{
	"SET timezone='UTC'",
	"SET memory_limit='2GB'",
	"SET threads=2",
}

type DuckdbClient struct {
	Config    *CommonConfig
	Db        *sql.DB
	Connector *duckdb.Connector
}

// NewDuckdbClient opens the database file at path, or an in-memory database when path is empty
func NewDuckdbClient(config *CommonConfig, path string, bootQueries ...[]string) (*DuckdbClient, error) {
	ctx := context.Background()
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)

	client := &DuckdbClient{
		Config:    config,
		Db:        db,
		Connector: connector,
	}

	queries := DUCKDB_BOOT_QUERIES
	if bootQueries != nil {
		queries = append(append([]string{}, queries...), bootQueries[0]...)
	}
	for _, query := range queries {
		_, err := client.ExecContext(ctx, query)
		if err != nil {
			client.Close()
			return nil, err
		}
	}

	return client, nil
}

func (client *DuckdbClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	LogDebug(client.Config, "Querying DuckDBClient:", query)
	return client.Db.ExecContext(ctx, query, args...)
}

func (client *DuckdbClient) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	LogDebug(client.Config, "Querying DuckDBClient:", query)
	return client.Db.QueryRowContext(ctx, query, args...)
}

// Conn pins one connection; statements on it see the same session state
func (client *DuckdbClient) Conn(ctx context.Context) (*sql.Conn, error) {
	return client.Db.Conn(ctx)
}

// AppendRows bulk-loads rows through an Appender bound to the pinned connection
func (client *DuckdbClient) AppendRows(conn *sql.Conn, schema string, table string, appendRows func(appender *duckdb.Appender) error) error {
	return conn.Raw(func(driverConn any) error {
		appender, err := duckdb.NewAppenderFromConn(driverConn.(driver.Conn), schema, table)
		if err != nil {
			return err
		}

		err = appendRows(appender)
		if err != nil {
			appender.Close()
			return err
		}
		return appender.Close() // Flushes
	})
}

func (client *DuckdbClient) Close() {
	client.Db.Close()
}
