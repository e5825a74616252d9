package destination

import (
	"context"

	"github.com/BemiHQ/BemiSync/common"
)

// Resolver builds writers for configured destinations. It owns the connection pools.
type Resolver struct {
	Config *common.CommonConfig

	postgresPools *poolRegistry[*common.PostgresClient]
	duckdbPools   *poolRegistry[*common.DuckdbClient]
	trinoPools    *poolRegistry[*common.TrinoClient]
}

func NewResolver(config *common.CommonConfig) *Resolver {
	return &Resolver{
		Config: config,
		postgresPools: newPoolRegistry(
			func(destination common.DestinationConfig) (*common.PostgresClient, error) {
				return common.ConnectPostgresClient(config, destination.DatabaseUrl)
			},
			func(client *common.PostgresClient) { client.Close() },
		),
		duckdbPools: newPoolRegistry(
			func(destination common.DestinationConfig) (*common.DuckdbClient, error) {
				return common.NewDuckdbClient(config, destination.DatabasePath)
			},
			func(client *common.DuckdbClient) { client.Close() },
		),
		trinoPools: newPoolRegistry(
			func(destination common.DestinationConfig) (*common.TrinoClient, error) {
				return common.NewTrinoClient(config, destination.DatabaseUrl, destination.TrinoCatalog, destination.Schema)
			},
			func(client *common.TrinoClient) { client.Close() },
		),
	}
}

func (resolver *Resolver) Writer(ctx context.Context, destination common.DestinationConfig) (Writer, error) {
	schema := destination.Schema
	if schema == "" {
		return nil, common.NewConfigurationError("destination %s has no schema", destination.Id)
	}

	switch destination.Type {
	case common.DestinationTypePostgres:
		if destination.DatabaseUrl == "" {
			return nil, common.NewConfigurationError("postgres destination %s has no database url", destination.Id)
		}
		client, err := resolver.postgresPools.Get(destination)
		if err != nil {
			return nil, common.WrapDestinationIoError(err, "connecting to postgres destination %s", destination.Id)
		}
		return NewPostgresWriter(resolver.Config, client, schema), nil
	case common.DestinationTypeDuckdb:
		client, err := resolver.duckdbPools.Get(destination)
		if err != nil {
			return nil, common.WrapDestinationIoError(err, "opening duckdb destination %s", destination.Id)
		}
		return NewDuckdbWriter(resolver.Config, client, schema), nil
	case common.DestinationTypeTrino:
		if destination.DatabaseUrl == "" || destination.TrinoCatalog == "" {
			return nil, common.NewConfigurationError("trino destination %s needs a database url and a catalog", destination.Id)
		}
		client, err := resolver.trinoPools.Get(destination)
		if err != nil {
			return nil, common.WrapDestinationIoError(err, "connecting to trino destination %s", destination.Id)
		}
		return NewTrinoWriter(resolver.Config, client), nil
	default:
		return nil, common.NewConfigurationError("unsupported destination type %q", destination.Type)
	}
}

func (resolver *Resolver) Close() {
	resolver.postgresPools.Close()
	resolver.duckdbPools.Close()
	resolver.trinoPools.Close()
}
