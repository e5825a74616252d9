package syncer

import (
	"context"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/destination"
	"github.com/BemiHQ/BemiSync/remote"
)

// Lookups that fail because the entity does not exist return a Configuration error

type SyncConfigResolver interface {
	GetSyncConfig(ctx context.Context, syncConfigId string) (common.SyncConfig, error)
}

type ConnectionResolver interface {
	GetConnection(ctx context.Context, connectionId string) (common.Connection, error)
}

type ProviderConfigResolver interface {
	GetProvider(ctx context.Context, providerId string) (common.ProviderConfig, error)
}

type SchemaResolver interface {
	GetSchema(ctx context.Context, schemaId string) (common.SchemaConfig, error)
}

type DestinationConfigResolver interface {
	GetDestination(ctx context.Context, destinationId string) (common.DestinationConfig, error)
}

type DestinationResolver interface {
	GetWriter(ctx context.Context, destinationId string) (destination.Writer, error)
}

// Satisfied by *remote.Registry
type RemoteClientFactory interface {
	NewClient(config *common.CommonConfig, connection common.Connection) (remote.Client, error)
}

type CursorStore interface {
	GetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor) (common.SyncCursor, error)
	SetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor, cursor common.SyncCursor) error
}

type LifecycleSink interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type DeadLetterSink interface {
	Archive(ctx context.Context, runId string, object common.ObjectDescriptor, connection common.Connection, rejectedRecords []remote.RejectedRecord) error
}

// -------------------------------------------------------------------------------------------------

// NewDestinationResolver looks up the destination's configuration and builds a writer on its shared pool
func NewDestinationResolver(configs DestinationConfigResolver, resolver *destination.Resolver) DestinationResolver {
	return &destinationWriters{configs: configs, resolver: resolver}
}

type destinationWriters struct {
	configs  DestinationConfigResolver
	resolver *destination.Resolver
}

func (writers *destinationWriters) GetWriter(ctx context.Context, destinationId string) (destination.Writer, error) {
	if destinationId == "" {
		return nil, common.NewConfigurationError("no destination configured")
	}

	destinationConfig, err := writers.configs.GetDestination(ctx, destinationId)
	if err != nil {
		return nil, err
	}
	return writers.resolver.Writer(ctx, destinationConfig)
}
