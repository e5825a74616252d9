package remote

import (
	"context"
	"sort"
	"time"

	"github.com/BemiHQ/BemiSync/common"
)

// Client turns one provider's paginated API into a lazy record stream
type Client interface {
	ProviderName() string
	ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) (RecordStream, error)
}

type ClientFactory func(config *common.CommonConfig, connection common.Connection) (Client, error)

type registration struct {
	category common.Category
	factory  ClientFactory
}

// Registry maps provider names to client constructors
type Registry struct {
	registrations map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{registrations: make(map[string]registration)}
}

func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(ATTIO_PROVIDER_NAME, common.CategoryCrm, NewAttioClient)
	registry.Register(HUBSPOT_PROVIDER_NAME, common.CategoryCrm, NewHubspotClient)
	registry.Register(OUTREACH_PROVIDER_NAME, common.CategoryEngagement, NewOutreachClient)
	return registry
}

func (registry *Registry) Register(providerName string, category common.Category, factory ClientFactory) {
	registry.registrations[providerName] = registration{category: category, factory: factory}
}

func (registry *Registry) ProviderNames() []string {
	names := make([]string, 0, len(registry.registrations))
	for name := range registry.registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient builds the client for the connection's provider, wrapped with error logging
func (registry *Registry) NewClient(config *common.CommonConfig, connection common.Connection) (Client, error) {
	registered, ok := registry.registrations[connection.ProviderName]
	if !ok {
		return nil, common.NewConfigurationError("unsupported provider %q, expected one of %v", connection.ProviderName, registry.ProviderNames())
	}
	if registered.category != connection.Category {
		return nil, common.NewConfigurationError("provider %q does not support category %q", connection.ProviderName, connection.Category)
	}
	if connection.AccessToken == "" {
		return nil, common.NewConfigurationError("connection %s has no access token", connection.Id)
	}

	client, err := registered.factory(config, connection)
	if err != nil {
		return nil, err
	}
	return WithErrorLogging(config, connection, client), nil
}
