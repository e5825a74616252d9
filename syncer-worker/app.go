package main

import (
	"context"
	"fmt"

	"github.com/BemiHQ/BemiSync/catalog"
	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/destination"
	"github.com/BemiHQ/BemiSync/remote"
	"github.com/BemiHQ/BemiSync/syncer"
)

type App struct {
	Config       *Config
	Catalog      *catalog.Catalog
	Destinations *destination.Resolver
	Runner       *syncer.Runner

	nats           *Nats
	postgresClient *common.PostgresClient
}

func NewApp(ctx context.Context, config *Config) *App {
	syncCatalog, err := catalog.LoadFile(config.CatalogPath)
	common.PanicIfError(config.CommonConfig, err)
	common.LogInfo(config.CommonConfig, "Loaded", syncCatalog.String())

	app := &App{
		Config:       config,
		Catalog:      syncCatalog,
		Destinations: destination.NewResolver(config.CommonConfig),
	}

	app.Runner = &syncer.Runner{
		Config:            config.CommonConfig,
		SyncConfigs:       syncCatalog,
		Connections:       syncCatalog,
		Providers:         syncCatalog,
		Schemas:           syncCatalog,
		Destinations:      syncer.NewDestinationResolver(syncCatalog, app.Destinations),
		RemoteClients:     remote.DefaultRegistry(),
		Cursors:           app.cursorStore(ctx),
		Lifecycle:         app.lifecycleSink(),
		DataQualityPolicy: config.DataQualityPolicy,
		LivenessInterval:  config.LivenessInterval(),
		StallTimeout:      config.StallTimeout(),
	}
	if config.CommonConfig.Aws.IsConfigured() {
		app.Runner.DeadLetters = syncer.NewS3DeadLetterSink(config.CommonConfig, common.NewS3Client(config.CommonConfig))
	}

	return app
}

func (app *App) RunOnce(ctx context.Context) error {
	report, err := app.Runner.Run(ctx, syncer.RunRequest{
		SyncConfigId: app.Config.SyncConfigId,
		ConnectionId: app.Config.ConnectionId,
		Object:       app.Config.Object,
	}, nil)
	if err != nil {
		return fmt.Errorf("run %s failed (retryable: %t): %w", report.RunId, report.Retryable(), err)
	}
	return nil
}

func (app *App) Work(ctx context.Context) error {
	fetcher := NewNatsFetcher(app.Config, app.nats.Consumer(ctx))
	return NewWorker(app.Config, fetcher, app.Runner).Work(ctx)
}

func (app *App) Close() {
	app.Destinations.Close()
	if app.postgresClient != nil {
		app.postgresClient.Close()
	}
	if app.nats != nil {
		app.nats.Close()
	}
}

func (app *App) cursorStore(ctx context.Context) syncer.CursorStore {
	if app.Config.CommonConfig.CatalogDatabaseUrl == "" {
		common.LogWarn(app.Config.CommonConfig, "No catalog database configured, cursors are kept in memory")
		return syncer.NewMemoryCursorStore()
	}

	postgresClient, err := common.ConnectPostgresClient(app.Config.CommonConfig, app.Config.CommonConfig.CatalogDatabaseUrl)
	common.PanicIfError(app.Config.CommonConfig, err)
	app.postgresClient = postgresClient

	store := syncer.NewPostgresCursorStore(app.Config.CommonConfig, postgresClient)
	err = store.CreateTableIfNotExists(ctx)
	common.PanicIfError(app.Config.CommonConfig, err)
	return store
}

func (app *App) lifecycleSink() syncer.LifecycleSink {
	logSink := syncer.NewLogLifecycleSink(app.Config.CommonConfig)
	if !app.Config.IsWorkerMode() {
		return logSink
	}

	app.nats = NewNats(app.Config)
	return syncer.MultiLifecycleSink{
		logSink,
		syncer.NewNatsLifecycleSink(app.Config.CommonConfig, app.nats.Conn, app.Config.Nats.LifecycleSubjectPrefix),
	}
}
