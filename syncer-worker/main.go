package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BemiHQ/BemiSync/common"
)

func main() {
	config := LoadConfig()
	defer common.HandleUnexpectedPanic(config.CommonConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(ctx, config)
	defer app.Close()

	var err error
	if config.IsWorkerMode() {
		err = app.Work(ctx)
	} else {
		err = app.RunOnce(ctx)
	}
	if err != nil {
		common.LogError(config.CommonConfig, err)
		app.Close()
		stop()
		os.Exit(1)
	}
}
