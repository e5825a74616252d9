package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nts "github.com/nats-io/nats.go"
	js "github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/syncer"
)

const (
	RETRY_BASE_DELAY = 30 * time.Second
	RETRY_MAX_DELAY  = 15 * time.Minute

	FETCH_RETRY_DELAY = time.Second
)

// Satisfied by jetstream.Msg
type runMessage interface {
	Data() []byte
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
	InProgress() error
	Metadata() (*js.MsgMetadata, error)
}

type messageFetcher interface {
	Fetch(ctx context.Context) (runMessage, error)
}

type requestRunner interface {
	Run(ctx context.Context, request syncer.RunRequest, onLiveness func()) (syncer.RunReport, error)
}

// Worker pulls run requests and executes up to Concurrency of them at a time.
// The message is the run's lease: liveness extends it, success acknowledges it,
// a retryable failure schedules a redelivery and anything else terminates it.
type Worker struct {
	Config          *Config
	Fetcher         messageFetcher
	Runner          requestRunner
	FetchRetryDelay time.Duration
}

func NewWorker(config *Config, fetcher messageFetcher, runner requestRunner) *Worker {
	return &Worker{
		Config:          config,
		Fetcher:         fetcher,
		Runner:          runner,
		FetchRetryDelay: FETCH_RETRY_DELAY,
	}
}

// Work returns after ctx is cancelled and every in-flight run has settled its message
func (worker *Worker) Work(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(worker.Config.Concurrency)

	common.LogInfo(worker.Config.CommonConfig, "Waiting for run requests on", worker.Config.Nats.Subject, "with concurrency", worker.Config.Concurrency)
	for groupCtx.Err() == nil {
		// Blocks while all slots are busy, so a message is only fetched when it can be run
		group.Go(func() error {
			return worker.fetchAndHandle(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (worker *Worker) fetchAndHandle(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	message, err := worker.Fetcher.Fetch(ctx)
	if err != nil {
		if isFatalFetchError(err) {
			return err
		}
		common.LogWarn(worker.Config.CommonConfig, "Failed to fetch run requests, retrying:", err)
		select {
		case <-time.After(worker.FetchRetryDelay):
		case <-ctx.Done():
		}
		return nil
	}
	if message == nil {
		return nil
	}

	worker.Handle(ctx, message)
	return nil
}

// The consumer is gone or the connection is closed for good, so no later fetch can succeed
func isFatalFetchError(err error) bool {
	return errors.Is(err, js.ErrConsumerDeleted) ||
		errors.Is(err, js.ErrConsumerNotFound) ||
		errors.Is(err, nts.ErrConnectionClosed)
}

func (worker *Worker) Handle(ctx context.Context, message runMessage) {
	logger := common.Logger(worker.Config.CommonConfig)

	var request syncer.RunRequest
	err := json.Unmarshal(message.Data(), &request)
	if err != nil {
		logger.Error().Err(err).Str("data", string(message.Data())).Msg("Invalid run request")
		worker.settle(message.Term())
		return
	}

	onLiveness := func() {
		err := message.InProgress()
		if err != nil {
			logger.Warn().Err(err).Str("connectionId", request.ConnectionId).Msg("Failed to extend run request")
		}
	}

	report, err := worker.Runner.Run(ctx, request, onLiveness)
	if err == nil {
		worker.settle(message.Ack())
		return
	}

	if !report.Retryable() {
		worker.settle(message.Term())
		return
	}
	if ctx.Err() != nil {
		// Shutting down: hand the request to another worker right away
		worker.settle(message.Nak())
		return
	}

	numDelivered := uint64(1)
	metadata, metadataErr := message.Metadata()
	if metadataErr == nil {
		numDelivered = metadata.NumDelivered
	}
	if numDelivered >= uint64(worker.Config.Nats.MaxDeliver) {
		logger.Error().Str("runId", report.RunId).Uint64("numDelivered", numDelivered).Msg("Giving up on run request")
		worker.settle(message.Term())
		return
	}

	delay := RetryDelay(numDelivered)
	logger.Warn().Str("runId", report.RunId).Dur("delay", delay).Msg("Retrying run request")
	worker.settle(message.NakWithDelay(delay))
}

func (worker *Worker) settle(err error) {
	if err != nil {
		common.LogError(worker.Config.CommonConfig, "Failed to settle run request:", err)
	}
}

// RetryDelay doubles per delivery: 30s, 1m, 2m, ... up to 15m
func RetryDelay(numDelivered uint64) time.Duration {
	delay := RETRY_BASE_DELAY
	for i := uint64(1); i < numDelivered; i++ {
		delay *= 2
		if delay >= RETRY_MAX_DELAY {
			return RETRY_MAX_DELAY
		}
	}
	return delay
}
