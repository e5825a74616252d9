package main

import (
	"context"
	"flag"
	"os"
	"sync"
	"time"

	js "github.com/nats-io/nats.go/jetstream"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/syncer"
)

func setTestArgs(args []string) {
	os.Args = append([]string{"bemisync-worker"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	registerFlags()
}

func loadTestConfig() *Config {
	setTestArgs([]string{"--catalog-path", "catalog.yml", "--nats-url", "nats://localhost:4222", "--nats-stream", "SYNC", "--nats-subject", "sync.runs", "--nats-consumer-name", "workers", "--concurrency", "2"})
	return LoadConfig()
}

type fakeMessage struct {
	data         []byte
	numDelivered uint64

	mutex         sync.Mutex
	settlements   []string
	nakDelay      time.Duration
	numInProgress int
}

func newFakeMessage(data string, numDelivered uint64) *fakeMessage {
	return &fakeMessage{data: []byte(data), numDelivered: numDelivered}
}

func (message *fakeMessage) Data() []byte {
	return message.data
}

func (message *fakeMessage) Ack() error {
	return message.settle("ack")
}

func (message *fakeMessage) Nak() error {
	return message.settle("nak")
}

func (message *fakeMessage) NakWithDelay(delay time.Duration) error {
	message.mutex.Lock()
	message.nakDelay = delay
	message.mutex.Unlock()
	return message.settle("nak")
}

func (message *fakeMessage) Term() error {
	return message.settle("term")
}

func (message *fakeMessage) InProgress() error {
	message.mutex.Lock()
	defer message.mutex.Unlock()
	message.numInProgress++
	return nil
}

func (message *fakeMessage) Metadata() (*js.MsgMetadata, error) {
	return &js.MsgMetadata{NumDelivered: message.numDelivered}, nil
}

func (message *fakeMessage) Settlements() []string {
	message.mutex.Lock()
	defer message.mutex.Unlock()
	return append([]string{}, message.settlements...)
}

func (message *fakeMessage) settle(settlement string) error {
	message.mutex.Lock()
	defer message.mutex.Unlock()
	message.settlements = append(message.settlements, settlement)
	return nil
}

type fakeFetcher struct {
	mutex    sync.Mutex
	failures []error // returned first, one per fetch
	messages []*fakeMessage
	err      error
}

func (fetcher *fakeFetcher) Fetch(ctx context.Context) (runMessage, error) {
	fetcher.mutex.Lock()
	defer fetcher.mutex.Unlock()

	if len(fetcher.failures) > 0 {
		err := fetcher.failures[0]
		fetcher.failures = fetcher.failures[1:]
		return nil, err
	}
	if len(fetcher.messages) == 0 {
		if fetcher.err != nil {
			return nil, fetcher.err
		}
		time.Sleep(time.Millisecond)
		return nil, nil
	}

	message := fetcher.messages[0]
	fetcher.messages = fetcher.messages[1:]
	return message, nil
}

type fakeRunner struct {
	err         error
	numLiveness int
	onRun       func(request syncer.RunRequest)

	mutex    sync.Mutex
	requests []syncer.RunRequest
}

func (runner *fakeRunner) Run(ctx context.Context, request syncer.RunRequest, onLiveness func()) (syncer.RunReport, error) {
	runner.mutex.Lock()
	runner.requests = append(runner.requests, request)
	runner.mutex.Unlock()

	for i := 0; i < runner.numLiveness; i++ {
		onLiveness()
	}
	if runner.onRun != nil {
		runner.onRun(request)
	}

	report := syncer.RunReport{RunId: "run-" + request.ConnectionId, Request: request, State: syncer.RunStateCompleted}
	if runner.err != nil {
		report.State = syncer.RunStateFailed
		report.Err = runner.err
	}
	return report, runner.err
}

func (runner *fakeRunner) Requests() []syncer.RunRequest {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return append([]syncer.RunRequest{}, runner.requests...)
}

func testErrorOfKind(kind common.ErrorKind) error {
	return common.NewSyncError(kind, nil, "run failed")
}
