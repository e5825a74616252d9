package main

import (
	"context"
	"errors"
	"time"

	nts "github.com/nats-io/nats.go"
	js "github.com/nats-io/nats.go/jetstream"

	"github.com/BemiHQ/BemiSync/common"
)

type Nats struct {
	Config *Config
	Conn   *nts.Conn
}

func NewNats(config *Config) *Nats {
	conn, err := nts.Connect(config.Nats.Url, nts.Name("bemisync-worker"))
	common.PanicIfError(config.CommonConfig, err)

	return &Nats{
		Config: config,
		Conn:   conn,
	}
}

// Durable pull consumer; an unacknowledged run request is redelivered after AckWait without a liveness signal
func (nats *Nats) Consumer(ctx context.Context) js.Consumer {
	stream := nats.stream(ctx)
	consumer, err := stream.CreateOrUpdateConsumer(ctx, js.ConsumerConfig{
		Durable:       nats.Config.Nats.ConsumerName,
		FilterSubject: nats.Config.Nats.Subject,
		AckPolicy:     js.AckExplicitPolicy,
		AckWait:       time.Duration(nats.Config.Nats.AckWaitSeconds) * time.Second,
		MaxDeliver:    nats.Config.Nats.MaxDeliver,
		MaxAckPending: nats.Config.Concurrency,
	})
	common.PanicIfError(nats.Config.CommonConfig, err)
	return consumer
}

func (nats *Nats) Close() {
	nats.Conn.Close()
}

func (nats *Nats) stream(ctx context.Context) js.Stream {
	jetstream, err := js.New(nats.Conn)
	common.PanicIfError(nats.Config.CommonConfig, err)
	stream, err := jetstream.Stream(ctx, nats.Config.Nats.Stream)
	common.PanicIfError(nats.Config.CommonConfig, err)
	return stream
}

type NatsFetcher struct {
	consumer     js.Consumer
	fetchTimeout time.Duration
}

func NewNatsFetcher(config *Config, consumer js.Consumer) *NatsFetcher {
	return &NatsFetcher{
		consumer:     consumer,
		fetchTimeout: time.Duration(config.Nats.FetchTimeoutSeconds) * time.Second,
	}
}

// Returns a nil message when nothing arrived within the fetch timeout
func (fetcher *NatsFetcher) Fetch(ctx context.Context) (runMessage, error) {
	batch, err := fetcher.consumer.Fetch(1, js.FetchMaxWait(fetcher.fetchTimeout))
	if err != nil {
		return nil, err
	}

	message, ok := <-batch.Messages()
	if ok {
		return message, nil
	}

	err = batch.Error()
	if err != nil && !errors.Is(err, nts.ErrTimeout) {
		return nil, err
	}
	return nil, nil
}
