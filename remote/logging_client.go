package remote

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/BemiHQ/BemiSync/common"
)

// WithErrorLogging decorates a client so that every failure, including failures surfacing mid-stream,
// is logged with the connection context and returned unchanged
func WithErrorLogging(config *common.CommonConfig, connection common.Connection, client Client) Client {
	if _, ok := client.(*loggingClient); ok {
		return client
	}

	return &loggingClient{
		client: client,
		logger: common.Logger(config).With().
			Str("connectionId", connection.Id).
			Str("providerName", connection.ProviderName).
			Str("customerId", connection.CustomerId).
			Logger(),
	}
}

type loggingClient struct {
	client Client
	logger zerolog.Logger
}

func (client *loggingClient) ProviderName() string {
	return client.client.ProviderName()
}

func (client *loggingClient) ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) (RecordStream, error) {
	logger := client.logger.With().Str("object", object.String()).Logger()

	stream, err := client.client.ListRecords(ctx, object, mapper, updatedAfter, onLiveness)
	if err != nil {
		logError(logger, "listRecords", err)
		return nil, err
	}
	return &loggingRecordStream{stream: stream, logger: logger}, nil
}

type loggingRecordStream struct {
	stream RecordStream
	logger zerolog.Logger
}

func (stream *loggingRecordStream) Next() (*common.CommonRecord, error) {
	record, err := stream.stream.Next()
	if err != nil && err != io.EOF && !errors.Is(err, ErrRecordStreamClosed) {
		logError(stream.logger, "listRecords.next", err)
	}
	return record, err
}

func (stream *loggingRecordStream) Close() error {
	return stream.stream.Close()
}

func logError(logger zerolog.Logger, method string, err error) {
	logger.Error().
		Err(err).
		Str("method", method).
		Str("errorKind", string(common.ErrorKindOf(err))).
		Bool("retryable", common.IsRetryable(err)).
		Msg("Remote client call failed")
}
