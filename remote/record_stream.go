package remote

import (
	"context"
	"errors"

	"github.com/BemiHQ/BemiSync/common"
)

var ErrRecordStreamClosed = errors.New("record stream closed by consumer")

// RecordStream is a finite, forward-only sequence of records.
// Next returns io.EOF once exhausted, or the producer's error.
type RecordStream interface {
	Next() (*common.CommonRecord, error)
	Close() error
}

type EmitFunc func(record *common.CommonRecord) error

type ProduceFunc func(ctx context.Context, emit EmitFunc) error

// NewRecordStream runs produce in its own goroutine and hands records to the consumer through a capped buffer.
// The producer blocks once bufferSize bytes are waiting to be consumed.
func NewRecordStream(ctx context.Context, config *common.CommonConfig, bufferSize int, produce ProduceFunc) RecordStream {
	ctx, cancel := context.WithCancel(ctx)
	cappedBuffer := common.NewCappedBuffer(config, bufferSize)
	jsonQueueWriter := common.NewJsonQueueWriter(cappedBuffer)

	stream := &queuedRecordStream{
		cancel:          cancel,
		cappedBuffer:    cappedBuffer,
		jsonQueueReader: common.NewJsonQueueReader(cappedBuffer),
		done:            make(chan struct{}),
	}

	go func() {
		defer close(stream.done)

		err := produce(ctx, func(record *common.CommonRecord) error {
			return jsonQueueWriter.Write(record)
		})
		if err != nil {
			jsonQueueWriter.CloseWithError(err)
			return
		}
		jsonQueueWriter.Close()
	}()

	return stream
}

type queuedRecordStream struct {
	cancel          context.CancelFunc
	cappedBuffer    *common.CappedBuffer
	jsonQueueReader *common.JsonQueueReader
	done            chan struct{}
}

func (stream *queuedRecordStream) Next() (*common.CommonRecord, error) {
	var record common.CommonRecord
	_, err := stream.jsonQueueReader.Read(&record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Close stops the producer and waits for it to exit
func (stream *queuedRecordStream) Close() error {
	stream.cancel()
	stream.cappedBuffer.CloseWithError(ErrRecordStreamClosed)
	<-stream.done
	return nil
}
