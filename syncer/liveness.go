package syncer

import (
	"sync"
	"time"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/remote"
)

// LivenessReporter forwards heartbeats to an external supervisor, at most once per minInterval.
// Safe for concurrent use: page fetches signal from the producer goroutine, records from the consumer.
type LivenessReporter struct {
	signal      func()
	minInterval time.Duration
	now         func() time.Time

	mutex        sync.Mutex
	lastSignalAt time.Time
	numSignals   int
}

func NewLivenessReporter(signal func(), minInterval time.Duration) *LivenessReporter {
	return &LivenessReporter{signal: signal, minInterval: minInterval, now: time.Now}
}

func (reporter *LivenessReporter) Signal() {
	if reporter.signal == nil {
		return
	}

	reporter.mutex.Lock()
	now := reporter.now()
	if reporter.numSignals > 0 && reporter.minInterval > 0 && now.Sub(reporter.lastSignalAt) < reporter.minInterval {
		reporter.mutex.Unlock()
		return
	}
	reporter.lastSignalAt = now
	reporter.numSignals++
	reporter.mutex.Unlock()

	reporter.signal()
}

func (reporter *LivenessReporter) NumSignals() int {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	return reporter.numSignals
}

// Wrap signals liveness before yielding each record. Records pass through untouched.
func (reporter *LivenessReporter) Wrap(stream remote.RecordStream) remote.RecordStream {
	return &livenessRecordStream{stream: stream, reporter: reporter}
}

type livenessRecordStream struct {
	stream   remote.RecordStream
	reporter *LivenessReporter
}

func (stream *livenessRecordStream) Next() (*common.CommonRecord, error) {
	record, err := stream.stream.Next()
	if err == nil {
		stream.reporter.Signal()
	}
	return record, err
}

func (stream *livenessRecordStream) Close() error {
	return stream.stream.Close()
}
