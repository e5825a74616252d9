package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/remote"
)

var errExtractionStalled = errors.New("extraction stalled")

// stallWatchdog cancels the run when a read from the stream waits longer than timeout.
// The timer only runs while the consumer is blocked in Next, and stops for good once the stream ends.
type stallWatchdog struct {
	timeout time.Duration
	cancel  context.CancelCauseFunc

	mutex   sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newStallWatchdog(ctx context.Context, timeout time.Duration) (context.Context, *stallWatchdog) {
	ctx, cancel := context.WithCancelCause(ctx)
	return ctx, &stallWatchdog{timeout: timeout, cancel: cancel}
}

// Arm starts the countdown for the next record
func (watchdog *stallWatchdog) Arm() {
	watchdog.mutex.Lock()
	defer watchdog.mutex.Unlock()

	if watchdog.timeout <= 0 || watchdog.stopped {
		return
	}
	if watchdog.timer == nil {
		watchdog.timer = time.AfterFunc(watchdog.timeout, func() {
			watchdog.cancel(errExtractionStalled)
		})
		return
	}
	watchdog.timer.Reset(watchdog.timeout)
}

// Disarm pauses the countdown until the next Arm
func (watchdog *stallWatchdog) Disarm() {
	watchdog.mutex.Lock()
	defer watchdog.mutex.Unlock()

	if watchdog.timer != nil {
		watchdog.timer.Stop()
	}
}

func (watchdog *stallWatchdog) Stop() {
	watchdog.mutex.Lock()
	defer watchdog.mutex.Unlock()

	if watchdog.timer != nil {
		watchdog.timer.Stop()
	}
	watchdog.stopped = true
}

// Release stops the timer and frees the derived context
func (watchdog *stallWatchdog) Release() {
	watchdog.Stop()
	watchdog.cancel(nil)
}

// Classify replaces the cancellation caused by a stall with a retryable remote failure
func (watchdog *stallWatchdog) Classify(ctx context.Context, err error) error {
	if err == nil || !errors.Is(context.Cause(ctx), errExtractionStalled) {
		return err
	}
	return common.NewSyncError(common.ErrorKindTransientRemote, errExtractionStalled, "no record received for %s", watchdog.timeout)
}

func (watchdog *stallWatchdog) Wrap(stream remote.RecordStream) remote.RecordStream {
	return &watchedRecordStream{stream: stream, watchdog: watchdog}
}

type watchedRecordStream struct {
	stream   remote.RecordStream
	watchdog *stallWatchdog
}

func (stream *watchedRecordStream) Next() (*common.CommonRecord, error) {
	stream.watchdog.Arm()
	record, err := stream.stream.Next()
	if err != nil {
		stream.watchdog.Stop()
	} else {
		stream.watchdog.Disarm()
	}
	return record, err
}

func (stream *watchedRecordStream) Close() error {
	return stream.stream.Close()
}
