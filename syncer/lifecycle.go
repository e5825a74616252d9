package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BemiHQ/BemiSync/common"
)

type LifecycleEventType string

const (
	LifecycleEventSyncStarted   LifecycleEventType = "SYNC_STARTED"
	LifecycleEventSyncSucceeded LifecycleEventType = "SYNC_SUCCEEDED"
	LifecycleEventSyncFailed    LifecycleEventType = "SYNC_FAILED"

	DEFAULT_LIFECYCLE_SUBJECT_PREFIX = "bemisync.lifecycle"
)

type LifecycleEvent struct {
	Type              LifecycleEventType `json:"type"`
	RunId             string             `json:"runId"`
	SyncConfigId      string             `json:"syncConfigId"`
	ConnectionId      string             `json:"connectionId"`
	ProviderName      string             `json:"providerName,omitempty"`
	CustomerId        string             `json:"customerId,omitempty"`
	Object            string             `json:"object"`
	Timestamp         time.Time          `json:"timestamp"`
	NumRecordsSynced  int                `json:"numRecordsSynced"`
	NumRecordsSkipped int                `json:"numRecordsSkipped"`
	Error             string             `json:"error,omitempty"`
	ErrorKind         common.ErrorKind   `json:"errorKind,omitempty"`
	Retryable         bool               `json:"retryable"`
}

// -------------------------------------------------------------------------------------------------

type LogLifecycleSink struct {
	Config *common.CommonConfig
}

func NewLogLifecycleSink(config *common.CommonConfig) *LogLifecycleSink {
	return &LogLifecycleSink{Config: config}
}

func (sink *LogLifecycleSink) Publish(ctx context.Context, event LifecycleEvent) error {
	logger := common.Logger(sink.Config)

	var logEvent *zerolog.Event
	if event.Type == LifecycleEventSyncFailed {
		logEvent = logger.Error().Str("error", event.Error).Str("errorKind", string(event.ErrorKind)).Bool("retryable", event.Retryable)
	} else {
		logEvent = logger.Info()
	}

	logEvent.
		Str("runId", event.RunId).
		Str("connectionId", event.ConnectionId).
		Str("providerName", event.ProviderName).
		Str("object", event.Object).
		Int("numRecordsSynced", event.NumRecordsSynced).
		Int("numRecordsSkipped", event.NumRecordsSkipped).
		Msg(string(event.Type))
	return nil
}

// -------------------------------------------------------------------------------------------------

// Satisfied by *nats.Conn
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsLifecycleSink publishes events as JSON on <prefix>.sync_started, <prefix>.sync_succeeded and <prefix>.sync_failed
type NatsLifecycleSink struct {
	Config        *common.CommonConfig
	publisher     natsPublisher
	subjectPrefix string
}

func NewNatsLifecycleSink(config *common.CommonConfig, publisher natsPublisher, subjectPrefix string) *NatsLifecycleSink {
	if subjectPrefix == "" {
		subjectPrefix = DEFAULT_LIFECYCLE_SUBJECT_PREFIX
	}
	return &NatsLifecycleSink{Config: config, publisher: publisher, subjectPrefix: subjectPrefix}
}

func (sink *NatsLifecycleSink) Subject(eventType LifecycleEventType) string {
	return sink.subjectPrefix + "." + strings.ToLower(string(eventType))
}

func (sink *NatsLifecycleSink) Publish(ctx context.Context, event LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subject := sink.Subject(event.Type)
	common.LogTrace(sink.Config, "Publishing lifecycle event to", subject+":", string(data))
	return sink.publisher.Publish(subject, data)
}

// -------------------------------------------------------------------------------------------------

// MultiLifecycleSink publishes to every sink, even if some of them fail
type MultiLifecycleSink []LifecycleSink

func (sinks MultiLifecycleSink) Publish(ctx context.Context, event LifecycleEvent) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
