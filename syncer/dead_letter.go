package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/remote"
)

const (
	DEAD_LETTER_KEY_PREFIX   = "dead-letters/"
	DEAD_LETTER_CONTENT_TYPE = "application/x-ndjson"
	MAX_DEAD_LETTERS_PER_RUN = 10_000
)

// Satisfied by *common.S3Client
type objectUploader interface {
	UploadObject(ctx context.Context, fileKey string, contentType string, body io.Reader) error
}

// S3DeadLetterSink uploads the records skipped by a run as one JSON-lines object:
// dead-letters/<connection id>/<category>/<kind>/<object>/<run id>.jsonl
type S3DeadLetterSink struct {
	Config   *common.CommonConfig
	uploader objectUploader
}

func NewS3DeadLetterSink(config *common.CommonConfig, uploader objectUploader) *S3DeadLetterSink {
	return &S3DeadLetterSink{Config: config, uploader: uploader}
}

func DeadLetterKey(runId string, object common.ObjectDescriptor, connection common.Connection) string {
	return DEAD_LETTER_KEY_PREFIX + connection.Id + "/" + object.String() + "/" + runId + ".jsonl"
}

func (sink *S3DeadLetterSink) Archive(ctx context.Context, runId string, object common.ObjectDescriptor, connection common.Connection, rejectedRecords []remote.RejectedRecord) error {
	if len(rejectedRecords) == 0 {
		return nil
	}

	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	for _, rejectedRecord := range rejectedRecords {
		if err := encoder.Encode(rejectedRecord); err != nil {
			return err
		}
	}

	key := DeadLetterKey(runId, object, connection)
	common.LogInfo(sink.Config, "Archiving", len(rejectedRecords), "skipped records to", key)
	return sink.uploader.UploadObject(ctx, key, DEAD_LETTER_CONTENT_TYPE, &body)
}

// -------------------------------------------------------------------------------------------------

// deadLetterBuffer collects the records rejected during one run.
// Rejections come from the producer goroutine; only the first MAX_DEAD_LETTERS_PER_RUN are kept.
type deadLetterBuffer struct {
	mutex      sync.Mutex
	records    []remote.RejectedRecord
	numDropped int
}

func (buffer *deadLetterBuffer) Add(rejectedRecord remote.RejectedRecord) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()

	if len(buffer.records) >= MAX_DEAD_LETTERS_PER_RUN {
		buffer.numDropped++
		return
	}
	buffer.records = append(buffer.records, rejectedRecord)
}

func (buffer *deadLetterBuffer) Records() ([]remote.RejectedRecord, int) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return buffer.records, buffer.numDropped
}
