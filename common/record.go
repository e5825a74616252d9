package common

import (
	"encoding/json"
	"strings"
	"time"
)

type Category string

const (
	CategoryCrm        Category = "crm"
	CategoryEngagement Category = "engagement"
)

type ObjectKind string

const (
	ObjectKindCommon   ObjectKind = "common"
	ObjectKindStandard ObjectKind = "standard"
	ObjectKindCustom   ObjectKind = "custom"
)

type ObjectDescriptor struct {
	Category   Category   `json:"category"`
	ObjectKind ObjectKind `json:"objectKind"`
	ObjectName string     `json:"objectName"`
}

// crm/common/contact
func (object ObjectDescriptor) String() string {
	return string(object.Category) + "/" + string(object.ObjectKind) + "/" + object.ObjectName
}

func ParseObjectDescriptor(value string) (ObjectDescriptor, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 3 || parts[2] == "" {
		return ObjectDescriptor{}, NewConfigurationError("invalid object %q, expected <category>/<kind>/<name>", value)
	}

	object := ObjectDescriptor{
		Category:   Category(parts[0]),
		ObjectKind: ObjectKind(parts[1]),
		ObjectName: parts[2],
	}
	if object.Category != CategoryCrm && object.Category != CategoryEngagement {
		return ObjectDescriptor{}, NewConfigurationError("unknown category %q", parts[0])
	}
	if object.ObjectKind != ObjectKindCommon && object.ObjectKind != ObjectKindStandard && object.ObjectKind != ObjectKindCustom {
		return ObjectDescriptor{}, NewConfigurationError("unknown object kind %q", parts[1])
	}
	return object, nil
}

// CommonRecord is one normalized remote entity.
// Fields are keyed by destination column name.
type CommonRecord struct {
	RemoteId                  string                 `json:"remoteId"`
	Fields                    map[string]interface{} `json:"fields,omitempty"`
	RemoteCreatedAt           *time.Time             `json:"remoteCreatedAt,omitempty"`
	RemoteUpdatedAt           *time.Time             `json:"remoteUpdatedAt,omitempty"`
	RemoteWasDeleted          bool                   `json:"remoteWasDeleted"`
	RemoteDeletedAt           *time.Time             `json:"remoteDeletedAt,omitempty"`
	DetectedOrRemoteDeletedAt *time.Time             `json:"detectedOrRemoteDeletedAt,omitempty"`
	LastModifiedAt            *time.Time             `json:"lastModifiedAt,omitempty"`
	RawData                   json.RawMessage        `json:"rawData,omitempty"`
	MappedData                json.RawMessage        `json:"mappedData,omitempty"`
}

// SetDeletion records the remote deletion state.
// Without a provider timestamp the deletion is stamped with detectedAt.
func (record *CommonRecord) SetDeletion(wasDeleted bool, remoteDeletedAt *time.Time, detectedAt time.Time) {
	record.RemoteWasDeleted = wasDeleted
	record.RemoteDeletedAt = remoteDeletedAt
	record.DetectedOrRemoteDeletedAt = nil

	if !wasDeleted {
		return
	}
	if remoteDeletedAt != nil {
		record.DetectedOrRemoteDeletedAt = remoteDeletedAt
	} else {
		detected := detectedAt.UTC()
		record.DetectedOrRemoteDeletedAt = &detected
	}
}

// ComputeLastModifiedAt must be called after timestamps and deletion are set
func (record *CommonRecord) ComputeLastModifiedAt() {
	record.LastModifiedAt = MaxTime(record.RemoteUpdatedAt, record.DetectedOrRemoteDeletedAt)
}

type SyncCursor struct {
	LastModifiedAtMs *int64 `json:"lastModifiedAtMs"`
}

func (cursor SyncCursor) UpdatedAfter() *time.Time {
	if cursor.LastModifiedAtMs == nil {
		return nil
	}
	updatedAfter := MsToTime(*cursor.LastModifiedAtMs)
	return &updatedAfter
}

// Advance never moves the cursor backwards and never resets it to null
func (cursor SyncCursor) Advance(maxLastModifiedAt *time.Time) SyncCursor {
	if maxLastModifiedAt == nil {
		return cursor
	}

	ms := TimeToMs(*maxLastModifiedAt)
	if cursor.LastModifiedAtMs != nil && ms <= *cursor.LastModifiedAtMs {
		return cursor
	}
	return SyncCursor{LastModifiedAtMs: &ms}
}

type SyncRunResult struct {
	MaxLastModifiedAt *time.Time `json:"maxLastModifiedAt"`
	NumRecordsSynced  int        `json:"numRecordsSynced"`
	NumRecordsSkipped int        `json:"numRecordsSkipped"`
}

type BatchProgress struct {
	Offset      int `json:"offset"`
	TotalStaged int `json:"totalStaged"`
}
