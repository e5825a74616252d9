package common

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindConfiguration   ErrorKind = "CONFIGURATION"
	ErrorKindTransientRemote ErrorKind = "TRANSIENT_REMOTE"
	ErrorKindPermanentRemote ErrorKind = "PERMANENT_REMOTE"
	ErrorKindDataQuality     ErrorKind = "DATA_QUALITY"
	ErrorKindDestinationIo   ErrorKind = "DESTINATION_IO"
	ErrorKindCancelled       ErrorKind = "CANCELLED"
	ErrorKindUnknown         ErrorKind = "UNKNOWN"
)

// Retry classification consumed by the supervisor.
// Configuration, permanent remote and data quality failures need a human; everything else may be re-run from scratch.
var retryableErrorKinds = map[ErrorKind]bool{
	ErrorKindTransientRemote: true,
	ErrorKindDestinationIo:   true,
	ErrorKindCancelled:       true,
	ErrorKindUnknown:         true,
}

type SyncError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (syncError *SyncError) Error() string {
	if syncError.Err == nil {
		return string(syncError.Kind) + ": " + syncError.Message
	}
	return string(syncError.Kind) + ": " + syncError.Message + ": " + syncError.Err.Error()
}

func (syncError *SyncError) Unwrap() error {
	return syncError.Err
}

func (syncError *SyncError) Retryable() bool {
	return retryableErrorKinds[syncError.Kind]
}

func NewSyncError(kind ErrorKind, err error, format string, args ...interface{}) *SyncError {
	return &SyncError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewConfigurationError(format string, args ...interface{}) *SyncError {
	return NewSyncError(ErrorKindConfiguration, nil, format, args...)
}

func NewDataQualityError(err error, format string, args ...interface{}) *SyncError {
	return NewSyncError(ErrorKindDataQuality, err, format, args...)
}

func NewDestinationIoError(err error, format string, args ...interface{}) *SyncError {
	return NewSyncError(ErrorKindDestinationIo, err, format, args...)
}

// ErrorKindOf returns the kind of the outermost SyncError in the chain
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var syncError *SyncError
	if errors.As(err, &syncError) {
		return syncError.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCancelled
	}
	return ErrorKindUnknown
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return retryableErrorKinds[ErrorKindOf(err)]
}

// WrapDestinationIoError classifies err as a destination failure unless it already carries a kind
func WrapDestinationIoError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	var syncError *SyncError
	if errors.As(err, &syncError) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewSyncError(ErrorKindCancelled, err, format, args...)
	}
	return NewDestinationIoError(err, format, args...)
}
