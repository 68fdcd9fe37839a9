// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common errors that services can return.
var (
	// ErrNotFound is returned when a catalog lookup by id yields no result.
	ErrNotFound = errors.New("not found")

	// ErrNoTrackLoaded is returned when playback is requested with no current track.
	ErrNoTrackLoaded = errors.New("no track loaded")

	// ErrInvalidIndex is returned when a queue index is out of bounds.
	ErrInvalidIndex = errors.New("invalid queue index")

	// ErrStoreClosed is returned when the store is used after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrUnknownPartition is returned for a partition the store does not define.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrUnsupportedFormat is returned when an audio file format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// ValidationError represents bad user input, reported before any I/O.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
	Err     error       // Sentinel cause (if any)
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// NetworkError represents a failed catalog request: transport failure or non-2xx status.
type NetworkError struct {
	URL        string // Request URL
	StatusCode int    // HTTP status (0 for transport failures)
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network request to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network request to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new NetworkError.
func NewNetworkError(url string, statusCode int, err error) *NetworkError {
	return &NetworkError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// StorageError represents a durable store failure.
// This wraps persistence layer errors with additional context.
type StorageError struct {
	Op        string // Operation that failed (e.g., "put", "get", "delete")
	Partition string // Partition involved (if any)
	Key       string // Record key (if any)
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s/%s failed: %v", e.Op, e.Partition, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s %s failed: %v", e.Op, e.Partition, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, partition, key string, err error) *StorageError {
	return &StorageError{
		Op:        op,
		Partition: partition,
		Key:       key,
		Err:       err,
	}
}

// DownloadError represents a failed track download. No record is persisted when it occurs.
type DownloadError struct {
	TrackID string
	URL     string
	Err     error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of track %s from %s failed: %v", e.TrackID, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError.
func NewDownloadError(trackID, url string, err error) *DownloadError {
	return &DownloadError{
		TrackID: trackID,
		URL:     url,
		Err:     err,
	}
}

// AudioOutputError represents a failure of the audio output primitive.
// It is reported and logged, never returned to player callers.
type AudioOutputError struct {
	Op     string // Operation that failed (e.g., "play", "set_source")
	Source string // Source locator (if applicable)
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *AudioOutputError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("audio output %s failed for '%s': %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("audio output %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AudioOutputError) Unwrap() error {
	return e.Err
}

// NewAudioOutputError creates a new AudioOutputError.
func NewAudioOutputError(op, source string, err error) *AudioOutputError {
	return &AudioOutputError{
		Op:     op,
		Source: source,
		Err:    err,
	}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsDownload reports whether err is (or wraps) a DownloadError.
func IsDownload(err error) bool {
	var target *DownloadError
	return errors.As(err, &target)
}
