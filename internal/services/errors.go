package services

import (
	"errors"
	"fmt"
)

var (
	// ErrConversionInProgress is returned while another conversion is processing.
	ErrConversionInProgress = errors.New("a conversion is already in progress")
	// ErrNotFound is returned for unknown provider ids.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports input rejected before any work started.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UploadError is a single image that could not be stored. It is logged and
// the image skipped; it never fails a conversion.
type UploadError struct {
	ImageID string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload image %s: %v", e.ImageID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError means the note document itself could not be created.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("create document %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
