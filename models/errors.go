package models

import "fmt"

// NotFoundError indicates a referenced media record or document is absent.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError indicates a job is already active for the same media record.
type ConflictError struct {
	MediaID string
	Status  ProcessingStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("media %s already has an active job (status %s)", e.MediaID, e.Status)
}

// ExtractionError indicates the media file itself could not be opened or
// decoded. Individual engine failures never surface as this; they degrade
// quality instead.
type ExtractionError struct {
	MediaID string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for media %s: %v", e.MediaID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// CapabilityError indicates a downstream model or API call failed.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ValidationError indicates malformed input such as an unsupported media
// format or an oversize upload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
