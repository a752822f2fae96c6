// Package apperr defines the error taxonomy shared by the qualification
// pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an unknown workflow, stage kind, model or other
// static-table lookup miss. It is a programmer error and is never retried.
type ConfigurationError struct {
	What string // "workflow", "stage kind", "model", ...
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: unknown %s %q", e.What, e.Name)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(what, name string) *ConfigurationError {
	return &ConfigurationError{What: what, Name: name}
}

// AcquisitionKind classifies a failed profile acquisition.
type AcquisitionKind string

const (
	AcquisitionNotFound       AcquisitionKind = "not_found"
	AcquisitionPrivateAccount AcquisitionKind = "private_account"
	AcquisitionRateLimited    AcquisitionKind = "rate_limited"
	AcquisitionTimeout        AcquisitionKind = "timeout"
	AcquisitionScraperFault   AcquisitionKind = "scraper_fault"
	AcquisitionUnknown        AcquisitionKind = "unknown"
)

// AcquisitionError is raised once every scraper backend for a subject failed.
type AcquisitionError struct {
	Kind    AcquisitionKind
	Subject string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquisition %s for %q", e.Kind, e.Subject)
	}
	return fmt.Sprintf("acquisition %s for %q: %v", e.Kind, e.Subject, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ProviderError is surfaced when a model call failed on the primary model
// and, if configured, on its backup. Err is always the primary's error.
type ProviderError struct {
	Model  string
	Backup string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Backup != "" {
		return fmt.Sprintf("provider: model %s (backup %s) failed: %v", e.Model, e.Backup, e.Err)
	}
	return fmt.Sprintf("provider: model %s failed: %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError reports model output that could not be parsed or did not
// match the stage schema.
type ValidationError struct {
	Stage   string
	Details []string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation: stage %s returned invalid output", e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	for _, d := range e.Details {
		msg += "; " + d
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StageError wraps the failure of a required stage with the stage name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// InputError rejects a malformed request before any work is done.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input: invalid %s: %s", e.Field, e.Reason)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// AcquisitionKindOf returns the classification of an AcquisitionError in
// err's chain, or "" when there is none.
func AcquisitionKindOf(err error) AcquisitionKind {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// UserMessage renders err as a short message suitable for end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ae *AcquisitionError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case AcquisitionNotFound:
			return fmt.Sprintf("Profile @%s was not found.", ae.Subject)
		case AcquisitionPrivateAccount:
			return fmt.Sprintf("Profile @%s is private and cannot be analyzed.", ae.Subject)
		case AcquisitionRateLimited:
			return "The profile data provider is rate limiting requests. Please try again shortly."
		case AcquisitionTimeout:
			return "Fetching the profile took too long. Please try again."
		case AcquisitionScraperFault:
			return "The profile data provider failed to return usable data."
		default:
			return "Profile data could not be retrieved."
		}
	}

	var ie *InputError
	if errors.As(err, &ie) {
		return fmt.Sprintf("Invalid %s: %s.", ie.Field, ie.Reason)
	}

	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return fmt.Sprintf("Analysis is misconfigured: unknown %s %q.", ce.What, ce.Name)
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("The %s step returned an unreadable result.", ve.Stage)
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return "The AI provider is unavailable. Please try again."
	}

	var se *StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("The %s step failed.", se.Stage)
	}

	return "Analysis failed."
}
