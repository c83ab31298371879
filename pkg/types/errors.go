// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Sentinel root errors. Concrete error values wrap one of these via %w so
// callers can classify with errors.Is without depending on a concrete
// struct type. Per §7 Error Handling Design.
var (
	// ErrInvalidInput: empty document, negative/zero chunk size, malformed example.
	ErrInvalidInput = fmt.Errorf("invalid input")

	// ErrSchema: SchemaAdapter failed to derive config from examples.
	ErrSchema = fmt.Errorf("schema error")

	// ErrInferenceConfig: non-retriable provider-side config problem. Fatal.
	ErrInferenceConfig = fmt.Errorf("inference config error")

	// ErrInferenceRuntime: retriable transport/5xx/timeout.
	ErrInferenceRuntime = fmt.Errorf("inference runtime error")

	// ErrFormatParse: output unparseable after normalization.
	ErrFormatParse = fmt.Errorf("format parse error")

	// ErrAlignmentReport: prompt validation rejected an example (ERROR level only).
	ErrAlignmentReport = fmt.Errorf("alignment report error")
)

// PipelineError is the common shape for every typed error in §7. It carries
// the sentinel it classifies as (via Unwrap, for errors.Is/As) and an
// optional original inner error for diagnostics.
type PipelineError struct {
	Kind     error  // one of the Err* sentinels above
	Message  string
	Original error // inner cause, may be nil
}

func (e *PipelineError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Original)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes Kind first so errors.Is(err, ErrInferenceRuntime) works;
// errors.As callers that need the original cause use e.Original directly.
func (e *PipelineError) Unwrap() error {
	return e.Kind
}

// NewInvalidInputError builds an ErrInvalidInput-classified PipelineError.
func NewInvalidInputError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrInvalidInput, Message: message, Original: original}
}

// NewSchemaError builds an ErrSchema-classified PipelineError.
func NewSchemaError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrSchema, Message: message, Original: original}
}

// NewInferenceConfigError builds an ErrInferenceConfig-classified PipelineError.
func NewInferenceConfigError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrInferenceConfig, Message: message, Original: original}
}

// NewInferenceRuntimeError builds an ErrInferenceRuntime-classified PipelineError.
func NewInferenceRuntimeError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrInferenceRuntime, Message: message, Original: original}
}

// NewFormatParseError builds an ErrFormatParse-classified PipelineError.
func NewFormatParseError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrFormatParse, Message: message, Original: original}
}

// NewAlignmentReportError builds an ErrAlignmentReport-classified PipelineError.
func NewAlignmentReportError(message string, original error) *PipelineError {
	return &PipelineError{Kind: ErrAlignmentReport, Message: message, Original: original}
}

// IsRetriable reports whether err should be retried per the chunk-level
// retry policy in §4.7: InferenceRuntimeError and FormatParseError are
// retriable, everything else is fatal for the chunk (and, for the four
// fatal kinds listed in §7, for the whole pipeline).
func IsRetriable(err error) bool {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == ErrInferenceRuntime || pe.Kind == ErrFormatParse
}

// IsFatal reports whether err aborts the whole pipeline per §7's
// propagation table (InvalidInput, Schema, InferenceConfig, AlignmentReport).
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrInferenceConfig) || errors.Is(err, ErrAlignmentReport)
}
