package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile       ErrorCategory = "file"
	CategoryImport     ErrorCategory = "import"
	CategoryValidation ErrorCategory = "validation"
	CategoryConfig     ErrorCategory = "configuration"
	CategoryExtraction ErrorCategory = "extraction"
	CategoryMatching   ErrorCategory = "matching"
	CategoryBooking    ErrorCategory = "booking"
	CategoryQueue      ErrorCategory = "queue"
	CategoryStorage    ErrorCategory = "storage"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound  ErrorCode = "file_not_found"
	CodeFileCorrupted ErrorCode = "file_corrupted"
	CodeEncodingError ErrorCode = "encoding_error"

	// Import errors
	CodeFormatUnrecognized ErrorCode = "format_unrecognized"
	CodeWrongFormat        ErrorCode = "wrong_format"
	CodeRowMalformed       ErrorCode = "row_malformed"
	CodeDuplicateImport    ErrorCode = "duplicate_import"
	CodeMissingColumn      ErrorCode = "missing_column"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Extraction errors
	CodeExtractionTransient ErrorCode = "extraction_transient"
	CodeExtractionFatal     ErrorCode = "extraction_fatal"
	CodeExtractionTimeout   ErrorCode = "extraction_timeout"

	// Matching errors
	CodeNoCandidate    ErrorCode = "no_candidate"
	CodeAmbiguousMatch ErrorCode = "ambiguous_match"

	// Booking errors
	CodeDuplicateBooking ErrorCode = "duplicate_booking"
	CodeBookingRejected  ErrorCode = "booking_rejected"

	// Queue errors
	CodeJobNotFound     ErrorCode = "job_not_found"
	CodeJobNotClaimable ErrorCode = "job_not_claimable"
	CodeJobCancelled    ErrorCode = "job_cancelled"
	CodeDuplicateJob    ErrorCode = "duplicate_job"
	CodeRetriesExceeded ErrorCode = "retries_exceeded"

	// Storage errors
	CodeNotFound       ErrorCode = "not_found"
	CodeConflict       ErrorCode = "conflict"
	CodeStorageFailure ErrorCode = "storage_failure"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// CoreError is the base error type for all reconciliation-core errors.
// It carries a category/code pair for programmatic handling, an optional
// suggestion for the operator, and arbitrary context values.
type CoreError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *CoreError) WithContext(key string, value interface{}) *CoreError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *CoreError) WithSuggestion(suggestion string) *CoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CoreError
func New(category ErrorCategory, code ErrorCode, message string) *CoreError {
	return &CoreError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with CoreError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *CoreError {
	if err == nil {
		return nil
	}

	return &CoreError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try a fresh export"
	case CodeEncodingError:
		message = fmt.Sprintf("no candidate encoding could decode file: %s", path)
		suggestion = "re-export the file as UTF-8 or Windows-1252"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ImportError creates an import-related error
func ImportError(code ErrorCode, filename string, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeFormatUnrecognized:
		message = fmt.Sprintf("no parser recognizes file %s", filename)
		suggestion = "pass an explicit format hint if you know the source system"
	case CodeWrongFormat:
		message = fmt.Sprintf("file %s matched a format by name but failed its schema", filename)
		suggestion = "retry the import with a different format hint"
	case CodeMissingColumn:
		message = fmt.Sprintf("required column missing in file %s", filename)
		suggestion = "verify the export contains all required columns"
	case CodeDuplicateImport:
		message = fmt.Sprintf("file %s was already imported", filename)
		suggestion = "duplicate rows were skipped; no action needed"
	default:
		message = fmt.Sprintf("import error for file %s", filename)
		suggestion = "check the file format and data integrity"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryImport, code, message)
	} else {
		result = New(CategoryImport, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("filename", filename)
}

// RowError creates a per-row import error. These are collected into a
// RowErrorBatch and never abort the surrounding import.
func RowError(filename string, line int, field, value string, err error) *CoreError {
	message := fmt.Sprintf("malformed row in %s at line %d, field '%s': '%s'", filename, line, field, value)

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryImport, CodeRowMalformed, message)
	} else {
		result = New(CategoryImport, CodeRowMalformed, message)
	}

	return result.
		WithContext("filename", filename).
		WithContext("line", line).
		WithContext("field", field).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "amounts must parse to a whole number of minor currency units"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use one of the supported date formats (YYYY-MM-DD, DD.MM.YYYY)"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, env, or config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryConfig, code, message)
	} else {
		result = New(CategoryConfig, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ExtractionError creates an extraction-capability error. Transient errors
// are retried by the processing queue; fatal errors fail the job terminally.
func ExtractionError(code ErrorCode, documentID string, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeExtractionTransient:
		message = fmt.Sprintf("transient extraction failure for document %s", documentID)
		suggestion = "the job will be retried automatically"
	case CodeExtractionTimeout:
		message = fmt.Sprintf("extraction timed out for document %s", documentID)
		suggestion = "the job will be retried automatically"
	case CodeExtractionFatal:
		message = fmt.Sprintf("extraction failed permanently for document %s", documentID)
		suggestion = "inspect the document content; it may be corrupt or unsupported"
	default:
		message = fmt.Sprintf("extraction error for document %s", documentID)
		suggestion = "check the extraction service status"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryExtraction, code, message)
	} else {
		result = New(CategoryExtraction, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("document_id", documentID)
}

// MatchingError creates a matching-related error
func MatchingError(code ErrorCode, documentID string, err error) *CoreError {
	var message string

	switch code {
	case CodeNoCandidate:
		message = fmt.Sprintf("no transaction candidate in window for document %s", documentID)
	case CodeAmbiguousMatch:
		message = fmt.Sprintf("ambiguous match for document %s; routed to manual handling", documentID)
	default:
		message = fmt.Sprintf("matching error for document %s", documentID)
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryMatching, code, message)
	} else {
		result = New(CategoryMatching, code, message)
	}

	return result.WithContext("document_id", documentID)
}

// BookingError creates a booking-related error
func BookingError(code ErrorCode, documentID string, err error) *CoreError {
	var message string
	var suggestion string

	switch code {
	case CodeDuplicateBooking:
		message = fmt.Sprintf("document %s already has a booking; attempt short-circuited", documentID)
		suggestion = "no action needed; the existing booking stands"
	case CodeBookingRejected:
		message = fmt.Sprintf("proposed booking for document %s was rejected", documentID)
		suggestion = "review the booking fields and confirm manually"
	default:
		message = fmt.Sprintf("booking error for document %s", documentID)
		suggestion = "review the booking and try again"
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryBooking, code, message)
	} else {
		result = New(CategoryBooking, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("document_id", documentID)
}

// QueueError creates a queue-related error
func QueueError(code ErrorCode, jobID string, err error) *CoreError {
	var message string

	switch code {
	case CodeJobNotFound:
		message = fmt.Sprintf("job %s not found", jobID)
	case CodeJobNotClaimable:
		message = fmt.Sprintf("job %s could not be claimed", jobID)
	case CodeJobCancelled:
		message = fmt.Sprintf("job %s was cancelled by an operator", jobID)
	case CodeDuplicateJob:
		message = fmt.Sprintf("a pending or processing job already exists for this document (job %s)", jobID)
	case CodeRetriesExceeded:
		message = fmt.Sprintf("job %s exceeded its retry limit", jobID)
	default:
		message = fmt.Sprintf("queue error for job %s", jobID)
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryQueue, code, message)
	} else {
		result = New(CategoryQueue, code, message)
	}

	return result.WithContext("job_id", jobID)
}

// StorageError creates a storage-related error
func StorageError(code ErrorCode, entity string, err error) *CoreError {
	var message string

	switch code {
	case CodeNotFound:
		message = fmt.Sprintf("%s not found", entity)
	case CodeConflict:
		message = fmt.Sprintf("conditional update conflict on %s", entity)
	default:
		message = fmt.Sprintf("storage failure on %s", entity)
	}

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryStorage, code, message)
	} else {
		result = New(CategoryStorage, code, message)
	}

	return result.WithContext("entity", entity)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *CoreError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	var result *CoreError
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// Classification helpers

// IsCoreError checks if an error is a CoreError
func IsCoreError(err error) bool {
	_, ok := err.(*CoreError)
	return ok
}

// AsCoreError extracts a CoreError from an error chain
func AsCoreError(err error) (*CoreError, bool) {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	if coreErr, ok := AsCoreError(err); ok {
		return coreErr.Code == code
	}
	return false
}

// IsRetryable reports whether err represents a transient condition that the
// processing queue should retry. Everything else fails the job terminally.
func IsRetryable(err error) bool {
	coreErr, ok := AsCoreError(err)
	if !ok {
		return false
	}
	switch coreErr.Code {
	case CodeExtractionTransient, CodeExtractionTimeout, CodeStorageFailure:
		return true
	default:
		return false
	}
}

// WrapIfNeeded wraps an error if it's not already a CoreError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *CoreError {
	if err == nil {
		return nil
	}

	if coreErr, ok := AsCoreError(err); ok {
		return coreErr
	}

	return Wrap(err, category, code, message)
}

// RowErrorBatch collects per-row errors from a partially successful import.
// It satisfies the error interface but callers should treat it as a report,
// not a failure: the surrounding batch still commits the valid rows.
type RowErrorBatch struct {
	Filename string       `json:"filename"`
	Errors   []*CoreError `json:"errors"`
}

// NewRowErrorBatch creates an empty row error batch for a file
func NewRowErrorBatch(filename string) *RowErrorBatch {
	return &RowErrorBatch{
		Filename: filename,
		Errors:   make([]*CoreError, 0),
	}
}

// Add appends a row error to the batch
func (b *RowErrorBatch) Add(err *CoreError) {
	b.Errors = append(b.Errors, err)
}

// Len returns the number of collected row errors
func (b *RowErrorBatch) Len() int {
	return len(b.Errors)
}

// Error returns a formatted summary of the batch
func (b *RowErrorBatch) Error() string {
	if len(b.Errors) == 0 {
		return "no row errors"
	}
	if len(b.Errors) == 1 {
		return b.Errors[0].Error()
	}

	var lines []string
	for _, err := range b.Errors {
		lines = append(lines, err.Message)
	}
	return fmt.Sprintf("%d malformed rows in %s: %s", len(b.Errors), b.Filename, strings.Join(lines, "; "))
}

// Sample returns up to max row errors for logging
func (b *RowErrorBatch) Sample(max int) []*CoreError {
	if max <= 0 || max >= len(b.Errors) {
		return b.Errors
	}
	return b.Errors[:max]
}
