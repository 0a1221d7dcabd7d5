package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Configuration errors (1xxx)
	ErrCodeConfigNotFound ErrorCode = "DBTK1001"
	ErrCodeConfigInvalid  ErrorCode = "DBTK1002"
	ErrCodeConfigMissing  ErrorCode = "DBTK1003"

	// Manifest errors (2xxx)
	ErrCodeManifestNotFound ErrorCode = "DBTK2001"
	ErrCodeManifestParse    ErrorCode = "DBTK2002"
	ErrCodeManifestStale    ErrorCode = "DBTK2003"
	ErrCodeModelNotFound    ErrorCode = "DBTK2004"

	// BigQuery errors (3xxx)
	ErrCodeBigQueryAPI      ErrorCode = "DBTK3001"
	ErrCodeTableNotFound    ErrorCode = "DBTK3002"
	ErrCodeAccessDenied     ErrorCode = "DBTK3003"
	ErrCodeDatasetNotFound  ErrorCode = "DBTK3004"
	ErrCodeTableUnsupported ErrorCode = "DBTK3005"

	// External tool errors (4xxx)
	ErrCodeExternalTool ErrorCode = "DBTK4001"
	ErrCodeDBTFailed    ErrorCode = "DBTK4002"
	ErrCodeGit          ErrorCode = "DBTK4003"
	ErrCodeCloudRun     ErrorCode = "DBTK4004"
	ErrCodeStateBucket  ErrorCode = "DBTK4005"

	// Validation errors (5xxx)
	ErrCodeValidationFailed ErrorCode = "DBTK5001"
	ErrCodeInvalidInput     ErrorCode = "DBTK5002"
	ErrCodeRequiredField    ErrorCode = "DBTK5003"

	// User interaction errors (6xxx)
	ErrCodeCancelled ErrorCode = "DBTK6001"
	ErrCodeUserInput ErrorCode = "DBTK6002"

	// File system errors (7xxx)
	ErrCodeFileNotFound  ErrorCode = "DBTK7001"
	ErrCodeFileOperation ErrorCode = "DBTK7002"
	ErrCodeFileExists    ErrorCode = "DBTK7003"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "DBTK9001"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// ErrCancelled is the sentinel for an aborted interactive selection. A
// cancelled selection must propagate as a no-op, never a partial action.
var ErrCancelled = New(ErrCodeCancelled, "selection cancelled")

// IsCancelled reports whether the error chain contains a cancelled selection
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Common error constructors

// ConfigError creates a configuration-related error
func ConfigError(message string, key string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("key", key).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' entry under [tool.dbtkit.project] in pyproject.toml", key),
			"Refer to the configuration documentation",
		)
}

// ManifestError creates a manifest loading error
func ManifestError(message string, path string, cause error) *AppError {
	err := New(ErrCodeManifestNotFound, message)
	if cause != nil {
		err = Wrap(cause, ErrCodeManifestParse, message)
	}
	return err.
		WithContext("path", path).
		WithSuggestions(
			"Run 'dbtkit manifest' to rebuild the local and production manifests",
			"Check that you are inside a dbt project directory",
		)
}

// BigQueryError creates an error carrying the underlying transport error
func BigQueryError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeBigQueryAPI, message).
		WithSuggestions(
			"Check your gcloud application-default credentials",
			"Verify you have access to the project and dataset",
		)
}

// ExternalToolError creates an error for a failing subprocess
func ExternalToolError(tool string, cause error) *AppError {
	return Wrap(cause, ErrCodeExternalTool, fmt.Sprintf("%s exited with an error", tool)).
		WithContext("tool", tool)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
