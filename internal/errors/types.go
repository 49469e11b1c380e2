package errors

import (
	"errors"
	"fmt"
)

// ConfigError reports malformed input, a missing reviewed artifact, or an
// ambiguous dialog-act map. Fatal for the current operation.
type ConfigError struct {
	Op   string // operation that failed, e.g. "load ontology"
	Path string // offending file or config key, may be empty
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config error in %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("config error in %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a configuration failure for op.
func NewConfigError(op, path string, err error) *ConfigError {
	return &ConfigError{Op: op, Path: path, Err: err}
}

// MissingArtifactError marks a reviewed artifact that an operator has not
// produced yet. The CLI maps it to its own exit code, distinct from other
// configuration failures.
type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("reviewed artifact not found: %s (run the parser, then revise its output)", e.Path)
}

// TransportError reports a bot API I/O failure. Retryable errors are
// absorbed by the simulation driver after bounded retries.
type TransportError struct {
	Op        string // endpoint or call name
	Status    int    // HTTP status when applicable, 0 otherwise
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error in %s (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a retryable transport failure.
func NewTransportError(op string, status int, err error) *TransportError {
	return &TransportError{Op: op, Status: status, Err: err, Retryable: true}
}

// AnalyzeError reports an inconsistency in persisted session data. The
// remediator logs it and skips the session, never failing the run.
type AnalyzeError struct {
	Session int
	Err     error
}

func (e *AnalyzeError) Error() string {
	return fmt.Sprintf("analyze error in session %d: %v", e.Session, e.Err)
}

func (e *AnalyzeError) Unwrap() error {
	return e.Err
}

// IsConfig reports whether err is a configuration failure.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsMissingArtifact reports whether err is a missing reviewed artifact.
func IsMissingArtifact(err error) bool {
	var me *MissingArtifactError
	return errors.As(err, &me)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRetryable reports whether err is worth retrying. Only retryable
// transport errors qualify; everything else fails fast.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
