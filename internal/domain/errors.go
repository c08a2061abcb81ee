package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyStored is returned by a RecordSink that already holds the identity.
var ErrAlreadyStored = errors.New("record already stored")

// ErrorKind classifies failures for retry and propagation decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindTransient covers timeouts and rate limits; retried, then dropped for the cycle.
	KindTransient
	// KindParse covers malformed or incomplete AI responses; never retried.
	KindParse
	// KindFatal covers credential and storage failures.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindParse:
		return "parse"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StageError attaches a kind and a pipeline stage to an underlying error.
type StageError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
	// RetryAfter is a provider-suggested delay, zero when unknown.
	RetryAfter time.Duration
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failure", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(stage Stage, err error) error {
	return &StageError{Kind: KindTransient, Stage: stage, Err: err}
}

// TransientAfter wraps err as retryable with a suggested delay.
func TransientAfter(stage Stage, err error, retryAfter time.Duration) error {
	return &StageError{Kind: KindTransient, Stage: stage, Err: err, RetryAfter: retryAfter}
}

// ParseFailure wraps err as a non-retryable response problem.
func ParseFailure(stage Stage, err error) error {
	return &StageError{Kind: KindParse, Stage: stage, Err: err}
}

// Fatal wraps err as a condition that must escalate.
func Fatal(stage Stage, err error) error {
	return &StageError{Kind: KindFatal, Stage: stage, Err: err}
}

// KindOf returns the classification of err. Deadline errors without an explicit
// classification are transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// StageOf returns the stage recorded on err, or Idle when none is attached.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageIdle
}

// RetryAfterOf returns the provider-suggested retry delay carried by err.
func RetryAfterOf(err error) time.Duration {
	var se *StageError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
