package media

import (
	"errors"
	"fmt"
)

// FailKind classifies terminal pipeline failures. Every kind maps to a
// distinct user-facing message at the bot boundary.
type FailKind int

const (
	FailUnknown FailKind = iota
	FailUnsupportedSource
	FailFetch
	FailTimeout
	FailTooLarge
	FailCompressionInsufficient
	FailTranscode
)

func (k FailKind) String() string {
	switch k {
	case FailUnsupportedSource:
		return "unsupported_source"
	case FailFetch:
		return "fetch_failed"
	case FailTimeout:
		return "timed_out"
	case FailTooLarge:
		return "too_large"
	case FailCompressionInsufficient:
		return "compression_insufficient"
	case FailTranscode:
		return "transcode_failed"
	}
	return "unknown"
}

// PipelineError carries a failure kind plus detail for logs. It is the
// only error shape the dispatch boundary inspects.
type PipelineError struct {
	Kind   FailKind
	Detail string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func Fail(kind FailKind, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func FailWrap(kind FailKind, err error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind, or FailUnknown for foreign errors.
func KindOf(err error) FailKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailUnknown
}
