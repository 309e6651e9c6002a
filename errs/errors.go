package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide how to surface it.
type Kind string

const (
	KindRedactionFailure  Kind = "REDACTION_FAILURE"   // fail-closed, gated operation blocked
	KindInferenceError    Kind = "INFERENCE_ERROR"     // backend call failed, conversation stays usable
	KindDocumentError     Kind = "DOCUMENT_ERROR"      // ingestion failed, no document created
	KindDownloadError     Kind = "DOWNLOAD_ERROR"      // model moved to Error state, retryable
	KindNotFound          Kind = "NOT_FOUND"           // unknown conversation or model id
	KindModelNotReady     Kind = "MODEL_NOT_READY"     // selection of a non-Ready model rejected
	KindResourceBusy      Kind = "RESOURCE_BUSY"       // admission gate refused new work
	KindUnsupportedFormat Kind = "UNSUPPORTED_FORMAT"  // file type outside the accepted set
)

// Error is a classified error. Retryable is only meaningful for
// download failures.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two classified errors by kind so callers can use
// errors.Is with a bare kind sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf returns the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// RedactionFailure wraps an internal scanner/pipeline error. The gated
// send or ingest must not proceed.
func RedactionFailure(cause error) *Error {
	return newError(KindRedactionFailure, cause, "redaction failed, content was not sent")
}

// InferenceError wraps a backend chat failure.
func InferenceError(cause error) *Error {
	return newError(KindInferenceError, cause, "inference backend error: %v", cause)
}

// DocumentError wraps a document processing failure.
func DocumentError(cause error) *Error {
	return newError(KindDocumentError, cause, "document processing failed: %v", cause)
}

// DownloadError wraps a model download failure. Retry by calling
// RequestDownload again.
func DownloadError(name string, cause error) *Error {
	e := newError(KindDownloadError, cause, "download of model %q failed: %v", name, cause)
	e.Retryable = true
	return e
}

// NotFound reports an unknown conversation or model id.
func NotFound(what, id string) *Error {
	return newError(KindNotFound, nil, "%s not found: %s", what, id)
}

// ModelNotReady reports a selection attempt on a model that is not Ready.
func ModelNotReady(name, state string) *Error {
	return newError(KindModelNotReady, nil, "model %q is %s, not ready", name, state)
}

// ResourceBusy reports that the admission gate refused a new dispatch.
func ResourceBusy() *Error {
	return newError(KindResourceBusy, nil, "system resources are critically high, try again shortly")
}

// UnsupportedFormat reports a file extension outside the accepted set.
func UnsupportedFormat(ext string) *Error {
	return newError(KindUnsupportedFormat, nil, "unsupported file format: %s", ext)
}
