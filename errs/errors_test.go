package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NotFound("conversation", "abc")
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindNotFound)
	}

	wrapped := fmt.Errorf("store: %w", err)
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf through wrap = %q, want %q", KindOf(wrapped), KindNotFound)
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have empty kind")
	}
}

func TestIs_MatchesByKind(t *testing.T) {
	err := DownloadError("llama2-7b", errors.New("connection refused"))
	if !errors.Is(err, &Error{Kind: KindDownloadError}) {
		t.Error("errors.Is should match by kind")
	}
	if errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Error("errors.Is should not match a different kind")
	}
	if !err.Retryable {
		t.Error("download errors are retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("backend down")
	err := InferenceError(cause)
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable via errors.Is")
	}
}

func TestRedactionFailure_MessageLeaksNothing(t *testing.T) {
	cause := errors.New("pattern blew up on input 123-45-6789")
	err := RedactionFailure(cause)
	// The user-facing message must not echo the cause, which may
	// contain fragments of the original text.
	if got := err.Message; got != "redaction failed, content was not sent" {
		t.Errorf("unexpected message: %q", got)
	}
}
