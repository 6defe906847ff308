package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestPipelineErrorFormatting tests the error string for the op/id/message
// combinations
func TestPipelineErrorFormatting(t *testing.T) {
	cause := errors.New("connection reset")

	e := NewPipelineError("pipe.Send", "retry", cause)
	if e.Error() != "pipe.Send: connection reset" {
		t.Errorf("unexpected format: %q", e.Error())
	}

	e.ID = "ctx-42"
	if e.Error() != "pipe.Send [ctx-42]: connection reset" {
		t.Errorf("unexpected format with id: %q", e.Error())
	}

	msgOnly := &PipelineError{Message: "builder rejected specification"}
	if msgOnly.Error() != "builder rejected specification" {
		t.Errorf("unexpected message-only format: %q", msgOnly.Error())
	}

	kindOnly := &PipelineError{Kind: "lifecycle"}
	if kindOnly.Error() != "lifecycle error" {
		t.Errorf("unexpected kind-only format: %q", kindOnly.Error())
	}
}

// TestPipelineErrorUnwrap tests errors.Is reaches through the wrapper
func TestPipelineErrorUnwrap(t *testing.T) {
	e := NewPipelineError("supervisor.Send", "lifecycle", ErrStopped)

	if !errors.Is(e, ErrStopped) {
		t.Error("expected unwrap to reach the sentinel")
	}
}

// TestIsCancellation tests the cancellation classifier across the layers
// that can produce one
func TestIsCancellation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{context.Canceled, true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.Canceled), true},
		{ErrContextCanceled, true},
		{errors.New("other failure"), false},
		{ErrRetriesExhausted, false},
	}

	for _, c := range cases {
		if got := IsCancellation(c.err); got != c.want {
			t.Errorf("IsCancellation(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

// TestIsConfigurationError tests the configuration classifier
func TestIsConfigurationError(t *testing.T) {
	if !IsConfigurationError(fmt.Errorf("bad option: %w", ErrConfiguration)) {
		t.Error("expected configuration classification")
	}
	if !IsConfigurationError(ErrMissingConfiguration) {
		t.Error("expected missing-configuration classification")
	}
	if IsConfigurationError(ErrTimeout) {
		t.Error("timeout is not a configuration error")
	}
}

// TestIsLifecycleError tests the lifecycle classifier
func TestIsLifecycleError(t *testing.T) {
	for _, err := range []error{ErrNotReady, ErrStopped, ErrAlreadyStopped} {
		if !IsLifecycleError(fmt.Errorf("op failed: %w", err)) {
			t.Errorf("expected lifecycle classification for %v", err)
		}
	}
	if IsLifecycleError(ErrRateLimited) {
		t.Error("rate limiting is not a lifecycle error")
	}
}

// TestIsRejection tests the flow-control classifier
func TestIsRejection(t *testing.T) {
	if !IsRejection(fmt.Errorf("send refused: %w", ErrRateLimited)) {
		t.Error("expected rejection classification for rate limit")
	}
	if !IsRejection(fmt.Errorf("send refused: %w", ErrBreakerOpen)) {
		t.Error("expected rejection classification for open breaker")
	}
	if IsRejection(ErrNotReady) {
		t.Error("lifecycle fault is not a rejection")
	}
}
