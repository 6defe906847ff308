package retry

import (
	"errors"
	"fmt"
	"testing"
)

type timeoutError struct {
	op string
}

func (e *timeoutError) Error() string { return "timeout during " + e.op }

type validationError struct {
	field string
}

func (e *validationError) Error() string { return "invalid field " + e.field }

var errUnavailable = errors.New("service unavailable")

// TestAllMatchesEverything tests the all filter accepts every non-nil
// failure
func TestAllMatchesEverything(t *testing.T) {
	f := All()

	if !f.Match(errors.New("anything")) {
		t.Error("all filter should match any error")
	}
	if f.Match(nil) {
		t.Error("all filter should not match nil")
	}
}

// TestSelectedMatchesListedTypes tests selection by concrete type and by
// sentinel, including wrapped errors
func TestSelectedMatchesListedTypes(t *testing.T) {
	f := Selected(Type[*timeoutError](), Sentinel(errUnavailable))

	if !f.Match(&timeoutError{op: "dial"}) {
		t.Error("expected timeout to match")
	}
	if !f.Match(fmt.Errorf("request failed: %w", &timeoutError{op: "read"})) {
		t.Error("expected wrapped timeout to match")
	}
	if !f.Match(fmt.Errorf("backend: %w", errUnavailable)) {
		t.Error("expected wrapped sentinel to match")
	}
	if f.Match(&validationError{field: "name"}) {
		t.Error("unlisted type must not match")
	}
}

// TestExceptRejectsListedTypes tests exclusion accepts everything but the
// listed types
func TestExceptRejectsListedTypes(t *testing.T) {
	f := Except(Type[*validationError]())

	if f.Match(&validationError{field: "id"}) {
		t.Error("excluded type must not match")
	}
	if f.Match(fmt.Errorf("wrapped: %w", &validationError{field: "id"})) {
		t.Error("wrapped excluded type must not match")
	}
	if !f.Match(&timeoutError{op: "write"}) {
		t.Error("unlisted type should match")
	}
}

// TestTypedPredicateFilter tests narrowing plus predicate
func TestTypedPredicateFilter(t *testing.T) {
	f := Filter(func(e *timeoutError) bool { return e.op == "dial" })

	if !f.Match(&timeoutError{op: "dial"}) {
		t.Error("predicate-accepted error should match")
	}
	if f.Match(&timeoutError{op: "read"}) {
		t.Error("predicate-rejected error must not match")
	}
	if f.Match(&validationError{field: "x"}) {
		t.Error("unnarrowable error must not match")
	}
}

// TestPolicyHonorsExceptionFilter tests the policy's classification uses
// its filter
func TestPolicyHonorsExceptionFilter(t *testing.T) {
	policy := NewPolicy(
		Immediate(3),
		SelectedFor(Type[*timeoutError]()),
	)

	if _, ok := policy.CanRetry(&timeoutError{op: "dial"}); !ok {
		t.Error("selected type should be retryable")
	}
	if _, ok := policy.CanRetry(&validationError{field: "y"}); ok {
		t.Error("unselected type must not be retryable")
	}
}
