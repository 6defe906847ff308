package connect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// TestConnectAndBroadcast tests handlers receive broadcasts in connection
// order
func TestConnectAndBroadcast(t *testing.T) {
	r := NewRegistry[func()]()

	var order []int
	r.Connect(func() { order = append(order, 1) })
	r.Connect(func() { order = append(order, 2) })
	r.Connect(func() { order = append(order, 3) })

	r.ForEach(func(h func()) { h() })

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected in-order broadcast, got %v", order)
	}
}

// TestDisconnectRemovesExactRegistration tests that disconnecting one
// handle leaves duplicate registrations of the same handler intact
func TestDisconnectRemovesExactRegistration(t *testing.T) {
	r := NewRegistry[*int]()

	target := new(int)
	first := r.Connect(target)
	r.Connect(target)

	first.Disconnect()

	if got := r.Count(); got != 1 {
		t.Errorf("expected 1 remaining registration, got %d", got)
	}
}

// TestDisconnectIdempotent tests repeated disconnects are no-ops
func TestDisconnectIdempotent(t *testing.T) {
	r := NewRegistry[int]()

	h1 := r.Connect(1)
	r.Connect(2)

	h1.Disconnect()
	h1.Disconnect()
	h1.Disconnect()

	if got := r.Count(); got != 1 {
		t.Errorf("expected 1 registration after repeated disconnect, got %d", got)
	}
}

// TestDisconnectLinearizable tests that after Disconnect returns, no
// subsequent broadcast invokes the handler
func TestDisconnectLinearizable(t *testing.T) {
	r := NewRegistry[func()]()

	invoked := false
	h := r.Connect(func() { invoked = true })
	h.Disconnect()

	r.ForEach(func(f func()) { f() })

	if invoked {
		t.Error("disconnected handler was invoked")
	}
}

// TestSnapshotStableDuringMutation tests a broadcast observes the snapshot
// taken at its start even while handlers connect concurrently
func TestSnapshotStableDuringMutation(t *testing.T) {
	r := NewRegistry[int]()
	for i := 0; i < 10; i++ {
		r.Connect(i)
	}

	snapshot := r.Snapshot()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.Connect(100 + i)
		}
	}()

	if len(snapshot) != 10 {
		t.Errorf("snapshot changed size: %d", len(snapshot))
	}
	wg.Wait()

	if got := r.Count(); got != 110 {
		t.Errorf("expected 110 registrations, got %d", got)
	}
}

// TestForEachAsyncAggregatesFailures tests every handler runs and the
// failures join into the returned error
func TestForEachAsyncAggregatesFailures(t *testing.T) {
	r := NewRegistry[string]()
	r.Connect("ok")
	r.Connect("bad-1")
	r.Connect("ok")
	r.Connect("bad-2")

	var mu sync.Mutex
	invoked := 0

	err := r.ForEachAsync(context.Background(), func(h string) error {
		mu.Lock()
		invoked++
		mu.Unlock()
		if h == "ok" {
			return nil
		}
		return errors.New(h)
	})

	if invoked != 4 {
		t.Errorf("expected all 4 handlers to run, ran %d", invoked)
	}
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	for _, want := range []string{"bad-1", "bad-2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("aggregated error missing %q: %v", want, err)
		}
	}
}

// TestForEachAsyncEmpty tests the empty registry completes immediately
func TestForEachAsyncEmpty(t *testing.T) {
	r := NewRegistry[int]()
	if err := r.ForEachAsync(context.Background(), func(int) error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
