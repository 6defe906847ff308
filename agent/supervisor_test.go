package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/pipeline/core"
)

func TestSupervisorAggregatedReady(t *testing.T) {
	sup := NewSupervisor(WithName("root"))
	childA := NewBase(WithName("child-a"))
	childB := NewBase(WithName("child-b"))
	require.NoError(t, sup.Add(childA))
	require.NoError(t, sup.Add(childB))

	ready := make(chan error, 1)
	go func() { ready <- sup.AwaitReady(context.Background()) }()

	sup.SetReady()
	childA.SetReady()

	select {
	case <-ready:
		t.Fatal("supervisor ready before all children")
	case <-time.After(50 * time.Millisecond):
	}

	childB.SetReady()

	select {
	case err := <-ready:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("aggregated ready never resolved")
	}
}

// TestSupervisorReadyFaultPropagates verifies a child fault aggregates into
// the supervisor's ready failure while stop still completes
func TestSupervisorReadyFaultPropagates(t *testing.T) {
	sup := NewSupervisor(WithName("root"))
	child := NewBase(WithName("child"))
	require.NoError(t, sup.Add(child))

	cause := errors.New("listener bind failed")
	child.SetNotReady(cause)
	sup.SetReady()

	err := sup.AwaitReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotReady)
	assert.Contains(t, err.Error(), "listener bind failed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(ctx, "shutdown"))
	assert.True(t, sup.Completed().Resolved(), "stop must still drive completion")
}

// TestSupervisorChainStop verifies a supervisor→supervisor→agent chain
// stops from the root, the leaf completing before the root
func TestSupervisorChainStop(t *testing.T) {
	root := NewSupervisor(WithName("root"))
	mid := NewSupervisor(WithName("mid"))
	leaf := NewBase(WithName("leaf"))

	require.NoError(t, root.Add(mid))
	require.NoError(t, mid.Add(leaf))

	root.SetReady()
	mid.SetReady()
	leaf.SetReady()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	leafFirst := make(chan bool, 1)
	go func() {
		<-root.Completed().Done()
		leafFirst <- leaf.Completed().Resolved()
	}()

	require.NoError(t, root.Stop(ctx, "shutdown"))

	assert.True(t, root.Completed().Resolved())
	assert.True(t, mid.Completed().Resolved())
	assert.True(t, leaf.Completed().Resolved())
	assert.True(t, <-leafFirst, "leaf must complete before root")
}

func TestSupervisorAddAfterStop(t *testing.T) {
	sup := NewSupervisor(WithName("root"))
	sup.SetReady()
	require.NoError(t, sup.Stop(context.Background(), "shutdown"))

	late := NewBase(WithName("late"))
	err := sup.Add(late)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStopped)
	assert.True(t, late.Completed().Resolved(), "late child must be stopped immediately")
}

func TestSupervisorStopIdempotent(t *testing.T) {
	sup := NewSupervisor()
	child := NewBase()
	require.NoError(t, sup.Add(child))
	sup.SetReady()
	child.SetReady()

	require.NoError(t, sup.Stop(context.Background(), "first"))
	require.NoError(t, sup.Stop(context.Background(), "second"))
}

func TestSupervisorReadyIncludesLateChildren(t *testing.T) {
	sup := NewSupervisor()
	early := NewBase(WithName("early"))
	require.NoError(t, sup.Add(early))

	sup.SetReady()
	early.SetReady()

	// a child added while others are already ready still gates the
	// aggregate
	late := NewBase(WithName("late"))
	require.NoError(t, sup.Add(late))

	ready := make(chan error, 1)
	go func() { ready <- sup.AwaitReady(context.Background()) }()

	select {
	case <-ready:
		t.Fatal("aggregate resolved before late child")
	case <-time.After(50 * time.Millisecond):
	}

	late.SetReady()
	select {
	case err := <-ready:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("aggregate never resolved")
	}
}
