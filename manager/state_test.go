package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runState(t *testing.T) (*State, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	state := NewState()
	go state.Run(ctx)
	t.Cleanup(cancel)
	return state, cancel
}

func recv(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()

	select {
	case o, ok := <-ch:
		require.True(t, ok, "channel closed")
		return o
	case <-time.After(time.Second):
		t.Fatal("no outcome received")
	}
	return Outcome{}
}

func TestStateCurrent(t *testing.T) {
	state, _ := runState(t)

	_, ok := state.Current()
	assert.False(t, ok)

	require.True(t, state.Apply(Outcome{ID: "1", Report: &Report{TemperatureCelsius: 1}}))
	require.True(t, state.Apply(Outcome{ID: "2", Failure: NewFailure(EmptyResponse, nil)}))

	current, ok := state.Current()
	require.True(t, ok)
	assert.Equal(t, "2", current.ID)
	assert.Nil(t, current.Report, "outcomes replace, never merge")
}

func TestStateSubscribe(t *testing.T) {
	state, _ := runState(t)

	require.True(t, state.Apply(Outcome{ID: "before"}))

	updates, release := state.Subscribe()
	assert.Equal(t, "before", recv(t, updates).ID)

	state.Apply(Outcome{ID: "after"})
	assert.Equal(t, "after", recv(t, updates).ID)

	release()
	_, ok := <-updates
	assert.False(t, ok)
}

func TestStateSlowSubscriberDoesNotBlock(t *testing.T) {
	state, _ := runState(t)

	_, release := state.Subscribe()
	defer release()

	for i := 0; i < subscriberBuffer*3; i++ {
		require.True(t, state.Apply(Outcome{ID: "x"}))
	}

	_, ok := state.Current()
	assert.True(t, ok)
}

func TestStateStopped(t *testing.T) {
	state, cancel := runState(t)

	updates, release := state.Subscribe()
	cancel()
	<-state.Done()

	_, ok := <-updates
	assert.False(t, ok)
	release()

	assert.False(t, state.Apply(Outcome{ID: "late"}))
	_, ok = state.Current()
	assert.False(t, ok)
}
