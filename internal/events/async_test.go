package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestAsync_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewAsync(pub, nil, 16)

	a.Emit(Event{Type: PlaybackChanged, RoomID: "r1"})
	a.Emit(Event{Type: QueueChanged, RoomID: "r1"})
	require.NoError(t, a.Close())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	assert.Equal(t, PlaybackChanged, pub.events[0].Type)
	assert.Equal(t, QueueChanged, pub.events[1].Type)
	assert.True(t, pub.closed)
}

func TestAsync_PublishFailureDoesNotStopLoop(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	a := NewAsync(pub, nil, 4)
	a.Emit(Event{Type: PlaybackChanged, RoomID: "r1"})
	a.Emit(Event{Type: PlaybackChanged, RoomID: "r1"})
	require.NoError(t, a.Close())
	assert.Empty(t, pub.events)
}
