package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async decouples the room actors from the broker. Emit never blocks; when
// the buffer is full the event is dropped and counted.
type Async struct {
	pub     Publisher
	log     *zap.Logger
	in      chan Event
	timeout time.Duration

	mu      sync.Mutex
	dropped int
	done    chan struct{}
}

func NewAsync(pub Publisher, log *zap.Logger, buffer int) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		pub:     pub,
		log:     log,
		in:      make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) Emit(ev Event) {
	select {
	case a.in <- ev:
	default:
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close drains pending events and closes the publisher.
func (a *Async) Close() error {
	close(a.in)
	<-a.done
	return a.pub.Close()
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.in {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.pub.Publish(ctx, ev); err != nil {
			a.log.Warn("publish room event failed",
				zap.String("room", ev.RoomID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
		cancel()
	}
}
