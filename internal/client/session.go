package client

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// Session is one viewer in one room: a converge loop, a queue mirror and an
// end-of-media handler running side by side.
type Session struct {
	room      Room
	player    Player
	converger *Converger
	mirror    *Mirror
	advancer  *Advancer
	log       *zap.Logger
}

func NewSession(room Room, player Player, opts ConvergerOptions) *Session {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	s := &Session{
		room:      room,
		player:    player,
		converger: NewConverger(player, opts),
		mirror:    &Mirror{},
		log:       opts.Log,
	}
	s.advancer = NewAdvancer(room, s.mirror.Snapshot, s.converger.Latest, opts.Log)
	return s
}

// Run subscribes to the room and blocks until ctx ends or a subscription
// closes. Leaving the room is cancelling ctx.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	states, err := s.room.WatchPlayback(ctx)
	if err != nil {
		return err
	}
	queue, err := s.room.WatchQueue(ctx)
	if err != nil {
		return err
	}

	g.Go(func() error { return s.converger.Run(ctx, states) })
	g.Go(func() error { return s.mirror.Run(ctx, queue) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ref := <-s.player.Ended():
				ended := playback.State{VideoRef: ref}
				if st, ok := s.converger.Latest(); ok && st.VideoRef == ref {
					ended = st
				}
				if _, err := s.advancer.OnEnded(ctx, ended); err != nil {
					s.log.Warn("advance failed", zap.String("ended", ref), zap.Error(err))
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) Queue() []playback.Entry { return s.mirror.Snapshot() }

func (s *Session) Latest() (playback.State, bool) { return s.converger.Latest() }

// Enqueue adds input to the queue, remembering where the local player is.
func (s *Session) Enqueue(ctx context.Context, input string) (string, error) {
	return s.room.Enqueue(ctx, input, s.player.CurrentTime())
}

// Swap exchanges the entries at displayed positions i and j.
func (s *Session) Swap(ctx context.Context, i, j int) error {
	return SwapAdjacent(ctx, s.room, s.mirror.Snapshot(), i, j)
}

func (s *Session) Remove(ctx context.Context, id string) error {
	return s.room.Remove(ctx, id)
}

// SeekToEntry jumps the local player to the position recorded when e was
// queued. Nothing is written to the room; the next converge cycle pulls the
// player back if the room is playing elsewhere.
func (s *Session) SeekToEntry(e playback.Entry) {
	s.player.SeekTo(e.PositionHint, true)
}

// PlayPause publishes the local playhead with the given play flag.
func (s *Session) PlayPause(ctx context.Context, playing bool) error {
	st, ok := s.converger.Latest()
	if !ok {
		st.VideoRef = s.player.LoadedVideo()
	}
	st.IsPlaying = playing
	st.PositionSeconds = s.player.CurrentTime()
	return s.room.Publish(ctx, st)
}
