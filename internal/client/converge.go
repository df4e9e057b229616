package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

const (
	DefaultTolerance    = 1.0
	DefaultConvergeTick = time.Second
)

type ConvergerOptions struct {
	Tolerance float64       // seconds; drift must exceed it to seek
	Tick      time.Duration // re-check interval while playing
	Clock     clock.Clock
	Log       *zap.Logger
}

// Correction is what one reconcile cycle did to the player.
type Correction struct {
	Loaded bool
	Seeked bool
	Target float64
	Played bool
	Paused bool
}

func (c Correction) Any() bool { return c.Loaded || c.Seeked || c.Played || c.Paused }

// Converger keeps a local player within tolerance of the shared playback
// state. Observe and Tick must be called from one goroutine; Run does that.
type Converger struct {
	player    Player
	clock     clock.Clock
	log       *zap.Logger
	tolerance float64
	tick      time.Duration

	state      playback.State
	have       bool
	observedAt time.Time
	// set after a load until a full cycle has run against the new video
	pending bool

	mu     sync.RWMutex
	latest playback.State
}

func NewConverger(p Player, opts ConvergerOptions) *Converger {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultConvergeTick
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Converger{
		player:    p,
		clock:     opts.Clock,
		log:       opts.Log,
		tolerance: opts.Tolerance,
		tick:      opts.Tick,
	}
}

// Latest returns the most recent authoritative state seen.
func (c *Converger) Latest() (playback.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.latest.VideoRef != ""
}

// Observe runs a cycle for a newly delivered state.
func (c *Converger) Observe(st playback.State) Correction {
	st = playback.NormalizeState(st)
	c.state = st
	c.have = true
	c.observedAt = c.clock.Now()
	c.mu.Lock()
	c.latest = st
	c.mu.Unlock()

	return c.cycle(st.PositionSeconds, false)
}

// Tick re-checks the player against the extrapolated playhead. It does
// nothing while the room is paused, unless a freshly loaded video still
// needs its first full cycle.
func (c *Converger) Tick() Correction {
	if !c.have || (!c.state.IsPlaying && !c.pending) {
		return Correction{}
	}
	target := c.state.PositionSeconds
	if c.state.IsPlaying {
		target += c.clock.Since(c.observedAt).Seconds()
	}
	return c.cycle(target, true)
}

func (c *Converger) cycle(target float64, fromTick bool) Correction {
	var out Correction
	st := c.state

	if c.player.LoadedVideo() != st.VideoRef {
		c.player.LoadVideo(st.VideoRef)
		c.pending = true
		out.Loaded = true
		c.log.Debug("load video", zap.String("video", st.VideoRef))
		return out
	}

	local := c.player.State()
	if fromTick && local == Ended {
		return out
	}
	c.pending = false

	if drift := math.Abs(c.player.CurrentTime() - target); drift > c.tolerance {
		c.player.SeekTo(target, true)
		out.Seeked = true
		out.Target = target
		c.log.Debug("seek", zap.Float64("target", target), zap.Float64("drift", drift))
	}

	switch {
	case st.IsPlaying && local != Playing:
		c.player.Play()
		out.Played = true
	case !st.IsPlaying && local == Playing:
		c.player.Pause()
		out.Paused = true
	}
	return out
}

// Run reconciles on every delivered state and every tick until ctx ends or
// the subscription closes.
func (c *Converger) Run(ctx context.Context, states <-chan playback.State) error {
	t := c.clock.Ticker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return ErrSubscriptionClosed
			}
			if fix := c.Observe(st); fix.Any() {
				c.log.Info("converged on notification",
					zap.String("video", st.VideoRef),
					zap.Bool("loaded", fix.Loaded),
					zap.Bool("seeked", fix.Seeked),
					zap.Bool("played", fix.Played),
					zap.Bool("paused", fix.Paused))
			}
		case <-t.C:
			if fix := c.Tick(); fix.Any() {
				c.log.Info("converged on tick",
					zap.Bool("loaded", fix.Loaded),
					zap.Bool("seeked", fix.Seeked),
					zap.Float64("target", fix.Target),
					zap.Bool("played", fix.Played),
					zap.Bool("paused", fix.Paused))
			}
		}
	}
}
