package client

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SimStats counts the commands a SimPlayer received.
type SimStats struct {
	Loads  int
	Seeks  int
	Plays  int
	Pauses int
}

// SimPlayer is a headless player driven by a clock. Every video lasts
// Duration seconds; a zero Duration never ends.
type SimPlayer struct {
	mu       sync.Mutex
	clock    clock.Clock
	duration float64
	loaded   string
	state    PlayerState
	base     float64
	anchor   time.Time
	stats    SimStats
	ended    chan string
}

func NewSimPlayer(clk clock.Clock, duration float64) *SimPlayer {
	if clk == nil {
		clk = clock.New()
	}
	return &SimPlayer{
		clock:    clk,
		duration: duration,
		state:    Unstarted,
		ended:    make(chan string, 1),
	}
}

// position must be called with mu held.
func (p *SimPlayer) position() float64 {
	pos := p.base
	if p.state == Playing {
		pos += p.clock.Since(p.anchor).Seconds()
	}
	if p.duration > 0 && pos >= p.duration {
		pos = p.duration
		if p.state == Playing {
			p.state = Ended
			p.base = pos
			select {
			case p.ended <- p.loaded:
			default:
			}
		}
	}
	return pos
}

func (p *SimPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *SimPlayer) SeekTo(seconds float64, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Seeks++
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.base = seconds
	p.anchor = p.clock.Now()
	if p.state == Ended {
		p.state = Paused
	}
}

func (p *SimPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Plays++
	pos := p.position()
	if p.state == Ended {
		pos = 0
	}
	p.base = pos
	p.anchor = p.clock.Now()
	p.state = Playing
}

func (p *SimPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Pauses++
	p.base = p.position()
	if p.state != Ended {
		p.state = Paused
	}
}

func (p *SimPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position()
	return p.state
}

// LoadVideo cues ref at zero; it starts once Play is called.
func (p *SimPlayer) LoadVideo(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Loads++
	p.loaded = ref
	p.base = 0
	p.anchor = p.clock.Now()
	p.state = Cued
}

func (p *SimPlayer) LoadedVideo() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *SimPlayer) Ended() <-chan string { return p.ended }

func (p *SimPlayer) Stats() SimStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *SimPlayer) ResetStats() {
	p.mu.Lock()
	p.stats = SimStats{}
	p.mu.Unlock()
}

// Run polls the playhead so the end of a video is noticed without a caller
// asking for the position.
func (p *SimPlayer) Run(ctx context.Context, every time.Duration) error {
	t := p.clock.Ticker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.CurrentTime()
		}
	}
}
