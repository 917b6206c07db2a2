package roomclient

import (
	"sync"
	"time"
)

// Player is the local media element the store keeps in line with the host.
type Player interface {
	Position() float64
	Playing() bool
	Seek(t float64)
	Play()
	Pause()
}

type nopPlayer struct{}

func (nopPlayer) Position() float64 { return 0 }
func (nopPlayer) Playing() bool     { return false }
func (nopPlayer) Seek(float64)      {}
func (nopPlayer) Play()             {}
func (nopPlayer) Pause()            {}

// VirtualPlayer is a wall-clock playhead with no media behind it.
type VirtualPlayer struct {
	mu      sync.Mutex
	base    float64
	since   time.Time
	playing bool
	now     func() time.Time
}

// NewVirtualPlayer returns a paused player at position zero.
func NewVirtualPlayer() *VirtualPlayer {
	return &VirtualPlayer{now: time.Now}
}

func (p *VirtualPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *VirtualPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *VirtualPlayer) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = t
	p.since = p.now()
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.since = p.now()
	p.playing = true
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.positionLocked()
	p.playing = false
}

func (p *VirtualPlayer) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	return p.base + p.now().Sub(p.since).Seconds()
}
