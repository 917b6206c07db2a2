package core

import "time"

// DefaultGracePeriod is how long a dropped client keeps its room slot.
const DefaultGracePeriod = 10 * time.Second

// session binds a logical client identity to its current connection
// and room.
type session struct {
	clientID  string
	name      string
	userID    string
	roomCode  string
	transport Transport
	grace     *graceTimer
}

func (s *session) bound() bool {
	return s.roomCode != ""
}

// cancelGrace stops a pending grace timer. Safe to call repeatedly.
func (s *session) cancelGrace() {
	if s.grace != nil {
		s.grace.Cancel()
		s.grace = nil
	}
}

// graceTimer is a cancellable one-shot timer. The generation lets the Hub
// discard an expiry that raced with Cancel.
type graceTimer struct {
	gen       uint64
	timer     *time.Timer
	cancelled bool
}

func startGraceTimer(gen uint64, d time.Duration, fire func(gen uint64)) *graceTimer {
	g := &graceTimer{gen: gen}
	g.timer = time.AfterFunc(d, func() { fire(gen) })
	return g
}

// Cancel stops the timer. Safe to call repeatedly.
func (g *graceTimer) Cancel() {
	if g == nil || g.cancelled {
		return
	}
	g.cancelled = true
	g.timer.Stop()
}

// live reports whether an expiry with gen should still take effect.
func (g *graceTimer) live(gen uint64) bool {
	return g != nil && !g.cancelled && g.gen == gen
}
