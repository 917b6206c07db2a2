package roomclient

import (
	"context"
	"math"
	"time"
)

// DriftThreshold is the largest follower drift, in seconds, left
// uncorrected.
const DriftThreshold = 1.5

// Correction is what a follower has to do to match the host.
type Correction struct {
	Seek   bool
	SeekTo float64
	Play   bool
	Pause  bool
}

// Reconcile compares the local player against an authoritative position.
// Small drift is tolerated to avoid visible jumps.
func Reconcile(local float64, localPlaying bool, authTime float64, authPlaying bool) Correction {
	var c Correction
	if math.Abs(local-authTime) > DriftThreshold {
		c.Seek = true
		c.SeekTo = authTime
	}
	switch {
	case authPlaying && !localPlaying:
		c.Play = true
	case !authPlaying && localPlaying:
		c.Pause = true
	}
	return c
}

func (s *Store) reconcileLocked(authTime float64, authPlaying bool) {
	c := Reconcile(s.player.Position(), s.player.Playing(), authTime, authPlaying)
	if c.Seek {
		s.log.Debug().Float64("local", s.player.Position()).Float64("target", c.SeekTo).Msg("drift correction")
		s.player.Seek(c.SeekTo)
	}
	if c.Play {
		s.player.Play()
	}
	if c.Pause {
		s.player.Pause()
	}
}

// syncHeartbeatLocked runs the heartbeat exactly while this client is the
// host of a playing room.
func (s *Store) syncHeartbeatLocked() {
	want := !s.closed && s.state.InRoom() && s.state.IsHost && s.state.IsPlaying
	switch {
	case want && s.heartbeat == nil:
		stop := make(chan struct{})
		s.heartbeat = stop
		go s.runHeartbeat(stop)
	case !want:
		s.stopHeartbeatLocked()
	}
}

func (s *Store) stopHeartbeatLocked() {
	if s.heartbeat != nil {
		close(s.heartbeat)
		s.heartbeat = nil
	}
}

func (s *Store) runHeartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.heartbeatEvery)
			if err := s.SendSync(ctx); err != nil {
				s.log.Debug().Err(err).Msg("heartbeat")
			}
			cancel()
		}
	}
}
