// Package station implements the Station State and Broadcaster of
// spec.md §§4.3-4.5: the single shared record of what's playing and who's
// listening, the pacing/fan-out loop that drives it, the playlist loop that
// feeds it, and the janitor that evicts stale listeners and credits listened
// time back to the catalog.
package station

import (
	"time"

	"github.com/airwave/stationd/internal/audioframe"
)

// PlaybackPosition is the global playback clock: a monotonically increasing
// frame index and total duration played, mutated only by the Broadcaster.
type PlaybackPosition struct {
	FrameIndex      uint64
	TotalDurationUS int64
	ServerStartTime time.Time
}

// CurrentSong is replaced wholesale on every SongStart.
type CurrentSong struct {
	Song                audioframe.Song
	DurationMS          int64
	StartedAt           time.Time
	StartedAtPositionUS int64
}

// bufferedFrame is one entry in the burst buffer ring: the frame bytes plus
// its duration in whole microseconds, matching the precision spec.md §3
// requires for BurstBuffer accounting.
type bufferedFrame struct {
	data       []byte
	durationUS int64
}

// Listener is a single subscriber's bookkeeping entry in the station's
// listener table (spec.md §3). It is created on stream subscribe, mutated by
// heartbeats and the janitor, and destroyed when its heartbeat goes stale or
// on explicit disconnect.
type Listener struct {
	UserID               int64
	Username             string
	ConnectedAt          time.Time
	LastHeartbeat        time.Time
	StartFrameIndex      uint64
	BurstBufferMS        int64
	StartTotalPositionUS int64
	LastCreditedAt       time.Time
}

// IsStale reports whether the listener's last heartbeat is older than
// timeout, the janitor's eviction test (spec.md §4.5).
func (l Listener) IsStale(timeout time.Duration, now time.Time) bool {
	return now.Sub(l.LastHeartbeat) > timeout
}

// StationEvent is the tagged union published on the event bus. Today it has
// exactly one variant, SongChange, per spec.md §3.
type StationEvent interface {
	isStationEvent()
}

// SongChange announces that CurrentSong has been replaced.
type SongChange struct {
	Song CurrentSong
}

func (SongChange) isStationEvent() {}
