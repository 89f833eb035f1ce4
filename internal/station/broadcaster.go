package station

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/airwave/stationd/internal/audioframe"
	"github.com/airwave/stationd/internal/metrics"
)

// catchUpWindow is the threshold past which the broadcaster stops trying to
// make up lost time and instead resets its pacing clock, per spec.md §4.3.
const catchUpWindow = 100 * time.Millisecond

type frameSub struct {
	id uint64
	ch chan audioframe.AudioFrame
}

// Broadcaster is the single real-time loop of spec.md §4.3: it drains the
// hand-off queue in order, paces sends by accumulated frame duration, writes
// the authoritative playback position and burst buffer, and fans frames out
// to every subscribed listener without ever blocking on a slow one.
type Broadcaster struct {
	state *State
	bus   *EventBus

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*frameSub
}

func NewBroadcaster(state *State, bus *EventBus) *Broadcaster {
	return &Broadcaster{
		state: state,
		bus:   bus,
		subs:  make(map[uint64]*frameSub),
	}
}

// Subscribe registers a new frame subscriber and returns its id, a snapshot
// of the current burst buffer (for immediate catch-up), and the channel it
// will receive subsequent live frames on. The channel is bounded (default
// 200 frames, ~5s): a subscriber whose channel is full when a frame is
// published loses that frame and has its subscription removed and its
// channel closed, rather than blocking the broadcaster.
func (b *Broadcaster) Subscribe(queueSize int) (id uint64, burst []audioframe.AudioFrame, burstUS int64, ch <-chan audioframe.AudioFrame) {
	burst, burstUS = b.state.BurstSnapshot()

	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++
	sub := &frameSub{id: id, ch: make(chan audioframe.AudioFrame, queueSize)}
	b.subs[id] = sub
	return id, burst, burstUS, sub.ch
}

// Unsubscribe removes a frame subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *Broadcaster) publish(frame audioframe.AudioFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub.ch <- frame:
		default:
			metrics.FramesDroppedTotal.Inc()
			slog.Warn("broadcaster: dropping lagging subscriber", "subscriber_id", sub.id)
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Run drains in until it is closed or ctx is cancelled, implementing the
// pacing and fan-out algorithm of spec.md §4.3.
func (b *Broadcaster) Run(ctx context.Context, in <-chan audioframe.StreamMessage) {
	var nextSendTime time.Time

	for {
		var msg audioframe.StreamMessage
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}

		if nextSendTime.IsZero() {
			nextSendTime = time.Now()
		}

		switch m := msg.(type) {
		case audioframe.SongStart:
			current := b.state.onSongStart(m.Song, m.DurationMS)
			b.bus.Publish(SongChange{Song: current})

		case audioframe.Frame:
			b.publish(m.AudioFrame)
			b.state.onFrame(m.AudioFrame)

			nextSendTime = nextSendTime.Add(m.AudioFrame.Duration)
			now := time.Now()
			if nextSendTime.After(now) {
				time.Sleep(nextSendTime.Sub(now))
			} else if now.Sub(nextSendTime) > catchUpWindow {
				slog.Warn("broadcaster: fell behind schedule, resetting pacing clock",
					"behind_ms", now.Sub(nextSendTime).Milliseconds())
				nextSendTime = now
			}
		}
	}
}
