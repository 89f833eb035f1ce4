package station

import (
	"context"
	"testing"
	"time"

	"github.com/airwave/stationd/internal/audioframe"
)

func TestBroadcasterFanOutAndPublishSongChange(t *testing.T) {
	state := New(3_000_000, time.Now())
	bus := NewEventBus()
	b := NewBroadcaster(state, bus)

	_, events := bus.Subscribe()
	_, _, _, frames := b.Subscribe(10)

	in := make(chan audioframe.StreamMessage, 10)
	in <- audioframe.SongStart{Song: audioframe.Song{ID: 1, Title: "one"}, DurationMS: 1000}
	in <- audioframe.Frame{AudioFrame: audioframe.AudioFrame{Data: []byte{1}, Duration: time.Millisecond}}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Run(ctx, in)
		close(done)
	}()

	select {
	case ev := <-events:
		sc, ok := ev.(SongChange)
		if !ok || sc.Song.Song.ID != 1 {
			t.Fatalf("expected SongChange for song 1, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SongChange event")
	}

	select {
	case f := <-frames:
		if len(f.Data) != 1 || f.Data[0] != 1 {
			t.Fatalf("unexpected frame data: %v", f.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}

	<-done
}

func TestBroadcasterDropsFramesForLaggingSubscriber(t *testing.T) {
	state := New(3_000_000, time.Now())
	bus := NewEventBus()
	b := NewBroadcaster(state, bus)

	// A subscriber with a tiny queue that never reads: frames published
	// beyond its capacity must be dropped, not block the broadcaster.
	_, _, _, ch := b.Subscribe(1)

	in := make(chan audioframe.StreamMessage, 10)
	for i := 0; i < 5; i++ {
		in <- audioframe.Frame{AudioFrame: audioframe.AudioFrame{Data: []byte{byte(i)}, Duration: time.Microsecond}}
	}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Run(ctx, in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not finish despite a non-reading subscriber")
	}

	// The channel should hold at most one buffered frame; the rest were
	// dropped rather than blocking Run above.
	if len(ch) > 1 {
		t.Fatalf("expected at most 1 buffered frame, got %d", len(ch))
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	state := New(3_000_000, time.Now())
	bus := NewEventBus()
	b := NewBroadcaster(state, bus)

	id, _, _, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
