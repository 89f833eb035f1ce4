package audioframe

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/hajimehoshi/go-mp3"

	"github.com/airwave/stationd/internal/metrics"
)

// OpenFunc returns a fresh, independently-seekable stream over a song's raw
// audio bytes. Produce calls it twice: once to probe the stream (sample rate,
// decoder construction), once to packetize it, so the bytes handed to the
// packetizer are never consumed by the probe.
type OpenFunc func() (io.ReadCloser, error)

// Produce implements the Frame Producer of spec.md §4.2: given a song, it
// emits exactly one SongStart followed by zero or more Frames onto out, then
// returns. It never emits across song boundaries without an intervening
// SongStart, and a sample-rate mismatch makes it return cleanly having sent
// nothing at all, so the broadcaster never learns the song existed.
func Produce(ctx context.Context, song Song, open OpenFunc, expectedSampleRate int, out chan<- StreamMessage) error {
	probe, err := open()
	if err != nil {
		slog.Warn("frame producer: could not open audio source", "song_id", song.ID, "error", err)
		return nil
	}

	dec, err := mp3.NewDecoder(probe)
	if err != nil {
		probe.Close()
		slog.Warn("frame producer: could not construct decoder", "song_id", song.ID, "error", err)
		return nil
	}

	sampleRate := dec.SampleRate()
	probe.Close()

	if sampleRate != expectedSampleRate {
		slog.Warn("frame producer: sample rate mismatch, skipping song",
			"song_id", song.ID, "got_hz", sampleRate, "expected_hz", expectedSampleRate)
		return nil
	}

	stream, err := open()
	if err != nil {
		slog.Warn("frame producer: could not reopen audio source", "song_id", song.ID, "error", err)
		return nil
	}
	defer stream.Close()

	if !sendMessage(ctx, out, SongStart{Song: song, DurationMS: song.DurationMS}) {
		return nil
	}

	packetizer := newMP3Packetizer(stream)
	for {
		frame, err := packetizer.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			slog.Debug("frame producer: skipping unreadable frame", "song_id", song.ID, "error", err)
			continue
		}

		if !sendMessage(ctx, out, Frame{AudioFrame: frame}) {
			return nil
		}
		metrics.FramesProducedTotal.Inc()
	}
}

// sendMessage performs the queue's blocking send, returning false if the
// context is cancelled before the send could complete, in which case the
// producer stops. The queue must not be closed while a send is pending.
func sendMessage(ctx context.Context, out chan<- StreamMessage, msg StreamMessage) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
