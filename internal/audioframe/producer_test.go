package audioframe

import (
	"context"
	"io"
	"os"
	"testing"
)

func TestSendMessageDeliversWhenChannelHasRoom(t *testing.T) {
	out := make(chan StreamMessage, 1)
	ok := sendMessage(context.Background(), out, SongStart{Song: Song{ID: 1}})
	if !ok {
		t.Fatal("expected sendMessage to succeed")
	}
	select {
	case msg := <-out:
		if _, ok := msg.(SongStart); !ok {
			t.Fatalf("expected SongStart, got %T", msg)
		}
	default:
		t.Fatal("expected message to be queued")
	}
}

func TestSendMessageAbortsOnCancelledContext(t *testing.T) {
	out := make(chan StreamMessage) // unbuffered, nothing ever reads it
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sendMessage(ctx, out, SongStart{Song: Song{ID: 1}}) {
		t.Fatal("expected sendMessage to report failure on cancelled context")
	}
}

func TestProduceReturnsCleanlyWhenSourceCannotOpen(t *testing.T) {
	out := make(chan StreamMessage, 10)
	open := func() (io.ReadCloser, error) {
		return nil, os.ErrNotExist
	}

	if err := Produce(context.Background(), Song{ID: 1}, open, 44100, out); err != nil {
		t.Fatalf("expected Produce to swallow open errors, got %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no messages emitted, got %d", len(out))
	}
}
