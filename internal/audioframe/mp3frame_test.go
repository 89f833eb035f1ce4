package audioframe

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// mpeg1Layer3Frame128kbps44100 builds a well-formed MPEG1 Layer III frame
// header (128kbps, 44100Hz, no padding, no CRC) followed by zeroed payload
// bytes, for exercising the packetizer without a real encoded file.
func mpeg1Layer3Frame128kbps44100(t *testing.T) []byte {
	t.Helper()
	h := mpegFrameHeader{bitrateKbps: 128, sampleRate: 44100}
	length := h.frameLength()
	frame := make([]byte, length)
	frame[0] = 0xFF
	frame[1] = 0xFB // sync(3) + MPEG1(2) + LayerIII(2) + no-CRC(1)
	frame[2] = 0x90 // bitrate idx 9 (128kbps) + samplerate idx 0 (44100) + no padding
	frame[3] = 0x00
	return frame
}

func TestParseMPEGHeaderValid(t *testing.T) {
	frame := mpeg1Layer3Frame128kbps44100(t)
	var hdr [4]byte
	copy(hdr[:], frame[:4])

	h, err := parseMPEGHeader(hdr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.bitrateKbps != 128 || h.sampleRate != 44100 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.mpeg2LSF {
		t.Fatalf("expected MPEG1 frame, got mpeg2LSF=true")
	}
}

func TestParseMPEGHeaderRejectsBadSync(t *testing.T) {
	_, err := parseMPEGHeader([4]byte{0x00, 0xFB, 0x90, 0x00})
	if !errors.Is(err, ErrNoSync) {
		t.Fatalf("expected ErrNoSync, got %v", err)
	}
}

func TestPacketizerReadsFramesAndStopsAtEOF(t *testing.T) {
	frame1 := mpeg1Layer3Frame128kbps44100(t)
	frame2 := mpeg1Layer3Frame128kbps44100(t)

	stream := append(append([]byte{}, frame1...), frame2...)
	p := newMP3Packetizer(bytes.NewReader(stream))

	f1, err := p.next()
	if err != nil {
		t.Fatalf("unexpected error reading first frame: %v", err)
	}
	if len(f1.Data) != len(frame1) {
		t.Fatalf("expected frame length %d, got %d", len(frame1), len(f1.Data))
	}
	wantDuration := time.Duration(float64(1152) / 44100 * float64(time.Second))
	if f1.Duration != wantDuration {
		t.Fatalf("expected duration %v, got %v", wantDuration, f1.Duration)
	}

	f2, err := p.next()
	if err != nil {
		t.Fatalf("unexpected error reading second frame: %v", err)
	}
	if len(f2.Data) != len(frame2) {
		t.Fatalf("expected frame length %d, got %d", len(frame2), len(f2.Data))
	}

	if _, err := p.next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestPacketizerResyncsPastJunkBytes(t *testing.T) {
	frame := mpeg1Layer3Frame128kbps44100(t)
	junk := []byte{0x00, 0x01, 0x02, 0x03, 0x04}

	stream := append(append([]byte{}, junk...), frame...)
	p := newMP3Packetizer(bytes.NewReader(stream))

	f, err := p.next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Data) != len(frame) {
		t.Fatalf("expected frame length %d, got %d", len(frame), len(f.Data))
	}
}
