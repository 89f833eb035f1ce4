package audioframe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNoSync is returned by parseMPEGHeader when the header does not start
// with the MPEG frame sync pattern.
var ErrNoSync = errors.New("audioframe: no mp3 frame sync found")

var bitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var bitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
var sampleRateTableV1 = [4]int{44100, 48000, 32000, 0}
var sampleRateTableV2 = [4]int{22050, 24000, 16000, 0}
var sampleRateTableV25 = [4]int{11025, 12000, 8000, 0}

// mpegFrameHeader describes the fields of an MPEG audio frame header needed
// to compute the frame's byte length and playback duration.
type mpegFrameHeader struct {
	bitrateKbps int
	sampleRate  int
	padding     int
	mpeg2LSF    bool // MPEG2/2.5 Layer III uses 576 samples/frame, not 1152
}

func (h mpegFrameHeader) frameLength() int {
	samplesPerFrame := 1152
	if h.mpeg2LSF {
		samplesPerFrame = 576
	}
	return (samplesPerFrame/8)*h.bitrateKbps*1000/h.sampleRate + h.padding
}

func (h mpegFrameHeader) duration() time.Duration {
	samplesPerFrame := 1152
	if h.mpeg2LSF {
		samplesPerFrame = 576
	}
	return time.Duration(float64(samplesPerFrame) / float64(h.sampleRate) * float64(time.Second))
}

// parseMPEGHeader decodes a 4-byte MPEG audio frame header. It returns an
// error for anything that isn't a Layer III frame with a valid bitrate and
// sample rate index, since those are the only frames this packetizer forwards.
func parseMPEGHeader(b [4]byte) (mpegFrameHeader, error) {
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mpegFrameHeader{}, ErrNoSync
	}

	versionBits := (b[1] >> 3) & 0x3
	layerBits := (b[1] >> 1) & 0x3
	if layerBits != 0x1 { // Layer III
		return mpegFrameHeader{}, fmt.Errorf("audioframe: unsupported mpeg layer bits %#x", layerBits)
	}

	bitrateIdx := (b[2] >> 4) & 0xF
	sampleRateIdx := (b[2] >> 2) & 0x3
	padding := int((b[2] >> 1) & 0x1)

	var h mpegFrameHeader
	h.padding = padding

	switch versionBits {
	case 0x3: // MPEG Version 1
		h.bitrateKbps = bitrateTableV1L3[bitrateIdx]
		h.sampleRate = sampleRateTableV1[sampleRateIdx]
	case 0x2: // MPEG Version 2
		h.bitrateKbps = bitrateTableV2L3[bitrateIdx]
		h.sampleRate = sampleRateTableV2[sampleRateIdx]
		h.mpeg2LSF = true
	case 0x0: // MPEG Version 2.5
		h.bitrateKbps = bitrateTableV2L3[bitrateIdx]
		h.sampleRate = sampleRateTableV25[sampleRateIdx]
		h.mpeg2LSF = true
	default:
		return mpegFrameHeader{}, fmt.Errorf("audioframe: reserved mpeg version bits %#x", versionBits)
	}

	if h.bitrateKbps == 0 || h.sampleRate == 0 {
		return mpegFrameHeader{}, fmt.Errorf("audioframe: unsupported bitrate/sample-rate index")
	}
	return h, nil
}

// mp3Packetizer reads raw MPEG frames off an io.Reader, one at a time,
// resyncing past ID3 tags or stray bytes between frames. It never decodes
// samples — only enough of the header to compute frame length and duration,
// matching spec.md §4.2's requirement to pass audio bytes through unmodified.
type mp3Packetizer struct {
	r *bufio.Reader
}

func newMP3Packetizer(r io.Reader) *mp3Packetizer {
	return &mp3Packetizer{r: bufio.NewReaderSize(r, 32*1024)}
}

// next returns the next frame's raw bytes (header included) and its
// playback duration. io.EOF signals a clean end of stream.
func (p *mp3Packetizer) next() (AudioFrame, error) {
	header, err := p.syncToFrame()
	if err != nil {
		return AudioFrame{}, err
	}

	parsed, err := parseMPEGHeader(header)
	if err != nil {
		// Not a frame we understand at this sync point; report it so the
		// caller can skip it. The next call resumes scanning after these
		// four header bytes rather than failing the whole stream.
		return AudioFrame{}, err
	}

	length := parsed.frameLength()
	if length < 4 {
		return AudioFrame{}, fmt.Errorf("audioframe: implausible frame length %d", length)
	}

	buf := make([]byte, length)
	copy(buf, header[:])
	if _, err := io.ReadFull(p.r, buf[4:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return AudioFrame{}, io.EOF
		}
		return AudioFrame{}, err
	}

	return AudioFrame{Data: buf, Duration: parsed.duration()}, nil
}

// syncToFrame advances the reader until it finds a byte pair matching the
// MPEG frame sync pattern (11 set bits), and returns the 4-byte header
// starting there.
func (p *mp3Packetizer) syncToFrame() ([4]byte, error) {
	var window [2]byte
	if _, err := io.ReadFull(p.r, window[:]); err != nil {
		return [4]byte{}, err
	}

	for {
		if window[0] == 0xFF && window[1]&0xE0 == 0xE0 {
			var rest [2]byte
			if _, err := io.ReadFull(p.r, rest[:]); err != nil {
				return [4]byte{}, err
			}
			return [4]byte{window[0], window[1], rest[0], rest[1]}, nil
		}
		next, err := p.r.ReadByte()
		if err != nil {
			return [4]byte{}, err
		}
		window[0] = window[1]
		window[1] = next
	}
}
