package catalog

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/hajimehoshi/go-mp3"
)

// SupportedFormats lists the audio file extensions the catalog scanner will
// pick up. Only mp3 is actually playable by the Frame Producer (spec.md §4.2
// speaks only to MP3 packetization); the others are recorded so metadata
// still shows up in listings, but UpsertSong marks them not playable.
var SupportedFormats = []string{".mp3", ".wav", ".flac", ".aac", ".ogg"}

// IsSupportedFormat reports whether ext (including the leading dot) is a
// recognized audio format.
func IsSupportedFormat(ext string) bool {
	lower := strings.ToLower(ext)
	for _, f := range SupportedFormats {
		if lower == f {
			return true
		}
	}
	return false
}

// TrackRecord is the scanner's view of a file on disk, ready to be persisted
// via Store.UpsertSong.
type TrackRecord struct {
	Title      string
	Artists    []string
	Album      string
	Checksum   string
	FileExt    string
	DurationMS int64
	SampleRate int
	Path       string
}

// NewTrackRecordFromFile reads ID3 metadata and computes a checksum for the
// audio file at path. For mp3 files it also probes duration and sample rate
// via go-mp3 and records them in DurationMS/SampleRate. UpsertSong persists
// DurationMS only; the sample-rate rejection policy is applied by the Frame
// Producer when the song starts.
func NewTrackRecordFromFile(path string) (*TrackRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	filename := filepath.Base(absPath)
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	checksum, err := computeChecksum(absPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: checksum %s: %w", absPath, err)
	}

	rec := &TrackRecord{
		Title:    nameWithoutExt,
		Checksum: checksum,
		FileExt:  strings.TrimPrefix(ext, "."),
		Path:     absPath,
	}

	extractTrackMetadata(rec, absPath)

	if ext == ".mp3" {
		if durMS, rate, err := probeMP3(absPath); err != nil {
			slog.Warn("could not probe mp3 stream", "path", absPath, "error", err)
		} else {
			rec.DurationMS = durMS
			rec.SampleRate = rate
		}
	}

	return rec, nil
}

func computeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func extractTrackMetadata(rec *TrackRecord, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("could not open file for metadata", "path", path, "error", err)
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("could not read tags", "path", path, "error", err)
		return
	}

	if m.Title() != "" {
		rec.Title = m.Title()
	}
	if m.Artist() != "" {
		rec.Artists = []string{m.Artist()}
	}
	if m.Album() != "" {
		rec.Album = m.Album()
	}
}

// probeMP3 decodes just enough of the stream to learn its sample rate and
// estimates total duration from the PCM byte count go-mp3 reports, matching
// the validation the original Rust loader performs via symphonia before
// committing to stream a song (original_source/backend/src/streaming/loader.rs).
func probeMP3(path string) (durationMS int64, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode header: %w", err)
	}

	sampleRate = dec.SampleRate()
	// go-mp3 exposes PCM length via Length() when the stream supports seeking;
	// 2 channels * 2 bytes/sample at the decoder's fixed output rate.
	const bytesPerFrame = 4
	if n := dec.Length(); n > 0 && sampleRate > 0 {
		totalSamples := n / bytesPerFrame
		durationMS = totalSamples * 1000 / int64(sampleRate)
	}
	return durationMS, sampleRate, nil
}
