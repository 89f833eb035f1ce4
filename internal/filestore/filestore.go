// Package filestore implements the out-of-scope "file store" collaborator
// from spec.md §1: open_audio(song_id) -> stream. Songs are persisted on
// disk under DATA_DIR/music/<song_id>.<ext>, matching the layout the
// catalog scanner reads from.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("filestore: audio file not found")

type Store struct {
	musicDir string
}

func New(musicDir string) *Store {
	return &Store{musicDir: musicDir}
}

// OpenAudio opens the raw audio bytes for songID. Callers are responsible
// for closing the returned stream.
func (s *Store) OpenAudio(songID int64, ext string) (io.ReadCloser, error) {
	path := s.path(songID, ext)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}
	return f, nil
}

// Exists reports whether the audio file for songID is present on disk,
// without opening it. The Playlist Source uses this to skip catalog entries
// whose backing file has gone missing (spec.md §4.1).
func (s *Store) Exists(songID int64, ext string) bool {
	info, err := os.Stat(s.path(songID, ext))
	return err == nil && !info.IsDir()
}

func (s *Store) path(songID int64, ext string) string {
	return filepath.Join(s.musicDir, fmt.Sprintf("%d.%s", songID, ext))
}
