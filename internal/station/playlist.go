package station

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/airwave/stationd/internal/audioframe"
	"github.com/airwave/stationd/internal/catalog"
)

// Catalog is the subset of the catalog store the Playlist Source needs: the
// out-of-scope "catalog store" collaborator from spec.md §1.
type Catalog interface {
	ListPlayableSongs(ctx context.Context) ([]catalog.Song, error)
	CreditListenSeconds(ctx context.Context, userID int64, seconds int64) error
}

// AudioFiles is the out-of-scope "file store" collaborator from spec.md §1.
type AudioFiles interface {
	OpenAudio(songID int64, ext string) (io.ReadCloser, error)
	Exists(songID int64, ext string) bool
}

// PlaylistSource implements spec.md §4.1: it fetches the playable catalog,
// shuffles it, yields each song once, then re-queries — so catalog changes
// take effect at the next cycle — and feeds the Frame Producer for each
// song into the shared hand-off queue.
func PlaylistSource(ctx context.Context, cat Catalog, files AudioFiles, expectedSampleRate int, retryBackoff time.Duration, out chan<- audioframe.StreamMessage) {
	for {
		if ctx.Err() != nil {
			return
		}

		songs, err := cat.ListPlayableSongs(ctx)
		if err != nil {
			slog.Warn("playlist source: failed to list playable songs", "error", err)
			if !sleepOrDone(ctx, retryBackoff) {
				return
			}
			continue
		}
		if len(songs) == 0 {
			slog.Warn("playlist source: catalog has no playable songs")
			if !sleepOrDone(ctx, retryBackoff) {
				return
			}
			continue
		}

		rand.Shuffle(len(songs), func(i, j int) { songs[i], songs[j] = songs[j], songs[i] })

		for _, song := range songs {
			if ctx.Err() != nil {
				return
			}

			if !files.Exists(song.ID, song.FileExt) {
				slog.Warn("playlist source: audio file missing, skipping song", "song_id", song.ID, "title", song.Title)
				continue
			}

			frameSong := audioframe.Song{
				ID:         song.ID,
				Title:      song.Title,
				Artist:     song.ArtistNames,
				Album:      song.AlbumTitle,
				DurationMS: song.DurationMS,
			}

			open := func() (io.ReadCloser, error) {
				return files.OpenAudio(song.ID, song.FileExt)
			}

			if err := audioframe.Produce(ctx, frameSong, open, expectedSampleRate, out); err != nil {
				slog.Error("playlist source: producer returned an error", "song_id", song.ID, "error", err)
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
