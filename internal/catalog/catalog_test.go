package catalog

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory catalog: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSongAndListPlayable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertSong(ctx, TrackRecord{
		Title:    "Song One",
		Artists:  []string{"Artist A", "Artist B"},
		Album:    "Album X",
		Checksum: "checksum-1",
		FileExt:  "mp3",
	})
	if err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero song id")
	}

	songs, err := s.ListPlayableSongs(ctx)
	if err != nil {
		t.Fatalf("ListPlayableSongs failed: %v", err)
	}
	if len(songs) != 1 {
		t.Fatalf("expected 1 playable song, got %d", len(songs))
	}
	if songs[0].Title != "Song One" || songs[0].AlbumTitle != "Album X" {
		t.Fatalf("unexpected song: %+v", songs[0])
	}
	if songs[0].ArtistNames != "Artist A, Artist B" {
		t.Fatalf("expected joined artist names, got %q", songs[0].ArtistNames)
	}
}

func TestUpsertSongNonMP3IsNotPlayable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertSong(ctx, TrackRecord{
		Title:    "Lossless Track",
		Checksum: "checksum-flac",
		FileExt:  "flac",
	}); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}

	songs, err := s.ListPlayableSongs(ctx)
	if err != nil {
		t.Fatalf("ListPlayableSongs failed: %v", err)
	}
	if len(songs) != 0 {
		t.Fatalf("expected flac track to be excluded from playable songs, got %+v", songs)
	}
}

func TestUpsertSongIsIdempotentByChecksum(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertSong(ctx, TrackRecord{Title: "Original", Checksum: "same-checksum", FileExt: "mp3"})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	id2, err := s.UpsertSong(ctx, TrackRecord{Title: "Retitled", Checksum: "same-checksum", FileExt: "mp3"})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same song id across re-scan, got %d and %d", id1, id2)
	}

	songs, err := s.ListPlayableSongs(ctx)
	if err != nil {
		t.Fatalf("ListPlayableSongs failed: %v", err)
	}
	if len(songs) != 1 || songs[0].Title != "Retitled" {
		t.Fatalf("expected a single song with updated title, got %+v", songs)
	}
}

func TestCreditListenSecondsAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := s.CreditListenSeconds(ctx, user.ID, 10); err != nil {
		t.Fatalf("CreditListenSeconds failed: %v", err)
	}
	if err := s.CreditListenSeconds(ctx, user.ID, 5); err != nil {
		t.Fatalf("CreditListenSeconds failed: %v", err)
	}
	if err := s.CreditListenSeconds(ctx, user.ID, 0); err != nil {
		t.Fatalf("CreditListenSeconds(0) should be a no-op, got error: %v", err)
	}

	var total int64
	row := s.db.QueryRowContext(ctx, `SELECT total_seconds FROM listen_credits WHERE user_id = ?`, user.ID)
	if err := row.Scan(&total); err != nil {
		t.Fatalf("failed to read back credited seconds: %v", err)
	}
	if total != 15 {
		t.Fatalf("expected 15 total credited seconds, got %d", total)
	}
}

func TestFindUserByUsernameNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.FindUserByUsername(context.Background(), "nobody"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
