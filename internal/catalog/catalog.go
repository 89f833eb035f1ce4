package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned when a lookup by id or username matches nothing.
var ErrUserNotFound = errors.New("catalog: user not found")

// Store is the catalog store collaborator named in spec.md §1: the streaming
// core only ever calls ListPlayableSongs and CreditListenSeconds against it.
// Everything else on Store exists so the module can seed and maintain its own
// catalog without an external admin tool.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL (a modernc.org/sqlite DSN, typically a file
// path) and ensures the schema exists.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("sqlite", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ListPlayableSongs returns every song flagged playable, joined with its
// album title and a comma-separated list of artist names. This is the
// "list_playable_songs()" collaborator of spec.md §1, consumed by the
// Playlist Source on every playlist cycle.
func (s *Store) ListPlayableSongs(ctx context.Context) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, COALESCE(al.title, ''), s.duration_ms, s.file_ext
		FROM songs s
		LEFT JOIN albums al ON al.id = s.album_id
		WHERE s.playable = 1
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list playable songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var sg Song
		if err := rows.Scan(&sg.ID, &sg.Title, &sg.AlbumTitle, &sg.DurationMS, &sg.FileExt); err != nil {
			return nil, fmt.Errorf("catalog: scan song: %w", err)
		}
		songs = append(songs, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list playable songs: %w", err)
	}

	if err := s.attachArtists(ctx, songs); err != nil {
		return nil, err
	}
	return songs, nil
}

func (s *Store) attachArtists(ctx context.Context, songs []Song) error {
	if len(songs) == 0 {
		return nil
	}
	byID := make(map[int64]*Song, len(songs))
	for i := range songs {
		byID[songs[i].ID] = &songs[i]
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.song_id, ar.name
		FROM song_artists sa
		JOIN artists ar ON ar.id = sa.artist_id
		ORDER BY sa.song_id, ar.name
	`)
	if err != nil {
		return fmt.Errorf("catalog: list song artists: %w", err)
	}
	defer rows.Close()

	names := make(map[int64][]string)
	for rows.Next() {
		var songID int64
		var name string
		if err := rows.Scan(&songID, &name); err != nil {
			return fmt.Errorf("catalog: scan song artist: %w", err)
		}
		names[songID] = append(names[songID], name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("catalog: list song artists: %w", err)
	}

	for id, sg := range byID {
		sg.ArtistNames = strings.Join(names[id], ", ")
	}
	return nil
}

// CreditListenSeconds accrues whole listened seconds against a user's ledger
// entry, per spec.md §4.5: the janitor calls this once per interval for each
// still-active listener with the whole-second portion of elapsed listening
// time, carrying any sub-second remainder forward itself rather than here.
func (s *Store) CreditListenSeconds(ctx context.Context, userID int64, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listen_credits (user_id, total_seconds, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			total_seconds = total_seconds + excluded.total_seconds,
			updated_at = CURRENT_TIMESTAMP
	`, userID, seconds)
	if err != nil {
		return fmt.Errorf("catalog: credit listen seconds: %w", err)
	}
	return nil
}

// CreateUser hashes nothing itself; callers (internal/sessionauth) pass an
// already-bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		return User{}, fmt.Errorf("catalog: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("catalog: create user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("catalog: scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	return u, nil
}

// UpsertSong inserts a song by checksum (idempotent re-scan) along with its
// album and artists, returning the resolved song id.
func (s *Store) UpsertSong(ctx context.Context, rec TrackRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert song: %w", err)
	}
	defer tx.Rollback()

	var albumID sql.NullInt64
	if rec.Album != "" {
		id, err := upsertNamed(ctx, tx, "albums", "title", rec.Album)
		if err != nil {
			return 0, fmt.Errorf("catalog: upsert album: %w", err)
		}
		albumID = sql.NullInt64{Int64: id, Valid: true}
	}

	playable := rec.FileExt == "mp3"

	res, err := tx.ExecContext(ctx, `
		INSERT INTO songs (title, album_id, duration_ms, file_ext, checksum, playable)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(checksum) DO UPDATE SET
			title = excluded.title,
			album_id = excluded.album_id,
			duration_ms = excluded.duration_ms,
			file_ext = excluded.file_ext,
			playable = excluded.playable
	`, rec.Title, albumID, rec.DurationMS, rec.FileExt, rec.Checksum, playable)
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert song: %w", err)
	}

	// LastInsertId is not updated when the upsert takes the UPDATE branch, so
	// resolve the id by checksum in every case.
	var songID int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM songs WHERE checksum = ?`, rec.Checksum)
	if err := row.Scan(&songID); err != nil {
		return 0, fmt.Errorf("catalog: resolve upserted song: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM song_artists WHERE song_id = ?`, songID); err != nil {
		return 0, fmt.Errorf("catalog: reset song artists: %w", err)
	}
	for _, name := range rec.Artists {
		if name == "" {
			continue
		}
		artistID, err := upsertNamed(ctx, tx, "artists", "name", name)
		if err != nil {
			return 0, fmt.Errorf("catalog: upsert artist: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO song_artists (song_id, artist_id) VALUES (?, ?)`,
			songID, artistID); err != nil {
			return 0, fmt.Errorf("catalog: link song artist: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: upsert song: %w", err)
	}
	return songID, nil
}

func upsertNamed(ctx context.Context, tx *sql.Tx, table, column, value string) (int64, error) {
	var id int64
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, table, column), value)
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?)`, table, column), value)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
