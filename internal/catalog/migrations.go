package catalog

const schema = `
CREATE TABLE IF NOT EXISTS artists (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS albums (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	year  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS songs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL,
	album_id     INTEGER REFERENCES albums(id),
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	file_ext     TEXT NOT NULL,
	checksum     TEXT NOT NULL,
	playable     INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_songs_checksum ON songs(checksum);

CREATE TABLE IF NOT EXISTS song_artists (
	song_id   INTEGER NOT NULL REFERENCES songs(id)   ON DELETE CASCADE,
	artist_id INTEGER NOT NULL REFERENCES artists(id)  ON DELETE CASCADE,
	PRIMARY KEY (song_id, artist_id)
);

CREATE TABLE IF NOT EXISTS song_tags (
	song_id INTEGER NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id)  ON DELETE CASCADE,
	PRIMARY KEY (song_id, tag_id)
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS listen_credits (
	user_id        INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	total_seconds  INTEGER NOT NULL DEFAULT 0,
	updated_at     TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}
