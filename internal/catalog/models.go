// Package catalog implements the out-of-scope "catalog store" collaborator
// described in spec.md §1: a relational store of songs, albums, artists,
// tags and users. The streaming core only ever calls ListPlayableSongs and
// CreditListenSeconds on the Store; everything else here
// exists so the module can run standalone against a real database.
package catalog

import "time"

// Song is the essential, core-facing view of a catalog entry (spec.md §3).
type Song struct {
	ID          int64
	Title       string
	AlbumTitle  string // empty when unknown
	ArtistNames string // empty when unknown, comma-joined
	DurationMS  int64
	FileExt     string // e.g. "mp3"; used by the file store to build a path
}

type Album struct {
	ID    int64
	Title string
	Year  int
}

type Artist struct {
	ID   int64
	Name string
}

type Tag struct {
	ID   int64
	Name string
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
