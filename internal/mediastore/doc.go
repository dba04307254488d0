// Package mediastore persists records of produced and indexed media in
// SQLite.
//
// Workers insert one record per completed job; `reelsmith media scan`
// indexes files already present under the media directory. Paths are
// unique, so rescanning is idempotent.
package mediastore
