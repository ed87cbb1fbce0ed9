// Package resume holds the resumable state of a dump session and persists it
// between runs.
//
// State is the in-memory mirror the scheduler mutates: the next address to
// read, the deduplicated bad block set and the tape flag. Store checkpoints
// that state, together with the session's coverage extents and discovered
// MCN/ISRC values, into a SQLite database keyed by the disc's table of
// contents fingerprint so a later run against the same disc continues where
// the previous one stopped.
package resume
