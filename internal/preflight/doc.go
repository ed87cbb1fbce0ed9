// Package preflight provides readiness checks run before a dump starts.
//
// The dump command calls RunAll once the track table is known, so the
// free-space estimate covers the whole image. Any failed check stops the
// dump before the drive spins up; "discdump status" prints the same list.
package preflight
