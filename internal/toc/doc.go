// Package toc models the disc's track table.
//
// The table is owned by the dump scheduler. Other components never mutate it
// directly: they propose a Patch against the version they observed and the
// scheduler applies it, which bumps Version and lets readers detect that their
// view is stale. Each track's Start includes its pregap (index 0); index 1
// sits at Start+Pregap.
package toc
