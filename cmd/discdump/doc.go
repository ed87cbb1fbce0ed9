// Command discdump dumps optical discs sector by sector into a raw image,
// resuming interrupted sessions from the state database.
//
// The physical transport is provided by the simdrive emulator: --image
// replays a previous dump, --simulate builds a synthetic disc.
package main
