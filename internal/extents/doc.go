// Package extents tracks sets of sector addresses as sorted, non-overlapping
// closed ranges.
//
// A Set is the bookkeeping primitive of a dump session: audio sectors,
// lead-out addresses, sectors already filled, and sectors whose subchannel
// still needs fixing are each one Set. Adjacent or overlapping ranges merge on
// insertion, and removal splits ranges as needed, so iteration always yields
// the minimal list of contiguous runs.
package extents
