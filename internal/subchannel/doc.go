// Package subchannel decodes CD subchannel data and reconciles it against the
// track table.
//
// Raw reads carry 96 bytes per sector with the eight channels P..W
// interleaved one bit per byte. Q is the channel that matters here: mode 1
// frames carry track, index and absolute position, mode 2 the media catalog
// number and mode 3 the ISRC. Every Q frame ends with an inverted CRC-16.
//
// The Reconciler never edits the table. It returns an Outcome holding a
// toc.Patch and the addresses that must be read again; the dump scheduler
// applies both.
package subchannel
