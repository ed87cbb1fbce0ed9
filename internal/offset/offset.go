// Package offset compensates a drive's read offset on audio sectors.
//
// A drive with a read offset of N bytes returns, for logical sector k, the
// bytes that physically start N bytes later (or earlier for a negative
// offset). Correcting it means reading sectorsForOffset extra sectors around
// the logical window and slicing the byte stream back into place.
package offset

import (
	"errors"
	"fmt"

	"discdump/internal/mmc"
)

var (
	// ErrShortBuffer is returned when the raw buffer holds fewer sectors than claimed.
	ErrShortBuffer = errors.New("offset: raw buffer shorter than window")
	// ErrWindow is returned when the window is too small to carry the margin.
	ErrWindow = errors.New("offset: window smaller than offset margin")
)

// SectorsFor returns ceil(|offsetBytes| / SectorSize).
func SectorsFor(offsetBytes int) uint32 {
	abs := offsetBytes
	if abs < 0 {
		abs = -abs
	}
	return uint32((abs + mmc.SectorSize - 1) / mmc.SectorSize)
}

// Window returns the physical command window for the logical batch
// [first, first+blocks). Negative offsets move the start back by the margin,
// wrapping through the 32-bit command address space below sector zero; the
// count always grows by the margin.
func Window(first uint64, blocks uint32, offsetBytes int) (lba uint32, count uint32) {
	sfo := SectorsFor(offsetBytes)
	lba = uint32(first)
	if offsetBytes < 0 {
		lba = uint32(int64(first) - int64(sfo))
	}
	return lba, blocks + sfo
}

// Params describes one correction.
type Params struct {
	OffsetBytes int
	// SubSize is the number of subchannel bytes following each sector.
	SubSize uint32
	// PadTail appends sectorsForOffset zero sectors before slicing. Used when
	// the margin past the lead-out could not be read.
	PadTail bool
}

// Correct realigns a raw buffer of physical sectors so logical sector k holds
// the bytes that start at k*SectorSize+OffsetBytes relative to the logical
// window. Subchannel bytes are not shifted; each logical sector keeps the
// subchannel of the physical sector at the same logical address. It returns
// the corrected buffer and the number of logical sectors in it.
func Correct(raw []byte, physical uint32, p Params) ([]byte, uint32, error) {
	stride := uint64(mmc.SectorSize) + uint64(p.SubSize)
	if uint64(len(raw)) < uint64(physical)*stride {
		return nil, 0, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(raw), uint64(physical)*stride)
	}
	sfo := SectorsFor(p.OffsetBytes)
	total := physical
	if p.PadTail {
		total += sfo
	}
	if total < sfo {
		return nil, 0, fmt.Errorf("%w: %d sectors for a margin of %d", ErrWindow, total, sfo)
	}
	logical := total - sfo

	fix := uint64(p.OffsetBytes)
	subStart := uint64(0)
	if p.OffsetBytes < 0 {
		fix = uint64(sfo)*mmc.SectorSize - uint64(-p.OffsetBytes)
		subStart = uint64(sfo)
	}

	out := make([]byte, uint64(logical)*stride)
	for k := uint64(0); k < uint64(logical); k++ {
		dst := out[k*stride : k*stride+mmc.SectorSize]
		copyData(dst, raw, stride, fix+k*mmc.SectorSize, uint64(physical))
		if p.SubSize == 0 {
			continue
		}
		src := subStart + k
		if src >= uint64(physical) {
			continue
		}
		copy(out[k*stride+mmc.SectorSize:(k+1)*stride], raw[src*stride+mmc.SectorSize:(src+1)*stride])
	}
	return out, logical, nil
}

// copyData fills dst from the data-only byte stream of raw starting at pos.
// Bytes beyond the physical sectors are left zero.
func copyData(dst, raw []byte, stride, pos, physical uint64) {
	n := uint64(0)
	for n < uint64(len(dst)) {
		sector := (pos + n) / mmc.SectorSize
		if sector >= physical {
			return
		}
		within := (pos + n) % mmc.SectorSize
		chunk := mmc.SectorSize - within
		if rest := uint64(len(dst)) - n; chunk > rest {
			chunk = rest
		}
		start := sector*stride + within
		copy(dst[n:n+chunk], raw[start:start+chunk])
		n += chunk
	}
}
