package subchannel

import "discdump/internal/mmc"

// RawSize is the size of one sector's interleaved P-W subchannel.
const RawSize = 96

// Channel indexes into the result of Deinterleave.
const (
	ChannelP = iota
	ChannelQ
	ChannelR
	ChannelS
	ChannelT
	ChannelU
	ChannelV
	ChannelW
)

// Deinterleave splits 96 raw bytes into eight 12 byte channels, P first.
func Deinterleave(raw []byte) [8][QSize]byte {
	var out [8][QSize]byte
	if len(raw) < RawSize {
		return out
	}
	for i := 0; i < QSize; i++ {
		for j := 0; j < 8; j++ {
			b := raw[i*8+j]
			for ch := 0; ch < 8; ch++ {
				if b&(0x80>>ch) != 0 {
					out[ch][i] |= 0x80 >> j
				}
			}
		}
	}
	return out
}

// Interleave packs eight channels back into 96 raw bytes.
func Interleave(ch [8][QSize]byte) []byte {
	raw := make([]byte, RawSize)
	for i := 0; i < QSize; i++ {
		for j := 0; j < 8; j++ {
			var b byte
			for c := 0; c < 8; c++ {
				if ch[c][i]&(0x80>>j) != 0 {
					b |= 0x80 >> c
				}
			}
			raw[i*8+j] = b
		}
	}
	return raw
}

// QFrom extracts the Q frame from one sector's subchannel bytes.
func QFrom(sub []byte, mode mmc.SubchannelMode) []byte {
	switch mode {
	case mmc.SubRaw:
		ch := Deinterleave(sub)
		q := ch[ChannelQ]
		return q[:]
	case mmc.SubQ16:
		if len(sub) < QSize {
			return nil
		}
		return sub[:QSize]
	default:
		return nil
	}
}

// Extract copies the subchannel bytes out of a buffer of count sectors
// interleaved with their data at the given stride.
func Extract(buf []byte, count, subSize uint32) []byte {
	if subSize == 0 {
		return nil
	}
	stride := uint64(mmc.SectorSize) + uint64(subSize)
	out := make([]byte, 0, uint64(count)*uint64(subSize))
	for k := uint64(0); k < uint64(count); k++ {
		start := k*stride + mmc.SectorSize
		if start+uint64(subSize) > uint64(len(buf)) {
			break
		}
		out = append(out, buf[start:start+uint64(subSize)]...)
	}
	return out
}
