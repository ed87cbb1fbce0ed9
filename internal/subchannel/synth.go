package subchannel

import (
	"discdump/internal/mmc"
	"discdump/internal/toc"
)

// Synthesize builds the subchannel bytes a sector at lba should carry given
// the track table: a mode 1 Q position frame and, for raw mode, a P channel
// raised across the pregap. It returns nil for addresses outside every track.
func Synthesize(lba uint64, table *toc.Table, mode mmc.SubchannelMode) []byte {
	tr, ok := table.TrackAt(lba)
	if !ok || mode == mmc.SubNone {
		return nil
	}
	var control uint8
	if tr.Type == toc.Data {
		control = 0x04
	}
	index := uint8(1)
	var rel MSF
	if lba < tr.Index1() {
		index = 0
		rel = relMSF(tr.Index1() - lba)
	} else {
		rel = relMSF(lba - tr.Index1())
	}
	q := EncodePosition(control, uint8(tr.Sequence), index, rel, MSFFromLBA(int64(lba)))

	if mode == mmc.SubQ16 {
		out := make([]byte, mode.Size())
		copy(out, q[:])
		return out
	}
	var ch [8][QSize]byte
	ch[ChannelQ] = q
	if index == 0 {
		for i := range ch[ChannelP] {
			ch[ChannelP][i] = 0xFF
		}
	}
	return Interleave(ch)
}
