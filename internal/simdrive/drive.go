package simdrive

import (
	"time"

	"discdump/internal/mmc"
	"discdump/internal/subchannel"
	"discdump/internal/toc"
)

// Sense codes the emulator reports.
const (
	keyMediumError     = 0x03
	keyIllegalRequest  = 0x05
	ascUnrecoveredRead = 0x11
	ascInvalidOpcode   = 0x20
	ascInvalidField    = 0x24
)

// pregapSectors is how far before LBA 0 the emulated drive can seek.
const pregapSectors = 150

// Config describes the emulated drive.
type Config struct {
	// Capabilities lists the accepted command families. Subchannel is the
	// richest subchannel mode READ CD returns and MaxBlocks the transfer
	// limit (zero for unlimited).
	Capabilities mmc.Capabilities
	// OffsetBytes is the drive's read offset on audio sectors.
	OffsetBytes int
	// LeadOutReadable is how many sectors past the last track can be read.
	LeadOutReadable uint32
	// StrictModes rejects multi-sector data reads that touch audio sectors
	// with ASC 0x64.
	StrictModes bool
	// SectorTime is the simulated transfer time per sector.
	SectorTime time.Duration
}

// Call records one command.
type Call struct {
	Command string
	LBA     uint32
	Count   uint32
	Audio   bool
	OK      bool
}

// Drive is an emulated optical drive. It is not safe for concurrent use.
type Drive struct {
	cfg     Config
	medium  Medium
	table   *toc.Table
	fail    map[int64]int
	corrupt map[int64]bool
	q       map[int64][subchannel.QSize]byte
	calls   []Call
	speeds  []uint16
}

// New returns a drive serving medium laid out by table, the disc's true
// track layout.
func New(medium Medium, table *toc.Table, cfg Config) *Drive {
	if cfg.SectorTime == 0 {
		cfg.SectorTime = 100 * time.Microsecond
	}
	return &Drive{
		cfg:     cfg,
		medium:  medium,
		table:   table,
		fail:    map[int64]int{},
		corrupt: map[int64]bool{},
		q:       map[int64][subchannel.QSize]byte{},
	}
}

// FailAt makes reads covering lba fail with a medium error. times < 0 fails
// forever; otherwise the sector recovers after that many failures.
func (d *Drive) FailAt(lba int64, times int) {
	d.fail[lba] = times
}

// FailRange applies FailAt to every address in [start, end].
func (d *Drive) FailRange(start, end int64, times int) {
	for a := start; a <= end; a++ {
		d.fail[a] = times
	}
}

// CorruptSubchannel damages the Q CRC returned for lba.
func (d *Drive) CorruptSubchannel(lba int64) {
	d.corrupt[lba] = true
}

// OverrideQ serves frame as the Q subchannel of lba in place of the one
// derived from the layout.
func (d *Drive) OverrideQ(lba int64, frame [subchannel.QSize]byte) {
	d.q[lba] = frame
}

// Calls returns the command log.
func (d *Drive) Calls() []Call {
	return append([]Call(nil), d.calls...)
}

// ResetCalls clears the command log.
func (d *Drive) ResetCalls() {
	d.calls = nil
}

// Speeds returns every speed set, in order.
func (d *Drive) Speeds() []uint16 {
	return append([]uint16(nil), d.speeds...)
}

// Table returns the true layout.
func (d *Drive) Table() *toc.Table {
	return d.table
}

func (d *Drive) ReadCD(lba, blockSize, count uint32, sectorType mmc.SectorType, sub mmc.SubchannelMode) mmc.Reply {
	caps := d.cfg.Capabilities
	if !caps.ReadCD {
		return d.reject("read-cd", lba, count, ascInvalidOpcode)
	}
	if sub > caps.Subchannel {
		return d.reject("read-cd", lba, count, ascInvalidField)
	}
	return d.read("read-cd", lba, blockSize, count, sectorType == mmc.CDDA, sub)
}

func (d *Drive) Read16(lba uint64, blockSize, count uint32) mmc.Reply {
	if !d.cfg.Capabilities.Read16 {
		return d.reject("read16", uint32(lba), count, ascInvalidOpcode)
	}
	return d.read("read16", uint32(lba), blockSize, count, false, mmc.SubNone)
}

func (d *Drive) Read12(lba, blockSize, count uint32) mmc.Reply {
	if !d.cfg.Capabilities.Read12 {
		return d.reject("read12", lba, count, ascInvalidOpcode)
	}
	return d.read("read12", lba, blockSize, count, false, mmc.SubNone)
}

func (d *Drive) Read10(lba, blockSize, count uint32) mmc.Reply {
	if !d.cfg.Capabilities.Read10 {
		return d.reject("read10", lba, count, ascInvalidOpcode)
	}
	return d.read("read10", lba, blockSize, count, false, mmc.SubNone)
}

func (d *Drive) Read6(lba, blockSize, count uint32) mmc.Reply {
	if !d.cfg.Capabilities.Read6 {
		return d.reject("read6", lba, count, ascInvalidOpcode)
	}
	return d.read("read6", lba, blockSize, count, false, mmc.SubNone)
}

func (d *Drive) VendorReadCDDA(lba, blockSize, count uint32, sub mmc.SubchannelMode) mmc.Reply {
	caps := d.cfg.Capabilities
	if !caps.VendorCDDA {
		return d.reject("vendor-cdda", lba, count, ascInvalidOpcode)
	}
	if sub > caps.Subchannel {
		return d.reject("vendor-cdda", lba, count, ascInvalidField)
	}
	return d.read("vendor-cdda", lba, blockSize, count, true, sub)
}

func (d *Drive) SetSpeed(kbps uint16) mmc.Reply {
	d.speeds = append(d.speeds, kbps)
	d.calls = append(d.calls, Call{Command: "set-speed", OK: true})
	return mmc.Reply{OK: true, Duration: time.Millisecond}
}

func (d *Drive) reject(cmd string, lba, count uint32, asc byte) mmc.Reply {
	d.calls = append(d.calls, Call{Command: cmd, LBA: lba, Count: count})
	return mmc.Reply{Sense: mmc.FixedSense(keyIllegalRequest, asc, 0), Duration: time.Millisecond}
}

func (d *Drive) failReply(call Call, key, asc byte, sectors uint32) mmc.Reply {
	d.calls = append(d.calls, call)
	return mmc.Reply{Sense: mmc.FixedSense(key, asc, 0), Duration: d.cfg.SectorTime * time.Duration(sectors+1)}
}

func (d *Drive) isAudio(addr int64) bool {
	if addr < 0 {
		addr = 0
	}
	tr, ok := d.table.TrackAt(uint64(addr))
	return ok && tr.Type == toc.Audio
}

func (d *Drive) read(cmd string, lba, blockSize, count uint32, audio bool, sub mmc.SubchannelMode) mmc.Reply {
	call := Call{Command: cmd, LBA: lba, Count: count, Audio: audio}
	if max := d.cfg.Capabilities.MaxBlocks; max > 0 && count > max {
		return d.failReply(call, keyIllegalRequest, ascInvalidField, 0)
	}
	if count == 0 || blockSize != mmc.SectorSize+sub.Size() {
		return d.failReply(call, keyIllegalRequest, ascInvalidField, 0)
	}

	start := int64(int32(lba))
	lastTrack := int64(d.table.LastSector())
	limit := lastTrack + int64(d.cfg.LeadOutReadable)
	for k := int64(0); k < int64(count); k++ {
		addr := start + k
		if addr < -pregapSectors || addr > limit {
			return d.failReply(call, keyIllegalRequest, mmc.ASCLBAOutOfRange, 0)
		}
	}

	if !audio && count > 1 && d.cfg.StrictModes {
		for k := int64(0); k < int64(count); k++ {
			addr := start + k
			if addr >= 0 && addr <= lastTrack && d.isAudio(addr) {
				return d.failReply(call, keyIllegalRequest, mmc.ASCIllegalModeForTrack, 0)
			}
		}
	}

	failed := false
	for k := int64(0); k < int64(count); k++ {
		n, ok := d.fail[start+k]
		if !ok || n == 0 {
			continue
		}
		if n > 0 {
			d.fail[start+k] = n - 1
		}
		failed = true
	}
	if failed {
		return d.failReply(call, keyMediumError, ascUnrecoveredRead, count)
	}

	shift := int64(0)
	if audio || d.isAudio(start) {
		shift = int64(d.cfg.OffsetBytes)
	}
	stride := uint64(blockSize)
	data := make([]byte, uint64(count)*stride)
	for k := int64(0); k < int64(count); k++ {
		addr := start + k
		dst := data[uint64(k)*stride : uint64(k)*stride+mmc.SectorSize]
		d.stream(addr*mmc.SectorSize-shift, dst, limit)
		if sub == mmc.SubNone {
			continue
		}
		copy(data[uint64(k)*stride+mmc.SectorSize:uint64(k+1)*stride], d.subchannel(addr, sub))
	}

	call.OK = true
	d.calls = append(d.calls, call)
	return mmc.Reply{Data: data, OK: true, Duration: d.cfg.SectorTime * time.Duration(count)}
}

// stream copies len(dst) bytes of the medium's byte stream starting at pos.
// Bytes outside the readable area are zero.
func (d *Drive) stream(pos int64, dst []byte, limit int64) {
	var sector [mmc.SectorSize]byte
	n := 0
	for n < len(dst) {
		p := pos + int64(n)
		addr := floorDiv(p, mmc.SectorSize)
		within := int(p - addr*mmc.SectorSize)
		chunk := mmc.SectorSize - within
		if rest := len(dst) - n; chunk > rest {
			chunk = rest
		}
		if addr < -pregapSectors || addr > limit {
			clear(dst[n : n+chunk])
		} else {
			d.medium.ReadSector(addr, sector[:])
			copy(dst[n:n+chunk], sector[within:within+chunk])
		}
		n += chunk
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// subchannel builds the subchannel for addr, placing MCN and ISRC frames at
// fixed positions within every hundred sectors.
func (d *Drive) subchannel(addr int64, mode mmc.SubchannelMode) []byte {
	out := make([]byte, mode.Size())
	if addr < 0 {
		return out
	}
	lba := uint64(addr)
	var q [subchannel.QSize]byte
	var raw []byte
	switch frame, ok := d.q[addr]; {
	case ok:
		q = frame
	case lba > d.table.LastSector():
		rel := lba - d.table.LastSector() - 1
		q = subchannel.EncodePosition(0, subchannel.LeadOutTrack, 1,
			subchannel.MSFFromLBA(int64(rel)-150), subchannel.MSFFromLBA(addr))
	case d.table.MCN != "" && lba%100 == 50:
		if frame, err := subchannel.EncodeMCN(0, d.table.MCN, uint8(lba%75)); err == nil {
			q = frame
		}
	case lba%100 == 75 && d.trackISRC(lba) != "":
		if frame, err := subchannel.EncodeISRC(0, d.trackISRC(lba), uint8(lba%75)); err == nil {
			q = frame
		}
	default:
		raw = subchannel.Synthesize(lba, d.table, mode)
	}
	if raw == nil {
		if mode == mmc.SubQ16 {
			copy(out, q[:])
		} else {
			var ch [8][subchannel.QSize]byte
			ch[subchannel.ChannelQ] = q
			raw = subchannel.Interleave(ch)
		}
	}
	if raw != nil {
		copy(out, raw)
	}
	if d.corrupt[addr] {
		if mode == mmc.SubQ16 {
			out[1] ^= 0x01
		} else {
			// Flip Q bit of the first byte group.
			out[0] ^= 0x40
		}
	}
	return out
}

func (d *Drive) trackISRC(lba uint64) string {
	tr, ok := d.table.TrackAt(lba)
	if !ok || tr.Type != toc.Audio {
		return ""
	}
	return tr.ISRC
}
