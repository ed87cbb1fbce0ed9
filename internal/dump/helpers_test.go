package dump_test

import (
	"context"
	"testing"

	"discdump/internal/dump"
	"discdump/internal/image"
	"discdump/internal/mmc"
	"discdump/internal/resume"
	"discdump/internal/simdrive"
	"discdump/internal/toc"
)

// memSink keeps the last write of every sector.
type memSink struct {
	long   map[uint64][]byte
	cooked map[uint64][]byte
	tags   map[uint64][]byte
	tracks []toc.Track
	mcn    string
	writes int
}

func newMemSink() *memSink {
	return &memSink{long: map[uint64][]byte{}, cooked: map[uint64][]byte{}, tags: map[uint64][]byte{}}
}

func split(dst map[uint64][]byte, buf []byte, lba uint64, count, size uint32) {
	for k := uint32(0); k < count; k++ {
		dst[lba+uint64(k)] = append([]byte(nil), buf[k*size:(k+1)*size]...)
	}
}

func (m *memSink) WriteSectorsLong(buf []byte, lba uint64, count uint32) error {
	m.writes++
	split(m.long, buf, lba, count, mmc.SectorSize)
	return nil
}

func (m *memSink) WriteSectors(buf []byte, lba uint64, count uint32) error {
	split(m.cooked, buf, lba, count, mmc.CookedSectorSize)
	return nil
}

func (m *memSink) WriteSectorsTag(buf []byte, lba uint64, count uint32, tag image.TagKind) error {
	split(m.tags, buf, lba, count, tag.Size())
	return nil
}

func (m *memSink) SetTracks(tracks []toc.Track) error {
	m.tracks = tracks
	return nil
}

func (m *memSink) SetDiscInfo(mcn string, _ map[int]string) error {
	m.mcn = mcn
	return nil
}

// savedCheckpoints records every checkpoint.
type savedCheckpoints struct {
	saves []*resume.Checkpoint
}

func (s *savedCheckpoints) Save(_ context.Context, cp *resume.Checkpoint) error {
	s.saves = append(s.saves, cp)
	return nil
}

func mustTable(t *testing.T, tracks ...toc.Track) *toc.Table {
	t.Helper()
	table, err := toc.NewTable(tracks)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func dataDisc(t *testing.T) *toc.Table {
	return mustTable(t, toc.Track{Sequence: 1, Session: 1, Type: toc.Data, Start: 0, End: 99})
}

type harness struct {
	drive     *simdrive.Drive
	sink      *memSink
	session   *dump.Session
	scheduler *dump.Scheduler
	saves     *savedCheckpoints
}

type harnessConfig struct {
	truth   *toc.Table // layout the drive serves; defaults to the session table
	session *toc.Table
	caps    mmc.Capabilities
	drive   simdrive.Config
	opts    dump.Options
	leadOut uint64
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()
	truth := hc.truth
	if truth == nil {
		truth = hc.session
	}
	if hc.caps == (mmc.Capabilities{}) {
		hc.caps = mmc.Capabilities{ReadCD: true, Read16: true, MaxBlocks: 64}
	}
	if hc.drive.Capabilities == (mmc.Capabilities{}) {
		hc.drive.Capabilities = hc.caps
	}
	drive := simdrive.New(simdrive.Pattern{Table: truth}, truth, hc.drive)
	facade, err := mmc.NewFacade(drive, hc.caps)
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	if hc.opts == (dump.Options{}) {
		hc.opts = dump.DefaultOptions()
	}
	sink := newMemSink()
	saves := &savedCheckpoints{}
	session := dump.NewSession(dump.Identity{SessionID: "test", Device: "sim"}, hc.session, hc.leadOut)
	scheduler := dump.New(facade, sink, session, hc.opts, dump.Dependencies{Checkpointer: saves})
	return &harness{drive: drive, sink: sink, session: session, scheduler: scheduler, saves: saves}
}

func (h *harness) reads() []simdrive.Call {
	var out []simdrive.Call
	for _, c := range h.drive.Calls() {
		if c.Command != "set-speed" {
			out = append(out, c)
		}
	}
	return out
}

// checkCoverage asserts every address in [0, last] outside the lead-out
// extents is in exactly one of the filled extents and the bad blocks.
func checkCoverage(t *testing.T, s *dump.Session) {
	t.Helper()
	for addr := uint64(0); addr <= s.Table.LastSector(); addr++ {
		if s.LeadOut.Contains(addr) {
			continue
		}
		filled := s.Filled.Contains(addr)
		bad := s.State.BadBlocks.Contains(addr)
		if filled == bad {
			t.Fatalf("sector %d: filled=%v bad=%v", addr, filled, bad)
		}
	}
}

func sectorOf(lba int64, data bool) []byte {
	buf := make([]byte, mmc.SectorSize)
	if data {
		simdrive.FillData(lba, buf)
	} else {
		simdrive.FillAudio(lba, buf)
	}
	return buf
}
