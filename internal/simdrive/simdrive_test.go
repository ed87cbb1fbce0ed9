package simdrive_test

import (
	"bytes"
	"testing"

	"discdump/internal/mmc"
	"discdump/internal/simdrive"
	"discdump/internal/subchannel"
	"discdump/internal/toc"
)

func mixedTable(t *testing.T) *toc.Table {
	t.Helper()
	table, err := toc.NewTable([]toc.Track{
		{Sequence: 1, Session: 1, Type: toc.Data, Start: 0, End: 39},
		{Sequence: 2, Session: 1, Type: toc.Audio, Start: 40, End: 99, Pregap: 5},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func fullCaps() mmc.Capabilities {
	return mmc.Capabilities{ReadCD: true, Read16: true, Subchannel: mmc.SubRaw, MaxBlocks: 64}
}

func newDrive(t *testing.T, cfg simdrive.Config) (*simdrive.Drive, *toc.Table) {
	t.Helper()
	table := mixedTable(t)
	return simdrive.New(simdrive.Pattern{Table: table}, table, cfg), table
}

func sector(t *testing.T, data []byte, k int, stride int) []byte {
	t.Helper()
	return data[k*stride : k*stride+mmc.SectorSize]
}

func TestDataSectorsCarrySyncAndAddress(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	reply := drive.ReadCD(5, mmc.SectorSize, 2, mmc.AnyType, mmc.SubNone)
	if !reply.OK {
		t.Fatalf("read failed: % x", reply.Sense)
	}
	want := make([]byte, mmc.SectorSize)
	for k := 0; k < 2; k++ {
		simdrive.FillData(int64(5+k), want)
		if !bytes.Equal(sector(t, reply.Data, k, mmc.SectorSize), want) {
			t.Fatalf("sector %d does not match pattern", 5+k)
		}
		if !bytes.HasPrefix(sector(t, reply.Data, k, mmc.SectorSize), mmc.SyncPattern[:]) {
			t.Fatalf("sector %d lacks sync", 5+k)
		}
	}
}

func TestAudioReadsAreShiftedByOffset(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		want   int64
	}{
		{name: "no offset", offset: 0, want: 60},
		{name: "negative whole sector", offset: -mmc.SectorSize, want: 61},
		{name: "positive whole sector", offset: mmc.SectorSize, want: 59},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps(), OffsetBytes: tt.offset})
			reply := drive.ReadCD(60, mmc.SectorSize, 1, mmc.CDDA, mmc.SubNone)
			if !reply.OK {
				t.Fatalf("read failed")
			}
			want := make([]byte, mmc.SectorSize)
			simdrive.FillAudio(tt.want, want)
			if !bytes.Equal(reply.Data, want) {
				t.Fatalf("expected true sector %d", tt.want)
			}
		})
	}
}

func TestPartialSampleOffsetSpansSectors(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps(), OffsetBytes: -24})
	reply := drive.ReadCD(60, mmc.SectorSize, 1, mmc.CDDA, mmc.SubNone)
	if !reply.OK {
		t.Fatalf("read failed")
	}
	a := make([]byte, mmc.SectorSize)
	b := make([]byte, mmc.SectorSize)
	simdrive.FillAudio(60, a)
	simdrive.FillAudio(61, b)
	want := append(append([]byte{}, a[24:]...), b[:24]...)
	if !bytes.Equal(reply.Data, want) {
		t.Fatal("offset read did not stitch adjacent sectors")
	}
}

func TestDataReadsIgnoreOffset(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps(), OffsetBytes: -mmc.SectorSize})
	reply := drive.ReadCD(3, mmc.SectorSize, 1, mmc.AnyType, mmc.SubNone)
	want := make([]byte, mmc.SectorSize)
	simdrive.FillData(3, want)
	if !reply.OK || !bytes.Equal(reply.Data, want) {
		t.Fatal("data read was shifted")
	}
}

func TestReadsPastLeadOutFail(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps(), LeadOutReadable: 2})
	if reply := drive.ReadCD(100, mmc.SectorSize, 2, mmc.CDDA, mmc.SubNone); !reply.OK {
		t.Fatal("readable lead-out rejected")
	}
	reply := drive.ReadCD(98, mmc.SectorSize, 5, mmc.CDDA, mmc.SubNone)
	if reply.OK {
		t.Fatal("expected failure past lead-out")
	}
	if sense := mmc.DecodeSense(reply.Sense); !sense.Is(mmc.ASCLBAOutOfRange) {
		t.Fatalf("sense = %v", sense)
	}
}

func TestNegativeAddressesReadPregap(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	neg := int32(-10)
	if reply := drive.ReadCD(uint32(neg), mmc.SectorSize, 10, mmc.AnyType, mmc.SubNone); !reply.OK {
		t.Fatal("pregap read failed")
	}
	far := int32(-151)
	if reply := drive.ReadCD(uint32(far), mmc.SectorSize, 1, mmc.AnyType, mmc.SubNone); reply.OK {
		t.Fatal("read before the pregap succeeded")
	}
}

func TestStrictModesRejectDataReadsOverAudio(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps(), StrictModes: true})
	reply := drive.ReadCD(38, mmc.SectorSize, 4, mmc.AnyType, mmc.SubNone)
	if reply.OK {
		t.Fatal("expected illegal mode failure")
	}
	if sense := mmc.DecodeSense(reply.Sense); !sense.Is(mmc.ASCIllegalModeForTrack) {
		t.Fatalf("sense = %v", sense)
	}
	if reply := drive.ReadCD(40, mmc.SectorSize, 1, mmc.AnyType, mmc.SubNone); !reply.OK {
		t.Fatal("single sector read should succeed")
	}
	if reply := drive.ReadCD(38, mmc.SectorSize, 4, mmc.CDDA, mmc.SubNone); !reply.OK {
		t.Fatal("audio read should succeed")
	}
}

func TestInjectedFailuresRecover(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	drive.FailAt(10, 2)
	for i := 0; i < 2; i++ {
		reply := drive.ReadCD(8, mmc.SectorSize, 4, mmc.AnyType, mmc.SubNone)
		if reply.OK {
			t.Fatalf("attempt %d succeeded", i)
		}
		if sense := mmc.DecodeSense(reply.Sense); sense.Key != 0x03 {
			t.Fatalf("sense key = %#x", sense.Key)
		}
	}
	if reply := drive.ReadCD(8, mmc.SectorSize, 4, mmc.AnyType, mmc.SubNone); !reply.OK {
		t.Fatal("sector did not recover")
	}
}

func TestUnsupportedCommandsAreRejected(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: mmc.Capabilities{Read12: true}})
	if reply := drive.ReadCD(0, mmc.SectorSize, 1, mmc.AnyType, mmc.SubNone); reply.OK {
		t.Fatal("READ CD accepted")
	}
	if reply := drive.Read16(0, mmc.SectorSize, 1); reply.OK {
		t.Fatal("READ(16) accepted")
	}
	if reply := drive.Read12(0, mmc.SectorSize, 1); !reply.OK {
		t.Fatal("READ(12) rejected")
	}
	calls := drive.Calls()
	if len(calls) != 3 || calls[2].Command != "read12" || !calls[2].OK {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestTransferLimit(t *testing.T) {
	caps := fullCaps()
	caps.MaxBlocks = 16
	drive, _ := newDrive(t, simdrive.Config{Capabilities: caps})
	if reply := drive.ReadCD(0, mmc.SectorSize, 17, mmc.AnyType, mmc.SubNone); reply.OK {
		t.Fatal("oversized transfer accepted")
	}
	probed := mmc.Probe(drive, 0, 60, true, 64)
	if !probed.ReadCD || probed.Subchannel != mmc.SubRaw || probed.MaxBlocks != 16 {
		t.Fatalf("probe = %+v", probed)
	}
}

func TestSubchannelFollowsTrueLayout(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	stride := mmc.SectorSize + subchannel.RawSize
	reply := drive.ReadCD(42, uint32(stride), 4, mmc.CDDA, mmc.SubRaw)
	if !reply.OK {
		t.Fatal("read failed")
	}
	sub := subchannel.Extract(reply.Data, 4, subchannel.RawSize)
	q0, ok := subchannel.DecodeQ(subchannel.QFrom(sub[:subchannel.RawSize], mmc.SubRaw))
	if !ok || q0.Track != 2 || q0.Index != 0 {
		t.Fatalf("lba 42: ok=%v q=%+v", ok, q0)
	}
	q3, ok := subchannel.DecodeQ(subchannel.QFrom(sub[3*subchannel.RawSize:], mmc.SubRaw))
	if !ok || q3.Track != 2 || q3.Index != 1 || q3.Abs.LBA() != 45 {
		t.Fatalf("lba 45: ok=%v q=%+v", ok, q3)
	}
}

func TestSubchannelCarriesMCNAndLeadOut(t *testing.T) {
	drive, table := newDrive(t, simdrive.Config{Capabilities: fullCaps(), LeadOutReadable: 10})
	table.MCN = "0123456789012"
	stride := uint32(mmc.SectorSize + 16)
	reply := drive.ReadCD(50, stride, 1, mmc.CDDA, mmc.SubQ16)
	if !reply.OK {
		t.Fatal("read failed")
	}
	q, ok := subchannel.DecodeQ(reply.Data[mmc.SectorSize:])
	if !ok || q.ADR != 2 || q.MCN != table.MCN {
		t.Fatalf("mcn frame: ok=%v q=%+v", ok, q)
	}
	reply = drive.ReadCD(101, stride, 1, mmc.CDDA, mmc.SubQ16)
	q, ok = subchannel.DecodeQ(reply.Data[mmc.SectorSize:])
	if !ok || q.Track != subchannel.LeadOutTrack {
		t.Fatalf("lead-out frame: ok=%v q=%+v", ok, q)
	}
}

func TestCorruptSubchannelFailsCRC(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	drive.CorruptSubchannel(70)
	for _, mode := range []mmc.SubchannelMode{mmc.SubQ16, mmc.SubRaw} {
		reply := drive.ReadCD(70, mmc.SectorSize+mode.Size(), 1, mmc.CDDA, mode)
		if _, ok := subchannel.DecodeQ(subchannel.QFrom(reply.Data[mmc.SectorSize:], mode)); ok {
			t.Fatalf("%s frame decoded despite corruption", mode)
		}
	}
}

func TestOverrideQReplacesFrame(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	drive.OverrideQ(20, subchannel.EncodePosition(4, 2, 0, subchannel.MSF{}, subchannel.MSFFromLBA(20)))
	for _, mode := range []mmc.SubchannelMode{mmc.SubQ16, mmc.SubRaw} {
		reply := drive.ReadCD(20, mmc.SectorSize+mode.Size(), 1, mmc.AnyType, mode)
		q, ok := subchannel.DecodeQ(subchannel.QFrom(reply.Data[mmc.SectorSize:], mode))
		if !ok || q.Track != 2 || q.Index != 0 || q.Abs.LBA() != 20 {
			t.Fatalf("%s frame: ok=%v q=%+v", mode, ok, q)
		}
	}
}

func TestSpeedsAreRecorded(t *testing.T) {
	drive, _ := newDrive(t, simdrive.Config{Capabilities: fullCaps()})
	facade, err := mmc.NewFacade(drive, fullCaps())
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	facade.SetSpeed(1200)
	facade.SetSpeed(1200)
	facade.SetSpeed(0xFFFF)
	if got := drive.Speeds(); len(got) != 2 || got[0] != 1200 || got[1] != 0xFFFF {
		t.Fatalf("speeds = %v", got)
	}
}
