package simdrive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"discdump/internal/image"
	"discdump/internal/mmc"
	"discdump/internal/subchannel"
	"discdump/internal/toc"
)

// Medium supplies the true content of a sector. Addresses may be negative
// for the pregap before track 1 and may run past the last track into the
// lead-out.
type Medium interface {
	ReadSector(lba int64, dst []byte)
}

// Pattern is a synthetic medium. Data sectors carry a sync header, a BCD
// address and a mode byte; every sector body is a function of its address so
// misplaced bytes are detectable.
type Pattern struct {
	Table *toc.Table
}

// ReadSector fills dst with the sector at lba.
func (p Pattern) ReadSector(lba int64, dst []byte) {
	FillAudio(lba, dst)
	if lba < 0 || p.Table == nil {
		return
	}
	tr, ok := p.Table.TrackAt(uint64(lba))
	if !ok || tr.Type != toc.Data || uint64(lba) > p.Table.LastSector() {
		return
	}
	FillData(lba, dst)
}

// FillAudio writes the audio body for lba.
func FillAudio(lba int64, dst []byte) {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(lba))
	for i := range dst {
		dst[i] = seed[i%8] ^ byte(i*7+1)
	}
}

// FillData writes a Mode 1 data sector for lba.
func FillData(lba int64, dst []byte) {
	FillAudio(lba, dst)
	copy(dst, mmc.SyncPattern[:])
	msf := subchannel.MSFFromLBA(lba)
	dst[12] = toBCD(msf.M)
	dst[13] = toBCD(msf.S)
	dst[14] = toBCD(msf.F)
	dst[15] = 0x01
}

func toBCD(v uint8) byte {
	return byte(v/10)<<4 | byte(v%10)
}

// ImageMedium serves sectors from a raw long-sector image. Addresses outside
// the image read as zeros.
type ImageMedium struct {
	r       io.ReaderAt
	sectors int64
}

// ReadSector fills dst from the image.
func (m *ImageMedium) ReadSector(lba int64, dst []byte) {
	clear(dst)
	if lba < 0 || lba >= m.sectors {
		return
	}
	_, _ = m.r.ReadAt(dst[:mmc.SectorSize], lba*mmc.SectorSize)
}

// OpenImage loads <base>.bin and <base>.toc.json as written by image.RawSink.
// The returned closer releases the image file.
func OpenImage(base string) (*ImageMedium, *toc.Table, io.Closer, error) {
	raw, err := os.ReadFile(base + ".toc.json")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read track listing: %w", err)
	}
	var meta image.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, nil, fmt.Errorf("decode track listing: %w", err)
	}
	table, err := toc.NewTable(meta.Tracks)
	if err != nil {
		return nil, nil, nil, err
	}
	table.MCN = meta.MCN
	for seq, isrc := range meta.ISRC {
		table.SetISRC(seq, isrc)
	}
	f, err := os.Open(base + ".bin")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, fmt.Errorf("stat image: %w", err)
	}
	return &ImageMedium{r: f, sectors: info.Size() / mmc.SectorSize}, table, f, nil
}
