// Package image receives dumped sectors. Sink is the contract the dump engine
// writes through; RawSink is a minimal file-backed implementation producing a
// raw long-sector image, an optional cooked image, a subchannel file and a
// JSON track listing.
package image

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"discdump/internal/mmc"
	"discdump/internal/toc"
)

// TagKind identifies per-sector metadata written alongside sector data.
type TagKind int

const (
	// TagSubchannelRaw is 96 bytes of interleaved P-W subchannel.
	TagSubchannelRaw TagKind = iota
	// TagSubchannelQ16 is a 16 byte Q frame.
	TagSubchannelQ16
)

// Size returns the per-sector size of a tag.
func (k TagKind) Size() uint32 {
	switch k {
	case TagSubchannelRaw:
		return 96
	case TagSubchannelQ16:
		return 16
	default:
		return 0
	}
}

// TagFor maps a subchannel read mode to the tag it produces.
func TagFor(mode mmc.SubchannelMode) (TagKind, bool) {
	switch mode {
	case mmc.SubRaw:
		return TagSubchannelRaw, true
	case mmc.SubQ16:
		return TagSubchannelQ16, true
	default:
		return 0, false
	}
}

// Sink receives sector writes. Calls are sequential and may revisit
// addresses; the last write of an address wins.
type Sink interface {
	WriteSectorsLong(buf []byte, lba uint64, count uint32) error
	WriteSectors(buf []byte, lba uint64, count uint32) error
	WriteSectorsTag(buf []byte, lba uint64, count uint32, tag TagKind) error
	SetTracks(tracks []toc.Track) error
}

// ErrShortWrite is returned when a buffer holds fewer bytes than count sectors.
var ErrShortWrite = errors.New("image: buffer shorter than sector count")

// RawSink writes <base>.bin, <base>.iso, <base>.sub and <base>.toc.json.
type RawSink struct {
	base   string
	long   *os.File
	cooked *os.File
	tags   *os.File
	tag    TagKind
	hasTag bool
	meta   Metadata
}

// Metadata is written with the track listing.
type Metadata struct {
	MCN    string         `json:"mcn,omitempty"`
	ISRC   map[int]string `json:"isrc,omitempty"`
	Tracks []toc.Track    `json:"tracks"`
}

// Create opens a raw sink at dir/name. Existing files are reused so a resumed
// dump fills in the gaps of the previous run.
func Create(dir, name string) (*RawSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	base := filepath.Join(dir, name)
	long, err := os.OpenFile(base+".bin", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open long image: %w", err)
	}
	return &RawSink{base: base, long: long}, nil
}

// Base returns the path prefix of the image files.
func (s *RawSink) Base() string {
	return s.base
}

func writeAt(f *os.File, buf []byte, lba uint64, count, size uint32) error {
	need := uint64(count) * uint64(size)
	if uint64(len(buf)) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrShortWrite, len(buf), need)
	}
	if _, err := f.WriteAt(buf[:need], int64(lba*uint64(size))); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(f.Name()), err)
	}
	return nil
}

// WriteSectorsLong writes count 2352-byte sectors.
func (s *RawSink) WriteSectorsLong(buf []byte, lba uint64, count uint32) error {
	return writeAt(s.long, buf, lba, count, mmc.SectorSize)
}

// WriteSectors writes count 2048-byte user data sectors.
func (s *RawSink) WriteSectors(buf []byte, lba uint64, count uint32) error {
	if s.cooked == nil {
		f, err := os.OpenFile(s.base+".iso", os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("open cooked image: %w", err)
		}
		s.cooked = f
	}
	return writeAt(s.cooked, buf, lba, count, mmc.CookedSectorSize)
}

// WriteSectorsTag writes per-sector tags. A sink holds one tag kind; mixing
// kinds is an error.
func (s *RawSink) WriteSectorsTag(buf []byte, lba uint64, count uint32, tag TagKind) error {
	if s.hasTag && tag != s.tag {
		return fmt.Errorf("image: tag kind changed from %d to %d", s.tag, tag)
	}
	if s.tags == nil {
		f, err := os.OpenFile(s.base+".sub", os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("open subchannel file: %w", err)
		}
		s.tags = f
		s.tag = tag
		s.hasTag = true
	}
	return writeAt(s.tags, buf, lba, count, tag.Size())
}

// SetTracks records the final track layout.
func (s *RawSink) SetTracks(tracks []toc.Track) error {
	s.meta.Tracks = append([]toc.Track(nil), tracks...)
	return s.writeMeta()
}

// SetDiscInfo records the catalog number and ISRCs found in subchannel.
func (s *RawSink) SetDiscInfo(mcn string, isrc map[int]string) error {
	s.meta.MCN = mcn
	s.meta.ISRC = isrc
	return s.writeMeta()
}

func (s *RawSink) writeMeta() error {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode track listing: %w", err)
	}
	tmp := s.base + ".toc.json.tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write track listing: %w", err)
	}
	return os.Rename(tmp, s.base+".toc.json")
}

// Close syncs and closes every open file.
func (s *RawSink) Close() error {
	var errs []error
	for _, f := range []*os.File{s.long, s.cooked, s.tags} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
