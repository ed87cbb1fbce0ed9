package toc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"discdump/internal/extents"
)

// Type classifies a track's sector format.
type Type int

const (
	Audio Type = iota
	Data
)

func (t Type) String() string {
	switch t {
	case Audio:
		return "audio"
	case Data:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "audio":
		*t = Audio
	case "data", "mode1", "mode2":
		*t = Data
	default:
		return fmt.Errorf("unknown track type %q", string(b))
	}
	return nil
}

// Track describes one track. Start is the first sector of the pregap.
type Track struct {
	Sequence int    `json:"sequence"`
	Session  int    `json:"session"`
	Type     Type   `json:"type"`
	Start    uint64 `json:"start"`
	End      uint64 `json:"end"`
	Pregap   uint64 `json:"pregap"`
	ISRC     string `json:"isrc,omitempty"`
}

// Index1 returns the address of the track's first index-1 sector.
func (t Track) Index1() uint64 {
	return t.Start + t.Pregap
}

// Length returns the number of sectors the track covers including pregap.
func (t Track) Length() uint64 {
	return t.End - t.Start + 1
}

var (
	// ErrStalePatch is returned when a patch was computed against an older table.
	ErrStalePatch = errors.New("stale track table patch")
	// ErrInvalidLayout is returned when tracks overlap, leave gaps, or are unordered.
	ErrInvalidLayout = errors.New("invalid track layout")
)

// Table is the ordered, versioned track list of a disc.
type Table struct {
	tracks  []Track
	version uint64
	MCN     string
}

// NewTable validates and wraps the given tracks. The slice is copied.
func NewTable(tracks []Track) (*Table, error) {
	cp := make([]Track, len(tracks))
	copy(cp, tracks)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Start < cp[j].Start })
	if err := validate(cp); err != nil {
		return nil, err
	}
	return &Table{tracks: cp}, nil
}

func validate(tracks []Track) error {
	for i, t := range tracks {
		if t.End < t.Start {
			return fmt.Errorf("%w: track %d ends (%d) before it starts (%d)", ErrInvalidLayout, t.Sequence, t.End, t.Start)
		}
		if t.Pregap > t.Length() {
			return fmt.Errorf("%w: track %d pregap %d exceeds length %d", ErrInvalidLayout, t.Sequence, t.Pregap, t.Length())
		}
		if i == 0 {
			continue
		}
		prev := tracks[i-1]
		if prev.Session == t.Session && prev.End+1 != t.Start {
			return fmt.Errorf("%w: track %d starts at %d, previous ends at %d", ErrInvalidLayout, t.Sequence, t.Start, prev.End)
		}
		if prev.End >= t.Start {
			return fmt.Errorf("%w: track %d overlaps track %d", ErrInvalidLayout, t.Sequence, prev.Sequence)
		}
	}
	return nil
}

// Version increments every time a patch is applied.
func (t *Table) Version() uint64 {
	return t.version
}

// Tracks returns a copy of the tracks in address order.
func (t *Table) Tracks() []Track {
	out := make([]Track, len(t.tracks))
	copy(out, t.tracks)
	return out
}

// Len returns the number of tracks.
func (t *Table) Len() int {
	return len(t.tracks)
}

// BySequence returns the track with the given sequence number.
func (t *Table) BySequence(seq int) (Track, bool) {
	for _, tr := range t.tracks {
		if tr.Sequence == seq {
			return tr, true
		}
	}
	return Track{}, false
}

// TrackAt resolves the track holding addr. When several tracks qualify the
// one with the highest start wins; addresses before the first track resolve
// to the zero Track with ok=false.
func (t *Table) TrackAt(addr uint64) (Track, bool) {
	i := sort.Search(len(t.tracks), func(i int) bool { return t.tracks[i].Start > addr })
	if i == 0 {
		return Track{}, false
	}
	return t.tracks[i-1], true
}

// LastSector returns the last user sector of the table.
func (t *Table) LastSector() uint64 {
	if len(t.tracks) == 0 {
		return 0
	}
	return t.tracks[len(t.tracks)-1].End
}

// AudioExtents returns the addresses covered by audio tracks.
func (t *Table) AudioExtents() *extents.Set {
	set := &extents.Set{}
	for _, tr := range t.tracks {
		if tr.Type == Audio {
			set.AddRange(tr.Start, tr.End)
		}
	}
	return set
}

// Gaps returns the addresses between the first and last track that belong to
// no track, such as the lead-out and lead-in areas between sessions.
func (t *Table) Gaps() *extents.Set {
	set := &extents.Set{}
	for i := 1; i < len(t.tracks); i++ {
		prev, next := t.tracks[i-1], t.tracks[i]
		if next.Start > prev.End+1 {
			set.AddRange(prev.End+1, next.Start-1)
		}
	}
	return set
}

// SetISRC records a track's ISRC. It does not bump the version.
func (t *Table) SetISRC(seq int, isrc string) {
	for i := range t.tracks {
		if t.tracks[i].Sequence == seq {
			t.tracks[i].ISRC = isrc
			return
		}
	}
}

// Edit carries the replacement boundaries for one track.
type Edit struct {
	Sequence int
	Start    uint64
	End      uint64
	Pregap   uint64
}

// Patch is a proposed table change computed against BaseVersion.
type Patch struct {
	BaseVersion uint64
	Edits       []Edit
	Reason      string
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p == nil || len(p.Edits) == 0
}

// Apply validates and commits a patch. On error the table is unchanged.
func (t *Table) Apply(p *Patch) error {
	if p.Empty() {
		return nil
	}
	if p.BaseVersion != t.version {
		return fmt.Errorf("%w: patch for version %d, table at %d", ErrStalePatch, p.BaseVersion, t.version)
	}
	next := t.Tracks()
	for _, e := range p.Edits {
		found := false
		for i := range next {
			if next[i].Sequence == e.Sequence {
				next[i].Start = e.Start
				next[i].End = e.End
				next[i].Pregap = e.Pregap
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: patch references unknown track %d", ErrInvalidLayout, e.Sequence)
		}
	}
	if err := validate(next); err != nil {
		return err
	}
	t.tracks = next
	t.version++
	return nil
}

// Fingerprint returns a stable identifier derived from the track layout as
// first read from the disc. It ignores ISRCs and the version counter.
func (t *Table) Fingerprint() string {
	h := sha256.New()
	for _, tr := range t.tracks {
		h.Write([]byte(strconv.Itoa(tr.Sequence)))
		h.Write([]byte{':'})
		h.Write([]byte(tr.Type.String()))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatUint(tr.Index1(), 10)))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatUint(tr.End, 10)))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
