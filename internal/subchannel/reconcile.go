package subchannel

import (
	"discdump/internal/mmc"
	"discdump/internal/toc"
)

// Outcome is the result of reconciling one contiguous run of sectors.
type Outcome struct {
	// Patch holds track boundary edits; nil when the table already agrees.
	Patch *toc.Patch
	// Rewind is set when a sector changed track membership, so sectors
	// already read may have been read under the wrong interpretation.
	Rewind bool
	// Reread lists addresses in this run that moved to a different track.
	Reread []uint64
	// NeedsFix lists sectors whose Q frame failed its CRC or disagreed with
	// the address it was read from.
	NeedsFix []uint64
	// Valid lists sectors with a good Q frame.
	Valid []uint64
	// MCN is set the first time a catalog number is seen.
	MCN string
	// ISRC maps track sequence to an ISRC seen for the first time.
	ISRC map[int]string
}

// Reconciler carries the MCN and ISRC state of a session across runs.
type Reconciler struct {
	mcn  string
	isrc map[int]string
}

// NewReconciler returns a reconciler seeded with previously known values.
func NewReconciler(mcn string, isrc map[int]string) *Reconciler {
	r := &Reconciler{mcn: mcn, isrc: make(map[int]string, len(isrc))}
	for k, v := range isrc {
		r.isrc[k] = v
	}
	return r
}

// MCN returns the catalog number seen so far.
func (r *Reconciler) MCN() string {
	return r.mcn
}

// ISRC returns the ISRC of a track, if seen.
func (r *Reconciler) ISRC(track int) (string, bool) {
	v, ok := r.isrc[track]
	return v, ok
}

// Reconcile inspects the subchannel of count sectors starting at first. sub
// holds mode.Size() bytes per sector. The table is read, never written.
func (r *Reconciler) Reconcile(sub []byte, mode mmc.SubchannelMode, first uint64, count uint32, table *toc.Table) Outcome {
	var out Outcome
	size := mode.Size()
	if size == 0 || table == nil {
		return out
	}
	original := table.Tracks()
	tracks := table.Tracks()

	for k := uint32(0); k < count; k++ {
		start := uint64(k) * uint64(size)
		if start+uint64(size) > uint64(len(sub)) {
			break
		}
		lba := first + uint64(k)
		q, ok := DecodeQ(QFrom(sub[start:start+uint64(size)], mode))
		if !ok {
			out.NeedsFix = append(out.NeedsFix, lba)
			continue
		}
		switch q.ADR {
		case 1:
			if q.Abs.LBA() != int64(lba) {
				out.NeedsFix = append(out.NeedsFix, lba)
				continue
			}
			out.Valid = append(out.Valid, lba)
			if moved := adjust(tracks, lba, q); moved {
				out.Rewind = true
				out.Reread = append(out.Reread, lba)
			}
		case 2:
			out.Valid = append(out.Valid, lba)
			if r.mcn == "" && q.MCN != "" && q.MCN != "0000000000000" {
				r.mcn = q.MCN
				out.MCN = q.MCN
			}
		case 3:
			out.Valid = append(out.Valid, lba)
			i := indexAt(tracks, lba)
			if i < 0 {
				continue
			}
			seq := tracks[i].Sequence
			if _, seen := r.isrc[seq]; !seen {
				r.isrc[seq] = q.ISRC
				if out.ISRC == nil {
					out.ISRC = map[int]string{}
				}
				out.ISRC[seq] = q.ISRC
			}
		default:
			out.Valid = append(out.Valid, lba)
		}
	}

	var edits []toc.Edit
	for i := range tracks {
		o, n := original[i], tracks[i]
		if o.Start != n.Start || o.End != n.End || o.Pregap != n.Pregap {
			edits = append(edits, toc.Edit{Sequence: n.Sequence, Start: n.Start, End: n.End, Pregap: n.Pregap})
		}
	}
	if len(edits) > 0 {
		out.Patch = &toc.Patch{BaseVersion: table.Version(), Edits: edits, Reason: "subchannel"}
	}
	return out
}

func indexAt(tracks []toc.Track, lba uint64) int {
	idx := -1
	for i, t := range tracks {
		if t.Start <= lba {
			idx = i
		}
	}
	return idx
}

// adjust moves track boundaries in place so lba agrees with q. It reports
// whether lba changed track membership.
func adjust(tracks []toc.Track, lba uint64, q Q) bool {
	i := indexAt(tracks, lba)
	if i < 0 || q.Track == LeadOutTrack || q.Track == 0 {
		return false
	}
	cur := &tracks[i]
	seq := int(q.Track)
	switch {
	case seq == cur.Sequence:
		switch {
		case q.Index == 0 && lba >= cur.Index1() && lba < cur.End:
			cur.Pregap = lba - cur.Start + 1
		case q.Index >= 1 && lba < cur.Index1():
			cur.Pregap = lba - cur.Start
		}
		return false

	case seq == cur.Sequence+1 && q.Index == 0 && i+1 < len(tracks):
		next := &tracks[i+1]
		if next.Session != cur.Session || lba <= cur.Start || lba >= next.Start {
			return false
		}
		next.Pregap += next.Start - lba
		next.Start = lba
		cur.End = lba - 1
		if cur.Pregap > cur.Length() {
			cur.Pregap = cur.Length()
		}
		return true

	case seq == cur.Sequence-1 && i > 0 && lba < cur.Index1():
		prev := &tracks[i-1]
		if prev.Sequence != seq || prev.Session != cur.Session || lba >= cur.End {
			return false
		}
		moved := lba - cur.Start + 1
		prev.End = lba
		cur.Start = lba + 1
		if cur.Pregap >= moved {
			cur.Pregap -= moved
		} else {
			cur.Pregap = 0
		}
		return true
	}
	return false
}
