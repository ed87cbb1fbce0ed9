package dump

import (
	"discdump/internal/extents"
	"discdump/internal/resume"
	"discdump/internal/subchannel"
	"discdump/internal/toc"
)

// Termination is how the main loop ended.
type Termination int

const (
	Completed Termination = iota
	Aborted
	StoppedOnError
	FailedCrossingLeadOut
)

func (t Termination) String() string {
	switch t {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case StoppedOnError:
		return "stopped on error"
	case FailedCrossingLeadOut:
		return "failed crossing lead-out"
	default:
		return "unknown"
	}
}

// Status maps a termination to the status persisted with a checkpoint.
func (t Termination) Status() resume.Status {
	switch t {
	case Completed:
		return resume.StatusCompleted
	case StoppedOnError:
		return resume.StatusStoppedOnError
	case FailedCrossingLeadOut:
		return resume.StatusFailedCrossingLeadOut
	default:
		return resume.StatusAborted
	}
}

// Identity names a session in checkpoints and logs.
type Identity struct {
	Fingerprint string
	SessionID   string
	Device      string
}

// Session is the mutable state of one dump: the track table, the extents and
// the resume position.
type Session struct {
	Identity   Identity
	Table      *toc.Table
	State      *resume.State
	Audio      *extents.Set
	LeadOut    *extents.Set
	Filled     *extents.Set
	Subchannel *extents.Set
	// Reclassified holds audio found inside tracks the table calls data.
	// It survives table patches.
	Reclassified *extents.Set
	Reconciler   *subchannel.Reconciler
}

// NewSession seeds a session from the table read off the disc. Audio is
// seeded from the audio tracks and the lead-out extents from the gaps
// between sessions plus leadOutSectors sectors after the last track.
func NewSession(id Identity, table *toc.Table, leadOutSectors uint64) *Session {
	if id.Fingerprint == "" {
		id.Fingerprint = table.Fingerprint()
	}
	leadOut := table.Gaps()
	if leadOutSectors > 0 && table.Len() > 0 {
		last := table.LastSector()
		leadOut.AddRange(last+1, last+leadOutSectors)
	}
	return &Session{
		Identity:     id,
		Table:        table,
		State:        resume.NewState(),
		Audio:        table.AudioExtents(),
		LeadOut:      leadOut,
		Filled:       extents.New(),
		Subchannel:   extents.New(),
		Reclassified: extents.New(),
		Reconciler:   subchannel.NewReconciler(table.MCN, nil),
	}
}

// ReseedAudio rebuilds the audio extents from the track table and the
// reclassified ranges.
func (s *Session) ReseedAudio() {
	audio := s.Table.AudioExtents()
	for _, r := range s.Reclassified.Ranges() {
		audio.AddRange(r.Start, r.End)
	}
	s.Audio = audio
}

// Restore continues from a checkpoint of the same disc. The track table is
// not persisted; subchannel reconciliation rediscovers any changes.
func (s *Session) Restore(cp *resume.Checkpoint) {
	if cp == nil {
		return
	}
	bad := cp.State.BadBlocks
	if bad == nil {
		bad = extents.New()
	}
	s.State = &resume.State{NextBlock: cp.State.NextBlock, BadBlocks: bad.Clone(), Tape: cp.State.Tape}
	if cp.Filled != nil {
		s.Filled = cp.Filled.Clone()
	}
	if cp.LeadOut != nil {
		s.LeadOut = cp.LeadOut.Clone()
	}
	if cp.Subchannel != nil {
		s.Subchannel = cp.Subchannel.Clone()
	}
	mcn := cp.MCN
	if mcn == "" {
		mcn = s.Table.MCN
	}
	s.Reconciler = subchannel.NewReconciler(mcn, cp.ISRC)
	if mcn != "" {
		s.Table.MCN = mcn
	}
	for seq, isrc := range cp.ISRC {
		s.Table.SetISRC(seq, isrc)
	}
	if s.Identity.SessionID == "" {
		s.Identity.SessionID = cp.SessionID
	}
}

// Checkpoint snapshots the session.
func (s *Session) Checkpoint(status resume.Status) *resume.Checkpoint {
	isrc := map[int]string{}
	for _, tr := range s.Table.Tracks() {
		if tr.ISRC != "" {
			isrc[tr.Sequence] = tr.ISRC
		}
	}
	return &resume.Checkpoint{
		Fingerprint: s.Identity.Fingerprint,
		SessionID:   s.Identity.SessionID,
		Device:      s.Identity.Device,
		Status:      status,
		LastSector:  s.Table.LastSector(),
		MCN:         s.Table.MCN,
		ISRC:        isrc,
		State: resume.State{
			NextBlock: s.State.NextBlock,
			BadBlocks: s.State.BadBlocks.Clone(),
			Tape:      s.State.Tape,
		},
		Filled:     s.Filled.Clone(),
		LeadOut:    s.LeadOut.Clone(),
		Subchannel: s.Subchannel.Clone(),
	}
}
