package resume

import (
	"time"

	"discdump/internal/extents"
)

// State is the scheduler-owned resume position.
type State struct {
	NextBlock uint64
	BadBlocks *extents.Set
	Tape      bool
}

// NewState returns a state starting at sector zero with no bad blocks.
func NewState() *State {
	return &State{BadBlocks: extents.New()}
}

// Advance moves NextBlock forward. Positions behind the current one are
// ignored; use Rewind for deliberate moves backwards.
func (s *State) Advance(to uint64) {
	if to > s.NextBlock {
		s.NextBlock = to
	}
}

// Rewind moves NextBlock back to the given position.
func (s *State) Rewind(to uint64) {
	if to < s.NextBlock {
		s.NextBlock = to
	}
}

// Status names the outcome recorded for a session.
type Status string

const (
	StatusInProgress            Status = "in_progress"
	StatusCompleted             Status = "completed"
	StatusAborted               Status = "aborted"
	StatusStoppedOnError        Status = "stopped_on_error"
	StatusFailedCrossingLeadOut Status = "failed_crossing_lead_out"
)

// Checkpoint is everything persisted for one session.
type Checkpoint struct {
	Fingerprint string
	SessionID   string
	Device      string
	Status      Status
	LastSector  uint64
	MCN         string
	ISRC        map[int]string

	State      State
	Filled     *extents.Set
	LeadOut    *extents.Set
	Subchannel *extents.Set

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a listing row.
type Summary struct {
	Fingerprint string
	SessionID   string
	Device      string
	Status      Status
	NextBlock   uint64
	LastSector  uint64
	BadCount    uint64
	UpdatedAt   time.Time
}

// Percent reports how far NextBlock has progressed through the medium.
func (s Summary) Percent() float64 {
	if s.LastSector == 0 {
		return 0
	}
	p := float64(s.NextBlock) / float64(s.LastSector+1) * 100
	if p > 100 {
		p = 100
	}
	return p
}
