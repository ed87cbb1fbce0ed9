package dump

import (
	"discdump/internal/extents"
	"discdump/internal/offset"
	"discdump/internal/toc"
)

// ReadPlan is the read decision for one iteration. FirstSectorToRead and
// BlocksToRead describe the logical sectors the batch produces;
// CommandLBA and CommandCount the physical window sent to the drive, which
// differs when offset correction widens or shifts it.
type ReadPlan struct {
	FirstSectorToRead     uint64
	BlocksToRead          uint32
	InData                bool
	CrossingLeadOut       bool
	FailedCrossingLeadOut bool

	CommandLBA   uint32
	CommandCount uint32
	// Offset is set when the window is offset corrected.
	Offset bool
	// PadTail is set when the margin past the last sector is not read and
	// must be zero filled before correction.
	PadTail bool
	// Skip is how far to move when the plan is empty.
	Skip uint64
}

// PlanInputs are the facts a plan is computed from.
type PlanInputs struct {
	LastSector  uint64
	MaxBlocks   uint32
	Audio       *extents.Set
	LeadOut     *extents.Set
	Table       *toc.Table
	OffsetBytes int
	FixOffset   bool
	// FailedCrossingLeadOut is set on the retry after the drive refused to
	// read into the lead-out.
	FailedCrossingLeadOut bool
}

// PlanBatch decides the batch starting at pos. The batch stops at the last
// sector, at an audio/data transition, at a lead-out extent, at the end of
// the track holding pos and once the command would exceed MaxBlocks, offset
// margin included. An empty plan carries the distance to skip instead.
func PlanBatch(pos uint64, in PlanInputs) ReadPlan {
	plan := ReadPlan{
		FirstSectorToRead:     pos,
		InData:                !in.Audio.Contains(pos),
		FailedCrossingLeadOut: in.FailedCrossingLeadOut,
	}
	sfo := offset.SectorsFor(in.OffsetBytes)
	shifted := in.FixOffset && in.OffsetBytes != 0 && !plan.InData
	limit := in.MaxBlocks
	if shifted {
		// The margin travels in the same command.
		limit = floorSub(limit, sfo)
	}
	if limit == 0 {
		limit = 1
	}

	blocks := scan(pos, limit, plan.InData, in)
	if in.Table != nil {
		if tr, ok := in.Table.TrackAt(pos); ok && tr.Sequence != 0 {
			switch {
			case pos > tr.End:
				blocks = 0
			case pos+uint64(blocks) > tr.End+1:
				blocks = uint32(tr.End + 1 - pos)
			}
		}
	}
	if blocks == 0 {
		plan.Skip = uint64(sfo)
		if plan.Skip == 0 {
			plan.Skip = 1
		}
		return plan
	}
	plan.BlocksToRead = blocks
	plan.CommandLBA = uint32(pos)
	plan.CommandCount = blocks
	if pos+uint64(blocks)-1 >= in.LastSector {
		plan.CrossingLeadOut = true
	}

	if shifted {
		plan = applyOffsetWindow(plan, limit, in)
	}
	return plan
}

// floorSub returns a-b, or 0 when b exceeds a.
func floorSub[T uint32 | uint64](a, b T) T {
	if a < b {
		return 0
	}
	return a - b
}

// scan counts sectors of the same kind as pos, up to limit.
func scan(pos uint64, limit uint32, inData bool, in PlanInputs) uint32 {
	var blocks uint32
	for blocks < limit {
		addr := pos + uint64(blocks)
		if addr > in.LastSector {
			break
		}
		if in.Audio.Contains(addr) == inData {
			break
		}
		if in.LeadOut != nil && in.LeadOut.Contains(addr) {
			break
		}
		blocks++
	}
	return blocks
}

// applyOffsetWindow converts an audio plan's logical window into the
// physical window an offset drive must be sent. A window whose margin runs
// past the last sector is crossing the lead-out; it is widened through the
// last sector so the margin is exactly the lead-out part, never past limit
// logical sectors. After a failed crossing the margin is dropped and zero
// filled instead.
func applyOffsetWindow(plan ReadPlan, limit uint32, in PlanInputs) ReadPlan {
	sfo := offset.SectorsFor(in.OffsetBytes)
	plan.Offset = true
	pos := plan.FirstSectorToRead

	if in.OffsetBytes > 0 {
		end := pos + uint64(plan.BlocksToRead) - 1 + uint64(sfo)
		if end > in.LastSector {
			plan.CrossingLeadOut = true
			rest := min(in.LastSector+1-pos, uint64(limit))
			if rest > uint64(plan.BlocksToRead) && uniform(pos, pos+rest-1, plan.InData, in) {
				plan.BlocksToRead = uint32(rest)
			}
		}
	}

	plan.CommandLBA, plan.CommandCount = offset.Window(pos, plan.BlocksToRead, in.OffsetBytes)
	if plan.CrossingLeadOut && plan.FailedCrossingLeadOut && in.OffsetBytes > 0 {
		plan.CommandCount = plan.BlocksToRead
		plan.PadTail = true
	}
	return plan
}

// uniform reports whether [start, end] holds one kind of sector and no
// lead-out extent.
func uniform(start, end uint64, inData bool, in PlanInputs) bool {
	if in.LeadOut != nil && in.LeadOut.Overlaps(start, end) {
		return false
	}
	if inData {
		return !in.Audio.Overlaps(start, end)
	}
	r, ok := in.Audio.Find(start)
	return ok && r.End >= end
}
