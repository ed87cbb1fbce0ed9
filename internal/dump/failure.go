package dump

import (
	"context"
	"fmt"

	"discdump/internal/image"
	"discdump/internal/logging"
	"discdump/internal/mmc"
	"discdump/internal/services"
	"discdump/internal/subchannel"
)

// action is the response to a failed command.
type action int

const (
	actionSkip action = iota
	actionStop
	actionRetryCrossing
	actionFailedCrossing
	actionWorkaround
)

// classifyFailure decides how to respond to a failed batch.
func classifyFailure(plan ReadPlan, sense mmc.Sense, stopOnError bool) action {
	switch {
	case plan.CrossingLeadOut && sense.Is(mmc.ASCLBAOutOfRange):
		if plan.FailedCrossingLeadOut {
			return actionFailedCrossing
		}
		return actionRetryCrossing
	case plan.InData && sense.Is(mmc.ASCIllegalModeForTrack):
		return actionWorkaround
	case stopOnError:
		return actionStop
	default:
		return actionSkip
	}
}

func (s *Scheduler) failure(ctx context.Context, plan ReadPlan, res mmc.Result, rc runContext) (step, runContext) {
	pos := plan.FirstSectorToRead
	logger := rc.logger.With(logging.LBA(pos), logging.Blocks(plan.BlocksToRead), logging.String("command", res.Command))
	switch classifyFailure(plan, res.Sense, s.opts.StopOnError) {
	case actionRetryCrossing:
		logger.Debug("end of medium while crossing into lead-out, retrying", logging.String("sense", res.Sense.String()))
		rc.failedCrossing = true
		return step{state: stateScanning}, rc

	case actionFailedCrossing:
		last := s.session.Table.LastSector()
		logging.WarnWithContext(logger, "drive cannot read into the lead-out", "lead_out_crossing",
			logging.Uint64("last_sector", last),
			logging.String(logging.FieldErrorHint, "sectors up to the last track end were recorded bad and will be retried"),
		)
		s.observer.Error(fmt.Sprintf("Cannot cross into lead-out at sector %d", pos))
		if err := s.placeholder(pos, last); err != nil {
			return terminate(Aborted, err), rc
		}
		s.session.State.Advance(last + 1)
		rc.failedCrossing = false
		return terminate(FailedCrossingLeadOut, nil), rc

	case actionWorkaround:
		return s.workaround(ctx, plan, rc)

	case actionStop:
		s.observer.Error(fmt.Sprintf("Error reading sector %d", pos))
		return terminate(StoppedOnError, services.Wrap(services.ErrPolicyAbort, "main", "read",
			fmt.Sprintf("sector %d: %s", pos, res.Sense), nil)), rc

	default:
		return s.skip(plan, res, rc)
	}
}

// skip gives up Options.Skip sectors at the plan's start.
func (s *Scheduler) skip(plan ReadPlan, res mmc.Result, rc runContext) (step, runContext) {
	pos := plan.FirstSectorToRead
	end := pos + uint64(s.opts.Skip) - 1
	if last := s.session.Table.LastSector(); end > last {
		end = last
	}
	logging.WarnWithContext(rc.logger, "unreadable sectors skipped", "read_error",
		logging.LBA(pos),
		logging.Uint64("skipped", end-pos+1),
		logging.String("command", res.Command),
		logging.String("sense", res.Sense.String()),
		logging.String(logging.FieldErrorHint, "retry passes re-read bad sectors one at a time"),
	)
	s.observer.Error(fmt.Sprintf("Error reading sector %d", pos))
	if err := s.placeholder(pos, end); err != nil {
		return terminate(Aborted, err), rc
	}
	s.session.State.Advance(end + 1)
	rc.failedCrossing = false
	return step{state: stateScanning}, rc
}

// placeholder writes zero sectors over [start, end] and records them bad.
func (s *Scheduler) placeholder(start, end uint64) error {
	for start <= end {
		n := end - start + 1
		if limit := uint64(s.facade.MaxBlocks()); n > limit {
			n = limit
		}
		count := uint32(n)
		if err := s.sink.WriteSectorsLong(make([]byte, n*mmc.SectorSize), start, count); err != nil {
			return services.Wrap(services.ErrOutput, "main", "write", "placeholder not written", err)
		}
		if tag, ok := image.TagFor(s.facade.Capabilities().Subchannel); ok {
			if err := s.sink.WriteSectorsTag(make([]byte, n*uint64(tag.Size())), start, count, tag); err != nil {
				return services.Wrap(services.ErrOutput, "main", "write", "placeholder subchannel not written", err)
			}
			s.session.Subchannel.AddRange(start, start+n-1)
		}
		s.session.State.BadBlocks.AddRange(start, start+n-1)
		s.session.Filled.RemoveRange(start, start+n-1)
		start += n
	}
	return nil
}

// workaround handles "illegal mode for this track" on a data batch. Some
// drives report it when a data read runs into audio sectors the table did not
// flag. Sectors are probed one at a time; the first without a data sync
// header marks the rest of the batch as audio and the batch is planned again.
// When every sector looks like data the batch is retried whole and then with
// fewer sectors until a read succeeds.
func (s *Scheduler) workaround(ctx context.Context, plan ReadPlan, rc runContext) (step, runContext) {
	pos := plan.FirstSectorToRead
	last := pos + uint64(plan.BlocksToRead) - 1
	rc.logger.Debug("illegal mode for track, probing batch", logging.LBA(pos), logging.Blocks(plan.BlocksToRead))

	for addr := pos; addr <= last; addr++ {
		if s.stopRequested(ctx) {
			return terminate(Aborted, nil), rc
		}
		res := s.facade.Read(mmc.Request{LBA: uint32(addr), Count: 1})
		if !res.OK {
			break
		}
		if !mmc.HasSync(res.Data[:mmc.SectorSize]) {
			s.session.Reclassified.AddRange(addr, last)
			s.session.Audio.AddRange(addr, last)
			rc.logger.Info("sectors reclassified as audio",
				logging.LBA(addr),
				logging.Uint64("end", last),
			)
			return step{state: stateScanning}, rc
		}
	}

	for count := plan.BlocksToRead; count >= 1; count-- {
		if s.stopRequested(ctx) {
			return terminate(Aborted, nil), rc
		}
		res := s.facade.Read(mmc.Request{LBA: uint32(pos), Count: count})
		if !res.OK {
			if count == 1 {
				if s.opts.StopOnError {
					return terminate(StoppedOnError, services.Wrap(services.ErrPolicyAbort, "main", "read",
						fmt.Sprintf("sector %d: %s", pos, res.Sense), nil)), rc
				}
				return s.skip(plan, res, rc)
			}
			continue
		}
		sub := plan
		sub.BlocksToRead = count
		sub.CommandCount = count
		sub.CrossingLeadOut = false
		data, err := s.realign(sub, res)
		if err != nil {
			return terminate(Aborted, err), rc
		}
		return step{state: stateReconciling, plan: sub, data: data, subSize: res.SubSize}, rc
	}
	return s.skip(plan, mmc.Result{}, rc)
}

// commit writes count logical sectors and marks them filled. fix lists
// sectors whose subchannel failed verification.
func (s *Scheduler) commit(pos uint64, count uint32, inData bool, data []byte, subSize uint32, fix []uint64) error {
	stride := uint64(mmc.SectorSize) + uint64(subSize)
	long := data
	var sub []byte
	if subSize > 0 {
		long = make([]byte, 0, uint64(count)*mmc.SectorSize)
		sub = make([]byte, 0, uint64(count)*uint64(subSize))
		for k := uint64(0); k < uint64(count); k++ {
			long = append(long, data[k*stride:k*stride+mmc.SectorSize]...)
			sub = append(sub, data[k*stride+mmc.SectorSize:(k+1)*stride]...)
		}
	}

	if err := s.sink.WriteSectorsLong(long, pos, count); err != nil {
		return services.Wrap(services.ErrOutput, "main", "write", fmt.Sprintf("sectors %d+%d", pos, count), err)
	}
	if inData && s.opts.WriteCooked {
		if err := s.sink.WriteSectors(cooked(long, count), pos, count); err != nil {
			return services.Wrap(services.ErrOutput, "main", "write", "cooked sectors", err)
		}
	}
	if subSize > 0 {
		mode := modeForSize(subSize)
		for _, lba := range fix {
			if lba < pos || lba >= pos+uint64(count) {
				continue
			}
			if s.opts.FixSubchannel {
				if synth := subchannel.Synthesize(lba, s.session.Table, mode); synth != nil {
					k := lba - pos
					copy(sub[k*uint64(subSize):(k+1)*uint64(subSize)], synth)
					s.session.Subchannel.Remove(lba)
					continue
				}
			}
			s.session.Subchannel.Add(lba)
		}
		if tag, ok := image.TagFor(mode); ok {
			if err := s.sink.WriteSectorsTag(sub, pos, count, tag); err != nil {
				return services.Wrap(services.ErrOutput, "main", "write", "subchannel", err)
			}
		}
	}
	end := pos + uint64(count) - 1
	s.session.Filled.AddRange(pos, end)
	s.session.State.BadBlocks.RemoveRange(pos, end)
	return nil
}

// cooked extracts the 2048 byte user data of Mode 1 and Mode 2 Form 1
// sectors. Other sectors yield zeros.
func cooked(long []byte, count uint32) []byte {
	out := make([]byte, uint64(count)*mmc.CookedSectorSize)
	for k := uint64(0); k < uint64(count); k++ {
		sector := long[k*mmc.SectorSize : (k+1)*mmc.SectorSize]
		if !mmc.HasSync(sector) {
			continue
		}
		start := 16
		if sector[15] == 2 {
			start = 24
		}
		copy(out[k*mmc.CookedSectorSize:(k+1)*mmc.CookedSectorSize], sector[start:start+mmc.CookedSectorSize])
	}
	return out
}
