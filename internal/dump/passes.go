package dump

import (
	"context"
	"fmt"

	"discdump/internal/extents"
	"discdump/internal/image"
	"discdump/internal/logging"
	"discdump/internal/mmc"
	"discdump/internal/services"
)

// RetryPass re-reads every bad sector one at a time, passes times. A sector
// that reads is written, moved from the bad blocks to the filled extents and
// not tried again.
func (s *Scheduler) RetryPass(ctx context.Context, passes int) error {
	ctx = services.WithPhase(ctx, "retry")
	logger := logging.WithContext(ctx, s.logger)
	rc := runContext{logger: logger}
	bad := s.session.State.BadBlocks

	for pass := 1; pass <= passes && !bad.Empty(); pass++ {
		targets := addresses(bad)
		logger.Info("retry pass started", logging.Int("pass", pass), logging.Int("sectors", len(targets)))
		s.observer.InitProgress2()
		recovered := 0
		for i, addr := range targets {
			if s.stopRequested(ctx) {
				s.observer.EndProgress2()
				return services.Wrap(services.ErrUserAbort, "retry", "read", fmt.Sprintf("stopped at sector %d", addr), nil)
			}
			if !bad.Contains(addr) || s.session.LeadOut.Contains(addr) {
				continue
			}
			s.observer.UpdateProgress2(fmt.Sprintf("Retrying sector %d (pass %d)", addr, pass), uint64(i), uint64(len(targets)))

			plan, res := s.retryRead(addr, &rc)
			if plan.BlocksToRead == 0 {
				continue
			}
			if !res.OK {
				logger.Debug("sector still unreadable", logging.LBA(addr), logging.String("sense", res.Sense.String()))
				continue
			}
			data, err := s.realign(plan, res)
			if err != nil {
				s.observer.EndProgress2()
				return err
			}
			if err := s.commit(addr, plan.BlocksToRead, plan.InData, data, res.SubSize, nil); err != nil {
				s.observer.EndProgress2()
				return err
			}
			recovered++
		}
		s.observer.EndProgress2()
		logger.Info("retry pass finished",
			logging.Int("pass", pass),
			logging.Int("recovered", recovered),
			logging.Uint64("remaining", bad.Count()),
		)
	}
	return nil
}

// LeadOutPass reads every lead-out address once, one sector per command,
// without offset correction or subchannel reconciliation. Sectors that read
// leave the lead-out extents and become filled; the rest keep a zero
// placeholder.
func (s *Scheduler) LeadOutPass(ctx context.Context) error {
	ctx = services.WithPhase(ctx, "lead-out")
	logger := logging.WithContext(ctx, s.logger)
	targets := addresses(s.session.LeadOut)
	if len(targets) == 0 {
		return nil
	}
	logger.Info("lead-out pass started", logging.Int("sectors", len(targets)))
	s.observer.InitProgress2()
	defer s.observer.EndProgress2()

	if s.opts.Speed != 0 {
		s.facade.SetSpeed(s.opts.Speed)
	}
	tag, hasTag := image.TagFor(s.facade.Capabilities().Subchannel)
	var skipUntil uint64
	skipping := false
	read := 0
	for i, addr := range targets {
		if s.stopRequested(ctx) {
			return services.Wrap(services.ErrUserAbort, "lead-out", "read", fmt.Sprintf("stopped at sector %d", addr), nil)
		}
		if skipping && addr <= skipUntil {
			continue
		}
		skipping = false
		s.observer.UpdateProgress2(fmt.Sprintf("Reading lead-out sector %d", addr), uint64(i), uint64(len(targets)))

		res := s.facade.Read(mmc.Request{LBA: uint32(addr), Count: 1})
		if res.OK && uint64(len(res.Data)) >= uint64(res.BlockSize()) {
			if err := s.commit(addr, 1, false, res.Data[:res.BlockSize()], res.SubSize, nil); err != nil {
				return err
			}
			s.session.LeadOut.Remove(addr)
			read++
			continue
		}
		if s.opts.StopOnError {
			return services.Wrap(services.ErrPolicyAbort, "lead-out", "read", fmt.Sprintf("sector %d: %s", addr, res.Sense), nil)
		}
		logger.Debug("lead-out sector unreadable", logging.LBA(addr), logging.String("sense", res.Sense.String()))
		skipUntil = addr + uint64(s.opts.Skip) - 1
		skipping = true
		for a := addr; a <= skipUntil; a++ {
			if !s.session.LeadOut.Contains(a) {
				continue
			}
			if err := s.sink.WriteSectorsLong(make([]byte, mmc.SectorSize), a, 1); err != nil {
				return services.Wrap(services.ErrOutput, "lead-out", "write", "placeholder not written", err)
			}
			if hasTag {
				if err := s.sink.WriteSectorsTag(make([]byte, tag.Size()), a, 1, tag); err != nil {
					return services.Wrap(services.ErrOutput, "lead-out", "write", "placeholder subchannel not written", err)
				}
			}
		}
	}
	logger.Info("lead-out pass finished",
		logging.Int("read", read),
		logging.Uint64("remaining", s.session.LeadOut.Count()),
	)
	return nil
}

// retryRead reads the single-sector batch at addr, retrying once without
// the lead-out margin when the drive refuses to cross into the lead-out.
func (s *Scheduler) retryRead(addr uint64, rc *runContext) (ReadPlan, mmc.Result) {
	in := s.inputs(*rc)
	in.MaxBlocks = 1
	plan := PlanBatch(addr, in)
	if plan.BlocksToRead == 0 {
		return plan, mmc.Result{}
	}
	s.setSpeed(plan, rc)
	res := s.facade.Read(mmc.Request{LBA: plan.CommandLBA, Count: plan.CommandCount, Audio: !plan.InData})
	if res.OK || classifyFailure(plan, res.Sense, false) != actionRetryCrossing {
		return plan, res
	}
	in.FailedCrossingLeadOut = true
	plan = PlanBatch(addr, in)
	res = s.facade.Read(mmc.Request{LBA: plan.CommandLBA, Count: plan.CommandCount, Audio: !plan.InData})
	return plan, res
}

func (s *Scheduler) setSpeed(plan ReadPlan, rc *runContext) {
	want := s.opts.Speed
	if !plan.InData {
		want = s.opts.AudioSpeed
	}
	if want != 0 && rc.speed != want {
		if !s.facade.SetSpeed(want) {
			rc.logger.Debug("set speed refused", logging.Int("speed", int(want)))
		}
		rc.speed = want
	}
}

// addresses lists a set's members.
func addresses(set *extents.Set) []uint64 {
	var out []uint64
	set.Each(func(addr uint64) bool {
		out = append(out, addr)
		return true
	})
	return out
}
