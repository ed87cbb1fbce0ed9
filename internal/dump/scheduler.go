package dump

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"discdump/internal/image"
	"discdump/internal/logging"
	"discdump/internal/mmc"
	"discdump/internal/offset"
	"discdump/internal/resume"
	"discdump/internal/services"
	"discdump/internal/speed"
	"discdump/internal/subchannel"
	"discdump/internal/telemetry"
)

// Checkpointer persists session snapshots. resume.Store satisfies it.
type Checkpointer interface {
	Save(ctx context.Context, cp *resume.Checkpoint) error
}

// Options is the read policy of a session.
type Options struct {
	// Speed is used for data windows, AudioSpeed for audio windows, both in
	// KB/s. 0xFFFF asks for the drive maximum.
	Speed      uint16
	AudioSpeed uint16

	OffsetBytes   int
	FixOffset     bool
	FixSubchannel bool
	StopOnError   bool
	// Skip is the number of sectors given up after an unrecoverable read.
	Skip uint32

	RetryPasses        int
	CheckpointInterval int
	LeadOutPass        bool
	WriteCooked        bool
}

// DefaultOptions returns the policy used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Speed:              0xFFFF,
		AudioSpeed:         1200,
		FixOffset:          true,
		Skip:               1,
		RetryPasses:        1,
		CheckpointInterval: 64,
		LeadOutPass:        true,
	}
}

// Dependencies are the optional collaborators of a scheduler.
type Dependencies struct {
	Observer     telemetry.Observer
	Logger       *slog.Logger
	Checkpointer Checkpointer
}

// Result summarises a run.
type Result struct {
	Termination Termination
	NextBlock   uint64
	Filled      uint64
	Bad         uint64
	LeadOut     uint64
	Rewinds     int
	// DeviceTime is the time spent in device commands.
	DeviceTime time.Duration
	MinSpeed   float64
	MaxSpeed   float64
	AvgSpeed   float64
}

// Scheduler runs a session against one drive.
type Scheduler struct {
	facade   *mmc.Facade
	sink     image.Sink
	session  *Session
	opts     Options
	observer telemetry.Observer
	logger   *slog.Logger
	store    Checkpointer
	estimate *speed.Estimator
	aborted  atomic.Bool
	rewinds  int
}

// New binds a scheduler. The session is owned by the scheduler until Run
// returns.
func New(facade *mmc.Facade, sink image.Sink, session *Session, opts Options, deps Dependencies) *Scheduler {
	if opts.Skip == 0 {
		opts.Skip = 1
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 64
	}
	observer := deps.Observer
	if observer == nil {
		observer = telemetry.Nop{}
	}
	return &Scheduler{
		facade:   facade,
		sink:     sink,
		session:  session,
		opts:     opts,
		observer: observer,
		logger:   logging.NewComponentLogger(deps.Logger, "scheduler"),
		store:    deps.Checkpointer,
		estimate: speed.New(speed.Threshold),
	}
}

// Abort asks the scheduler to stop before its next command.
func (s *Scheduler) Abort() {
	s.aborted.Store(true)
}

func (s *Scheduler) stopRequested(ctx context.Context) bool {
	return s.aborted.Load() || ctx.Err() != nil
}

// Session returns the session the scheduler works on.
func (s *Scheduler) Session() *Session {
	return s.session
}

// Execute runs the main loop followed by the retry passes and the lead-out
// pass, and writes a final checkpoint. The recovery passes are skipped when
// the main loop was aborted or stopped on error.
func (s *Scheduler) Execute(ctx context.Context) (Result, error) {
	res, err := s.Run(ctx)
	if err != nil || (res.Termination != Completed && res.Termination != FailedCrossingLeadOut) {
		return res, err
	}
	if s.opts.RetryPasses > 0 {
		if err := s.RetryPass(ctx, s.opts.RetryPasses); err != nil {
			return s.finish(ctx, res.Termination, err)
		}
	}
	if s.opts.LeadOutPass && !s.session.LeadOut.Empty() {
		if err := s.LeadOutPass(ctx); err != nil {
			return s.finish(ctx, res.Termination, err)
		}
	}
	return s.finish(ctx, res.Termination, nil)
}

// finish writes the closing checkpoint and builds the result.
func (s *Scheduler) finish(ctx context.Context, end Termination, err error) (Result, error) {
	status := end.Status()
	if err != nil && end == Completed {
		status = resume.StatusAborted
	}
	if cpErr := s.checkpoint(context.WithoutCancel(ctx), status); cpErr != nil && err == nil {
		err = cpErr
	}
	if err := s.sink.SetTracks(s.session.Table.Tracks()); err != nil {
		s.logger.Warn("track listing not written", logging.Error(err))
	}
	return s.result(end), err
}

func (s *Scheduler) result(end Termination) Result {
	return Result{
		Termination: end,
		NextBlock:   s.session.State.NextBlock,
		Filled:      s.session.Filled.Count(),
		Bad:         s.session.State.BadBlocks.Count(),
		LeadOut:     s.session.LeadOut.Count(),
		Rewinds:     s.rewinds,
		DeviceTime:  s.facade.TotalDuration(),
		MinSpeed:    s.estimate.Min(),
		MaxSpeed:    s.estimate.Max(),
		AvgSpeed:    s.estimate.Average(),
	}
}

func (s *Scheduler) checkpoint(ctx context.Context, status resume.Status) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.session.Checkpoint(status)); err != nil {
		return services.Wrap(services.ErrOutput, "checkpoint", "save", "resume state not saved", err)
	}
	return nil
}

func (s *Scheduler) inputs(rc runContext) PlanInputs {
	return PlanInputs{
		LastSector:            s.session.Table.LastSector(),
		MaxBlocks:             s.facade.MaxBlocks(),
		Audio:                 s.session.Audio,
		LeadOut:               s.session.LeadOut,
		Table:                 s.session.Table,
		OffsetBytes:           s.opts.OffsetBytes,
		FixOffset:             s.opts.FixOffset,
		FailedCrossingLeadOut: rc.failedCrossing,
	}
}

// runContext is the per-run value threaded through the state machine.
type runContext struct {
	speed          uint16
	iterations     int
	failedCrossing bool
	highWater      uint64
	logger         *slog.Logger
}

type machineState int

const (
	stateScanning machineState = iota
	stateAwaitingCommand
	stateReconciling
	stateRewinding
	stateTerminated
)

// step is one transition's output: the next state plus what it needs.
type step struct {
	state   machineState
	plan    ReadPlan
	data    []byte
	subSize uint32
	end     Termination
	err     error
}

// Run drives the main loop from the session's NextBlock through the last
// sector.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	ctx = services.WithPhase(ctx, "main")
	rc := runContext{logger: logging.WithContext(ctx, s.logger), highWater: s.session.State.NextBlock}
	last := s.session.Table.LastSector()
	rc.logger.Info("dump started",
		logging.LBA(s.session.State.NextBlock),
		logging.Uint64("last_sector", last),
		logging.Uint64("max_blocks", uint64(s.facade.MaxBlocks())),
		logging.Int("offset_bytes", s.opts.OffsetBytes),
	)
	s.observer.InitProgress()

	st := step{state: stateScanning}
	for st.state != stateTerminated {
		switch st.state {
		case stateScanning:
			st, rc = s.scanning(ctx, rc)
		case stateAwaitingCommand:
			st, rc = s.awaitingCommand(ctx, st, rc)
		case stateReconciling:
			st, rc = s.reconciling(st, rc)
		case stateRewinding:
			st, rc = s.rewinding(st, rc)
		}
	}
	s.observer.EndProgress()

	if st.end == Aborted && st.err == nil {
		st.err = services.Wrap(services.ErrUserAbort, "main", "read", fmt.Sprintf("stopped at sector %d", s.session.State.NextBlock), nil)
	}
	rc.logger.Info("dump loop finished",
		logging.String("termination", st.end.String()),
		logging.LBA(s.session.State.NextBlock),
		logging.Uint64("filled", s.session.Filled.Count()),
		logging.Uint64("bad", s.session.State.BadBlocks.Count()),
		logging.String("bad_extents", s.session.State.BadBlocks.String()),
	)
	if st.end != Completed && st.end != FailedCrossingLeadOut {
		return s.finish(ctx, st.end, st.err)
	}
	if err := s.checkpoint(ctx, st.end.Status()); err != nil {
		return s.result(st.end), err
	}
	return s.result(st.end), st.err
}

func terminate(end Termination, err error) step {
	return step{state: stateTerminated, end: end, err: err}
}

func (s *Scheduler) scanning(ctx context.Context, rc runContext) (step, runContext) {
	if s.stopRequested(ctx) {
		return terminate(Aborted, nil), rc
	}
	state := s.session.State
	pos := state.NextBlock
	last := s.session.Table.LastSector()
	if pos > last {
		return terminate(Completed, nil), rc
	}
	if r, ok := s.session.LeadOut.Find(pos); ok {
		state.Advance(r.End + 1)
		return step{state: stateScanning}, rc
	}

	rc.iterations++
	if rc.iterations%s.opts.CheckpointInterval == 0 {
		if err := s.checkpoint(ctx, resume.StatusInProgress); err != nil {
			return terminate(Aborted, err), rc
		}
	}

	plan := PlanBatch(pos, s.inputs(rc))
	if plan.BlocksToRead == 0 {
		state.Advance(pos + plan.Skip)
		return step{state: stateScanning}, rc
	}

	s.setSpeed(plan, &rc)
	s.observer.UpdateProgress(fmt.Sprintf("Reading sector %d", pos), pos, last+1)
	return step{state: stateAwaitingCommand, plan: plan}, rc
}

func (s *Scheduler) awaitingCommand(ctx context.Context, st step, rc runContext) (step, runContext) {
	plan := st.plan
	res := s.facade.Read(mmc.Request{LBA: plan.CommandLBA, Count: plan.CommandCount, Audio: !plan.InData})
	if !res.OK {
		return s.failure(ctx, plan, res, rc)
	}
	data, err := s.realign(plan, res)
	if err != nil {
		return terminate(Aborted, err), rc
	}
	if v, ok := s.estimate.Add(speed.Sample{Bytes: uint64(plan.BlocksToRead) * mmc.SectorSize, Elapsed: res.Duration}); ok {
		s.observer.Speed(v)
	}
	return step{state: stateReconciling, plan: plan, data: data, subSize: res.SubSize}, rc
}

// realign returns the logical sectors of a successful read.
func (s *Scheduler) realign(plan ReadPlan, res mmc.Result) ([]byte, error) {
	stride := uint64(res.BlockSize())
	if !plan.Offset {
		need := uint64(plan.BlocksToRead) * stride
		if uint64(len(res.Data)) < need {
			return nil, services.Wrap(services.ErrInvariant, "main", "read", fmt.Sprintf("short buffer at %d: %d of %d bytes", plan.FirstSectorToRead, len(res.Data), need), nil)
		}
		return res.Data[:need], nil
	}
	data, n, err := offset.Correct(res.Data, plan.CommandCount, offset.Params{
		OffsetBytes: s.opts.OffsetBytes,
		SubSize:     res.SubSize,
		PadTail:     plan.PadTail,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInvariant, "main", "offset", "correction failed", err)
	}
	if n != plan.BlocksToRead {
		return nil, services.Wrap(services.ErrInvariant, "main", "offset", fmt.Sprintf("corrected %d sectors, planned %d", n, plan.BlocksToRead), nil)
	}
	return data, nil
}

func (s *Scheduler) reconciling(st step, rc runContext) (step, runContext) {
	plan := st.plan
	var fix []uint64
	if st.subSize > 0 {
		mode := modeForSize(st.subSize)
		sub := subchannel.Extract(st.data, plan.BlocksToRead, st.subSize)
		out := s.session.Reconciler.Reconcile(sub, mode, plan.FirstSectorToRead, plan.BlocksToRead, s.session.Table)
		s.recordDiscInfo(out, rc)
		if !out.Patch.Empty() {
			if err := s.session.Table.Apply(out.Patch); err != nil {
				logging.WarnWithContext(rc.logger, "track table patch rejected", "toc_patch",
					logging.LBA(plan.FirstSectorToRead),
					logging.String("reason", out.Patch.Reason),
					logging.Error(err),
					logging.String(logging.FieldImpact, "track boundaries keep their previous values"),
				)
			} else {
				// Sectors below the high-water mark were already confirmed
				// once; a patch there is kept but never read again.
				rewind := out.Rewind && plan.FirstSectorToRead+uint64(plan.BlocksToRead) > rc.highWater
				s.applied(out, plan, rewind, rc)
				if rewind {
					return step{state: stateRewinding, plan: plan}, rc
				}
			}
		}
		fix = out.NeedsFix
		for _, lba := range out.Valid {
			s.session.Subchannel.Remove(lba)
		}
	}
	if err := s.commit(plan.FirstSectorToRead, plan.BlocksToRead, plan.InData, st.data, st.subSize, fix); err != nil {
		return terminate(Aborted, err), rc
	}
	rc.failedCrossing = false
	end := plan.FirstSectorToRead + uint64(plan.BlocksToRead)
	s.session.State.Advance(end)
	if end > rc.highWater {
		rc.highWater = end
	}
	return step{state: stateScanning}, rc
}

// applied follows up a committed table patch.
func (s *Scheduler) applied(out subchannel.Outcome, plan ReadPlan, rewind bool, rc runContext) {
	s.session.ReseedAudio()
	for _, lba := range out.Reread {
		s.session.State.BadBlocks.Add(lba)
		s.session.Filled.Remove(lba)
	}
	if err := s.sink.SetTracks(s.session.Table.Tracks()); err != nil {
		rc.logger.Warn("track listing not updated", logging.Error(err))
	}
	rc.logger.Info("track table changed",
		logging.LBA(plan.FirstSectorToRead),
		logging.String("reason", out.Patch.Reason),
		logging.Uint64("version", s.session.Table.Version()),
		logging.Bool("rewind", rewind),
	)
	s.observer.Status(fmt.Sprintf("Track layout changed at sector %d", plan.FirstSectorToRead))
}

func (s *Scheduler) recordDiscInfo(out subchannel.Outcome, rc runContext) {
	if out.MCN == "" && len(out.ISRC) == 0 {
		return
	}
	if out.MCN != "" {
		s.session.Table.MCN = out.MCN
		rc.logger.Info("media catalog number found", logging.String("mcn", out.MCN))
	}
	for seq, isrc := range out.ISRC {
		s.session.Table.SetISRC(seq, isrc)
		rc.logger.Info("isrc found", logging.Int("track", seq), logging.String("isrc", isrc))
	}
	info, ok := s.sink.(discInfoSink)
	if !ok {
		return
	}
	isrc := map[int]string{}
	for _, tr := range s.session.Table.Tracks() {
		if tr.ISRC != "" {
			isrc[tr.Sequence] = tr.ISRC
		}
	}
	if err := info.SetDiscInfo(s.session.Table.MCN, isrc); err != nil {
		rc.logger.Warn("disc info not written", logging.Error(err))
	}
}

type discInfoSink interface {
	SetDiscInfo(mcn string, isrc map[int]string) error
}

// rewinding steps back one batch from the batch that changed the table, but
// never below one batch under the high-water mark. The batch itself counts as
// seen, so each rewind raises the mark.
func (s *Scheduler) rewinding(st step, rc runContext) (step, runContext) {
	pos := st.plan.FirstSectorToRead
	back := uint64(st.plan.BlocksToRead)
	to := max(floorSub(pos, back), floorSub(rc.highWater, back))
	rc.highWater = max(rc.highWater, pos+back)
	s.session.State.Rewind(to)
	s.rewinds++
	rc.logger.Debug("rewinding", logging.LBA(to), logging.Blocks(st.plan.BlocksToRead))
	return step{state: stateScanning}, rc
}

func modeForSize(size uint32) mmc.SubchannelMode {
	switch size {
	case mmc.SubRaw.Size():
		return mmc.SubRaw
	case mmc.SubQ16.Size():
		return mmc.SubQ16
	default:
		return mmc.SubNone
	}
}
