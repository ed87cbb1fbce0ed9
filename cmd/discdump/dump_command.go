package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"discdump/internal/config"
	"discdump/internal/devlock"
	"discdump/internal/dump"
	"discdump/internal/image"
	"discdump/internal/logging"
	"discdump/internal/mmc"
	"discdump/internal/preflight"
	"discdump/internal/resume"
	"discdump/internal/services"
	"discdump/internal/telemetry"
)

type dumpFlags struct {
	source     sourceOptions
	name       string
	fresh      bool
	noProgress bool
}

func newDumpCommand(ctx *commandContext) *cobra.Command {
	var flags dumpFlags

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump a disc into a raw image",
		Long: `Dump a disc into <output_dir>/<name>.bin with subchannel, cooked and
track listing files alongside. An interrupted dump of the same disc resumes
from its last checkpoint unless --fresh is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.source.offsetSet = cmd.Flags().Changed("sim-offset")
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDump(runCtx, cfg, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&flags.source.image, "image", "", "Replay a previous dump (path prefix without extension)")
	cmd.Flags().StringVar(&flags.source.layout, "simulate", "", "Synthetic disc layout, e.g. data:1000,audio:2000/150")
	cmd.Flags().IntVar(&flags.source.offset, "sim-offset", 0, "Read offset of the emulated drive in bytes (default: drive.offset_bytes)")
	cmd.Flags().Uint32Var(&flags.source.leadOut, "sim-lead-out", 0, "Lead-out sectors the emulated drive can read")
	cmd.Flags().StringVar(&flags.source.failRanges, "sim-fail", "", "Sectors the emulated drive cannot read, e.g. 100-120,300")
	cmd.Flags().BoolVar(&flags.source.strict, "sim-strict", false, "Reject non-audio multi-sector reads touching audio")
	cmd.Flags().Uint32Var(&flags.source.maxBlocks, "sim-max-blocks", 0, "Transfer limit of the emulated drive")
	cmd.Flags().StringVar(&flags.name, "name", "", "Image name (default: disc-<fingerprint>)")
	cmd.Flags().BoolVar(&flags.fresh, "fresh", false, "Ignore any saved checkpoint for this disc")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runDump(ctx context.Context, cfg *config.Config, flags dumpFlags, stdout, stderr io.Writer) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "startup", "logging", "", err)
	}
	sessionID := uuid.NewString()
	ctx = services.WithSessionID(ctx, sessionID)
	ctx = services.WithDevice(ctx, cfg.Drive.Device)
	ctx = services.WithPhase(ctx, "startup")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "cli"))

	lock, err := devlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("device lock not released", logging.Error(err))
		}
	}()

	src, err := openSource(flags.source, cfg.Drive.OffsetBytes)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "startup", "open drive", "", err)
	}
	defer src.Close()

	caps, err := probe(src, cfg)
	if err != nil {
		return err
	}
	facade, err := mmc.NewFacade(src.drive, caps)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "startup", "probe", "", err)
	}
	log.Info("drive capabilities",
		logging.Bool("read_cd", caps.ReadCD),
		logging.Bool("vendor_cdda", caps.VendorCDDA),
		logging.String("subchannel", caps.Subchannel.String()),
		logging.Int("max_blocks", int(caps.MaxBlocks)),
	)

	table := src.table
	need := (table.LastSector() + 1) * uint64(mmc.SectorSize+caps.Subchannel.Size())
	if failed := preflight.Failed(preflight.RunAll(cfg, need, src.simulated)); len(failed) > 0 {
		for _, r := range failed {
			log.Error("preflight check failed", logging.String("check", r.Name), logging.String("detail", r.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "startup", "preflight", fmt.Sprintf("%s: %s", failed[0].Name, failed[0].Detail), nil)
	}

	var leadOut uint64
	if cfg.Dump.DumpLeadOut {
		leadOut = uint64(cfg.Dump.LeadOutSectors)
	}
	session := dump.NewSession(dump.Identity{SessionID: sessionID, Device: cfg.Drive.Device}, table, leadOut)

	var store *resume.Store
	if cfg.Dump.Persistent {
		store, err = resume.Open(cfg)
		if err != nil {
			return services.Wrap(services.ErrOutput, "startup", "open state", "", err)
		}
		defer store.Close()
		if !flags.fresh {
			if err := restore(ctx, store, session, log); err != nil {
				return err
			}
		}
	}

	name := strings.TrimSpace(flags.name)
	if name == "" {
		name = "disc-" + session.Identity.Fingerprint
	}
	sink, err := image.Create(cfg.Paths.OutputDir, name)
	if err != nil {
		return services.Wrap(services.ErrOutput, "startup", "create image", "", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("image not closed cleanly", logging.Error(err))
		}
	}()
	if err := sink.SetTracks(table.Tracks()); err != nil {
		return services.Wrap(services.ErrOutput, "startup", "write tracks", "", err)
	}

	observer := telemetry.Multi{telemetry.NewLogObserver(logger, 10)}
	if !flags.noProgress && telemetry.IsTerminal(stderr) {
		observer = append(observer, telemetry.NewBarObserver(stderr))
	}

	deps := dump.Dependencies{Observer: observer, Logger: logger}
	if store != nil {
		deps.Checkpointer = store
	}
	scheduler := dump.New(facade, sink, session, dumpOptions(cfg, caps), deps)

	log.Info("dump started",
		logging.String("fingerprint", session.Identity.Fingerprint),
		logging.String("image", sink.Base()),
		logging.Uint64("last_sector", table.LastSector()),
		logging.Uint64("resume_at", session.State.NextBlock),
	)

	type outcome struct {
		res dump.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := scheduler.Execute(ctx)
		done <- outcome{res: res, err: err}
	}()
	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		log.Info("interrupt received; finishing the current command")
		scheduler.Abort()
		out = <-done
	}

	fmt.Fprint(stdout, renderReport(sink.Base(), session, out.res))
	if out.err != nil {
		log.Error("dump ended with error", logging.Error(out.err))
	}
	return out.err
}

// probe runs the capability probe and narrows it to the configured limits.
func probe(src *source, cfg *config.Config) (mmc.Capabilities, error) {
	dataLBA, audioLBA, hasAudio := probeAddresses(src.table)
	caps := mmc.Probe(src.drive, dataLBA, audioLBA, hasAudio, uint32(cfg.Drive.MaxBlocks))
	if cfg.Drive.Subchannel != "auto" {
		want, err := mmc.ParseSubchannelMode(cfg.Drive.Subchannel)
		if err != nil {
			return caps, services.Wrap(services.ErrConfiguration, "startup", "subchannel", "", err)
		}
		if want < caps.Subchannel {
			caps.Subchannel = want
		}
	}
	src.drive.ResetCalls()
	return caps, nil
}

// restore continues the saved session for this disc, if any.
func restore(ctx context.Context, store *resume.Store, session *dump.Session, log *slog.Logger) error {
	cp, err := store.Load(ctx, session.Identity.Fingerprint)
	if err != nil {
		if errors.Is(err, resume.ErrSchemaMismatch) {
			return services.Wrap(services.ErrConfiguration, "startup", "load state", "", err)
		}
		return services.Wrap(services.ErrOutput, "startup", "load state", "", err)
	}
	if cp == nil {
		return nil
	}
	if cp.Status == resume.StatusCompleted {
		log.Info("previous dump of this disc completed; starting over", logging.String("previous_session", cp.SessionID))
		return nil
	}
	session.Restore(cp)
	log.Info("resuming dump",
		logging.String("previous_session", cp.SessionID),
		logging.String("previous_status", string(cp.Status)),
		logging.LBA(cp.State.NextBlock),
		logging.Uint64("bad", cp.State.BadBlocks.Count()),
	)
	return nil
}

func dumpOptions(cfg *config.Config, caps mmc.Capabilities) dump.Options {
	return dump.Options{
		Speed:              uint16(cfg.Drive.Speed),
		AudioSpeed:         uint16(cfg.Drive.AudioSpeed),
		OffsetBytes:        cfg.Drive.OffsetBytes,
		FixOffset:          cfg.Dump.FixOffset,
		FixSubchannel:      cfg.Dump.FixSubchannel && caps.Subchannel != mmc.SubNone,
		StopOnError:        cfg.Dump.StopOnError,
		Skip:               uint32(cfg.Dump.Skip),
		RetryPasses:        cfg.Dump.RetryPasses,
		CheckpointInterval: cfg.Dump.CheckpointInterval,
		LeadOutPass:        cfg.Dump.DumpLeadOut,
		WriteCooked:        cfg.Dump.WriteCooked,
	}
}
