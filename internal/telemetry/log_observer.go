package telemetry

import (
	"log/slog"

	"github.com/dustin/go-humanize"

	"discdump/internal/logging"
)

// LogObserver writes telemetry to a structured logger. Progress updates are
// sampled so a long dump logs once per percentage bucket rather than once per
// batch.
type LogObserver struct {
	logger  *slog.Logger
	sweep   *logging.ProgressSampler
	phase   *logging.ProgressSampler
	lastMiB float64
}

// NewLogObserver logs through logger at info level, sampling progress in
// bucket-percent steps.
func NewLogObserver(logger *slog.Logger, bucket float64) *LogObserver {
	return &LogObserver{
		logger: logging.NewComponentLogger(logger, "telemetry"),
		sweep:  logging.NewProgressSampler(bucket),
		phase:  logging.NewProgressSampler(bucket),
	}
}

func (o *LogObserver) InitProgress() { o.sweep.Reset() }

func (o *LogObserver) UpdateProgress(text string, current, total uint64) {
	if !o.sweep.ShouldLog(current, total, "sweep") {
		return
	}
	p := percent(current, total)
	o.logger.Info(text,
		logging.Uint64("current", current),
		logging.Uint64("total", total),
		logging.Float64("percent", roundPercent(p)),
	)
}

func (o *LogObserver) EndProgress() {}

func (o *LogObserver) InitProgress2() { o.phase.Reset() }

func (o *LogObserver) UpdateProgress2(text string, current, total uint64) {
	if !o.phase.ShouldLog(current, total, "sub") {
		return
	}
	o.logger.Debug(text,
		logging.Uint64("current", current),
		logging.Uint64("total", total),
	)
}

func (o *LogObserver) EndProgress2() {}

func (o *LogObserver) Pulse(text string) { o.logger.Debug(text) }

func (o *LogObserver) Status(text string) { o.logger.Info(text) }

func (o *LogObserver) Error(text string) {
	logging.WarnWithContext(o.logger, text, "read_error",
		logging.String(logging.FieldErrorHint, "clean the disc or retry with more retry passes"),
	)
}

func (o *LogObserver) Log(text string) { o.logger.Debug(text) }

// Speed logs throughput when it changes by at least 10%.
func (o *LogObserver) Speed(mibPerSec float64) {
	if o.lastMiB != 0 {
		delta := mibPerSec/o.lastMiB - 1
		if delta < 0.1 && delta > -0.1 {
			return
		}
	}
	o.lastMiB = mibPerSec
	o.logger.Info("throughput",
		logging.Float64("mib_per_sec", roundPercent(mibPerSec)),
		logging.String("rate", humanize.IBytes(uint64(mibPerSec*1024*1024))+"/s"),
	)
}

func roundPercent(v float64) float64 {
	return float64(int64(v*100)) / 100
}
