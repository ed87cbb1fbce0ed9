package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// BarObserver renders the sweep channel as a terminal progress bar and
// prints status and error lines above it. Sub-phase progress replaces the
// bar description while it runs.
type BarObserver struct {
	w     io.Writer
	bar   *progressbar.ProgressBar
	total uint64
	text  string
	speed float64
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewBarObserver returns a bar observer writing to w.
func NewBarObserver(w io.Writer) *BarObserver {
	return &BarObserver{w: w}
}

func (o *BarObserver) newBar(total uint64, text string) *progressbar.ProgressBar {
	max := int64(total)
	if total == 0 {
		max = -1
	}
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(o.w),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetItsString("sectors"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (o *BarObserver) InitProgress() {
	o.bar = nil
	o.total = 0
}

func (o *BarObserver) UpdateProgress(text string, current, total uint64) {
	if o.bar == nil || total != o.total {
		if o.bar != nil {
			_ = o.bar.Clear()
		}
		o.bar = o.newBar(total, text)
		o.total = total
	}
	o.text = text
	o.bar.Describe(o.describe(text))
	_ = o.bar.Set64(int64(current))
}

func (o *BarObserver) EndProgress() {
	if o.bar != nil {
		_ = o.bar.Finish()
		o.bar = nil
	}
}

func (o *BarObserver) InitProgress2() {}

func (o *BarObserver) UpdateProgress2(text string, current, total uint64) {
	if o.bar == nil {
		return
	}
	o.bar.Describe(o.describe(fmt.Sprintf("%s (%d/%d)", text, current, total)))
}

func (o *BarObserver) EndProgress2() {
	if o.bar != nil {
		o.bar.Describe(o.describe(o.text))
	}
}

func (o *BarObserver) Pulse(text string) {
	if o.bar != nil {
		o.bar.Describe(o.describe(text))
	}
}

func (o *BarObserver) Status(text string) { o.println(text) }

func (o *BarObserver) Error(text string) { o.println("error: " + text) }

func (o *BarObserver) Log(string) {}

func (o *BarObserver) Speed(mibPerSec float64) { o.speed = mibPerSec }

func (o *BarObserver) describe(text string) string {
	if o.speed <= 0 {
		return text
	}
	return fmt.Sprintf("%s %.2f MiB/s", text, o.speed)
}

func (o *BarObserver) println(text string) {
	if o.bar != nil {
		_ = o.bar.Clear()
	}
	fmt.Fprintln(o.w, text)
}
