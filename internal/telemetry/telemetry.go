// Package telemetry carries dump progress out of the engine: two progress
// channels (the overall sweep and the current sub-phase), an indeterminate
// pulse, status, error and log lines, and throughput samples.
//
// Observers are invoked only from the scheduler goroutine and need no locking.
package telemetry

// Observer receives dump telemetry.
type Observer interface {
	InitProgress()
	UpdateProgress(text string, current, total uint64)
	EndProgress()

	InitProgress2()
	UpdateProgress2(text string, current, total uint64)
	EndProgress2()

	Pulse(text string)
	Status(text string)
	Error(text string)
	Log(text string)
	Speed(mibPerSec float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) InitProgress()                          {}
func (Nop) UpdateProgress(string, uint64, uint64)  {}
func (Nop) EndProgress()                           {}
func (Nop) InitProgress2()                         {}
func (Nop) UpdateProgress2(string, uint64, uint64) {}
func (Nop) EndProgress2()                          {}
func (Nop) Pulse(string)                           {}
func (Nop) Status(string)                          {}
func (Nop) Error(string)                           {}
func (Nop) Log(string)                             {}
func (Nop) Speed(float64)                          {}

// Multi fans every call out to each observer in order.
type Multi []Observer

func (m Multi) InitProgress() {
	for _, o := range m {
		o.InitProgress()
	}
}

func (m Multi) UpdateProgress(text string, current, total uint64) {
	for _, o := range m {
		o.UpdateProgress(text, current, total)
	}
}

func (m Multi) EndProgress() {
	for _, o := range m {
		o.EndProgress()
	}
}

func (m Multi) InitProgress2() {
	for _, o := range m {
		o.InitProgress2()
	}
}

func (m Multi) UpdateProgress2(text string, current, total uint64) {
	for _, o := range m {
		o.UpdateProgress2(text, current, total)
	}
}

func (m Multi) EndProgress2() {
	for _, o := range m {
		o.EndProgress2()
	}
}

func (m Multi) Pulse(text string) {
	for _, o := range m {
		o.Pulse(text)
	}
}

func (m Multi) Status(text string) {
	for _, o := range m {
		o.Status(text)
	}
}

func (m Multi) Error(text string) {
	for _, o := range m {
		o.Error(text)
	}
}

func (m Multi) Log(text string) {
	for _, o := range m {
		o.Log(text)
	}
}

func (m Multi) Speed(v float64) {
	for _, o := range m {
		o.Speed(v)
	}
}

func percent(current, total uint64) float64 {
	if total == 0 {
		return -1
	}
	p := float64(current) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
