package mmc

import (
	"errors"
	"time"
)

// ErrNoReadCommand is returned when the capabilities admit no read command.
var ErrNoReadCommand = errors.New("drive supports no usable read command")

// Request asks for Count sectors starting at LBA. LBA is the 32-bit command
// address, so negative addresses appear in two's complement.
type Request struct {
	LBA   uint32
	Count uint32
	Audio bool
}

// Result is the normalized outcome of one read.
type Result struct {
	Data     []byte
	Sense    Sense
	OK       bool
	Duration time.Duration
	// SubSize is the number of subchannel bytes following each 2352-byte
	// sector in Data. Zero for commands that cannot return subchannel.
	SubSize uint32
	Command string
}

// BlockSize returns the per-sector stride of Data.
func (r Result) BlockSize() uint32 {
	return SectorSize + r.SubSize
}

type strategy struct {
	name  string
	admit func(Request) bool
	sub   SubchannelMode
	read  func(Request, uint32) Reply
}

// Facade dispatches reads to the first strategy admitting the request.
type Facade struct {
	backend    Backend
	caps       Capabilities
	strategies []strategy
	total      time.Duration
	speed      uint16
}

// NewFacade binds the strategy list for a session.
func NewFacade(backend Backend, caps Capabilities) (*Facade, error) {
	f := &Facade{backend: backend, caps: caps}
	sub := caps.Subchannel
	if caps.VendorCDDA {
		f.strategies = append(f.strategies, strategy{
			name:  "vendor-cdda",
			admit: func(r Request) bool { return r.Audio },
			sub:   sub,
			read: func(r Request, bs uint32) Reply {
				return backend.VendorReadCDDA(r.LBA, bs, r.Count, sub)
			},
		})
	}
	if caps.ReadCD {
		f.strategies = append(f.strategies, strategy{
			name:  "read-cd",
			admit: func(Request) bool { return true },
			sub:   sub,
			read: func(r Request, bs uint32) Reply {
				st := AnyType
				if r.Audio {
					st = CDDA
				}
				return backend.ReadCD(r.LBA, bs, r.Count, st, sub)
			},
		})
	}
	if caps.Read16 {
		f.strategies = append(f.strategies, strategy{
			name:  "read16",
			admit: func(Request) bool { return true },
			read: func(r Request, bs uint32) Reply {
				return backend.Read16(uint64(r.LBA), bs, r.Count)
			},
		})
	}
	if caps.Read12 {
		f.strategies = append(f.strategies, strategy{
			name:  "read12",
			admit: func(Request) bool { return true },
			read: func(r Request, bs uint32) Reply {
				return backend.Read12(r.LBA, bs, r.Count)
			},
		})
	}
	if caps.Read10 {
		f.strategies = append(f.strategies, strategy{
			name:  "read10",
			admit: func(r Request) bool { return r.Count <= 0xFFFF },
			read: func(r Request, bs uint32) Reply {
				return backend.Read10(r.LBA, bs, r.Count)
			},
		})
	}
	if caps.Read6 {
		f.strategies = append(f.strategies, strategy{
			name:  "read6",
			admit: func(r Request) bool { return r.LBA < 1<<21 && r.Count <= 256 },
			read: func(r Request, bs uint32) Reply {
				return backend.Read6(r.LBA, bs, r.Count)
			},
		})
	}
	if len(f.strategies) == 0 {
		return nil, ErrNoReadCommand
	}
	return f, nil
}

// Capabilities returns the capabilities the facade was bound with.
func (f *Facade) Capabilities() Capabilities {
	return f.caps
}

// MaxBlocks returns the per-command transfer limit, defaulting to 64.
func (f *Facade) MaxBlocks() uint32 {
	if f.caps.MaxBlocks == 0 {
		return 64
	}
	return f.caps.MaxBlocks
}

// Read issues one command. When no strategy admits the request the result is
// a failure with empty sense.
func (f *Facade) Read(req Request) Result {
	for _, s := range f.strategies {
		if !s.admit(req) {
			continue
		}
		subSize := s.sub.Size()
		reply := s.read(req, SectorSize+subSize)
		f.total += reply.Duration
		res := Result{
			Data:     reply.Data,
			OK:       reply.OK,
			Duration: reply.Duration,
			SubSize:  subSize,
			Command:  s.name,
		}
		if !reply.OK {
			res.Sense = DecodeSense(reply.Sense)
		}
		if reply.OK && uint64(len(reply.Data)) < uint64(req.Count)*uint64(SectorSize+subSize) {
			res.OK = false
		}
		return res
	}
	return Result{}
}

// SetSpeed changes the read speed in KB/s, skipping the command when the
// drive is already at that speed. 0xFFFF requests the maximum.
func (f *Facade) SetSpeed(kbps uint16) bool {
	if kbps == f.speed {
		return true
	}
	reply := f.backend.SetSpeed(kbps)
	f.total += reply.Duration
	if reply.OK {
		f.speed = kbps
	}
	return reply.OK
}

// Speed returns the last speed successfully set, zero if none.
func (f *Facade) Speed() uint16 {
	return f.speed
}

// TotalDuration returns the accumulated time spent in device commands.
func (f *Facade) TotalDuration() time.Duration {
	return f.total
}
