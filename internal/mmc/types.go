package mmc

import (
	"fmt"
	"time"
)

// SectorSize is the size of a raw CD sector in bytes.
const SectorSize = 2352

// CookedSectorSize is the user data size of a Mode 1 sector.
const CookedSectorSize = 2048

// SyncPattern is the 12 byte header that opens every data sector.
var SyncPattern = [12]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// HasSync reports whether a raw sector starts with the data sync header.
func HasSync(sector []byte) bool {
	if len(sector) < len(SyncPattern) {
		return false
	}
	for i, b := range SyncPattern {
		if sector[i] != b {
			return false
		}
	}
	return true
}

// SubchannelMode selects which subchannel data accompanies each sector.
type SubchannelMode int

const (
	SubNone SubchannelMode = iota
	SubQ16
	SubRaw
)

// Size returns the number of subchannel bytes appended to each sector.
func (m SubchannelMode) Size() uint32 {
	switch m {
	case SubQ16:
		return 16
	case SubRaw:
		return 96
	default:
		return 0
	}
}

func (m SubchannelMode) String() string {
	switch m {
	case SubNone:
		return "none"
	case SubQ16:
		return "q16"
	case SubRaw:
		return "raw"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseSubchannelMode maps a configuration string to a mode.
func ParseSubchannelMode(s string) (SubchannelMode, error) {
	switch s {
	case "", "none":
		return SubNone, nil
	case "q16", "q":
		return SubQ16, nil
	case "raw", "rw", "pw":
		return SubRaw, nil
	default:
		return SubNone, fmt.Errorf("unknown subchannel mode %q", s)
	}
}

// SectorType is the expected sector type field of READ CD.
type SectorType int

const (
	AnyType SectorType = iota
	CDDA
)

// Capabilities are the command families a drive accepts. They are fixed for
// the duration of a session.
type Capabilities struct {
	ReadCD     bool
	Read16     bool
	Read12     bool
	Read10     bool
	Read6      bool
	VendorCDDA bool
	Subchannel SubchannelMode
	// MaxBlocks is the largest number of sectors one command may transfer.
	MaxBlocks uint32
}

// Reply is what a Backend returns for one command.
type Reply struct {
	Data     []byte
	Sense    []byte
	OK       bool
	Duration time.Duration
}

// Backend issues single commands against a device. Implementations are not
// required to be safe for concurrent use; callers keep one command in flight.
type Backend interface {
	ReadCD(lba, blockSize, count uint32, sectorType SectorType, sub SubchannelMode) Reply
	Read16(lba uint64, blockSize, count uint32) Reply
	Read12(lba, blockSize, count uint32) Reply
	Read10(lba, blockSize, count uint32) Reply
	Read6(lba, blockSize, count uint32) Reply
	VendorReadCDDA(lba, blockSize, count uint32, sub SubchannelMode) Reply
	SetSpeed(kbps uint16) Reply
}
