package mmc

import "fmt"

// Additional sense codes the dump engine reacts to.
const (
	ASCLBAOutOfRange       = 0x21
	ASCIllegalModeForTrack = 0x64
)

// Sense holds the decoded fields of a sense buffer.
type Sense struct {
	Raw   []byte
	Key   byte
	ASC   byte
	ASCQ  byte
	Valid bool
}

// DecodeSense parses fixed (0x70/0x71) and descriptor (0x72/0x73) format
// sense data. Unknown or short buffers yield a Sense with Valid=false.
func DecodeSense(raw []byte) Sense {
	s := Sense{Raw: raw}
	if len(raw) < 1 {
		return s
	}
	switch raw[0] & 0x7F {
	case 0x70, 0x71:
		if len(raw) < 14 {
			if len(raw) >= 3 {
				s.Key = raw[2] & 0x0F
				s.Valid = true
			}
			return s
		}
		s.Key = raw[2] & 0x0F
		s.ASC = raw[12]
		s.ASCQ = raw[13]
		s.Valid = true
	case 0x72, 0x73:
		if len(raw) < 4 {
			return s
		}
		s.Key = raw[1] & 0x0F
		s.ASC = raw[2]
		s.ASCQ = raw[3]
		s.Valid = true
	}
	return s
}

// Is reports whether the sense carries the given additional sense code.
func (s Sense) Is(asc byte) bool {
	return s.Valid && s.ASC == asc
}

func (s Sense) String() string {
	if !s.Valid {
		return "no sense"
	}
	return fmt.Sprintf("key=%X asc=%02Xh ascq=%02Xh", s.Key, s.ASC, s.ASCQ)
}

// FixedSense builds a minimal fixed-format sense buffer. Backends that emulate
// a drive use it to report failures.
func FixedSense(key, asc, ascq byte) []byte {
	buf := make([]byte, 18)
	buf[0] = 0x70
	buf[2] = key & 0x0F
	buf[7] = 10
	buf[12] = asc
	buf[13] = ascq
	return buf
}
