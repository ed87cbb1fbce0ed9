package subchannel

import (
	"fmt"
	"strings"
)

// QSize is the length of a Q frame including its CRC.
const QSize = 12

// LeadOutTrack is the track number Q reports inside the lead-out.
const LeadOutTrack = 0xAA

// MSF is a minute/second/frame position.
type MSF struct {
	M, S, F uint8
}

// LBA converts an absolute MSF to a logical block address.
func (m MSF) LBA() int64 {
	return (int64(m.M)*60+int64(m.S))*75 + int64(m.F) - 150
}

func (m MSF) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", m.M, m.S, m.F)
}

// MSFFromLBA converts a logical block address to absolute MSF.
func MSFFromLBA(lba int64) MSF {
	v := lba + 150
	if v < 0 {
		v = 0
	}
	return MSF{M: uint8(v / (60 * 75)), S: uint8((v / 75) % 60), F: uint8(v % 75)}
}

// relMSF converts a sector count to MSF without the 150 sector bias.
func relMSF(n uint64) MSF {
	return MSF{M: uint8(n / (60 * 75)), S: uint8((n / 75) % 60), F: uint8(n % 75)}
}

// Q is a decoded Q channel frame.
type Q struct {
	Control uint8
	ADR     uint8
	Track   uint8
	Index   uint8
	Rel     MSF
	Abs     MSF
	MCN     string
	ISRC    string
	Raw     [QSize]byte
}

// IsData reports whether the control field flags a data track.
func (q Q) IsData() bool {
	return q.Control&0x04 != 0
}

func bcd(b byte) (uint8, bool) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}

func toBCD(v uint8) byte {
	return byte(v/10)<<4 | byte(v%10)
}

// CRC16 computes the CCITT CRC (polynomial 0x1021, zero init) used by Q.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CheckCRC reports whether the frame's stored CRC matches its contents.
func CheckCRC(raw []byte) bool {
	if len(raw) < QSize {
		return false
	}
	want := ^CRC16(raw[:10])
	return raw[10] == byte(want>>8) && raw[11] == byte(want)
}

// DecodeQ parses a 12 byte Q frame. ok is false when the CRC fails or the
// fields are not valid BCD.
func DecodeQ(raw []byte) (Q, bool) {
	var q Q
	if len(raw) < QSize {
		return q, false
	}
	copy(q.Raw[:], raw[:QSize])
	if !CheckCRC(raw) {
		return q, false
	}
	q.Control = raw[0] >> 4
	q.ADR = raw[0] & 0x0F
	switch q.ADR {
	case 1:
		var ok bool
		fields := []*uint8{&q.Track, &q.Index, &q.Rel.M, &q.Rel.S, &q.Rel.F, nil, &q.Abs.M, &q.Abs.S, &q.Abs.F}
		for i, dst := range fields {
			if dst == nil {
				continue
			}
			if i == 0 && raw[1] == LeadOutTrack {
				q.Track = LeadOutTrack
				continue
			}
			if *dst, ok = bcd(raw[1+i]); !ok {
				return q, false
			}
		}
	case 2:
		var sb strings.Builder
		for i := 0; i < 13; i++ {
			b := raw[1+i/2]
			nibble := b >> 4
			if i%2 == 1 {
				nibble = b & 0x0F
			}
			if nibble > 9 {
				return q, false
			}
			sb.WriteByte('0' + nibble)
		}
		q.MCN = sb.String()
		if af, ok := bcd(raw[9]); ok {
			q.Abs.F = af
		}
	case 3:
		isrc, ok := decodeISRC(raw[1:9])
		if !ok {
			return q, false
		}
		q.ISRC = isrc
	}
	return q, true
}

func isrcChar(v byte) (byte, bool) {
	switch {
	case v <= 9:
		return '0' + v, true
	case v >= 0x11 && v <= 0x2A:
		return 'A' + v - 0x11, true
	default:
		return 0, false
	}
}

func decodeISRC(b []byte) (string, bool) {
	bits := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
	var sb strings.Builder
	for i := 0; i < 5; i++ {
		v := byte(bits>>(26-6*i)) & 0x3F
		c, ok := isrcChar(v)
		if !ok {
			return "", false
		}
		sb.WriteByte(c)
	}
	digits := []byte{b[4] >> 4, b[4] & 0x0F, b[5] >> 4, b[5] & 0x0F, b[6] >> 4, b[6] & 0x0F, b[7] >> 4}
	for _, d := range digits {
		if d > 9 {
			return "", false
		}
		sb.WriteByte('0' + d)
	}
	return sb.String(), true
}

// EncodePosition builds a mode 1 Q frame with a valid CRC.
func EncodePosition(control, track, index uint8, rel, abs MSF) [QSize]byte {
	var raw [QSize]byte
	raw[0] = control<<4 | 1
	if track == LeadOutTrack {
		raw[1] = LeadOutTrack
	} else {
		raw[1] = toBCD(track)
	}
	raw[2] = toBCD(index)
	raw[3], raw[4], raw[5] = toBCD(rel.M), toBCD(rel.S), toBCD(rel.F)
	raw[7], raw[8], raw[9] = toBCD(abs.M), toBCD(abs.S), toBCD(abs.F)
	sealCRC(raw[:])
	return raw
}

// EncodeMCN builds a mode 2 Q frame for a 13 digit catalog number.
func EncodeMCN(control uint8, mcn string, absFrame uint8) ([QSize]byte, error) {
	var raw [QSize]byte
	if len(mcn) != 13 {
		return raw, fmt.Errorf("mcn must have 13 digits, got %d", len(mcn))
	}
	raw[0] = control<<4 | 2
	for i := 0; i < 13; i++ {
		d := mcn[i] - '0'
		if d > 9 {
			return raw, fmt.Errorf("mcn digit %q", mcn[i])
		}
		if i%2 == 0 {
			raw[1+i/2] = d << 4
		} else {
			raw[1+i/2] |= d
		}
	}
	raw[9] = toBCD(absFrame)
	sealCRC(raw[:])
	return raw, nil
}

// EncodeISRC builds a mode 3 Q frame for a 12 character ISRC.
func EncodeISRC(control uint8, isrc string, absFrame uint8) ([QSize]byte, error) {
	var raw [QSize]byte
	if len(isrc) != 12 {
		return raw, fmt.Errorf("isrc must have 12 characters, got %d", len(isrc))
	}
	var bits uint32
	for i := 0; i < 5; i++ {
		c := isrc[i]
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'A' && c <= 'Z':
			v = c - 'A' + 0x11
		default:
			return raw, fmt.Errorf("isrc character %q", c)
		}
		bits |= uint32(v) << (26 - 6*i)
	}
	raw[0] = control<<4 | 3
	raw[1], raw[2], raw[3], raw[4] = byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits)
	for i := 5; i < 12; i++ {
		d := isrc[i] - '0'
		if d > 9 {
			return raw, fmt.Errorf("isrc digit %q", isrc[i])
		}
		pos := 5 + (i-5)/2
		if (i-5)%2 == 0 {
			raw[pos] = d << 4
		} else {
			raw[pos] |= d
		}
	}
	raw[9] = toBCD(absFrame)
	sealCRC(raw[:])
	return raw, nil
}

func sealCRC(raw []byte) {
	crc := ^CRC16(raw[:10])
	raw[10] = byte(crc >> 8)
	raw[11] = byte(crc)
}
