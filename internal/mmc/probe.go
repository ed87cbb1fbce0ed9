package mmc

// Probe discovers the read commands a drive accepts by progressive fallback:
// READ CD is tried first, with raw, then Q, then no subchannel; when it fails
// READ(16), READ(12), READ(10) and READ(6) are tried in turn and the first one
// to succeed is kept. The vendor CD-DA read is probed independently at
// audioLBA when hasAudio is set. MaxBlocks is then found by halving from
// startBlocks until a transfer succeeds.
func Probe(b Backend, dataLBA, audioLBA uint32, hasAudio bool, startBlocks uint32) Capabilities {
	var caps Capabilities
	for _, sub := range []SubchannelMode{SubRaw, SubQ16, SubNone} {
		if b.ReadCD(dataLBA, SectorSize+sub.Size(), 1, AnyType, sub).OK {
			caps.ReadCD = true
			caps.Subchannel = sub
			break
		}
	}
	if !caps.ReadCD {
		switch {
		case b.Read16(uint64(dataLBA), SectorSize, 1).OK:
			caps.Read16 = true
		case b.Read12(dataLBA, SectorSize, 1).OK:
			caps.Read12 = true
		case b.Read10(dataLBA, SectorSize, 1).OK:
			caps.Read10 = true
		case b.Read6(dataLBA, SectorSize, 1).OK:
			caps.Read6 = true
		}
	}
	if hasAudio {
		sub := caps.Subchannel
		if b.VendorReadCDDA(audioLBA, SectorSize+sub.Size(), 1, sub).OK {
			caps.VendorCDDA = true
		}
	}

	f, err := NewFacade(b, caps)
	if err != nil {
		return caps
	}
	if startBlocks == 0 {
		startBlocks = 64
	}
	for n := startBlocks; n >= 1; n /= 2 {
		if f.Read(Request{LBA: dataLBA, Count: n}).OK {
			caps.MaxBlocks = n
			break
		}
	}
	if caps.MaxBlocks == 0 {
		caps.MaxBlocks = 1
	}
	return caps
}
