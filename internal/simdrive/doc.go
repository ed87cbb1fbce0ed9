// Package simdrive emulates an optical drive behind the mmc.Backend contract.
//
// A Drive serves sectors from a Medium (a synthetic pattern or an existing
// raw image) laid out by a true track table that may differ from the table
// the dump engine starts with. It reproduces the behaviours the engine has to
// cope with: commands the drive does not implement, a read offset on audio
// sectors, LBA-out-of-range past the readable lead-out, "illegal mode for
// track" on multi-sector data reads over audio, injected medium errors and
// damaged subchannel. Every command is recorded for inspection.
package simdrive
