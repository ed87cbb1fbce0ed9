package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"discdump/internal/extents"
	"discdump/internal/mmc"
	"discdump/internal/simdrive"
	"discdump/internal/toc"
)

// sourceOptions selects and tunes the emulated drive.
type sourceOptions struct {
	image      string
	layout     string
	offset     int
	offsetSet  bool
	leadOut    uint32
	failRanges string
	strict     bool
	maxBlocks  uint32
}

type source struct {
	drive     *simdrive.Drive
	table     *toc.Table
	closer    io.Closer
	simulated bool
}

func (s *source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// openSource builds the drive a dump reads from. Without a transport for real
// devices, one of --image or --simulate is required.
func openSource(opts sourceOptions, configuredOffset int) (*source, error) {
	var (
		medium simdrive.Medium
		table  *toc.Table
		closer io.Closer
	)
	switch {
	case opts.image != "" && opts.layout != "":
		return nil, errors.New("--image and --simulate are mutually exclusive")
	case opts.image != "":
		img, t, c, err := simdrive.OpenImage(opts.image)
		if err != nil {
			return nil, err
		}
		medium, table, closer = img, t, c
	case opts.layout != "":
		t, err := parseLayout(opts.layout)
		if err != nil {
			return nil, err
		}
		medium, table = simdrive.Pattern{Table: t}, t
	default:
		return nil, errors.New("no transport for physical drives; use --image or --simulate")
	}

	offset := configuredOffset
	if opts.offsetSet {
		offset = opts.offset
	}
	blocks := opts.maxBlocks
	if blocks == 0 {
		blocks = 64
	}
	drive := simdrive.New(medium, table, simdrive.Config{
		Capabilities: mmc.Capabilities{
			ReadCD:     true,
			Read16:     true,
			VendorCDDA: true,
			Subchannel: mmc.SubRaw,
			MaxBlocks:  blocks,
		},
		OffsetBytes:     offset,
		LeadOutReadable: opts.leadOut,
		StrictModes:     opts.strict,
	})
	if opts.failRanges != "" {
		set, err := parseRanges(opts.failRanges)
		if err != nil {
			return nil, err
		}
		for _, r := range set.Ranges() {
			drive.FailRange(int64(r.Start), int64(r.End), -1)
		}
	}
	return &source{drive: drive, table: table, closer: closer, simulated: true}, nil
}

// parseLayout reads a comma separated track list such as
// "data:1000,audio:2000/150". Each entry is a track type and its length in
// sectors, optionally followed by a pregap length included in that count.
func parseLayout(layout string) (*toc.Table, error) {
	var tracks []toc.Track
	var next uint64
	for i, entry := range strings.Split(layout, ",") {
		entry = strings.TrimSpace(entry)
		kind, size, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("track %d: expected type:length, got %q", i+1, entry)
		}
		var typ toc.Type
		if err := typ.UnmarshalText([]byte(strings.ToLower(kind))); err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
		length, pregap := size, "0"
		if l, p, ok := strings.Cut(size, "/"); ok {
			length, pregap = l, p
		}
		n, err := strconv.ParseUint(length, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("track %d: invalid length %q", i+1, length)
		}
		gap, err := strconv.ParseUint(pregap, 10, 64)
		if err != nil || gap >= n {
			return nil, fmt.Errorf("track %d: invalid pregap %q", i+1, pregap)
		}
		tracks = append(tracks, toc.Track{
			Sequence: i + 1,
			Session:  1,
			Type:     typ,
			Start:    next,
			End:      next + n - 1,
			Pregap:   gap,
		})
		next += n
	}
	return toc.NewTable(tracks)
}

// parseRanges reads "10-20,35" into an extent set.
func parseRanges(spec string) (*extents.Set, error) {
	set := extents.New()
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.ParseUint(lo, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sector %q", lo)
		}
		end := start
		if isRange {
			if end, err = strconv.ParseUint(hi, 10, 64); err != nil || end < start {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		set.AddRange(start, end)
	}
	return set, nil
}

// probeAddresses picks the sectors the capability probe reads from.
func probeAddresses(table *toc.Table) (dataLBA, audioLBA uint32, hasAudio bool) {
	dataSet := false
	for _, tr := range table.Tracks() {
		switch {
		case tr.Type == toc.Audio && !hasAudio:
			audioLBA, hasAudio = uint32(tr.Index1()), true
		case tr.Type == toc.Data && !dataSet:
			dataLBA, dataSet = uint32(tr.Index1()), true
		}
	}
	if !dataSet {
		dataLBA = audioLBA
	}
	return dataLBA, audioLBA, hasAudio
}
