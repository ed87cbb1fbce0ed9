package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"discdump/internal/dump"
	"discdump/internal/mmc"
	"discdump/internal/resume"
)

var printer = message.NewPrinter(language.English)

func count(n uint64) string {
	return printer.Sprintf("%d", n)
}

func renderReport(base string, session *dump.Session, res dump.Result) string {
	var b strings.Builder
	rows := [][]string{
		{"Result", res.Termination.String()},
		{"Image", base + ".bin"},
		{"Sectors read", count(res.Filled)},
		{"Bad sectors", count(res.Bad)},
		{"Unread lead-out", count(res.LeadOut)},
		{"Track rewinds", fmt.Sprintf("%d", res.Rewinds)},
		{"Image size", humanize.IBytes(res.Filled * mmc.SectorSize)},
		{"Device time", res.DeviceTime.Round(time.Millisecond).String()},
	}
	if res.AvgSpeed > 0 {
		rows = append(rows, []string{"Speed", fmt.Sprintf("%.2f MiB/s (min %.2f, max %.2f)", res.AvgSpeed, res.MinSpeed, res.MaxSpeed)})
	}
	if !session.State.BadBlocks.Empty() {
		rows = append(rows, []string{"Bad extents", truncate(session.State.BadBlocks.String(), 60)})
	}
	b.WriteString(renderTable([]string{"Dump", ""}, rows, 1))
	b.WriteByte('\n')
	return b.String()
}

func renderSessions(rows []resume.Summary) string {
	out := make([][]string, 0, len(rows))
	for _, s := range rows {
		out = append(out, []string{
			s.Fingerprint,
			string(s.Status),
			fmt.Sprintf("%.1f%%", s.Percent()),
			count(s.BadCount),
			s.Device,
			humanize.Time(s.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"Fingerprint", "Status", "Progress", "Bad", "Device", "Updated"},
		out,
		2, 3,
	)
}

func renderCheckpoint(cp *resume.Checkpoint) string {
	rows := [][]string{
		{"Fingerprint", cp.Fingerprint},
		{"Session", cp.SessionID},
		{"Device", cp.Device},
		{"Status", string(cp.Status)},
		{"Next sector", count(cp.State.NextBlock)},
		{"Last sector", count(cp.LastSector)},
		{"Filled", count(cp.Filled.Count())},
		{"Bad", count(cp.State.BadBlocks.Count())},
		{"Bad extents", truncate(cp.State.BadBlocks.String(), 60)},
		{"Lead-out unread", cp.LeadOut.String()},
		{"Damaged subchannel", truncate(cp.Subchannel.String(), 60)},
		{"Created", cp.CreatedAt.Local().Format(time.DateTime)},
		{"Updated", cp.UpdatedAt.Local().Format(time.DateTime)},
	}
	if cp.MCN != "" {
		rows = append(rows, []string{"MCN", cp.MCN})
	}
	for seq := 1; seq <= 99; seq++ {
		if isrc, ok := cp.ISRC[seq]; ok {
			rows = append(rows, []string{fmt.Sprintf("ISRC track %02d", seq), isrc})
		}
	}
	return renderTable([]string{"Session", ""}, rows)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
