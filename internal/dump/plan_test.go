package dump_test

import (
	"testing"

	"discdump/internal/dump"
	"discdump/internal/extents"
	"discdump/internal/toc"
)

func TestPlanBatch(t *testing.T) {
	single := mustTable(t, toc.Track{Sequence: 1, Session: 1, Type: toc.Data, Start: 0, End: 99})
	twoTrack := mustTable(t,
		toc.Track{Sequence: 1, Session: 1, Type: toc.Data, Start: 0, End: 29},
		toc.Track{Sequence: 2, Session: 1, Type: toc.Data, Start: 30, End: 99},
	)
	twoAudio := mustTable(t,
		toc.Track{Sequence: 1, Session: 1, Type: toc.Audio, Start: 0, End: 96},
		toc.Track{Sequence: 2, Session: 1, Type: toc.Audio, Start: 97, End: 99},
	)
	longAudio := mustTable(t, toc.Track{Sequence: 1, Session: 1, Type: toc.Audio, Start: 0, End: 199})
	audio := extents.New(extents.Range{Start: 40, End: 59})

	tests := []struct {
		name      string
		pos       uint64
		in        dump.PlanInputs
		wantBlock uint32
		wantLBA   uint32
		wantCount uint32
		inData    bool
		crossing  bool
		padTail   bool
	}{
		{
			name:      "whole data disc in one batch",
			pos:       0,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 128, Table: single},
			wantBlock: 100, wantLBA: 0, wantCount: 100, inData: true, crossing: true,
		},
		{
			name:      "max blocks caps batch",
			pos:       0,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 16, Table: single},
			wantBlock: 16, wantLBA: 0, wantCount: 16, inData: true,
		},
		{
			name:      "data stops at audio",
			pos:       0,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: single, Audio: audio},
			wantBlock: 40, wantLBA: 0, wantCount: 40, inData: true,
		},
		{
			name:      "audio stops at data",
			pos:       40,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: single, Audio: audio},
			wantBlock: 20, wantLBA: 40, wantCount: 20,
		},
		{
			name:      "track end caps batch",
			pos:       20,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: twoTrack},
			wantBlock: 10, wantLBA: 20, wantCount: 10, inData: true,
		},
		{
			name:      "lead-out extent caps batch",
			pos:       60,
			in:        dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: single, LeadOut: extents.New(extents.Range{Start: 70, End: 79})},
			wantBlock: 10, wantLBA: 60, wantCount: 10, inData: true,
		},
		{
			name: "negative offset shifts audio window back",
			pos:  10,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 10, End: 19}),
				OffsetBytes: -2352, FixOffset: true,
			},
			wantBlock: 10, wantLBA: 9, wantCount: 11,
		},
		{
			name: "negative offset wraps below sector zero",
			pos:  0,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 0, End: 9}),
				OffsetBytes: -100, FixOffset: true,
			},
			wantBlock: 10, wantLBA: 0xFFFFFFFF, wantCount: 11,
		},
		{
			name: "offset ignored without fix",
			pos:  10,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 10, End: 19}),
				OffsetBytes: -2352,
			},
			wantBlock: 10, wantLBA: 10, wantCount: 10,
		},
		{
			name: "offset ignored on data",
			pos:  0,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 10, End: 19}),
				OffsetBytes: -2352, FixOffset: true,
			},
			wantBlock: 10, wantLBA: 0, wantCount: 10, inData: true,
		},
		{
			name: "single audio sector is padded by the margin",
			pos:  99,
			in: dump.PlanInputs{
				LastSector: 200, MaxBlocks: 64, Table: mustTable(t, toc.Track{Sequence: 1, Session: 1, Type: toc.Audio, Start: 0, End: 200}),
				Audio:       extents.New(extents.Range{Start: 99, End: 99}),
				OffsetBytes: 48, FixOffset: true,
			},
			wantBlock: 1, wantLBA: 99, wantCount: 2,
		},
		{
			name: "positive offset crossing the lead-out",
			pos:  90,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 0, End: 99}),
				OffsetBytes: 2352, FixOffset: true,
			},
			wantBlock: 10, wantLBA: 90, wantCount: 11, crossing: true,
		},
		{
			name: "failed crossing drops the margin",
			pos:  90,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 64, Table: single,
				Audio:       extents.New(extents.Range{Start: 0, End: 99}),
				OffsetBytes: 2352, FixOffset: true, FailedCrossingLeadOut: true,
			},
			wantBlock: 10, wantLBA: 90, wantCount: 10, crossing: true, padTail: true,
		},
		{
			name: "crossing window widens through the last sector",
			pos:  90,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 20, Table: twoAudio,
				Audio:       extents.New(extents.Range{Start: 0, End: 99}),
				OffsetBytes: 5 * 2352, FixOffset: true,
			},
			wantBlock: 10, wantLBA: 90, wantCount: 15, crossing: true,
		},
		{
			name: "widening stops at max blocks",
			pos:  90,
			in: dump.PlanInputs{
				LastSector: 99, MaxBlocks: 12, Table: twoAudio,
				Audio:       extents.New(extents.Range{Start: 0, End: 99}),
				OffsetBytes: 5 * 2352, FixOffset: true,
			},
			wantBlock: 7, wantLBA: 90, wantCount: 12, crossing: true,
		},
		{
			name: "offset margin counts against max blocks",
			pos:  0,
			in: dump.PlanInputs{
				LastSector: 199, MaxBlocks: 64, Table: longAudio,
				Audio:       extents.New(extents.Range{Start: 0, End: 199}),
				OffsetBytes: 588, FixOffset: true,
			},
			wantBlock: 63, wantLBA: 0, wantCount: 64,
		},
		{
			name: "negative margin counts against max blocks",
			pos:  64,
			in: dump.PlanInputs{
				LastSector: 199, MaxBlocks: 64, Table: longAudio,
				Audio:       extents.New(extents.Range{Start: 0, End: 199}),
				OffsetBytes: -3000, FixOffset: true,
			},
			wantBlock: 62, wantLBA: 62, wantCount: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := dump.PlanBatch(tt.pos, tt.in)
			if plan.FirstSectorToRead != tt.pos || plan.BlocksToRead != tt.wantBlock {
				t.Fatalf("batch = %d+%d, want %d+%d", plan.FirstSectorToRead, plan.BlocksToRead, tt.pos, tt.wantBlock)
			}
			if plan.CommandLBA != tt.wantLBA || plan.CommandCount != tt.wantCount {
				t.Fatalf("window = %d+%d, want %d+%d", plan.CommandLBA, plan.CommandCount, tt.wantLBA, tt.wantCount)
			}
			if plan.InData != tt.inData {
				t.Fatalf("InData = %v", plan.InData)
			}
			if plan.CrossingLeadOut != tt.crossing {
				t.Fatalf("CrossingLeadOut = %v", plan.CrossingLeadOut)
			}
			if plan.PadTail != tt.padTail {
				t.Fatalf("PadTail = %v", plan.PadTail)
			}
		})
	}
}

func TestPlanBatchSkipsOutsideTrack(t *testing.T) {
	table := mustTable(t,
		toc.Track{Sequence: 1, Session: 1, Type: toc.Audio, Start: 0, End: 49},
		toc.Track{Sequence: 2, Session: 2, Type: toc.Data, Start: 80, End: 99},
	)
	plan := dump.PlanBatch(60, dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: table, OffsetBytes: 3000})
	if plan.BlocksToRead != 0 || plan.Skip != 2 {
		t.Fatalf("plan = %+v, want empty with skip 2", plan)
	}
	plan = dump.PlanBatch(60, dump.PlanInputs{LastSector: 99, MaxBlocks: 64, Table: table})
	if plan.BlocksToRead != 0 || plan.Skip != 1 {
		t.Fatalf("plan = %+v, want empty with skip 1", plan)
	}
}
