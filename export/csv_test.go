package export_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chalkline/tabletpool/export"
	"github.com/chalkline/tabletpool/reserve"
)

var march2026 = reserve.MonthKey{Year: 2026, Month: time.March}

func TestHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := export.History(&buf, nil); err != nil {
		t.Fatalf("Failed to render history: %v", err)
	}

	got := strings.TrimSpace(buf.String())
	if got != "ID,TYPE,DATE,DEVICES,BLOCKS,TEACHER,COURSE,NOTES,CREATED_AT" {
		t.Errorf("Expected header only, got: %s", got)
	}
}

func TestHistory_Rows(t *testing.T) {
	events := []reserve.HistoryEvent{
		{
			ID:        2,
			Type:      reserve.EventReturn,
			Devices:   []reserve.DeviceID{3, 5},
			Teacher:   "Mr. Chen",
			Date:      reserve.NewDate(2026, 3, 10),
			Blocks:    []reserve.TimeBlock{"1st period", "lunch"},
			Notes:     "cart restocked",
			CreatedAt: time.Date(2026, 3, 10, 15, 45, 9, 0, time.UTC),
		},
		{
			ID:        1,
			Type:      reserve.EventReserve,
			Devices:   []reserve.DeviceID{3, 5, 9},
			Teacher:   "Ms. Alvarez",
			Course:    "Biology 9",
			Date:      reserve.NewDate(2026, 3, 10),
			Blocks:    []reserve.TimeBlock{"1st period"},
			CreatedAt: time.Date(2026, 3, 10, 7, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := export.History(&buf, events); err != nil {
		t.Fatalf("Failed to render history: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d lines", len(lines))
	}
	// Devices joined with spaces, blocks with semicolons, caller's
	// ordering preserved.
	if lines[1] != "2,return,2026-03-10,3 5,1st period; lunch,Mr. Chen,,cart restocked,2026-03-10 15:45:09" {
		t.Errorf("Unexpected return row: %s", lines[1])
	}
	if lines[2] != "1,reserve,2026-03-10,3 5 9,1st period,Ms. Alvarez,Biology 9,,2026-03-10 07:05:00" {
		t.Errorf("Unexpected reserve row: %s", lines[2])
	}
}

func TestStats_NoData(t *testing.T) {
	stats := reserve.MonthlyStats{Month: march2026}

	var buf bytes.Buffer
	if err := export.Stats(&buf, stats); err != nil {
		t.Fatalf("Failed to render stats: %v", err)
	}

	want := strings.Join([]string{
		"METRIC,VALUE",
		"month,2026-03",
		"total_reservations,0",
		"top_device,no data",
		"top_device_count,no data",
		"top_date,no data",
		"top_date_count,no data",
		"top_block,no data",
		"top_block_count,no data",
		"utilization_pct,no data",
	}, "\n")
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Errorf("Unexpected no-data export:\n%s", got)
	}
}

func TestStats_WithData(t *testing.T) {
	stats := reserve.MonthlyStats{
		Month:       march2026,
		HasData:     true,
		Total:       4,
		TopDevice:   reserve.DeviceCount{Device: 7, Count: 2},
		TopDate:     reserve.DateCount{Date: reserve.NewDate(2026, 3, 10), Count: 3},
		TopBlock:    reserve.BlockCount{Block: "lunch", Count: 2},
		Utilization: decimal.RequireFromString("4.55"),
		ByDevice: []reserve.DeviceCount{
			{Device: 7, Count: 2},
			{Device: 1, Count: 1},
			{Device: 12, Count: 1},
		},
		ByBlock: []reserve.BlockCount{
			{Block: "1st period", Count: 2},
			{Block: "lunch", Count: 2},
		},
	}

	var buf bytes.Buffer
	if err := export.Stats(&buf, stats); err != nil {
		t.Fatalf("Failed to render stats: %v", err)
	}

	want := strings.Join([]string{
		"METRIC,VALUE",
		"month,2026-03",
		"total_reservations,4",
		"top_device,7",
		"top_device_count,2",
		"top_date,2026-03-10",
		"top_date_count,3",
		"top_block,lunch",
		"top_block_count,2",
		"utilization_pct,4.55",
		"",
		"DEVICE,RESERVATIONS",
		"7,2",
		"1,1",
		"12,1",
		"",
		"BLOCK,RESERVATIONS",
		"1st period,2",
		"lunch,2",
	}, "\n")
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Errorf("Unexpected stats export:\n%s", got)
	}
}
