/*
Package export renders read-only snapshots of the reservation system as
CSV documents.

PURPOSE:
  Backs the spreadsheet download endpoints. Input is whatever the
  engine's read side returned; nothing here touches storage, so an
  export can never mutate core state.

FORMATS:
  History: one row per history event, newest ordering preserved from
           the caller.
  Stats:   a metric/value summary block, then per-device and per-block
           count sections separated by blank lines.

NO-DATA:
  An empty month renders the "no data" sentinel in every derived stats
  field rather than zeros that look like measurements.
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chalkline/tabletpool/reserve"
)

// NoData is the sentinel rendered for derived fields of an empty month.
const NoData = "no data"

// History writes one CSV row per history event.
func History(w io.Writer, events []reserve.HistoryEvent) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"ID", "TYPE", "DATE", "DEVICES", "BLOCKS",
		"TEACHER", "COURSE", "NOTES", "CREATED_AT",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}

	for _, ev := range events {
		row := []string{
			strconv.FormatInt(ev.ID, 10),
			string(ev.Type),
			ev.Date.String(),
			joinDevices(ev.Devices),
			joinBlocks(ev.Blocks),
			ev.Teacher,
			ev.Course,
			ev.Notes,
			ev.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("error writing CSV data row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Stats writes the monthly rollup: a metric/value summary, then
// per-device and per-block sections.
func Stats(w io.Writer, stats reserve.MonthlyStats) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	rows := [][]string{
		{"METRIC", "VALUE"},
		{"month", stats.Month.String()},
		{"total_reservations", strconv.Itoa(stats.Total)},
	}
	if stats.HasData {
		rows = append(rows,
			[]string{"top_device", strconv.Itoa(int(stats.TopDevice.Device))},
			[]string{"top_device_count", strconv.Itoa(stats.TopDevice.Count)},
			[]string{"top_date", stats.TopDate.Date.String()},
			[]string{"top_date_count", strconv.Itoa(stats.TopDate.Count)},
			[]string{"top_block", string(stats.TopBlock.Block)},
			[]string{"top_block_count", strconv.Itoa(stats.TopBlock.Count)},
			[]string{"utilization_pct", stats.Utilization.StringFixed(2)},
		)
	} else {
		for _, metric := range []string{
			"top_device", "top_device_count", "top_date", "top_date_count",
			"top_block", "top_block_count", "utilization_pct",
		} {
			rows = append(rows, []string{metric, NoData})
		}
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("error writing CSV summary: %w", err)
		}
	}

	if stats.HasData {
		// Blank separator rows keep the sections readable in a
		// spreadsheet without a second sheet.
		if err := cw.Write(nil); err != nil {
			return err
		}
		if err := cw.Write([]string{"DEVICE", "RESERVATIONS"}); err != nil {
			return err
		}
		for _, dc := range stats.ByDevice {
			row := []string{strconv.Itoa(int(dc.Device)), strconv.Itoa(dc.Count)}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("error writing CSV device row: %w", err)
			}
		}

		if err := cw.Write(nil); err != nil {
			return err
		}
		if err := cw.Write([]string{"BLOCK", "RESERVATIONS"}); err != nil {
			return err
		}
		for _, bc := range stats.ByBlock {
			row := []string{string(bc.Block), strconv.Itoa(bc.Count)}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("error writing CSV block row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func joinDevices(devices []reserve.DeviceID) string {
	parts := make([]string, len(devices))
	for i, d := range devices {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, " ")
}

func joinBlocks(blocks []reserve.TimeBlock) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = string(b)
	}
	return strings.Join(parts, "; ")
}
