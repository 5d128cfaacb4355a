/*
stats.go - Monthly usage rollups

PURPOSE:
  Aggregates the ledger's ACTIVE reservations for one calendar month
  into counts per device, per date, and per block, plus a utilization
  percentage against pool capacity. History events are deliberately not
  the input: statistics describe what is booked, and a returned day is
  no longer booked.

NO-DATA SENTINEL:
  A month with zero reservations yields MonthlyStats with HasData=false
  and zero-valued aggregates. Callers render "no data"; they never see
  an error or a division by zero for an empty month.

TIE-BREAKING (deterministic):
  - Device: highest count, then lowest device id
  - Date:   highest count, then earliest date
  - Block:  highest count, then schedule order

SEE ALSO:
  - availability.go: Point-in-time reads
  - export/csv.go:   Spreadsheet rendering of these rollups
*/
package reserve

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// DeviceCount pairs a device with its reservation count.
type DeviceCount struct {
	Device DeviceID
	Count  int
}

// DateCount pairs a date with its reservation count.
type DateCount struct {
	Date  Date
	Count int
}

// BlockCount pairs a block with its reservation count.
type BlockCount struct {
	Block TimeBlock
	Count int
}

// MonthlyStats is the aggregate over one month's active reservations.
// When HasData is false every other aggregate is zero-valued and must
// be rendered as "no data", never dereferenced.
type MonthlyStats struct {
	Month   MonthKey
	HasData bool

	// Total counts active reservations (ledger rows) in the month.
	Total int

	TopDevice DeviceCount
	TopDate   DateCount
	TopBlock  BlockCount

	// Utilization is Total against full pool capacity for the month's
	// school days, as a percentage with two decimal places.
	Utilization decimal.Decimal

	// ByDevice lists devices with at least one reservation,
	// count descending then device id ascending.
	ByDevice []DeviceCount

	// ByBlock lists blocks with at least one reservation,
	// in schedule order.
	ByBlock []BlockCount
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Stats rolls up the month's active reservations.
func (e *Engine) Stats(ctx context.Context, month MonthKey) (MonthlyStats, error) {
	rows, err := e.store.ReservationsInMonth(ctx, month)
	if err != nil {
		return MonthlyStats{}, fmt.Errorf("loading reservations for %s: %w", month, err)
	}

	stats := MonthlyStats{Month: month, Utilization: decimal.Zero}
	if len(rows) == 0 {
		return stats, nil
	}
	stats.HasData = true
	stats.Total = len(rows)

	byDevice := make(map[DeviceID]int)
	byDate := make(map[Date]int)
	byBlock := make(map[TimeBlock]int)
	for _, r := range rows {
		byDevice[r.Device]++
		byDate[r.Date]++
		byBlock[r.Block]++
	}

	stats.ByDevice = make([]DeviceCount, 0, len(byDevice))
	for d, n := range byDevice {
		stats.ByDevice = append(stats.ByDevice, DeviceCount{Device: d, Count: n})
	}
	sort.Slice(stats.ByDevice, func(i, j int) bool {
		a, b := stats.ByDevice[i], stats.ByDevice[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Device < b.Device
	})
	stats.TopDevice = stats.ByDevice[0]

	dates := make([]DateCount, 0, len(byDate))
	for d, n := range byDate {
		dates = append(dates, DateCount{Date: d, Count: n})
	}
	sort.Slice(dates, func(i, j int) bool {
		a, b := dates[i], dates[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Date.Before(b.Date)
	})
	stats.TopDate = dates[0]

	stats.ByBlock = make([]BlockCount, 0, len(byBlock))
	for b, n := range byBlock {
		stats.ByBlock = append(stats.ByBlock, BlockCount{Block: b, Count: n})
	}
	sort.Slice(stats.ByBlock, func(i, j int) bool {
		return e.blocks.Index(stats.ByBlock[i].Block) < e.blocks.Index(stats.ByBlock[j].Block)
	})
	top := stats.ByBlock[0]
	for _, bc := range stats.ByBlock[1:] {
		if bc.Count > top.Count {
			top = bc
		}
	}
	stats.TopBlock = top

	stats.Utilization = e.utilization(month, stats.Total)
	return stats, nil
}

// utilization computes Total / (pool size * blocks * school days) as a
// percentage, two decimal places. Returns zero when capacity is zero.
func (e *Engine) utilization(month MonthKey, total int) decimal.Decimal {
	days := e.schoolDays(month)
	capacity := int64(e.pool.Size()) * int64(e.blocks.Len()) * int64(days)
	if capacity == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(total)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(capacity)).
		Round(2)
}

// schoolDays counts the month's bookable days under current policy.
func (e *Engine) schoolDays(month MonthKey) int {
	if !e.Policy().WeekdaysOnly {
		return month.Days()
	}
	n := 0
	for d := month.First(); month.Contains(d); d = d.AddDays(1) {
		if !d.IsWeekend() {
			n++
		}
	}
	return n
}
