/*
availability.go - Read-side queries over the ledger

PURPOSE:
  Answers "which devices are taken, which are free" for a date or a
  single slot column. Queries are read-only and snapshot-consistent:
  because reserve/return commit atomically, a query can never observe a
  half-applied batch.

SEE ALSO:
  - engine.go: The write side
  - stats.go:  Monthly rollups
*/
package reserve

import (
	"context"
	"fmt"
	"sort"
)

// IsAvailable reports whether the slot currently has no active
// reservation.
func (e *Engine) IsAvailable(ctx context.Context, slot Slot) (bool, error) {
	if !e.pool.Contains(slot.Device) {
		return false, Invalidf("device", "device %d is outside the pool 1..%d", slot.Device, e.pool.Size())
	}
	if slot.Date.IsZero() {
		return false, Invalid("date", "required")
	}
	if !e.blocks.Contains(slot.Block) {
		return false, Invalidf("block", "unknown block %q", slot.Block)
	}
	rows, err := e.store.ReservationsForBlock(ctx, slot.Date, slot.Block)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", slot, err)
	}
	for _, r := range rows {
		if r.Device == slot.Device {
			return false, nil
		}
	}
	return true, nil
}

// Reserved returns every active reservation on a date, across all
// blocks, ordered by block schedule position then device id.
func (e *Engine) Reserved(ctx context.Context, date Date) ([]Reservation, error) {
	if date.IsZero() {
		return nil, Invalid("date", "required")
	}
	rows, err := e.store.ReservationsOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("listing reservations on %s: %w", date, err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		bi, bj := e.blocks.Index(rows[i].Block), e.blocks.Index(rows[j].Block)
		if bi != bj {
			return bi < bj
		}
		return rows[i].Device < rows[j].Device
	})
	return rows, nil
}

// ReservedForBlock returns the active reservations for one slot column,
// ordered by device id.
func (e *Engine) ReservedForBlock(ctx context.Context, date Date, block TimeBlock) ([]Reservation, error) {
	if date.IsZero() {
		return nil, Invalid("date", "required")
	}
	if !e.blocks.Contains(block) {
		return nil, Invalidf("block", "unknown block %q", block)
	}
	rows, err := e.store.ReservationsForBlock(ctx, date, block)
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", date, block, err)
	}
	return rows, nil
}

// FreeDevices returns the pool devices with no active reservation for
// the slot column, ascending.
func (e *Engine) FreeDevices(ctx context.Context, date Date, block TimeBlock) ([]DeviceID, error) {
	rows, err := e.ReservedForBlock(ctx, date, block)
	if err != nil {
		return nil, err
	}
	taken := make(map[DeviceID]bool, len(rows))
	for _, r := range rows {
		taken[r.Device] = true
	}
	free := make([]DeviceID, 0, e.pool.Size()-len(taken))
	for _, d := range e.pool.IDs() {
		if !taken[d] {
			free = append(free, d)
		}
	}
	return free, nil
}

// History returns up to limit history events, newest first.
// limit <= 0 returns everything.
func (e *Engine) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	events, err := e.store.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return events, nil
}

// HistoryForMonth returns the month's history events, oldest first.
func (e *Engine) HistoryForMonth(ctx context.Context, month MonthKey) ([]HistoryEvent, error) {
	events, err := e.store.EventsInMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", month, err)
	}
	return events, nil
}
