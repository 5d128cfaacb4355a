// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chalkline/tabletpool/reserve"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	devices      int
	reservations map[reserve.Slot]reserve.Reservation
	events       []reserve.HistoryEvent
	nextEventID  int64
	settings     map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		reservations: make(map[reserve.Slot]reserve.Reservation),
		settings:     make(map[string]string),
		nextEventID:  1,
	}
}

// SeedDevices grows the pool to n devices. Never shrinks.
func (m *Memory) SeedDevices(_ context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.devices {
		m.devices = n
	}
	return nil
}

func (m *Memory) DeviceCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices, nil
}

// InsertReservation adds one ledger row, enforcing slot uniqueness.
func (m *Memory) InsertReservation(_ context.Context, r reserve.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(r)
}

func (m *Memory) insertLocked(r reserve.Reservation) error {
	slot := r.Slot()
	if _, exists := m.reservations[slot]; exists {
		return &reserve.SlotConflictError{
			Devices: []reserve.DeviceID{r.Device},
			Date:    r.Date,
			Block:   r.Block,
		}
	}
	m.reservations[slot] = r
	return nil
}

// DeleteReservations removes the given slots; missing slots are skipped.
func (m *Memory) DeleteReservations(_ context.Context, slots []reserve.Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(slots), nil
}

func (m *Memory) deleteLocked(slots []reserve.Slot) int {
	n := 0
	for _, s := range slots {
		if _, exists := m.reservations[s]; exists {
			delete(m.reservations, s)
			n++
		}
	}
	return n
}

func (m *Memory) ReservationsOn(_ context.Context, date reserve.Date) ([]reserve.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date)
	}), nil
}

func (m *Memory) ReservationsForBlock(_ context.Context, date reserve.Date, block reserve.TimeBlock) ([]reserve.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date) && r.Block == block
	}), nil
}

func (m *Memory) ReservationsForDevices(_ context.Context, devices []reserve.DeviceID, date reserve.Date) ([]reserve.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[reserve.DeviceID]bool, len(devices))
	for _, d := range devices {
		want[d] = true
	}
	return m.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date) && want[r.Device]
	}), nil
}

func (m *Memory) ReservationsInMonth(_ context.Context, month reserve.MonthKey) ([]reserve.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r reserve.Reservation) bool {
		return month.Contains(r.Date)
	}), nil
}

// filterLocked scans the ledger and returns matches in deterministic
// (date, block, device) order.
func (m *Memory) filterLocked(keep func(reserve.Reservation) bool) []reserve.Reservation {
	var out []reserve.Reservation
	for _, r := range m.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		return a.Device < b.Device
	})
	return out
}

// AppendEvent adds one history event. Append-only.
func (m *Memory) AppendEvent(_ context.Context, ev reserve.HistoryEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(ev), nil
}

func (m *Memory) appendLocked(ev reserve.HistoryEvent) int64 {
	ev.ID = m.nextEventID
	m.nextEventID++
	m.events = append(m.events, ev)
	return ev.ID
}

func (m *Memory) RecentEvents(_ context.Context, limit int) ([]reserve.HistoryEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]reserve.HistoryEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) EventsInMonth(_ context.Context, month reserve.MonthKey) ([]reserve.HistoryEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reserve.HistoryEvent
	for _, ev := range m.events {
		if month.Contains(ev.Date) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *Memory) PutSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Reset clears the ledger and history, keeping devices and settings.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = make(map[reserve.Slot]reserve.Reservation)
	m.events = nil
	m.nextEventID = 1
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(reserve.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Snapshot current state
	snapshot := tm.snapshot()

	// Create a transactional view
	txStore := &txMemoryView{parent: tm}

	// Execute function
	if err := fn(txStore); err != nil {
		// Rollback
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	resCopy := make(map[reserve.Slot]reserve.Reservation, len(tm.reservations))
	for k, v := range tm.reservations {
		resCopy[k] = v
	}
	evCopy := append([]reserve.HistoryEvent{}, tm.events...)
	return memorySnapshot{
		reservations: resCopy,
		events:       evCopy,
		nextEventID:  tm.nextEventID,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.reservations = s.reservations
	tm.events = s.events
	tm.nextEventID = s.nextEventID
}

type memorySnapshot struct {
	reservations map[reserve.Slot]reserve.Reservation
	events       []reserve.HistoryEvent
	nextEventID  int64
}

// txMemoryView runs Store calls against an already-locked parent so a
// transaction sees its own uncommitted writes.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SeedDevices(_ context.Context, n int) error {
	if n > tv.parent.devices {
		tv.parent.devices = n
	}
	return nil
}

func (tv *txMemoryView) DeviceCount(_ context.Context) (int, error) {
	return tv.parent.devices, nil
}

func (tv *txMemoryView) InsertReservation(_ context.Context, r reserve.Reservation) error {
	return tv.parent.insertLocked(r)
}

func (tv *txMemoryView) DeleteReservations(_ context.Context, slots []reserve.Slot) (int, error) {
	return tv.parent.deleteLocked(slots), nil
}

func (tv *txMemoryView) ReservationsOn(_ context.Context, date reserve.Date) ([]reserve.Reservation, error) {
	return tv.parent.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date)
	}), nil
}

func (tv *txMemoryView) ReservationsForBlock(_ context.Context, date reserve.Date, block reserve.TimeBlock) ([]reserve.Reservation, error) {
	return tv.parent.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date) && r.Block == block
	}), nil
}

func (tv *txMemoryView) ReservationsForDevices(_ context.Context, devices []reserve.DeviceID, date reserve.Date) ([]reserve.Reservation, error) {
	want := make(map[reserve.DeviceID]bool, len(devices))
	for _, d := range devices {
		want[d] = true
	}
	return tv.parent.filterLocked(func(r reserve.Reservation) bool {
		return r.Date.Equal(date) && want[r.Device]
	}), nil
}

func (tv *txMemoryView) ReservationsInMonth(_ context.Context, month reserve.MonthKey) ([]reserve.Reservation, error) {
	return tv.parent.filterLocked(func(r reserve.Reservation) bool {
		return month.Contains(r.Date)
	}), nil
}

func (tv *txMemoryView) AppendEvent(_ context.Context, ev reserve.HistoryEvent) (int64, error) {
	return tv.parent.appendLocked(ev), nil
}

func (tv *txMemoryView) RecentEvents(_ context.Context, limit int) ([]reserve.HistoryEvent, error) {
	out := make([]reserve.HistoryEvent, 0, len(tv.parent.events))
	for i := len(tv.parent.events) - 1; i >= 0; i-- {
		out = append(out, tv.parent.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (tv *txMemoryView) EventsInMonth(_ context.Context, month reserve.MonthKey) ([]reserve.HistoryEvent, error) {
	var out []reserve.HistoryEvent
	for _, ev := range tv.parent.events {
		if month.Contains(ev.Date) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (tv *txMemoryView) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := tv.parent.settings[key]
	return v, ok, nil
}

func (tv *txMemoryView) PutSetting(_ context.Context, key, value string) error {
	tv.parent.settings[key] = value
	return nil
}

func (tv *txMemoryView) Reset(_ context.Context) error {
	tv.parent.reservations = make(map[reserve.Slot]reserve.Reservation)
	tv.parent.events = nil
	tv.parent.nextEventID = 1
	return nil
}
