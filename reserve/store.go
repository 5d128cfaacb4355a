/*
store.go - Persistence interface for the reservation ledger

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store keeps two tables with different contracts: the ledger of
  active reservations (insert/delete, slot-unique) and the history log
  (append-only, never edited). Different implementations can use SQLite
  or in-memory storage.

KEY INTERFACES:
  Store:   Ledger + history + settings persistence
  TxStore: Store plus WithTx for atomic multi-write transactions

LEDGER CONTRACT:
  - InsertReservation enforces slot uniqueness: a second insert for the
    same (device, date, block) fails with ErrSlotTaken.
  - DeleteReservations removes slots on return; the ledger holds only
    ACTIVE bookings, so reads never need an "is returned" filter.

HISTORY CONTRACT:
  The history log is APPEND-ONLY. AppendEvent is the only write; no
  Update or Delete methods exist. Corrections happen by appending the
  compensating event, never by editing the log.

ATOMIC TRANSACTIONS:
  Reserve and Return each touch both tables (ledger + history). WithTx
  makes those writes all-or-nothing: a 6-device batch either fully
  commits or leaves no trace.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:   Production SQLite
  - reserve/store/memory.go:  In-memory for testing

SEE ALSO:
  - engine.go: The only component that writes through this interface
*/
package reserve

import "context"

// =============================================================================
// STORE - Ledger, history, and settings persistence
// =============================================================================

// Store handles persistence for the reservation ledger, the history log,
// the device pool, and operator settings.
type Store interface {
	// -------------------------------------------------------------------------
	// Device pool
	// -------------------------------------------------------------------------

	// SeedDevices ensures devices 1..n exist. Idempotent; never shrinks
	// the pool.
	SeedDevices(ctx context.Context, n int) error

	// DeviceCount returns the number of seeded devices.
	DeviceCount(ctx context.Context) (int, error)

	// -------------------------------------------------------------------------
	// Ledger (active reservations, slot-unique)
	// -------------------------------------------------------------------------

	// InsertReservation writes one active reservation. Fails with an
	// ErrSlotTaken-wrapped error if the slot is already held.
	InsertReservation(ctx context.Context, r Reservation) error

	// DeleteReservations removes the given slots from the ledger and
	// returns how many rows existed. Missing slots are not an error.
	DeleteReservations(ctx context.Context, slots []Slot) (int, error)

	// ReservationsOn returns every active reservation for a date,
	// ordered by block name then device id. Schedule ordering is the
	// caller's concern; the store does not know the block schedule.
	ReservationsOn(ctx context.Context, date Date) ([]Reservation, error)

	// ReservationsForBlock returns active reservations for one slot
	// column (date + block), ordered by device id.
	ReservationsForBlock(ctx context.Context, date Date, block TimeBlock) ([]Reservation, error)

	// ReservationsForDevices returns the active reservations held by
	// any of the given devices on a date, across all blocks.
	ReservationsForDevices(ctx context.Context, devices []DeviceID, date Date) ([]Reservation, error)

	// ReservationsInMonth returns every active reservation whose date
	// falls in the month. Feeds the statistics aggregator.
	ReservationsInMonth(ctx context.Context, month MonthKey) ([]Reservation, error)

	// -------------------------------------------------------------------------
	// History (append-only)
	// -------------------------------------------------------------------------

	// AppendEvent writes one history event and returns its id.
	// This is the ONLY history write operation.
	AppendEvent(ctx context.Context, ev HistoryEvent) (int64, error)

	// RecentEvents returns up to limit events, newest first.
	// limit <= 0 means no limit.
	RecentEvents(ctx context.Context, limit int) ([]HistoryEvent, error)

	// EventsInMonth returns events dated within the month, oldest first.
	EventsInMonth(ctx context.Context, month MonthKey) ([]HistoryEvent, error)

	// -------------------------------------------------------------------------
	// Settings (small operator-tunable key/value pairs)
	// -------------------------------------------------------------------------

	// GetSetting returns the value for key and whether it was set.
	GetSetting(ctx context.Context, key string) (string, bool, error)

	// PutSetting upserts one key/value pair.
	PutSetting(ctx context.Context, key, value string) error

	// -------------------------------------------------------------------------
	// Maintenance
	// -------------------------------------------------------------------------

	// Reset clears the ledger and history but keeps devices and
	// settings. Used by the demo scenario loader.
	Reset(ctx context.Context) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Reserve and Return must run inside WithTx so that ledger writes and
// the matching history event commit together.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. The Store passed to fn
	// sees the transaction's own uncommitted writes.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
