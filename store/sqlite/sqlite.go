/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements reserve.Store and reserve.TxStore using SQLite. The slot
  uniqueness invariant lives here as a UNIQUE index, so even a bug in
  the engine's conflict pre-check cannot commit a double booking.

KEY TABLES:
  devices:        The fixed pool, pre-seeded at startup
  reservations:   Active bookings, one row per slot (delete on return)
  history_events: Append-only audit log (no UPDATE, no DELETE)
  settings:       Operator key/value pairs

INDEXES:
  idx_unique_slot:            UNIQUE(device_id, day, block) - the invariant
  idx_reservations_day:       Availability by date (hot path)
  idx_reservations_day_block: Slot-column conflict checks
  idx_history_day:            Month-ranged history reads

TRANSACTIONS:
  WithTx wraps fn in BEGIN/COMMIT with rollback on error. The Store
  handed to fn runs every query against the open *sql.Tx, so a
  transaction reads its own uncommitted writes - the engine's conflict
  check and the delete-then-append return flow depend on that.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.
  Single writer at a time matches the single-node deployment model.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/tabletpool.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := reserve.NewEngine(store, pool, blocks, policy)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - reserve/store.go:        Interface definitions
  - reserve/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chalkline/tabletpool/reserve"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements reserve.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One shared connection: WAL allows a single writer anyway, and an
	// in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Device pool (pre-seeded, immutable at runtime)
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	-- Active reservations (one row per held slot; deleted on return)
	CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL REFERENCES devices(id),
		day TEXT NOT NULL,
		block TEXT NOT NULL,
		teacher TEXT NOT NULL,
		course TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one active reservation per slot.
	-- Two concurrent bookings of the same (device, day, block) cannot
	-- both commit; the loser gets a constraint error.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_slot
		ON reservations(device_id, day, block);

	CREATE INDEX IF NOT EXISTS idx_reservations_day
		ON reservations(day);
	CREATE INDEX IF NOT EXISTS idx_reservations_day_block
		ON reservations(day, block);

	-- History events (append-only audit log)
	CREATE TABLE IF NOT EXISTS history_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		devices_json TEXT NOT NULL,
		teacher TEXT NOT NULL,
		course TEXT,
		day TEXT NOT NULL,
		blocks_json TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_day
		ON history_events(day);

	-- Operator settings (key/value)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx. Every query helper
// takes one, so the same code path serves direct calls and WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// DEVICE POOL
// =============================================================================

// SeedDevices ensures devices 1..n exist. Idempotent; never shrinks.
func (s *Store) SeedDevices(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedDevicesOn(ctx, s.db, n)
}

func (s *Store) seedDevicesOn(ctx context.Context, q dbtx, n int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for id := 1; id <= n; id++ {
		_, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO devices (id, created_at) VALUES (?, ?)",
			id, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed device %d: %w", id, err)
		}
	}
	return nil
}

// DeviceCount returns the number of seeded devices.
func (s *Store) DeviceCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceCountOn(ctx, s.db)
}

func (s *Store) deviceCountOn(ctx context.Context, q dbtx) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	return count, err
}

// =============================================================================
// LEDGER (active reservations)
// =============================================================================

// InsertReservation adds one ledger row. A collision with the slot
// uniqueness index surfaces as a SlotConflictError.
func (s *Store) InsertReservation(ctx context.Context, r reserve.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertReservationOn(ctx, s.db, r)
}

func (s *Store) insertReservationOn(ctx context.Context, q dbtx, r reserve.Reservation) error {
	query := `
		INSERT INTO reservations (device_id, day, block, teacher, course, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		int(r.Device),
		r.Date.String(),
		string(r.Block),
		r.Teacher,
		nullString(r.Course),
		r.CreatedAt.UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return &reserve.SlotConflictError{
				Devices: []reserve.DeviceID{r.Device},
				Date:    r.Date,
				Block:   r.Block,
			}
		}
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	return nil
}

// DeleteReservations removes the given slots; missing slots are skipped.
func (s *Store) DeleteReservations(ctx context.Context, slots []reserve.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteReservationsOn(ctx, s.db, slots)
}

func (s *Store) deleteReservationsOn(ctx context.Context, q dbtx, slots []reserve.Slot) (int, error) {
	total := 0
	for _, slot := range slots {
		res, err := q.ExecContext(ctx,
			"DELETE FROM reservations WHERE device_id = ? AND day = ? AND block = ?",
			int(slot.Device), slot.Date.String(), string(slot.Block),
		)
		if err != nil {
			return total, fmt.Errorf("failed to delete %s: %w", slot, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// ReservationsOn returns a date's reservations, ordered by block then
// device.
func (s *Store) ReservationsOn(ctx context.Context, date reserve.Date) ([]reserve.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsOnDay(ctx, s.db, date)
}

func (s *Store) reservationsOnDay(ctx context.Context, q dbtx, date reserve.Date) ([]reserve.Reservation, error) {
	query := `
		SELECT device_id, day, block, teacher, course, created_at
		FROM reservations
		WHERE day = ?
		ORDER BY block ASC, device_id ASC
	`
	return s.queryReservations(ctx, q, query, date.String())
}

// ReservationsForBlock returns one slot column's reservations.
func (s *Store) ReservationsForBlock(ctx context.Context, date reserve.Date, block reserve.TimeBlock) ([]reserve.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsForBlockOn(ctx, s.db, date, block)
}

func (s *Store) reservationsForBlockOn(ctx context.Context, q dbtx, date reserve.Date, block reserve.TimeBlock) ([]reserve.Reservation, error) {
	query := `
		SELECT device_id, day, block, teacher, course, created_at
		FROM reservations
		WHERE day = ? AND block = ?
		ORDER BY device_id ASC
	`
	return s.queryReservations(ctx, q, query, date.String(), string(block))
}

// ReservationsForDevices returns what the given devices hold on a date.
func (s *Store) ReservationsForDevices(ctx context.Context, devices []reserve.DeviceID, date reserve.Date) ([]reserve.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsForDevicesOn(ctx, s.db, devices, date)
}

func (s *Store) reservationsForDevicesOn(ctx context.Context, q dbtx, devices []reserve.DeviceID, date reserve.Date) ([]reserve.Reservation, error) {
	if len(devices) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(devices))
	args := make([]any, 0, len(devices)+1)
	args = append(args, date.String())
	for i, d := range devices {
		placeholders[i] = "?"
		args = append(args, int(d))
	}

	query := fmt.Sprintf(`
		SELECT device_id, day, block, teacher, course, created_at
		FROM reservations
		WHERE day = ? AND device_id IN (%s)
		ORDER BY block ASC, device_id ASC
	`, strings.Join(placeholders, ", "))

	return s.queryReservations(ctx, q, query, args...)
}

// ReservationsInMonth returns the month's reservations for statistics.
func (s *Store) ReservationsInMonth(ctx context.Context, month reserve.MonthKey) ([]reserve.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsInMonthOn(ctx, s.db, month)
}

func (s *Store) reservationsInMonthOn(ctx context.Context, q dbtx, month reserve.MonthKey) ([]reserve.Reservation, error) {
	// ISO dates compare lexicographically, so a string range scan is a
	// correct month filter.
	query := `
		SELECT device_id, day, block, teacher, course, created_at
		FROM reservations
		WHERE day >= ? AND day < ?
		ORDER BY day ASC, block ASC, device_id ASC
	`
	return s.queryReservations(ctx, q, query,
		month.First().String(), month.Next().First().String())
}

func (s *Store) queryReservations(ctx context.Context, q dbtx, query string, args ...any) ([]reserve.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []reserve.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}

	return reservations, rows.Err()
}

func scanReservation(rows *sql.Rows) (reserve.Reservation, error) {
	var (
		r         reserve.Reservation
		deviceID  int
		day       string
		block     string
		course    sql.NullString
		createdAt string
	)

	err := rows.Scan(&deviceID, &day, &block, &r.Teacher, &course, &createdAt)
	if err != nil {
		return r, fmt.Errorf("failed to scan reservation: %w", err)
	}

	r.Device = reserve.DeviceID(deviceID)
	r.Date, err = reserve.ParseDate(day)
	if err != nil {
		return r, fmt.Errorf("failed to scan reservation day: %w", err)
	}
	r.Block = reserve.TimeBlock(block)
	r.Course = course.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return r, nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

// AppendEvent writes one history event and returns its id.
func (s *Store) AppendEvent(ctx context.Context, ev reserve.HistoryEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEventOn(ctx, s.db, ev)
}

func (s *Store) appendEventOn(ctx context.Context, q dbtx, ev reserve.HistoryEvent) (int64, error) {
	devicesJSON, _ := json.Marshal(ev.Devices)
	blocksJSON, _ := json.Marshal(ev.Blocks)

	query := `
		INSERT INTO history_events
		(event_type, devices_json, teacher, course, day, blocks_json, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := q.ExecContext(ctx, query,
		string(ev.Type),
		string(devicesJSON),
		ev.Teacher,
		nullString(ev.Course),
		ev.Date.String(),
		string(blocksJSON),
		nullString(ev.Notes),
		ev.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]reserve.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentEventsOn(ctx, s.db, limit)
}

func (s *Store) recentEventsOn(ctx context.Context, q dbtx, limit int) ([]reserve.HistoryEvent, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as "no limit".
		limit = -1
	}
	query := `
		SELECT id, event_type, devices_json, teacher, course, day, blocks_json, notes, created_at
		FROM history_events
		ORDER BY id DESC
		LIMIT ?
	`
	return s.queryEvents(ctx, q, query, limit)
}

// EventsInMonth returns the month's events, oldest first.
func (s *Store) EventsInMonth(ctx context.Context, month reserve.MonthKey) ([]reserve.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsInMonthOn(ctx, s.db, month)
}

func (s *Store) eventsInMonthOn(ctx context.Context, q dbtx, month reserve.MonthKey) ([]reserve.HistoryEvent, error) {
	query := `
		SELECT id, event_type, devices_json, teacher, course, day, blocks_json, notes, created_at
		FROM history_events
		WHERE day >= ? AND day < ?
		ORDER BY id ASC
	`
	return s.queryEvents(ctx, q, query,
		month.First().String(), month.Next().First().String())
}

func (s *Store) queryEvents(ctx context.Context, q dbtx, query string, args ...any) ([]reserve.HistoryEvent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []reserve.HistoryEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (reserve.HistoryEvent, error) {
	var (
		ev          reserve.HistoryEvent
		eventType   string
		devicesJSON string
		course      sql.NullString
		day         string
		blocksJSON  string
		notes       sql.NullString
		createdAt   string
	)

	err := rows.Scan(&ev.ID, &eventType, &devicesJSON, &ev.Teacher, &course,
		&day, &blocksJSON, &notes, &createdAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.Type = reserve.EventType(eventType)
	if err := json.Unmarshal([]byte(devicesJSON), &ev.Devices); err != nil {
		return ev, fmt.Errorf("failed to decode event devices: %w", err)
	}
	if err := json.Unmarshal([]byte(blocksJSON), &ev.Blocks); err != nil {
		return ev, fmt.Errorf("failed to decode event blocks: %w", err)
	}
	ev.Course = course.String
	ev.Date, err = reserve.ParseDate(day)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event day: %w", err)
	}
	ev.Notes = notes.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return ev, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSetting returns the value for key and whether it was set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSettingOn(ctx, s.db, key)
}

func (s *Store) getSettingOn(ctx context.Context, q dbtx, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

// PutSetting upserts one key/value pair.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSettingOn(ctx, s.db, key, value)
}

func (s *Store) putSettingOn(ctx context.Context, q dbtx, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query, key, value,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears the ledger and history, keeping devices and settings.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetOn(ctx, s.db)
}

func (s *Store) resetOn(ctx context.Context, q dbtx) error {
	for _, table := range []string{"reservations", "history_events"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (reserve.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store reserve.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{q: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every Store call against the open *sql.Tx, so the
// transaction observes its own uncommitted writes.
type txStore struct {
	q      *sql.Tx
	parent *Store
}

func (ts *txStore) SeedDevices(ctx context.Context, n int) error {
	return ts.parent.seedDevicesOn(ctx, ts.q, n)
}

func (ts *txStore) DeviceCount(ctx context.Context) (int, error) {
	return ts.parent.deviceCountOn(ctx, ts.q)
}

func (ts *txStore) InsertReservation(ctx context.Context, r reserve.Reservation) error {
	return ts.parent.insertReservationOn(ctx, ts.q, r)
}

func (ts *txStore) DeleteReservations(ctx context.Context, slots []reserve.Slot) (int, error) {
	return ts.parent.deleteReservationsOn(ctx, ts.q, slots)
}

func (ts *txStore) ReservationsOn(ctx context.Context, date reserve.Date) ([]reserve.Reservation, error) {
	return ts.parent.reservationsOnDay(ctx, ts.q, date)
}

func (ts *txStore) ReservationsForBlock(ctx context.Context, date reserve.Date, block reserve.TimeBlock) ([]reserve.Reservation, error) {
	return ts.parent.reservationsForBlockOn(ctx, ts.q, date, block)
}

func (ts *txStore) ReservationsForDevices(ctx context.Context, devices []reserve.DeviceID, date reserve.Date) ([]reserve.Reservation, error) {
	return ts.parent.reservationsForDevicesOn(ctx, ts.q, devices, date)
}

func (ts *txStore) ReservationsInMonth(ctx context.Context, month reserve.MonthKey) ([]reserve.Reservation, error) {
	return ts.parent.reservationsInMonthOn(ctx, ts.q, month)
}

func (ts *txStore) AppendEvent(ctx context.Context, ev reserve.HistoryEvent) (int64, error) {
	return ts.parent.appendEventOn(ctx, ts.q, ev)
}

func (ts *txStore) RecentEvents(ctx context.Context, limit int) ([]reserve.HistoryEvent, error) {
	return ts.parent.recentEventsOn(ctx, ts.q, limit)
}

func (ts *txStore) EventsInMonth(ctx context.Context, month reserve.MonthKey) ([]reserve.HistoryEvent, error) {
	return ts.parent.eventsInMonthOn(ctx, ts.q, month)
}

func (ts *txStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return ts.parent.getSettingOn(ctx, ts.q, key)
}

func (ts *txStore) PutSetting(ctx context.Context, key, value string) error {
	return ts.parent.putSettingOn(ctx, ts.q, key, value)
}

func (ts *txStore) Reset(ctx context.Context) error {
	return ts.parent.resetOn(ctx, ts.q)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
