package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkline/tabletpool/reserve"
	"github.com/chalkline/tabletpool/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march10 = reserve.NewDate(2026, time.March, 10)
	march11 = reserve.NewDate(2026, time.March, 11)
	march   = reserve.MonthKey{Year: 2026, Month: time.March}
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SeedDevices(context.Background(), 60))
	return store
}

func res(device int, date reserve.Date, block, teacher string) reserve.Reservation {
	return reserve.Reservation{
		Device:    reserve.DeviceID(device),
		Date:      date,
		Block:     reserve.TimeBlock(block),
		Teacher:   teacher,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// =============================================================================
// UNIQUENESS CONSTRAINT TESTS
// =============================================================================

func TestSQLite_UniqueSlot_Enforced(t *testing.T) {
	// This bypasses the engine's conflict pre-check to verify that the
	// database itself enforces slot uniqueness. It is the last line of
	// defense against races the pre-check cannot see.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(7, march10, "1st period", "Ms. Alvarez")))

	err := store.InsertReservation(ctx, res(7, march10, "1st period", "Mr. Chen"))
	require.Error(t, err)
	assert.True(t, reserve.IsConflict(err), "constraint violation should map to a slot conflict")

	var conflict *reserve.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []reserve.DeviceID{7}, conflict.Devices)
}

func TestSQLite_UniqueSlot_ScopedToSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(7, march10, "1st period", "Ms. Alvarez")))

	// Different block, different device, different day: all fine
	require.NoError(t, store.InsertReservation(ctx, res(7, march10, "lunch", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(8, march10, "1st period", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(7, march11, "1st period", "Ms. Alvarez")))
}

// =============================================================================
// LEDGER QUERY TESTS
// =============================================================================

func TestSQLite_Reservation_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := res(5, march10, "lunch", "Ms. Alvarez")
	want.Course = "Biology 9"
	require.NoError(t, store.InsertReservation(ctx, want))

	rows, err := store.ReservationsOn(ctx, march10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, want.Device, got.Device)
	assert.True(t, got.Date.Equal(march10))
	assert.Equal(t, want.Block, got.Block)
	assert.Equal(t, "Ms. Alvarez", got.Teacher)
	assert.Equal(t, "Biology 9", got.Course)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
}

func TestSQLite_Reservation_EmptyCourse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(5, march10, "lunch", "Ms. Alvarez")))

	rows, err := store.ReservationsOn(ctx, march10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Course)
}

func TestSQLite_ReservationsForDevices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(1, march10, "1st period", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, march10, "lunch", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(2, march10, "1st period", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, march11, "1st period", "Ms. Alvarez")))

	rows, err := store.ReservationsForDevices(ctx, []reserve.DeviceID{1, 3}, march10)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "device 1 holds two blocks; device 3 holds nothing")

	none, err := store.ReservationsForDevices(ctx, nil, march10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_MonthRange(t *testing.T) {
	// The month filter is a lexicographic range scan over ISO dates;
	// both edges matter.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(1, reserve.NewDate(2026, time.February, 28), "am", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, reserve.NewDate(2026, time.March, 1), "am", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, reserve.NewDate(2026, time.March, 31), "am", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, reserve.NewDate(2026, time.April, 1), "am", "Ms. Alvarez")))

	rows, err := store.ReservationsInMonth(ctx, march)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Date.Equal(reserve.NewDate(2026, time.March, 1)))
	assert.True(t, rows[1].Date.Equal(reserve.NewDate(2026, time.March, 31)))
}

func TestSQLite_DeleteReservations_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertReservation(ctx, res(1, march10, "am", "Ms. Alvarez")))
	require.NoError(t, store.InsertReservation(ctx, res(1, march10, "pm", "Ms. Alvarez")))

	n, err := store.DeleteReservations(ctx, []reserve.Slot{
		{Device: 1, Date: march10, Block: "am"},
		{Device: 1, Date: march10, Block: "pm"},
		{Device: 2, Date: march10, Block: "am"}, // never existed
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestSQLite_Event_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	id, err := store.AppendEvent(ctx, reserve.HistoryEvent{
		Type:      reserve.EventReturn,
		Devices:   []reserve.DeviceID{3, 5, 9},
		Teacher:   "Mr. Chen",
		Course:    "Algebra II",
		Date:      march10,
		Blocks:    []reserve.TimeBlock{"1st period", "lunch"},
		Notes:     "cart restocked",
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	events, err := store.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, reserve.EventReturn, ev.Type)
	assert.Equal(t, []reserve.DeviceID{3, 5, 9}, ev.Devices)
	assert.Equal(t, "Mr. Chen", ev.Teacher)
	assert.Equal(t, "Algebra II", ev.Course)
	assert.True(t, ev.Date.Equal(march10))
	assert.Equal(t, []reserve.TimeBlock{"1st period", "lunch"}, ev.Blocks)
	assert.Equal(t, "cart restocked", ev.Notes)
	assert.True(t, ev.CreatedAt.Equal(now))
}

func TestSQLite_RecentEvents_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := store.AppendEvent(ctx, reserve.HistoryEvent{
			Type: reserve.EventReserve, Devices: []reserve.DeviceID{1},
			Teacher: "Ms. Alvarez", Date: march10,
			Blocks: []reserve.TimeBlock{"am"}, CreatedAt: time.Now(),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	events, err := store.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ids[4], events[0].ID)
	assert.Equal(t, ids[2], events[2].ID)

	all, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "limit <= 0 returns everything")
}

func TestSQLite_EventsInMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dates := []reserve.Date{
		reserve.NewDate(2026, time.February, 28),
		march10,
		march11,
		reserve.NewDate(2026, time.April, 1),
	}
	for _, d := range dates {
		_, err := store.AppendEvent(ctx, reserve.HistoryEvent{
			Type: reserve.EventReserve, Devices: []reserve.DeviceID{1},
			Teacher: "Ms. Alvarez", Date: d,
			Blocks: []reserve.TimeBlock{"am"}, CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	events, err := store.EventsInMonth(ctx, march)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Date.Equal(march10), "oldest first")
	assert.True(t, events[1].Date.Equal(march11))
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestSQLite_WithTx_Commit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s reserve.Store) error {
		if err := s.InsertReservation(ctx, res(1, march10, "am", "Ms. Alvarez")); err != nil {
			return err
		}
		_, err := s.AppendEvent(ctx, reserve.HistoryEvent{
			Type: reserve.EventReserve, Devices: []reserve.DeviceID{1},
			Teacher: "Ms. Alvarez", Date: march10,
			Blocks: []reserve.TimeBlock{"am"}, CreatedAt: time.Now(),
		})
		return err
	})
	require.NoError(t, err)

	rows, err := store.ReservationsOn(ctx, march10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	events, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLite_WithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a row and an event, then fails
	// WHEN: WithTx surfaces the error
	// THEN: Neither write is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s reserve.Store) error {
		if err := s.InsertReservation(ctx, res(1, march10, "am", "Ms. Alvarez")); err != nil {
			return err
		}
		if _, err := s.AppendEvent(ctx, reserve.HistoryEvent{
			Type: reserve.EventReserve, Devices: []reserve.DeviceID{1},
			Teacher: "Ms. Alvarez", Date: march10,
			Blocks: []reserve.TimeBlock{"am"}, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := store.ReservationsOn(ctx, march10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	events, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLite_WithTx_ReadsOwnWrites(t *testing.T) {
	// The engine's conflict pre-check queries inside the transaction
	// that also inserts; those reads must see uncommitted rows.

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s reserve.Store) error {
		if err := s.InsertReservation(ctx, res(1, march10, "am", "Ms. Alvarez")); err != nil {
			return err
		}
		rows, err := s.ReservationsForBlock(ctx, march10, "am")
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return errors.New("uncommitted insert not visible inside the transaction")
		}
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// SETTINGS, SEEDING, RESET
// =============================================================================

func TestSQLite_Settings_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetSetting(ctx, "policy.allow_weekends")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutSetting(ctx, "policy.allow_weekends", "false"))
	require.NoError(t, store.PutSetting(ctx, "policy.allow_weekends", "true"))

	v, ok, err := store.GetSetting(ctx, "policy.allow_weekends")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestSQLite_SeedDevices_Idempotent(t *testing.T) {
	store := newTestStore(t) // seeds 60
	ctx := context.Background()

	require.NoError(t, store.SeedDevices(ctx, 60))
	require.NoError(t, store.SeedDevices(ctx, 10))

	count, err := store.DeviceCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, count, "seeding never shrinks the pool")
}

func TestSQLite_Reset_KeepsDevicesAndSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSetting(ctx, "policy.max_batch_size", "10"))
	require.NoError(t, store.InsertReservation(ctx, res(1, march10, "am", "Ms. Alvarez")))
	_, err := store.AppendEvent(ctx, reserve.HistoryEvent{
		Type: reserve.EventReserve, Devices: []reserve.DeviceID{1},
		Teacher: "Ms. Alvarez", Date: march10,
		Blocks: []reserve.TimeBlock{"am"}, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	rows, err := store.ReservationsOn(ctx, march10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	events, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	count, err := store.DeviceCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, count)

	v, ok, err := store.GetSetting(ctx, "policy.max_batch_size")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10", v)
}

// =============================================================================
// ENGINE INTEGRATION
// =============================================================================

func TestSQLite_EngineEndToEnd(t *testing.T) {
	// Full reserve -> conflict -> return cycle through the engine over
	// the SQLite store, exercising the transactional wiring.

	store := newTestStore(t)
	ctx := context.Background()

	blocks, err := reserve.NewBlockSet(reserve.DefaultBlockNames())
	require.NoError(t, err)
	engine := reserve.NewEngine(store, reserve.NewPool(60), blocks,
		reserve.Policy{WeekdaysOnly: false, MaxBatch: reserve.DefaultMaxBatch})

	today := reserve.Today()

	_, err = engine.Reserve(ctx, reserve.ReserveRequest{
		Devices: []reserve.DeviceID{3, 5}, Date: today, Block: "1st period",
		Teacher: "Ms. Alvarez", Course: "Biology 9",
	})
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, reserve.ReserveRequest{
		Devices: []reserve.DeviceID{5}, Date: today, Block: "1st period",
		Teacher: "Mr. Chen",
	})
	require.Error(t, err)
	assert.True(t, reserve.IsConflict(err))

	res, err := engine.Return(ctx, reserve.ReturnRequest{
		Devices: []reserve.DeviceID{3, 5}, Date: today, Teacher: "Ms. Alvarez",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Released)

	free, err := engine.FreeDevices(ctx, today, "1st period")
	require.NoError(t, err)
	assert.Len(t, free, 60)

	events, err := engine.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2, "one reserve + one return event")
}
