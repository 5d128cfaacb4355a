package reserve_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkline/tabletpool/reserve"
	"github.com/chalkline/tabletpool/reserve/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march2026 = reserve.MonthKey{Year: 2026, Month: time.March}

// insertRes seeds one ledger row directly, bypassing engine validation,
// so stats fixtures are independent of booking policy and the calendar.
func insertRes(t *testing.T, st *store.TxMemory, device int, date reserve.Date, block reserve.TimeBlock) {
	t.Helper()
	require.NoError(t, st.InsertReservation(context.Background(), reserve.Reservation{
		Device:    reserve.DeviceID(device),
		Date:      date,
		Block:     block,
		Teacher:   "Ms. Alvarez",
		CreatedAt: time.Now(),
	}))
}

func newStatsEngine(t *testing.T, poolSize int, blockNames []string, policy reserve.Policy) (*reserve.Engine, *store.TxMemory) {
	t.Helper()
	blocks, err := reserve.NewBlockSet(blockNames)
	require.NoError(t, err)
	st := store.NewTxMemory()
	return reserve.NewEngine(st, reserve.NewPool(poolSize), blocks, policy), st
}

// =============================================================================
// NO-DATA SENTINEL TESTS
// =============================================================================

func TestStats_EmptyMonth_NoData(t *testing.T) {
	// GIVEN: A month with zero reservations
	// WHEN: Computing stats
	// THEN: HasData is false, aggregates are zero; never an error

	engine, _ := newTestEngine(t)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)

	assert.False(t, stats.HasData)
	assert.Equal(t, march2026, stats.Month)
	assert.Zero(t, stats.Total)
	assert.True(t, stats.Utilization.IsZero())
	assert.Empty(t, stats.ByDevice)
	assert.Empty(t, stats.ByBlock)
}

func TestStats_ReturnedMonth_NoData(t *testing.T) {
	// Stats count what is booked. A fully returned month reads as no
	// data even though its history is non-empty.

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	day := futureSchoolDay(1)

	reserveOn(t, engine, devs(1, 2), day, firstPeriod)
	_, err := engine.Return(ctx, reserve.ReturnRequest{
		Devices: devs(1, 2), Date: day, Teacher: "Ms. Alvarez",
	})
	require.NoError(t, err)

	stats, err := engine.Stats(ctx, day.MonthKey())
	require.NoError(t, err)
	assert.False(t, stats.HasData)

	events, err := engine.HistoryForMonth(ctx, day.MonthKey())
	require.NoError(t, err)
	assert.Len(t, events, 2, "history survives the return")
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestStats_CountsPerDeviceAndBlock(t *testing.T) {
	engine, st := newTestEngine(t)

	insertRes(t, st, 1, march10, firstPeriod)
	insertRes(t, st, 1, march10, lunchBlock)
	insertRes(t, st, 1, march11, firstPeriod)
	insertRes(t, st, 2, march10, firstPeriod)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)

	assert.True(t, stats.HasData)
	assert.Equal(t, 4, stats.Total)

	assert.Equal(t, reserve.DeviceCount{Device: 1, Count: 3}, stats.TopDevice)
	assert.Equal(t, []reserve.DeviceCount{
		{Device: 1, Count: 3},
		{Device: 2, Count: 1},
	}, stats.ByDevice)

	assert.Equal(t, reserve.BlockCount{Block: firstPeriod, Count: 3}, stats.TopBlock)
	assert.Equal(t, []reserve.BlockCount{
		{Block: firstPeriod, Count: 3},
		{Block: lunchBlock, Count: 1},
	}, stats.ByBlock, "ByBlock follows schedule order")

	assert.Equal(t, reserve.DateCount{Date: march10, Count: 3}, stats.TopDate)
}

func TestStats_IgnoresOtherMonths(t *testing.T) {
	engine, st := newTestEngine(t)

	insertRes(t, st, 1, march10, firstPeriod)
	insertRes(t, st, 1, reserve.NewDate(2026, time.April, 1), firstPeriod)
	insertRes(t, st, 1, reserve.NewDate(2026, time.February, 27), firstPeriod)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

// =============================================================================
// TIE-BREAKING TESTS
// =============================================================================

func TestStats_DeviceTie_LowestIDWins(t *testing.T) {
	engine, st := newTestEngine(t)

	insertRes(t, st, 5, march10, firstPeriod)
	insertRes(t, st, 5, march11, firstPeriod)
	insertRes(t, st, 3, march10, lunchBlock)
	insertRes(t, st, 3, march11, lunchBlock)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)

	assert.Equal(t, reserve.DeviceID(3), stats.TopDevice.Device)
	assert.Equal(t, 2, stats.TopDevice.Count)
}

func TestStats_DateTie_EarliestWins(t *testing.T) {
	engine, st := newTestEngine(t)

	insertRes(t, st, 1, march11, firstPeriod)
	insertRes(t, st, 2, march11, firstPeriod)
	insertRes(t, st, 1, march10, firstPeriod)
	insertRes(t, st, 2, march10, firstPeriod)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)

	assert.Equal(t, march10, stats.TopDate.Date)
}

func TestStats_BlockTie_ScheduleOrderWins(t *testing.T) {
	engine, st := newTestEngine(t)

	insertRes(t, st, 1, march10, lunchBlock)
	insertRes(t, st, 2, march10, lunchBlock)
	insertRes(t, st, 1, march10, firstPeriod)
	insertRes(t, st, 2, march10, firstPeriod)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)

	assert.Equal(t, firstPeriod, stats.TopBlock.Block,
		"tied blocks resolve to the earlier schedule position")
}

// =============================================================================
// UTILIZATION TESTS
// =============================================================================

func TestStats_Utilization_WeekdaysOnly(t *testing.T) {
	// March 2026 has 22 weekdays. Pool of 2 devices x 2 blocks gives a
	// capacity of 88 slots; 22 booked slots is exactly 25%.

	engine, st := newStatsEngine(t, 2, []string{"am", "pm"},
		reserve.Policy{WeekdaysOnly: true, MaxBatch: reserve.DefaultMaxBatch})

	n := 0
	for d := march2026.First(); march2026.Contains(d) && n < 22; d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		insertRes(t, st, 1, d, "am")
		insertRes(t, st, 2, d, "pm")
		n += 2
	}
	require.Equal(t, 22, n)

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)
	assert.True(t, stats.Utilization.Equal(decimal.NewFromInt(25)),
		"expected 25, got %s", stats.Utilization)
}

func TestStats_Utilization_Rounding(t *testing.T) {
	// 4 of 88 slots = 4.5454...% rounds to 4.55

	engine, st := newStatsEngine(t, 2, []string{"am", "pm"},
		reserve.Policy{WeekdaysOnly: true, MaxBatch: reserve.DefaultMaxBatch})

	insertRes(t, st, 1, march10, "am")
	insertRes(t, st, 1, march10, "pm")
	insertRes(t, st, 2, march10, "am")
	insertRes(t, st, 2, march11, "am")

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)
	assert.True(t, stats.Utilization.Equal(decimal.RequireFromString("4.55")),
		"expected 4.55, got %s", stats.Utilization)
}

func TestStats_Utilization_AllDaysWhenWeekendsAllowed(t *testing.T) {
	// With weekends bookable the denominator covers all 31 March days:
	// capacity 2 x 2 x 31 = 124, so 31 slots is 25%.

	engine, st := newStatsEngine(t, 2, []string{"am", "pm"},
		reserve.Policy{WeekdaysOnly: false, MaxBatch: reserve.DefaultMaxBatch})

	for d := march2026.First(); march2026.Contains(d); d = d.AddDays(1) {
		insertRes(t, st, 1, d, "am")
	}

	stats, err := engine.Stats(context.Background(), march2026)
	require.NoError(t, err)
	assert.Equal(t, 31, stats.Total)
	assert.True(t, stats.Utilization.Equal(decimal.NewFromInt(25)),
		"expected 25, got %s", stats.Utilization)
}
