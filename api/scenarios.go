/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario seeds reservations THROUGH
	the engine, so demo data can never violate the slot uniqueness
	invariant or skip the history log.

AVAILABLE SCENARIOS:

	clean-slate:     Empty ledger and history
	typical-week:    A handful of classes booked across the next school week
	full-house:      Nearly every device taken tomorrow
	month-in-review: Bookings spread over the current month for stats demos

HOW SCENARIOS WORK:
 1. Reset database (clear ledger + history, keep devices and settings)
 2. Replay reserve/return calls against the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"id": "typical-week"}

NOTE:

	Scenarios reset the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared helpers and error mapping
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chalkline/tabletpool/reserve"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "clean-slate",
		Name:        "Clean Slate",
		Description: "Empty ledger and history; devices and settings kept",
	},
	{
		ID:          "typical-week",
		Name:        "Typical Week",
		Description: "Five classes booked across the next school week",
	},
	{
		ID:          "full-house",
		Name:        "Full House",
		Description: "Nearly every device taken on the next school day",
	},
	{
		ID:          "month-in-review",
		Name:        "Month In Review",
		Description: "Bookings spread over the current month for stats and exports",
	},
}

// demo rosters reused by the loaders
var (
	demoTeachers = []string{"Ms. Alvarez", "Mr. Chen", "Mrs. Okafor", "Mr. Novak", "Ms. Laurent"}
	demoCourses  = []string{"Biology 9", "Algebra II", "World History", "English 10", "Chemistry 11"}
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ID {
	case "clean-slate":
		// Nothing to seed.
	case "typical-week":
		err = h.loadTypicalWeekScenario(ctx)
	case "full-house":
		err = h.loadFullHouseScenario(ctx)
	case "month-in-review":
		err = h.loadMonthInReviewScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ID
	h.flushCache()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ID})
}

// ResetDatabase clears the ledger and history.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	h.flushCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// LOADERS
// =============================================================================

// loadTypicalWeekScenario books one class set per teacher across the
// next five school days.
func (h *Handler) loadTypicalWeekScenario(ctx context.Context) error {
	blocks := h.Engine.Blocks().Blocks()
	day := nextSchoolDay(reserve.Today())

	for i := 0; i < 5; i++ {
		base := reserve.DeviceID(i*6 + 1)
		devices := []reserve.DeviceID{base, base + 1, base + 2, base + 3}
		_, err := h.Engine.Reserve(ctx, reserve.ReserveRequest{
			Devices: devices,
			Date:    day,
			Block:   blocks[i%len(blocks)],
			Teacher: demoTeachers[i%len(demoTeachers)],
			Course:  demoCourses[i%len(demoCourses)],
		})
		if err != nil {
			return fmt.Errorf("seeding day %s: %w", day, err)
		}
		day = nextSchoolDay(day.AddDays(1))
	}
	return nil
}

// loadFullHouseScenario takes most of the pool on the next school day
// across the first two blocks, leaving a few devices free so the
// availability view has something to show.
func (h *Handler) loadFullHouseScenario(ctx context.Context) error {
	blocks := h.Engine.Blocks().Blocks()
	day := nextSchoolDay(reserve.Today())
	pool := h.Engine.Pool()

	taken := pool.Size() - 3
	if taken < 1 {
		taken = pool.Size()
	}

	half := taken / 2
	first := make([]reserve.DeviceID, 0, half)
	second := make([]reserve.DeviceID, 0, taken-half)
	for i := 1; i <= taken; i++ {
		if i <= half {
			first = append(first, reserve.DeviceID(i))
		} else {
			second = append(second, reserve.DeviceID(i))
		}
	}

	if _, err := h.Engine.Reserve(ctx, reserve.ReserveRequest{
		Devices: first,
		Date:    day,
		Block:   blocks[0],
		Teacher: demoTeachers[0],
		Course:  demoCourses[0],
	}); err != nil {
		return err
	}
	if len(second) == 0 {
		return nil
	}
	_, err := h.Engine.Reserve(ctx, reserve.ReserveRequest{
		Devices: second,
		Date:    day,
		Block:   blocks[1%len(blocks)],
		Teacher: demoTeachers[1],
		Course:  demoCourses[1],
	})
	return err
}

// loadMonthInReviewScenario spreads bookings over the current month's
// school days, then returns one day so the history shows both event
// types. Reservations on past days are fine; only returns are
// restricted to today and later.
func (h *Handler) loadMonthInReviewScenario(ctx context.Context) error {
	blocks := h.Engine.Blocks().Blocks()
	today := reserve.Today()
	month := today.MonthKey()

	i := 0
	for day := month.First(); month.Contains(day); day = day.AddDays(1) {
		if day.IsWeekend() {
			continue
		}
		base := reserve.DeviceID((i*5)%20 + 1)
		devices := []reserve.DeviceID{base, base + 1, base + 2}
		_, err := h.Engine.Reserve(ctx, reserve.ReserveRequest{
			Devices: devices,
			Date:    day,
			Block:   blocks[i%len(blocks)],
			Teacher: demoTeachers[i%len(demoTeachers)],
			Course:  demoCourses[i%len(demoCourses)],
		})
		if err != nil {
			return fmt.Errorf("seeding %s: %w", day, err)
		}
		i++
	}

	// Return today's devices if any were booked, so the demo history
	// contains a return event with its released-block union.
	held, err := h.Store.ReservationsOn(ctx, today)
	if err != nil || len(held) == 0 || today.IsWeekend() {
		return err
	}
	devices := make([]reserve.DeviceID, 0, len(held))
	for _, r := range held {
		devices = append(devices, r.Device)
	}
	_, err = h.Engine.Return(ctx, reserve.ReturnRequest{
		Devices: devices,
		Date:    today,
		Teacher: demoTeachers[2],
		Notes:   "returned after class",
	})
	if err != nil && !reserve.IsNotFound(err) {
		return err
	}
	return nil
}

// nextSchoolDay returns d, or the following Monday when d falls on a
// weekend.
func nextSchoolDay(d reserve.Date) reserve.Date {
	for d.IsWeekend() {
		d = d.AddDays(1)
	}
	return d
}
