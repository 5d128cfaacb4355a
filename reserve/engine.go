/*
engine.go - The reservation/return transaction engine

PURPOSE:
  The Engine is the ONLY component that mutates the ledger and the
  history log. It validates requests, applies booking policy, and runs
  each reserve/return as one atomic transaction so that ledger writes
  and the matching history event commit together or not at all.

TRANSACTION SHAPE:
  Reserve: validate -> (tx: conflict check -> insert batch -> append
           RESERVE event) -> commit
  Return:  validate -> (tx: collect day's holdings -> delete -> append
           RETURN event) -> commit

BUSINESS RULES:
  - A reserve batch is all-or-nothing: one taken slot rejects the batch.
  - A return releases the WHOLE DAY for each device, every block.
  - Past-dated returns are rejected; yesterday's ledger is history.
  - Weekend dates are rejected on reserve when policy says so.

ERROR BEHAVIOR:
  Validation always completes before any write. Storage failures are
  wrapped and surfaced to the caller; the engine never retries and never
  swallows an error.

SEE ALSO:
  - errors.go:       The taxonomy these operations produce
  - availability.go: Read-side queries
  - stats.go:        Monthly rollups
*/
package reserve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// UnknownRequester substitutes for a blank requester name on returns.
const UnknownRequester = "unknown"

// Engine coordinates all writes to the reservation ledger and history
// log. Construct one per process with NewEngine and share it freely;
// all methods are safe for concurrent use.
type Engine struct {
	store  TxStore
	pool   Pool
	blocks BlockSet

	mu     sync.RWMutex
	policy Policy
}

// NewEngine wires the engine to its store, device pool, block schedule,
// and booking policy.
func NewEngine(store TxStore, pool Pool, blocks BlockSet, policy Policy) *Engine {
	return &Engine{store: store, pool: pool, blocks: blocks, policy: policy}
}

// Pool returns the fixed device pool.
func (e *Engine) Pool() Pool { return e.pool }

// Blocks returns the block schedule.
func (e *Engine) Blocks() BlockSet { return e.blocks }

// Policy returns the current booking policy.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetPolicy swaps the booking policy at runtime. In-flight transactions
// finish under the policy they started with.
func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// =============================================================================
// RESERVE
// =============================================================================

// ReserveResult reports a committed reservation batch.
type ReserveResult struct {
	Reservations []Reservation
	EventID      int64
}

// Reserve books every device in the batch for one slot column (same
// date, same block), atomically. If any requested slot is already held,
// the whole batch fails with ErrSlotTaken and nothing is written.
// On success exactly one RESERVE history event is appended.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	devices, err := e.validateReserve(req)
	if err != nil {
		return nil, err
	}

	teacher := strings.TrimSpace(req.Teacher)
	course := strings.TrimSpace(req.Course)
	now := time.Now()

	var result ReserveResult
	err = e.store.WithTx(ctx, func(s Store) error {
		// Conflict pre-check against the slot column. The storage
		// layer's uniqueness constraint backstops any race.
		existing, err := s.ReservationsForBlock(ctx, req.Date, req.Block)
		if err != nil {
			return fmt.Errorf("checking slot column %s/%s: %w", req.Date, req.Block, err)
		}
		taken := make(map[DeviceID]bool, len(existing))
		for _, r := range existing {
			taken[r.Device] = true
		}
		var conflicts []DeviceID
		for _, d := range devices {
			if taken[d] {
				conflicts = append(conflicts, d)
			}
		}
		if len(conflicts) > 0 {
			return &SlotConflictError{Devices: conflicts, Date: req.Date, Block: req.Block}
		}

		batch := make([]Reservation, 0, len(devices))
		for _, d := range devices {
			r := Reservation{
				Device:    d,
				Date:      req.Date,
				Block:     req.Block,
				Teacher:   teacher,
				Course:    course,
				CreatedAt: now,
			}
			if err := s.InsertReservation(ctx, r); err != nil {
				return fmt.Errorf("inserting %s: %w", r.Slot(), err)
			}
			batch = append(batch, r)
		}

		id, err := s.AppendEvent(ctx, HistoryEvent{
			Type:      EventReserve,
			Devices:   devices,
			Teacher:   teacher,
			Course:    course,
			Date:      req.Date,
			Blocks:    []TimeBlock{req.Block},
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("appending reserve event: %w", err)
		}

		result = ReserveResult{Reservations: batch, EventID: id}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// validateReserve checks the request before any write. Returns the
// normalized device batch.
func (e *Engine) validateReserve(req ReserveRequest) ([]DeviceID, error) {
	devices, err := e.validateDevices(req.Devices)
	if err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, Invalid("date", "required")
	}
	if err := e.Policy().checkDate(req.Date); err != nil {
		return nil, err
	}
	if req.Block == "" {
		return nil, Invalid("block", "required")
	}
	if !e.blocks.Contains(req.Block) {
		return nil, Invalidf("block", "unknown block %q", req.Block)
	}
	if strings.TrimSpace(req.Teacher) == "" {
		return nil, Invalid("teacher", "required")
	}
	return devices, nil
}

// =============================================================================
// RETURN
// =============================================================================

// ReturnResult reports a committed return.
type ReturnResult struct {
	// Devices is the normalized request batch, as recorded on the event.
	Devices []DeviceID
	// Blocks is the deduplicated union of blocks actually released,
	// in schedule order.
	Blocks []TimeBlock
	// Released counts the ledger rows removed.
	Released int
	EventID  int64
}

// Return releases the whole day for every device in the batch: all
// active reservations each device holds on the date, across every
// block, are removed in one transaction. If nothing was held, the call
// fails with ErrNothingToReturn and no history is written. On success
// exactly one RETURN event is appended carrying the union of released
// blocks.
func (e *Engine) Return(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	devices, err := e.validateReturn(req)
	if err != nil {
		return nil, err
	}

	teacher := strings.TrimSpace(req.Teacher)
	if teacher == "" {
		teacher = UnknownRequester
	}
	course := strings.TrimSpace(req.Course)
	notes := strings.TrimSpace(req.Notes)
	now := time.Now()

	var result ReturnResult
	err = e.store.WithTx(ctx, func(s Store) error {
		held, err := s.ReservationsForDevices(ctx, devices, req.Date)
		if err != nil {
			return fmt.Errorf("collecting holdings on %s: %w", req.Date, err)
		}
		if len(held) == 0 {
			return fmt.Errorf("devices %v on %s: %w", devices, req.Date, ErrNothingToReturn)
		}

		slots := make([]Slot, len(held))
		blockSeen := make(map[TimeBlock]bool)
		var blocks []TimeBlock
		for i, r := range held {
			slots[i] = r.Slot()
			if !blockSeen[r.Block] {
				blockSeen[r.Block] = true
				blocks = append(blocks, r.Block)
			}
		}
		e.blocks.SortBlocks(blocks)

		n, err := s.DeleteReservations(ctx, slots)
		if err != nil {
			return fmt.Errorf("releasing %d slot(s) on %s: %w", len(slots), req.Date, err)
		}

		id, err := s.AppendEvent(ctx, HistoryEvent{
			Type:      EventReturn,
			Devices:   devices,
			Teacher:   teacher,
			Course:    course,
			Date:      req.Date,
			Blocks:    blocks,
			Notes:     notes,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("appending return event: %w", err)
		}

		result = ReturnResult{Devices: devices, Blocks: blocks, Released: n, EventID: id}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// validateReturn checks the request before any write. Past-dated
// returns are rejected outright; the ledger's past is immutable.
func (e *Engine) validateReturn(req ReturnRequest) ([]DeviceID, error) {
	devices, err := e.validateDevices(req.Devices)
	if err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, Invalid("date", "required")
	}
	if req.Date.Before(Today()) {
		return nil, Invalidf("date", "%s is in the past: returns cannot be backdated", req.Date)
	}
	return devices, nil
}

// =============================================================================
// SHARED VALIDATION
// =============================================================================

// validateDevices normalizes the batch and checks size and pool
// membership.
func (e *Engine) validateDevices(ids []DeviceID) ([]DeviceID, error) {
	devices := NormalizeDevices(ids)
	if len(devices) == 0 {
		return nil, Invalid("devices", "at least one device required")
	}
	if max := e.Policy().maxBatch(); len(devices) > max {
		return nil, Invalidf("devices", "batch of %d exceeds the limit of %d", len(devices), max)
	}
	for _, d := range devices {
		if !e.pool.Contains(d) {
			return nil, Invalidf("devices", "device %d is outside the pool 1..%d", d, e.pool.Size())
		}
	}
	return devices, nil
}
