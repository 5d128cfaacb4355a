/*
Package reserve implements the tablet reservation engine.

PURPOSE:
  This package contains the domain core of the tablet pool service: the
  slot model (device x date x time-block), the active-reservation ledger
  contract, the append-only history log, and the transaction engine that
  is the only component allowed to mutate either.

KEY CONCEPTS IN THIS FILE (types.go):
  - DeviceID:     Numeric identifier from the fixed tablet pool
  - Pool:         The pre-seeded device pool (immutable at runtime)
  - TimeBlock:    A named interval of the school day ("1st period", ...)
  - BlockSet:     The ordered enumeration of valid time blocks
  - Slot:         (device, date, block) - the unit of exclusivity
  - Reservation:  An active booking of one slot
  - HistoryEvent: Immutable audit record of a reserve/return transaction

DESIGN PRINCIPLES:
  1. Exclusivity: At most one active reservation per slot, ever
  2. Immutability: History events are appended, never edited
  3. Type Safety: Strong typing keeps device ids, dates, and blocks apart
  4. Determinism: Device sets and block sets are normalized (sorted,
     deduplicated) before they reach storage or history

SEE ALSO:
  - engine.go: The reserve/return transaction engine
  - store.go:  Persistence interfaces
  - date.go:   Day-granularity Date and MonthKey types
*/
package reserve

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// DEVICE POOL
// =============================================================================

// DeviceID identifies one tablet from the fixed pool.
type DeviceID int

// Pool is the fixed set of bookable devices, numbered 1..Size.
// Established at process start; never grows or shrinks at runtime.
type Pool struct {
	size int
}

// NewPool creates a pool of n devices. A non-positive n yields an empty
// pool, which rejects every device id.
func NewPool(n int) Pool {
	if n < 0 {
		n = 0
	}
	return Pool{size: n}
}

// Size returns the number of devices in the pool.
func (p Pool) Size() int { return p.size }

// Contains reports whether id belongs to the pool.
func (p Pool) Contains(id DeviceID) bool {
	return id >= 1 && int(id) <= p.size
}

// IDs returns every device id in ascending order.
func (p Pool) IDs() []DeviceID {
	ids := make([]DeviceID, p.size)
	for i := range ids {
		ids[i] = DeviceID(i + 1)
	}
	return ids
}

// =============================================================================
// TIME BLOCKS
// =============================================================================

// TimeBlock names one interval of the school day.
type TimeBlock string

// BlockSet is the fixed, ordered enumeration of valid time blocks.
// Order is display/reporting order and drives deterministic tie-breaking.
type BlockSet struct {
	names []TimeBlock
	index map[TimeBlock]int
}

// NewBlockSet builds a BlockSet from an ordered list of block names.
// Empty and duplicate names are rejected.
func NewBlockSet(names []string) (BlockSet, error) {
	if len(names) == 0 {
		return BlockSet{}, fmt.Errorf("block set must not be empty")
	}
	bs := BlockSet{
		names: make([]TimeBlock, 0, len(names)),
		index: make(map[TimeBlock]int, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return BlockSet{}, fmt.Errorf("block name %d is empty", i)
		}
		b := TimeBlock(n)
		if _, dup := bs.index[b]; dup {
			return BlockSet{}, fmt.Errorf("duplicate block name %q", n)
		}
		bs.index[b] = i
		bs.names = append(bs.names, b)
	}
	return bs, nil
}

// DefaultBlockNames is the reference school-day schedule.
func DefaultBlockNames() []string {
	return []string{
		"1st period", "2nd period", "3rd period", "4th period",
		"lunch", "5th period", "6th period", "after school",
	}
}

// Contains reports whether b is a valid block.
func (s BlockSet) Contains(b TimeBlock) bool {
	_, ok := s.index[b]
	return ok
}

// Index returns the position of b in schedule order, or -1 if unknown.
func (s BlockSet) Index(b TimeBlock) int {
	i, ok := s.index[b]
	if !ok {
		return -1
	}
	return i
}

// Blocks returns the blocks in schedule order.
func (s BlockSet) Blocks() []TimeBlock {
	return append([]TimeBlock(nil), s.names...)
}

// Len returns the number of blocks.
func (s BlockSet) Len() int { return len(s.names) }

// SortBlocks orders blocks by schedule order (unknown names last, by name).
func (s BlockSet) SortBlocks(blocks []TimeBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		ii, jj := s.Index(blocks[i]), s.Index(blocks[j])
		if ii == -1 && jj == -1 {
			return blocks[i] < blocks[j]
		}
		if ii == -1 {
			return false
		}
		if jj == -1 {
			return true
		}
		return ii < jj
	})
}

// =============================================================================
// SLOT - the unit of exclusivity
// =============================================================================

// Slot is one bookable unit: a device on a date for one time block.
// At most one active reservation may exist per slot.
type Slot struct {
	Device DeviceID
	Date   Date
	Block  TimeBlock
}

func (s Slot) String() string {
	return fmt.Sprintf("device %d @ %s / %s", s.Device, s.Date, s.Block)
}

// =============================================================================
// ACTIVE RESERVATION
// =============================================================================

// Reservation is a current, not-yet-returned booking of one slot.
type Reservation struct {
	Device    DeviceID
	Date      Date
	Block     TimeBlock
	Teacher   string
	Course    string
	CreatedAt time.Time
}

// Slot returns the reservation's slot key.
func (r Reservation) Slot() Slot {
	return Slot{Device: r.Device, Date: r.Date, Block: r.Block}
}

// =============================================================================
// HISTORY EVENT - immutable audit record
// =============================================================================

// EventType distinguishes reserve from return events.
type EventType string

const (
	EventReserve EventType = "reserve"
	EventReturn  EventType = "return"
)

// HistoryEvent records one completed reserve or return transaction.
// Events are append-only: once written they are never mutated or deleted,
// and they do not participate in the slot-uniqueness invariant.
type HistoryEvent struct {
	ID        int64
	Type      EventType
	Devices   []DeviceID // sorted ascending, deduplicated
	Teacher   string
	Course    string
	Date      Date
	Blocks    []TimeBlock // schedule order, deduplicated
	Notes     string      // return events only
	CreatedAt time.Time
}

// =============================================================================
// REQUESTS - input to the transaction engine
// =============================================================================

// ReserveRequest books a batch of devices for one slot column
// (same date, same block). The batch commits atomically.
type ReserveRequest struct {
	Devices []DeviceID
	Date    Date
	Block   TimeBlock
	Teacher string
	Course  string
}

// ReturnRequest releases a batch of devices for a whole day: every block
// held by each device on that date is freed.
type ReturnRequest struct {
	Devices []DeviceID
	Date    Date
	Teacher string
	Course  string
	Notes   string
}

// =============================================================================
// HELPERS
// =============================================================================

// NormalizeDevices sorts ids ascending and removes duplicates.
// Requests are sets: {4, 3, 4} and {3, 4} describe the same batch.
func NormalizeDevices(ids []DeviceID) []DeviceID {
	if len(ids) == 0 {
		return nil
	}
	out := append([]DeviceID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[i-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
