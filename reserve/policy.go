/*
policy.go - Operator-tunable booking rules

PURPOSE:
  Carries the rules that are business policy rather than ledger
  invariants: the school-days-only restriction and the batch size cap.
  Policy is data, not code, so deployments can change it in config
  without touching the engine.

SEE ALSO:
  - engine.go:        Applies policy during validation
  - config/config.go: Source of policy values
*/
package reserve

// DefaultMaxBatch caps how many devices one reserve/return request may
// name. Large enough for a full class set, small enough to catch
// runaway input.
const DefaultMaxBatch = 60

// Policy holds the operator-tunable booking rules.
type Policy struct {
	// WeekdaysOnly rejects reservations dated on Saturday or Sunday.
	// On by default; the building is closed on weekends. Returns are
	// never blocked by this rule, so holdings booked under a looser
	// policy can always be released.
	WeekdaysOnly bool

	// MaxBatch caps the device count of a single request.
	// Zero or negative means DefaultMaxBatch.
	MaxBatch int
}

// DefaultPolicy returns the stock school configuration.
func DefaultPolicy() Policy {
	return Policy{WeekdaysOnly: true, MaxBatch: DefaultMaxBatch}
}

// maxBatch resolves the effective batch cap.
func (p Policy) maxBatch() int {
	if p.MaxBatch > 0 {
		return p.MaxBatch
	}
	return DefaultMaxBatch
}

// checkDate rejects weekend dates when WeekdaysOnly is set.
func (p Policy) checkDate(d Date) error {
	if p.WeekdaysOnly && d.IsWeekend() {
		return Invalidf("date", "%s is a %s: reservations run on school days only", d, d.Weekday())
	}
	return nil
}
