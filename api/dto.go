/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

STRICT DECODING:
  Request bodies are decoded with DisallowUnknownFields: a misspelled
  field is a 400, not a silently ignored no-op. Business validation
  stays in the engine; the DTO layer only checks shape.

SEE ALSO:
  - handlers.go: Uses these types
  - reserve/engine.go: The domain types these are converted from/to
*/
package api

import (
	"time"

	"github.com/chalkline/tabletpool/reserve"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ReserveRequestDTO is the request to book a batch of devices for one
// date and block.
type ReserveRequestDTO struct {
	Devices []int  `json:"devices"`
	Date    string `json:"date"` // YYYY-MM-DD
	Block   string `json:"block"`
	Teacher string `json:"teacher"`
	Course  string `json:"course,omitempty"`
}

// ReturnRequestDTO is the request to release devices for a whole day.
type ReturnRequestDTO struct {
	Devices []int  `json:"devices"`
	Date    string `json:"date"` // YYYY-MM-DD
	Teacher string `json:"teacher,omitempty"`
	Course  string `json:"course,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// PutSettingRequest is the request to upsert one setting.
type PutSettingRequest struct {
	Value string `json:"value"`
}

// LoadScenarioRequest selects a demo scenario to load.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PoolDTO describes the fixed device pool.
type PoolDTO struct {
	Size    int   `json:"size"`
	Devices []int `json:"devices"`
}

// ReservationDTO represents one active reservation.
type ReservationDTO struct {
	Device    int    `json:"device"`
	Date      string `json:"date"`
	Block     string `json:"block"`
	Teacher   string `json:"teacher"`
	Course    string `json:"course,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ReserveResultDTO is the response to a successful reservation.
type ReserveResultDTO struct {
	EventID      int64            `json:"event_id"`
	Reservations []ReservationDTO `json:"reservations"`
}

// ReturnResultDTO is the response to a successful return.
type ReturnResultDTO struct {
	EventID  int64    `json:"event_id"`
	Devices  []int    `json:"devices"`
	Blocks   []string `json:"blocks"`
	Released int      `json:"released"`
}

// ReservedSlotDTO pairs a device with the block it is held for.
type ReservedSlotDTO struct {
	Device int    `json:"device"`
	Block  string `json:"block"`
}

// AvailabilityDTO answers "what is taken, what is free".
// Free is only present when the query named a single block; a whole-day
// query lists the taken (device, block) pairs instead.
type AvailabilityDTO struct {
	Date     string            `json:"date"`
	Block    string            `json:"block,omitempty"`
	Reserved []ReservedSlotDTO `json:"reserved"`
	Free     []int             `json:"free,omitempty"`
}

// HistoryEventDTO represents one audit event.
type HistoryEventDTO struct {
	ID        int64    `json:"id"`
	Type      string   `json:"type"`
	Devices   []int    `json:"devices"`
	Teacher   string   `json:"teacher"`
	Course    string   `json:"course,omitempty"`
	Date      string   `json:"date"`
	Blocks    []string `json:"blocks"`
	Notes     string   `json:"notes,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// CountDTO pairs a label with a count; used in stats breakdowns.
type CountDTO struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// StatsDTO is the monthly rollup. When HasData is false, every derived
// field carries the "no data" sentinel string.
type StatsDTO struct {
	Month          string     `json:"month"`
	HasData        bool       `json:"has_data"`
	Total          int        `json:"total"`
	TopDevice      string     `json:"top_device"`
	TopDeviceCount string     `json:"top_device_count"`
	TopDate        string     `json:"top_date"`
	TopDateCount   string     `json:"top_date_count"`
	TopBlock       string     `json:"top_block"`
	TopBlockCount  string     `json:"top_block_count"`
	UtilizationPct string     `json:"utilization_pct"`
	ByDevice       []CountDTO `json:"by_device,omitempty"`
	ByBlock        []CountDTO `json:"by_block,omitempty"`
}

// SettingDTO is one key/value pair.
type SettingDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toReservationDTO(r reserve.Reservation) ReservationDTO {
	return ReservationDTO{
		Device:    int(r.Device),
		Date:      r.Date.String(),
		Block:     string(r.Block),
		Teacher:   r.Teacher,
		Course:    r.Course,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toReservationDTOs(rs []reserve.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toReservationDTO(r)
	}
	return dtos
}

func toHistoryEventDTO(ev reserve.HistoryEvent) HistoryEventDTO {
	return HistoryEventDTO{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Devices:   toInts(ev.Devices),
		Teacher:   ev.Teacher,
		Course:    ev.Course,
		Date:      ev.Date.String(),
		Blocks:    toStrings(ev.Blocks),
		Notes:     ev.Notes,
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toHistoryEventDTOs(events []reserve.HistoryEvent) []HistoryEventDTO {
	dtos := make([]HistoryEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toHistoryEventDTO(ev)
	}
	return dtos
}

func toInts(devices []reserve.DeviceID) []int {
	out := make([]int, len(devices))
	for i, d := range devices {
		out[i] = int(d)
	}
	return out
}

func toDeviceIDs(ids []int) []reserve.DeviceID {
	out := make([]reserve.DeviceID, len(ids))
	for i, id := range ids {
		out[i] = reserve.DeviceID(id)
	}
	return out
}

func toStrings(blocks []reserve.TimeBlock) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = string(b)
	}
	return out
}
