/*
handlers.go - HTTP API handlers for the tablet reservation service

PURPOSE:
  Exposes the reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Pool:
    GET    /api/devices                Device pool

  Reservations:
    GET    /api/reservations           Active reservations for a date
    POST   /api/reservations           Reserve a batch (atomic)
    POST   /api/returns                Return devices (whole day)
    GET    /api/availability           Taken/free breakdown

  Reporting:
    GET    /api/stats                  Monthly rollups
    GET    /api/history                Audit events
    GET    /api/export/history.csv     History spreadsheet
    GET    /api/export/stats.csv       Stats spreadsheet

  Settings:
    GET    /api/settings/{key}         Read one setting
    PUT    /api/settings/{key}         Upsert one setting

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario
    POST   /api/scenarios/reset        Clear ledger and history

ERROR HANDLING:
  Domain errors map to HTTP status:
  - 400: Validation errors, invalid input
  - 404: Nothing to return / unset setting
  - 409: Slot conflict
  - 500: Storage failures

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/chalkline/tabletpool/export"
	"github.com/chalkline/tabletpool/reserve"
)

// Setting keys the service itself interprets. Anything else (background
// image URL and friends) is stored and served back untouched.
const (
	SettingAllowWeekends = "policy.allow_weekends"
	SettingMaxBatchSize  = "policy.max_batch_size"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *reserve.Engine
	Store  reserve.TxStore
	Cache  *gocache.Cache
	Log    zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around the engine and its store.
func NewHandler(engine *reserve.Engine, store reserve.TxStore, cache *gocache.Cache, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Store: store, Cache: cache, Log: log}
}

// flushCache drops every cached read after a successful write.
func (h *Handler) flushCache() {
	if h.Cache != nil {
		h.Cache.Flush()
	}
}

// =============================================================================
// POOL
// =============================================================================

// GetPool returns the fixed device pool.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool := h.Engine.Pool()
	writeJSON(w, http.StatusOK, PoolDTO{
		Size:    pool.Size(),
		Devices: toInts(pool.IDs()),
	})
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ListReservations returns active reservations for a date, optionally
// narrowed to one block.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	var rows []reserve.Reservation
	if block := r.URL.Query().Get("block"); block != "" {
		rows, err = h.Engine.ReservedForBlock(r.Context(), date, reserve.TimeBlock(block))
	} else {
		rows, err = h.Engine.Reserved(r.Context(), date)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(rows))
}

// CreateReservation books a batch of devices for one slot column.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := reserve.ParseDate(req.Date)
	if err != nil && req.Date != "" {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Engine.Reserve(r.Context(), reserve.ReserveRequest{
		Devices: toDeviceIDs(req.Devices),
		Date:    date,
		Block:   reserve.TimeBlock(req.Block),
		Teacher: req.Teacher,
		Course:  req.Course,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.flushCache()
	writeJSON(w, http.StatusCreated, ReserveResultDTO{
		EventID:      result.EventID,
		Reservations: toReservationDTOs(result.Reservations),
	})
}

// CreateReturn releases devices for the whole day.
func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := reserve.ParseDate(req.Date)
	if err != nil && req.Date != "" {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Engine.Return(r.Context(), reserve.ReturnRequest{
		Devices: toDeviceIDs(req.Devices),
		Date:    date,
		Teacher: req.Teacher,
		Course:  req.Course,
		Notes:   req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.flushCache()
	writeJSON(w, http.StatusOK, ReturnResultDTO{
		EventID:  result.EventID,
		Devices:  toInts(result.Devices),
		Blocks:   toStrings(result.Blocks),
		Released: result.Released,
	})
}

// GetAvailability returns the taken/free breakdown for a date, or for
// one slot column when block is given.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	block := r.URL.Query().Get("block")
	dto := AvailabilityDTO{Date: date.String(), Block: block}

	if block != "" {
		rows, err := h.Engine.ReservedForBlock(r.Context(), date, reserve.TimeBlock(block))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		free, err := h.Engine.FreeDevices(r.Context(), date, reserve.TimeBlock(block))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		dto.Reserved = toReservedSlots(rows)
		dto.Free = toInts(free)
	} else {
		rows, err := h.Engine.Reserved(r.Context(), date)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		dto.Reserved = toReservedSlots(rows)
	}

	writeJSON(w, http.StatusOK, dto)
}

func toReservedSlots(rows []reserve.Reservation) []ReservedSlotDTO {
	out := make([]ReservedSlotDTO, len(rows))
	for i, r := range rows {
		out[i] = ReservedSlotDTO{Device: int(r.Device), Block: string(r.Block)}
	}
	return out
}

// =============================================================================
// STATS & HISTORY
// =============================================================================

// GetStats returns the monthly rollup.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	stats, err := h.Engine.Stats(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

func toStatsDTO(stats reserve.MonthlyStats) StatsDTO {
	dto := StatsDTO{
		Month:   stats.Month.String(),
		HasData: stats.HasData,
		Total:   stats.Total,
	}
	if !stats.HasData {
		dto.TopDevice = export.NoData
		dto.TopDeviceCount = export.NoData
		dto.TopDate = export.NoData
		dto.TopDateCount = export.NoData
		dto.TopBlock = export.NoData
		dto.TopBlockCount = export.NoData
		dto.UtilizationPct = export.NoData
		return dto
	}

	dto.TopDevice = strconv.Itoa(int(stats.TopDevice.Device))
	dto.TopDeviceCount = strconv.Itoa(stats.TopDevice.Count)
	dto.TopDate = stats.TopDate.Date.String()
	dto.TopDateCount = strconv.Itoa(stats.TopDate.Count)
	dto.TopBlock = string(stats.TopBlock.Block)
	dto.TopBlockCount = strconv.Itoa(stats.TopBlock.Count)
	dto.UtilizationPct = stats.Utilization.StringFixed(2)

	dto.ByDevice = make([]CountDTO, len(stats.ByDevice))
	for i, dc := range stats.ByDevice {
		dto.ByDevice[i] = CountDTO{Label: strconv.Itoa(int(dc.Device)), Count: dc.Count}
	}
	dto.ByBlock = make([]CountDTO, len(stats.ByBlock))
	for i, bc := range stats.ByBlock {
		dto.ByBlock[i] = CountDTO{Label: string(bc.Block), Count: bc.Count}
	}
	return dto
}

// GetHistory returns audit events, newest first. With year and month
// parameters it returns that month's events, oldest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("year") != "" || r.URL.Query().Get("month") != "" {
		month, err := parseMonthParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year/month", err)
			return
		}
		events, err := h.Engine.HistoryForMonth(r.Context(), month)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toHistoryEventDTOs(events))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	events, err := h.Engine.History(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEventDTOs(events))
}

// =============================================================================
// CSV EXPORTS
// =============================================================================

// ExportHistoryCSV streams the history log as a spreadsheet. With year
// and month parameters it narrows to that month.
func (h *Handler) ExportHistoryCSV(w http.ResponseWriter, r *http.Request) {
	var (
		events   []reserve.HistoryEvent
		err      error
		filename = "history.csv"
	)

	if r.URL.Query().Get("year") != "" || r.URL.Query().Get("month") != "" {
		month, merr := parseMonthParams(r)
		if merr != nil {
			writeError(w, http.StatusBadRequest, "Invalid year/month", merr)
			return
		}
		events, err = h.Engine.HistoryForMonth(r.Context(), month)
		filename = fmt.Sprintf("history-%s.csv", month)
	} else {
		events, err = h.Engine.History(r.Context(), 0)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.History(w, events); err != nil {
		h.Log.Error().Err(err).Msg("history export failed mid-stream")
	}
}

// ExportStatsCSV streams the monthly rollup as a spreadsheet.
func (h *Handler) ExportStatsCSV(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	stats, err := h.Engine.Stats(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="stats-%s.csv"`, month))
	if err := export.Stats(w, stats); err != nil {
		h.Log.Error().Err(err).Msg("stats export failed mid-stream")
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSetting returns one setting.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, ok, err := h.Store.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read setting", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Setting not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, SettingDTO{Key: key, Value: value})
}

// PutSetting upserts one setting. Policy keys take effect immediately.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req PutSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateSetting(key, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid setting value", err)
		return
	}

	if err := h.Store.PutSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write setting", err)
		return
	}

	if isPolicyKey(key) {
		if err := ApplyStoredPolicy(r.Context(), h.Store, h.Engine); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to apply policy", err)
			return
		}
	}

	h.flushCache()
	writeJSON(w, http.StatusOK, SettingDTO{Key: key, Value: req.Value})
}

func isPolicyKey(key string) bool {
	return key == SettingAllowWeekends || key == SettingMaxBatchSize
}

func validateSetting(key, value string) error {
	switch key {
	case SettingAllowWeekends:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
	case SettingMaxBatchSize:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		if n < 1 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// ApplyStoredPolicy overlays persisted policy settings onto the engine.
// Called at startup and after a policy setting changes.
func ApplyStoredPolicy(ctx context.Context, store reserve.Store, engine *reserve.Engine) error {
	policy := engine.Policy()

	if raw, ok, err := store.GetSetting(ctx, SettingAllowWeekends); err != nil {
		return err
	} else if ok {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("stored %s is not a boolean: %w", SettingAllowWeekends, err)
		}
		policy.WeekdaysOnly = !allow
	}

	if raw, ok, err := store.GetSetting(ctx, SettingMaxBatchSize); err != nil {
		return err
	} else if ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("stored %s is not a positive integer", SettingMaxBatchSize)
		}
		policy.MaxBatch = n
	}

	engine.SetPolicy(policy)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine's error taxonomy to HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case reserve.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case reserve.IsConflict(err):
		writeError(w, http.StatusConflict, "One or more devices are already reserved for that slot", err)
	case reserve.IsNotFound(err):
		writeError(w, http.StatusNotFound, "No active reservations matched the return", err)
	default:
		h.Log.Error().Err(err).Msg("storage failure")
		writeError(w, http.StatusInternalServerError, "Storage failure", err)
	}
}

// decodeJSON decodes a request body strictly: unknown fields are an
// error, not a silent no-op.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A second document in the body means the client sent garbage.
	if dec.More() {
		return fmt.Errorf("unexpected trailing data in request body")
	}
	return nil
}

func parseDateParam(r *http.Request, name string) (reserve.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return reserve.Date{}, fmt.Errorf("missing %s parameter", name)
	}
	return reserve.ParseDate(raw)
}

func parseMonthParams(r *http.Request) (reserve.MonthKey, error) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		return reserve.MonthKey{}, fmt.Errorf("invalid year: %w", err)
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		return reserve.MonthKey{}, fmt.Errorf("invalid month: %w", err)
	}
	return reserve.NewMonthKey(year, month)
}
