package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/common"
	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/order"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
	"github.com/noah-isme/flyer-quote/internal/security"
	"github.com/noah-isme/flyer-quote/internal/validation"
)

// Handler wires quote sessions, the area directory and the price table to
// HTTP.
type Handler struct {
	Svc    *Service
	Areas  *areas.Directory
	Prices *pricetable.Provider
	Logger zerolog.Logger
}

// View is the response shape of a quote: the snapshot plus session metadata
// and the step states as the wizard should display them.
type View struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	order.Snapshot
	Steps validation.Status `json:"steps"`
}

func viewOf(res Result) View {
	return View{
		ID:        res.Session.ID,
		CreatedAt: res.Session.CreatedAt,
		UpdatedAt: res.Session.UpdatedAt,
		Snapshot:  res.Snapshot,
		Steps:     res.Snapshot.Steps(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type unitsRequest struct {
	IDs    []string `json:"ids" validate:"omitempty,dive,required"`
	From   int      `json:"from" validate:"omitempty,gt=0"`
	To     int      `json:"to" validate:"omitempty,gt=0"`
	Place  string   `json:"place" validate:"omitempty,max=120"`
	Canton string   `json:"canton" validate:"omitempty,max=8"`
}

type overrideRequest struct {
	Audience string `json:"audience" validate:"required,oneof=multi_family single_family"`
	Count    *int   `json:"count"`
}

type audienceRequest struct {
	Audience string `json:"audience" validate:"required,oneof=all multi_family single_family"`
}

type scheduleRequest struct {
	StartDate        *string `json:"startDate"`
	ExpressConfirmed *bool   `json:"expressConfirmed"`
}

type productionRequest struct {
	Design *string          `json:"design" validate:"omitempty,max=32"`
	Print  *production.Spec `json:"print"`
}

// Create starts a new quote session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	res, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, viewOf(res))
}

// Get returns the current snapshot of a quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	res, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, viewOf(res))
}

// Delete discards a quote session.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddUnits selects units by id, postal code range or place. Lookups and
// selections that fail are reported next to the updated quote.
func (h *Handler) AddUnits(w http.ResponseWriter, r *http.Request) {
	var req unitsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 && req.From == 0 && req.To == 0 && strings.TrimSpace(req.Place) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids, postal code range or place is required", nil)
		return
	}
	if h.Svc == nil || h.Areas == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AREAS_UNAVAILABLE", "area directory not loaded", nil)
		return
	}

	var (
		units    []distribution.Unit
		rejected []string
	)
	if len(req.IDs) > 0 {
		found, err := h.Areas.ByIDs(req.IDs)
		units = append(units, found...)
		if err != nil {
			rejected = append(rejected, err.Error())
		}
	}
	if req.From != 0 || req.To != 0 {
		found, err := h.Areas.ByPostalRange(req.From, req.To)
		if err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RANGE", "invalid postal code range", map[string]int{"from": req.From, "to": req.To})
			return
		}
		units = append(units, found...)
	}
	if strings.TrimSpace(req.Place) != "" {
		units = append(units, h.Areas.ByPlace(req.Place, req.Canton)...)
	}
	if len(units) == 0 {
		common.JSONError(w, http.StatusNotFound, "AREA_NOT_FOUND", "no postal code areas found", map[string]any{"rejected": rejected})
		return
	}

	res, err := h.Svc.Apply(r.Context(), chi.URLParam(r, "id"), order.AddUnits{Units: units})
	if err != nil && !errors.Is(err, ErrRejected) {
		h.writeError(w, err)
		return
	}
	rejected = append(rejected, reasons(err)...)
	body := map[string]any{"data": viewOf(res)}
	if len(rejected) > 0 {
		body["rejected"] = rejected
	}
	common.JSON(w, http.StatusOK, body)
}

// ClearUnits empties the selection.
func (h *Handler) ClearUnits(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, order.ClearUnits{})
}

// RemoveUnit deselects one unit.
func (h *Handler) RemoveUnit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, order.RemoveUnit{ID: chi.URLParam(r, "unitId")})
}

// SetOverride sets or clears a manual flyer count for one audience of a
// selected unit. A null count clears the override.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, order.SetOverride{
		UnitID:   chi.URLParam(r, "unitId"),
		Audience: distribution.Audience(req.Audience),
		Count:    req.Count,
	})
}

// SetAudience switches the targeted households.
func (h *Handler) SetAudience(w http.ResponseWriter, r *http.Request) {
	var req audienceRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, order.SetAudience{Audience: req.Audience})
}

// SetSchedule updates the start date and the express confirmation. An empty
// start date unsets it.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	var cmds []order.Command
	if req.StartDate != nil {
		var date schedule.Date
		if strings.TrimSpace(*req.StartDate) != "" {
			parsed, err := schedule.ParseDate(*req.StartDate)
			if err != nil {
				common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_DATE", "startDate must be YYYY-MM-DD", nil)
				return
			}
			date = parsed
		}
		cmds = append(cmds, order.SetStartDate{Date: date})
	}
	if req.ExpressConfirmed != nil {
		cmds = append(cmds, order.ConfirmExpress{Confirmed: *req.ExpressConfirmed})
	}
	if len(cmds) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "startDate or expressConfirmed is required", nil)
		return
	}
	h.apply(w, r, cmds...)
}

// SetProduction updates the design package and the print method.
func (h *Handler) SetProduction(w http.ResponseWriter, r *http.Request) {
	var req productionRequest
	if !decode(w, r, &req) {
		return
	}
	var cmds []order.Command
	if req.Design != nil {
		cmds = append(cmds, order.SetDesign{Design: production.DesignPackage(*req.Design)})
	}
	if req.Print != nil {
		method, err := req.Print.ToMethod()
		if err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_PRODUCTION", err.Error(), nil)
			return
		}
		cmds = append(cmds, order.SetPrint{Method: method})
	}
	if len(cmds) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "design or print is required", nil)
		return
	}
	h.apply(w, r, cmds...)
}

// PatchContact updates the supplied contact fields.
func (h *Handler) PatchContact(w http.ResponseWriter, r *http.Request) {
	var patch contact.Patch
	if !decode(w, r, &patch) {
		return
	}
	h.apply(w, r, order.PatchContact{Patch: patch})
}

// SearchAreas searches the area directory by free text, place or postal code range.
func (h *Handler) SearchAreas(w http.ResponseWriter, r *http.Request) {
	if h.Areas == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AREAS_UNAVAILABLE", "area directory not loaded", nil)
		return
	}
	q := r.URL.Query()
	limit := common.ParseLimit(r, 20, 200)

	var units []distribution.Unit
	switch {
	case q.Get("from") != "" || q.Get("to") != "":
		found, err := h.Areas.ByPostalRange(common.QueryInt(r, "from", 0), common.QueryInt(r, "to", 0))
		if err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RANGE", "invalid postal code range", nil)
			return
		}
		units = found
	case strings.TrimSpace(q.Get("place")) != "":
		units = h.Areas.ByPlace(q.Get("place"), q.Get("canton"))
	case strings.TrimSpace(q.Get("q")) != "":
		units = h.Areas.Search(q.Get("q"), limit)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "q, place or from/to is required", nil)
		return
	}
	if len(units) > limit {
		units = units[:limit]
	}
	if units == nil {
		units = []distribution.Unit{}
	}
	meta := map[string]any{"count": len(units)}
	if len(units) == 0 {
		meta["message"] = "no postal code areas found"
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": units, "meta": meta})
}

// PriceTable returns the loaded price reference.
func (h *Handler) PriceTable(w http.ResponseWriter, r *http.Request) {
	var table *pricetable.Table
	if h.Prices != nil {
		table = h.Prices.Current()
	}
	if table == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PRICE_TABLE_UNAVAILABLE", "price table not loaded", nil)
		return
	}
	common.Data(w, http.StatusOK, table)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, cmds ...order.Command) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	res, err := h.Svc.Apply(r.Context(), chi.URLParam(r, "id"), cmds...)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			appErr := rejectionError(err).WithDetails(map[string]any{
				"reasons": reasons(err),
				"quote":   viewOf(res),
			})
			common.WriteError(w, appErr)
			return
		}
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, viewOf(res))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "QUOTE_NOT_FOUND", "quote not found", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		common.JSONError(w, http.StatusServiceUnavailable, "QUOTE_BUSY", "quote is locked by another request", nil)
	default:
		h.Logger.Error().Err(err).Msg("quote request failed")
		common.WriteError(w, err)
	}
}

func rejectionError(err error) *common.AppError {
	switch {
	case errors.Is(err, distribution.ErrUnknownUnit):
		return common.NewAppError("UNIT_NOT_SELECTED", "unit is not selected", http.StatusNotFound, err)
	case errors.Is(err, distribution.ErrInvalidAudience):
		return common.NewAppError("INVALID_AUDIENCE", "invalid audience", http.StatusUnprocessableEntity, err)
	case errors.Is(err, distribution.ErrInvalidUnit):
		return common.NewAppError("INVALID_UNIT", "invalid unit", http.StatusUnprocessableEntity, err)
	case errors.Is(err, production.ErrInvalidConfig):
		return common.NewAppError("INVALID_PRODUCTION", "invalid production configuration", http.StatusUnprocessableEntity, err)
	default:
		return common.NewAppError("COMMAND_REJECTED", "command rejected", http.StatusUnprocessableEntity, err)
	}
}

// reasons flattens command errors into messages, dropping the ErrRejected
// marker whether it was joined or wrapped around them.
func reasons(err error) []string {
	if err == nil || err == ErrRejected {
		return nil
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range multi.Unwrap() {
			out = append(out, reasons(e)...)
		}
		return out
	}
	if errors.Is(err, ErrRejected) {
		return reasons(errors.Unwrap(err))
	}
	return []string{err.Error()}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if limit, ok := security.TooLarge(err); ok {
			security.WriteTooLarge(w, limit)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request payload", fields)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return false
	}
	return true
}
