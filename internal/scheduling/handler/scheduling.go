package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"lectio/internal/scheduling/service"
	apperrors "lectio/pkg/errors"
	httputil "lectio/pkg/http"
	"lectio/pkg/logger"
	"lectio/pkg/model"
)

type SchedulingHandler struct {
	bookings     service.BookingService
	availability service.AvailabilityService
	log          *logger.Logger
}

func NewSchedulingHandler(
	bookings service.BookingService,
	availability service.AvailabilityService,
	log *logger.Logger,
) *SchedulingHandler {
	return &SchedulingHandler{
		bookings:     bookings,
		availability: availability,
		log:          log,
	}
}

// ResolveAvailability is a POST because the window and IDs arrive as a JSON
// body, but it reads nothing into the store and reserves nothing.
func (h *SchedulingHandler) ResolveAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		})
		return
	}

	availability, err := h.availability.Resolve(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, availability)
}

func (h *SchedulingHandler) Commit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		})
		return
	}

	booking, err := h.bookings.Commit(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, booking)
}

func (h *SchedulingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.bookings.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, booking)
}

func (h *SchedulingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, total, err := h.bookings.GetAll(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WritePaginated(w, bookings, total, limit, offset)
}

func (h *SchedulingHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	query := r.URL.Query()
	batchID := query.Get("batch_id")
	moduleID := query.Get("module_id")

	startTime, err := parseTimeParam(query.Get("start_time"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	endTime, err := parseTimeParam(query.Get("end_time"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, total, err := h.bookings.Search(r.Context(), batchID, moduleID, startTime, endTime, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WritePaginated(w, bookings, total, limit, offset)
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	if err := h.bookings.Cancel(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *SchedulingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/availability", h.ResolveAvailability)

	router.POST("/api/v1/bookings", h.Commit)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/search", h.Search)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.DELETE("/api/v1/bookings/id/:id", h.Cancel)
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperrors.InvalidInput("time parameters must be RFC3339 timestamps: " + value)
	}
	return &t, nil
}
