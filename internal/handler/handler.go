// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/service"
)

// EventHandler holds all HTTP handlers for the RSVP API.
type EventHandler struct {
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// Routes mounts the API on r.
func (h *EventHandler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Get("/summary", h.GetEventSummary)
			r.Get("/counts", h.GetEventCounts)
			r.Get("/dinner-slots", h.ListDinnerSlots)
			r.Get("/dinner-slots/counts", h.GetDinnerSlotCounts)
			r.Get("/rsvps", h.ListRSVPs)
			r.Post("/rsvps", h.AddRSVP)
		})
	})

	r.Route("/rsvps/{id}", func(r chi.Router) {
		r.Get("/", h.GetRSVP)
		r.Patch("/", h.UpdateRSVP)
		r.Delete("/", h.DeleteRSVP)
		r.Post("/check-in", h.CheckIn)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps a tagged service error to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidEmail, service.KindInvalidSlot, service.KindInvalidEvent:
		return http.StatusBadRequest
	case service.KindDuplicate, service.KindFull:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	msg := err.Error()
	var tagged *service.Error
	if errors.As(err, &tagged) && tagged.Message != "" {
		msg = tagged.Message
	}
	if kind == service.KindStorage {
		// Internal detail stays in the logs.
		msg = "storage unavailable, please retry"
	}
	writeJSON(w, statusFor(kind), model.ErrorResponse{Error: msg, Kind: string(kind)})
}

func writeDuplicate(w http.ResponseWriter, err error, existing *model.Booking) {
	var tagged *service.Error
	msg := "already on the list"
	if errors.As(err, &tagged) && tagged.Message != "" {
		msg = tagged.Message
	}
	writeJSON(w, http.StatusConflict, model.DuplicateResponse{
		Error:   msg,
		Kind:    string(service.KindDuplicate),
		Booking: existing,
	})
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// GetEvent handles GET /events/{slug}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// GetEventSummary handles GET /events/{slug}/summary
// Counts and remaining spots are advisory and read without locking.
func (h *EventHandler) GetEventSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetEventSummary(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetEventCounts handles GET /events/{slug}/counts
func (h *EventHandler) GetEventCounts(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	counts, err := h.svc.GetEventCounts(r.Context(), event.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// ListDinnerSlots handles GET /events/{slug}/dinner-slots
func (h *EventHandler) ListDinnerSlots(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]time.Time{"slots": h.svc.GenerateDinnerSlots(event)})
}

// GetDinnerSlotCounts handles GET /events/{slug}/dinner-slots/counts
// Every generated slot is listed, including empty ones.
func (h *EventHandler) GetDinnerSlotCounts(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	counts, err := h.svc.GetDinnerSlotCounts(r.Context(), event.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	perSlot := model.Unlimited
	if event.Dinner != nil {
		perSlot = event.Dinner.MaxSeatsPerSlot
	}
	writeJSON(w, http.StatusOK, capacity.Report(h.svc.GenerateDinnerSlots(event), counts, perSlot))
}

// ─── RSVPs ────────────────────────────────────────────────────────────────────

// ListRSVPs handles GET /events/{slug}/rsvps
func (h *EventHandler) ListRSVPs(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.ListRSVPs(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

// AddRSVP handles POST /events/{slug}/rsvps
// A repeated email answers 409 with the guest's existing booking.
func (h *EventHandler) AddRSVP(w http.ResponseWriter, r *http.Request) {
	var req model.RSVPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.AddRSVP(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		if errors.Is(err, service.ErrDuplicate) && res != nil {
			writeDuplicate(w, err, res.Booking)
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// GetRSVP handles GET /rsvps/{id}
func (h *EventHandler) GetRSVP(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetRSVP(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

type updateRSVPRequest struct {
	model.RSVPUpdate
	model.UpdateOptions
}

// UpdateRSVP handles PATCH /rsvps/{id}
// "force_confirm": true confirms past every limit and flags the booking as overridden.
func (h *EventHandler) UpdateRSVP(w http.ResponseWriter, r *http.Request) {
	var req updateRSVPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.svc.UpdateRSVP(r.Context(), chi.URLParam(r, "id"), req.RSVPUpdate, req.UpdateOptions)
	if err != nil {
		if errors.Is(err, service.ErrDuplicate) && booking != nil {
			writeDuplicate(w, err, booking)
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// DeleteRSVP handles DELETE /rsvps/{id}
func (h *EventHandler) DeleteRSVP(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRSVP(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CheckIn handles POST /rsvps/{id}/check-in
func (h *EventHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.svc.CheckIn(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
