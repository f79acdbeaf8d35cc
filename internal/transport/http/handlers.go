package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinicbook/backend/internal/auth"
	"clinicbook/backend/internal/domain"
	redislock "clinicbook/backend/internal/redis"
	"clinicbook/backend/internal/service/booking"
	"clinicbook/backend/internal/store"
)

type bookingService interface {
	PublishAvailability(ctx context.Context, actor auth.Actor, in booking.PublishInput) (booking.PublishResult, error)
	ListAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) ([]string, error)
	Book(ctx context.Context, actor auth.Actor, in booking.BookInput) (domain.Appointment, error)
	BookFromSlot(ctx context.Context, actor auth.Actor, in booking.BookFromSlotInput) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, newStatus domain.AppointmentStatus, notes *string) (domain.Appointment, error)
	Cancel(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, reason string) (domain.Appointment, error)
	DeleteSlot(ctx context.Context, actor auth.Actor, providerID, slotID uuid.UUID) error
	GetAppointment(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, actor auth.Actor, partyID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
}

type BookingHandler struct {
	svc bookingService
	log *slog.Logger
}

func NewBookingHandler(svc bookingService, log *slog.Logger) *BookingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.booking")),
	}
}

func (h *BookingHandler) PublishAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "PublishAvailability"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a UUID")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	result, err := h.svc.PublishAvailability(r.Context(), actor, booking.PublishInput{
		ProviderID: providerID,
		Date:       date,
		Times:      req.Times,
	})
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	resp := publishResponse{Created: make([]slotResponse, 0, len(result.Created)), Rejected: result.Rejected}
	if resp.Rejected == nil {
		resp.Rejected = []string{}
	}
	for _, s := range result.Created {
		resp.Created = append(resp.Created, toSlotResponse(s))
	}

	log.Info(
		"availability published",
		slog.String("provider_id", providerID.String()),
		slog.String("date", req.Date),
		slog.Int("created", len(resp.Created)),
		slog.Int("rejected", len(resp.Rejected)),
	)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "ListAvailability"))

	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a UUID")
		return
	}
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
		return
	}

	times, err := h.svc.ListAvailability(r.Context(), providerID, date)
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}
	if times == nil {
		times = []string{}
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		ProviderID: providerID,
		Date:       domain.Midnight(date).Format(dateLayout),
		Times:      times,
	})
}

func (h *BookingHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "DeleteSlot"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a UUID")
		return
	}
	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot id must be a UUID")
		return
	}

	if err := h.svc.DeleteSlot(r.Context(), actor, providerID, slotID); err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	log.Info("slot deleted", slog.String("provider_id", providerID.String()), slog.String("slot_id", slotID.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Book"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a UUID")
		return
	}
	var clientID uuid.UUID
	if req.ClientID != "" {
		clientID, err = uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a UUID")
			return
		}
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	appt, err := h.svc.Book(r.Context(), actor, booking.BookInput{
		ClientID:   clientID,
		ProviderID: providerID,
		Date:       date,
		Time:       req.Time,
		VisitMode:  domain.VisitMode(req.VisitMode),
		Category:   domain.Category(req.Category),
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID.String()),
		slog.String("date", appt.Date.Format(dateLayout)),
		slog.String("time", appt.Time),
	)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) BookFromSlot(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "BookFromSlot"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	var req bookFromSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a UUID")
		return
	}
	var clientID uuid.UUID
	if req.ClientID != "" {
		clientID, err = uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a UUID")
			return
		}
	}

	appt, err := h.svc.BookFromSlot(r.Context(), actor, booking.BookFromSlotInput{
		ClientID:  clientID,
		SlotID:    slotID,
		VisitMode: domain.VisitMode(req.VisitMode),
		Category:  domain.Category(req.Category),
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	log.Info(
		"appointment booked from slot",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("slot_id", slotID.String()),
	)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "UpdateStatus"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a UUID")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), actor, appointmentID, domain.AppointmentStatus(req.Status), req.Notes)
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	log.Info(
		"appointment status updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Cancel"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a UUID")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), actor, appointmentID, req.Reason)
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	log.Info("appointment cancelled", slog.String("appointment_id", appt.ID.String()))
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "GetAppointment"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a UUID")
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), actor, appointmentID)
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "ListAppointments"))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing")
		return
	}

	var partyID uuid.UUID
	if raw := r.URL.Query().Get("party"); raw != "" {
		var err error
		partyID, err = uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_party_id", "party must be a UUID")
			return
		}
	}
	from, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "from query parameter must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "to query parameter must be YYYY-MM-DD")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), actor, partyID, from, to)
	if err != nil {
		h.writeDomainError(w, log, err)
		return
	}

	out := appointmentListResponse{Appointments: make([]appointmentResponse, 0, len(appts))}
	for _, a := range appts {
		out.Appointments = append(out.Appointments, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// writeDomainError maps the service error taxonomy onto HTTP statuses. Raw
// storage errors never reach the client; anything unrecognized is a 500.
func (h *BookingHandler) writeDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("request rejected", slog.String("reason", vErr.Error()))
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, booking.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "the requested entity does not exist")
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict")
		writeError(w, http.StatusConflict, "slot_taken", "that time is no longer available")
	case errors.Is(err, store.ErrSlotReserved):
		writeError(w, http.StatusConflict, "slot_reserved", "a reserved slot cannot be deleted; cancel the appointment first")
	case errors.Is(err, redislock.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "that time is currently being booked, please retry")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, booking.ErrNotAccepting):
		writeError(w, http.StatusConflict, "not_accepting_bookings", err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you may not perform this action")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is missing or invalid")
	default:
		log.Error("request failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please retry")
	}
}
