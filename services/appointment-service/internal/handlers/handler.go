// Package handlers exposes the appointment API over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docbook/libs/httpx"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/payment"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type Handler struct {
	store        storage.Store
	availability *availability.Service
	guard        *booking.Guard
	machine      *lifecycle.Machine
	gate         *payment.Gate
	stripe       *payment.StripeWebhook
	logger       *slog.Logger
	increment    int
	now          func() time.Time
}

type Config struct {
	Store        storage.Store
	Availability *availability.Service
	Guard        *booking.Guard
	Machine      *lifecycle.Machine
	Gate         *payment.Gate
	Stripe       *payment.StripeWebhook
	Logger       *slog.Logger

	// IncrementMinutes is the default slot grid for listSlots.
	IncrementMinutes int

	Now func() time.Time
}

func New(cfg Config) *Handler {
	if cfg.IncrementMinutes <= 0 {
		cfg.IncrementMinutes = availability.DefaultIncrementMinutes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		store:        cfg.Store,
		availability: cfg.Availability,
		guard:        cfg.Guard,
		machine:      cfg.Machine,
		gate:         cfg.Gate,
		stripe:       cfg.Stripe,
		logger:       cfg.Logger,
		increment:    cfg.IncrementMinutes,
		now:          cfg.Now,
	}
}

// Routes mounts the API. Everything except the Stripe webhook requires the gateway's
// identity headers.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/api/v1/payments/webhooks/stripe", h.StripeWebhook)

	r.Group(func(api chi.Router) {
		api.Use(httpx.RequireActor())

		api.Route("/api/v1/doctors/{doctorID}", func(d chi.Router) {
			d.Get("/slots", h.ListSlots)
			d.Get("/availability", h.ListWindows)
			d.Post("/availability", h.CreateWindow)
			d.Put("/availability/{windowID}", h.UpdateWindow)
			d.Delete("/availability/{windowID}", h.DeleteWindow)
			d.Get("/settings", h.GetSettings)
			d.Put("/settings", h.PutSettings)
		})

		api.Route("/api/v1/appointments", func(a chi.Router) {
			a.Post("/", h.Book)
			a.Get("/", h.ListAppointments)
			a.Get("/{appointmentID}", h.GetAppointment)
			a.Post("/{appointmentID}/transitions", h.Transition)
			a.Post("/{appointmentID}/session-start", h.SessionStart)
		})

		api.Get("/api/v1/notifications", h.ListNotifications)
		api.Post("/api/v1/notifications/{notificationID}/read", h.MarkNotificationRead)
		api.Put("/api/v1/contacts/me", h.PutContact)
	})
	return r
}

func actorFrom(r *http.Request) (model.Actor, error) {
	a, ok := httpx.ActorFromContext(r.Context())
	if !ok {
		return model.Actor{}, model.Invalid("actor", "missing identity")
	}
	role, err := model.ParseRole(a.Role)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{ID: a.ID, Role: role}, nil
}

// canManageDoctor reports whether actor may change doctorID's availability or settings.
func canManageDoctor(actor model.Actor, doctorID string) bool {
	return actor.Role == model.RoleAdmin || (actor.Role == model.RoleDoctor && actor.ID == doctorID)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.Invalid("", "invalid json body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errForbidden = errors.New("forbidden")

// writeError maps domain errors onto status codes. Unknown errors are logged and
// reported as 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, model.ErrValidation):
		code, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, model.ErrSlotNotOffered):
		code, kind = http.StatusUnprocessableEntity, "slot_not_offered"
	case errors.Is(err, model.ErrSlotConflict):
		code, kind = http.StatusConflict, "slot_conflict"
	case errors.Is(err, model.ErrIllegalTransition):
		code, kind = http.StatusConflict, "illegal_transition"
	case errors.Is(err, model.ErrPaymentVerificationFailed):
		code, kind = http.StatusPaymentRequired, "payment_verification_failed"
	case errors.Is(err, model.ErrNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, errForbidden):
		code, kind = http.StatusForbidden, "forbidden"
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: kind, Message: msg})
}
