package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

type Machine struct {
	store      TxRunner
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewMachine(store TxRunner, dispatcher *notify.Dispatcher, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{store: store, dispatcher: dispatcher, logger: logger, metrics: m, now: now}
}

type Request struct {
	AppointmentID string
	To            model.Status
	Actor         model.Actor
	// Prescription may only accompany a transition into completed.
	Prescription *model.Prescription
	Reason       string
}

// Transition applies req in its own transaction. On any error nothing is written.
func (m *Machine) Transition(ctx context.Context, req Request) (model.Appointment, error) {
	var appt model.Appointment
	err := m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = m.TransitionTx(ctx, tx, req)
		return err
	})
	return appt, err
}

// TransitionTx applies req inside tx. The caller decides whether tx commits.
func (m *Machine) TransitionTx(ctx context.Context, tx storage.Tx, req Request) (model.Appointment, error) {
	appt, from, err := m.apply(ctx, tx, req)
	m.metrics.ObserveTransition(string(req.To), outcome(err))
	if err != nil {
		if errors.Is(err, model.ErrIllegalTransition) {
			m.logger.Info("transition rejected",
				"appointment_id", req.AppointmentID,
				"to", string(req.To),
				"actor_id", req.Actor.ID,
				"actor_role", string(req.Actor.Role),
				"err", err,
			)
		}
		return model.Appointment{}, err
	}
	m.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"from", string(from),
		"to", string(appt.Status),
		"actor_id", req.Actor.ID,
		"actor_role", string(req.Actor.Role),
	)
	return appt, nil
}

func (m *Machine) apply(ctx context.Context, tx storage.Tx, req Request) (model.Appointment, model.Status, error) {
	if err := validateActor(req.Actor); err != nil {
		return model.Appointment{}, "", err
	}
	if !req.To.Valid() {
		return model.Appointment{}, "", model.Invalid("status", "unknown status "+string(req.To))
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		return model.Appointment{}, "", model.Invalid("appointment_id", "required")
	}

	appt, err := tx.AppointmentForUpdate(ctx, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, "", err
	}
	from := appt.Status

	rule, err := Lookup(from, req.To, req.Actor.Role)
	if err != nil {
		return model.Appointment{}, from, err
	}
	if err := checkOwnership(appt, req.Actor, from, req.To); err != nil {
		return model.Appointment{}, from, err
	}
	if !req.Prescription.Empty() && req.To != model.StatusCompleted {
		return model.Appointment{}, from, model.IllegalTransition(from, req.To, "a prescription may only be attached on completion")
	}
	if req.To == model.StatusCompleted && appt.SessionStartedAt == nil {
		return model.Appointment{}, from, model.IllegalTransition(from, req.To, "the session has not started")
	}

	appt.Status = req.To
	appt.StatusChangedAt = m.now().UTC()
	if req.To == model.StatusCompleted && !req.Prescription.Empty() {
		p := *req.Prescription
		appt.Prescription = &p
	}
	if req.To == model.StatusCancelled {
		appt.CancelledBy = req.Actor.ID
		appt.CancelReason = strings.TrimSpace(req.Reason)
	}

	if err := tx.UpdateAppointment(ctx, appt, from); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			return model.Appointment{}, from, model.IllegalTransition(from, req.To, "status changed concurrently")
		}
		return model.Appointment{}, from, err
	}

	if _, err := m.dispatcher.Enqueue(ctx, tx, notify.Request{
		RecipientID:   Recipient(req.To, appt, req.Actor),
		AppointmentID: appt.ID,
		Kind:          rule.Kind,
		Channels:      rule.Channels,
		Payload:       notificationPayload(appt, req.Actor),
	}); err != nil {
		return model.Appointment{}, from, err
	}
	if err := m.recordStatusEvent(ctx, tx, appt, from, req.Actor); err != nil {
		return model.Appointment{}, from, err
	}
	return appt, from, nil
}

// RecordSessionStart stores the fact that the consultation began. Repeated calls
// keep the first timestamp.
func (m *Machine) RecordSessionStart(ctx context.Context, appointmentID string, actor model.Actor) (model.Appointment, error) {
	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	var appt model.Appointment
	err := m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.AppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		switch actor.Role {
		case model.RoleAdmin:
		case model.RoleDoctor:
			if appt.DoctorID != actor.ID {
				return model.IllegalTransition(appt.Status, appt.Status, "not the appointment's doctor")
			}
		case model.RolePatient:
			if appt.PatientID != actor.ID {
				return model.IllegalTransition(appt.Status, appt.Status, "not the appointment's patient")
			}
		default:
			return model.IllegalTransition(appt.Status, appt.Status, "role may not start a session")
		}
		if appt.Status != model.StatusScheduled && appt.Status != model.StatusConfirmed {
			return model.IllegalTransition(appt.Status, appt.Status, "session can only start while scheduled or confirmed")
		}
		if appt.SessionStartedAt != nil {
			return nil
		}
		at := m.now().UTC()
		if err := tx.MarkSessionStarted(ctx, appt.ID, at); err != nil {
			return err
		}
		appt.SessionStartedAt = &at
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func validateActor(actor model.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return model.Invalid("actor", "id required")
	}
	switch actor.Role {
	case model.RolePatient, model.RoleDoctor, model.RoleAdmin, model.RolePaymentGate:
		return nil
	default:
		return model.Invalid("actor", "unknown role "+string(actor.Role))
	}
}

func checkOwnership(appt model.Appointment, actor model.Actor, from, to model.Status) error {
	switch actor.Role {
	case model.RoleDoctor:
		if appt.DoctorID != actor.ID {
			return model.IllegalTransition(from, to, "not the appointment's doctor")
		}
	case model.RolePatient:
		if appt.PatientID != actor.ID {
			return model.IllegalTransition(from, to, "not the appointment's patient")
		}
	}
	return nil
}

func notificationPayload(appt model.Appointment, actor model.Actor) map[string]any {
	p := map[string]any{
		"appointment_id": appt.ID,
		"doctor_id":      appt.DoctorID,
		"patient_id":     appt.PatientID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"type":           string(appt.Type),
		"status":         string(appt.Status),
	}
	switch appt.Status {
	case model.StatusAwaitingPayment:
		p["amount"] = appt.ConsultationFee
		p["currency"] = appt.Currency
	case model.StatusCompleted:
		if appt.Prescription != nil {
			p["prescription_text"] = appt.Prescription.Text
			if appt.Prescription.FileRef != "" {
				p["prescription_file_ref"] = appt.Prescription.FileRef
			}
		}
	case model.StatusCancelled:
		p["cancelled_by"] = actor.ID
		p["cancelled_by_role"] = string(actor.Role)
		if appt.CancelReason != "" {
			p["reason"] = appt.CancelReason
		}
	}
	return p
}

type statusChanged struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ActorID       string    `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	ChangedAt     time.Time `json:"changed_at"`
}

func (m *Machine) recordStatusEvent(ctx context.Context, tx storage.Tx, appt model.Appointment, from model.Status, actor model.Actor) error {
	payload, err := json.Marshal(statusChanged{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		From:          string(from),
		To:            string(appt.Status),
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		ChangedAt:     appt.StatusChangedAt,
	})
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentStatus,
		Payload:       payload,
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
