// Package booking turns a requested start time into a scheduled appointment
// without ever double-booking a doctor.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

// TxRunner is the part of storage.Store the guard needs.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Defaults apply to doctors without a settings row.
type Defaults struct {
	ConsultationFee    int64
	Currency           string
	AppointmentMinutes int
}

type Config struct {
	Location         *time.Location
	IncrementMinutes int
	Defaults         Defaults
	Now              func() time.Time
}

type Guard struct {
	store     TxRunner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	loc       *time.Location
	increment int
	defaults  Defaults
	now       func() time.Time
}

func NewGuard(store TxRunner, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Guard {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.IncrementMinutes <= 0 {
		cfg.IncrementMinutes = availability.DefaultIncrementMinutes
	}
	if cfg.Defaults.AppointmentMinutes <= 0 {
		cfg.Defaults.AppointmentMinutes = cfg.IncrementMinutes
	}
	if cfg.Defaults.Currency == "" {
		cfg.Defaults.Currency = "USD"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Guard{
		store:     store,
		logger:    logger,
		metrics:   m,
		loc:       cfg.Location,
		increment: cfg.IncrementMinutes,
		defaults:  cfg.Defaults,
		now:       cfg.Now,
	}
}

type Request struct {
	DoctorID  string
	PatientID string
	Start     time.Time
	Type      model.AppointmentType
	Notes     string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.DoctorID) == "" {
		return model.Invalid("doctor_id", "required")
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return model.Invalid("patient_id", "required")
	}
	if r.Start.IsZero() {
		return model.Invalid("start_time", "required")
	}
	if r.Start.Second() != 0 || r.Start.Nanosecond() != 0 {
		return model.Invalid("start_time", "must be aligned to a whole minute")
	}
	if r.Type != model.TypeVideo && r.Type != model.TypeInPerson {
		return model.Invalid("type", "must be video or in_person")
	}
	return nil
}

// Reserve books req.Start for the patient. The slot check, the overlap check and the
// insert run under one per-doctor lock, so of two concurrent requests for overlapping
// intervals at most one succeeds.
func (g *Guard) Reserve(ctx context.Context, req Request) (model.Appointment, error) {
	appt, err := g.reserve(ctx, req)
	g.metrics.ObserveBooking(outcome(err))
	if err != nil {
		return model.Appointment{}, err
	}
	g.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"patient_id", appt.PatientID,
		"start_time", appt.StartTime.Format(time.RFC3339),
	)
	return appt, nil
}

func (g *Guard) reserve(ctx context.Context, req Request) (model.Appointment, error) {
	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}
	start := req.Start.In(g.loc)
	now := g.now().In(g.loc)
	if !start.After(now) {
		return model.Appointment{}, model.ErrSlotNotOffered
	}
	date := availability.DateOf(start)
	tod := availability.TimeOfDayOf(start)

	var appt model.Appointment
	err := g.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockDoctor(ctx, req.DoctorID); err != nil {
			return err
		}

		windows, err := tx.ActiveWindows(ctx, req.DoctorID, start.Weekday())
		if err != nil {
			return err
		}
		if !offered(windows, date, tod, g.increment, now) {
			return model.ErrSlotNotOffered
		}

		settings, err := g.settingsFor(ctx, tx, req.DoctorID)
		if err != nil {
			return err
		}
		if !availability.Covers(windows, date.Weekday(), tod, settings.AppointmentMinutes) {
			return model.ErrSlotNotOffered
		}

		end := start.Add(time.Duration(settings.AppointmentMinutes) * time.Minute)
		clash, err := tx.OverlappingAppointments(ctx, req.DoctorID, start, end)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return model.ErrSlotConflict
		}

		appt = model.Appointment{
			ID:              uuid.NewString(),
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			StartTime:       start,
			DurationMinutes: settings.AppointmentMinutes,
			Type:            req.Type,
			Status:          model.StatusScheduled,
			ConsultationFee: settings.ConsultationFee,
			Currency:        settings.Currency,
			Notes:           strings.TrimSpace(req.Notes),
		}
		return tx.InsertAppointment(ctx, &appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func offered(windows []availability.Window, date availability.Date, tod availability.TimeOfDay, increment int, now time.Time) bool {
	for s := range availability.Slots(windows, date, increment, now) {
		if s == tod {
			return true
		}
		if s > tod {
			return false
		}
	}
	return false
}

func (g *Guard) settingsFor(ctx context.Context, tx storage.Tx, doctorID string) (model.DoctorSettings, error) {
	s, ok, err := tx.DoctorSettings(ctx, doctorID)
	if err != nil {
		return model.DoctorSettings{}, err
	}
	if !ok {
		s = model.DoctorSettings{DoctorID: doctorID}
	}
	return g.defaults.Apply(s), nil
}

// Apply fills anything the doctor has not configured.
func (d Defaults) Apply(s model.DoctorSettings) model.DoctorSettings {
	if s.AppointmentMinutes <= 0 {
		s.AppointmentMinutes = d.AppointmentMinutes
	}
	if s.Currency == "" {
		s.Currency = d.Currency
		if s.ConsultationFee == 0 {
			s.ConsultationFee = d.ConsultationFee
		}
	}
	return s
}

func (g *Guard) Defaults() Defaults { return g.defaults }

func outcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrSlotNotOffered):
		return "slot_not_offered"
	case errors.Is(err, model.ErrSlotConflict):
		return "slot_conflict"
	default:
		return "error"
	}
}
