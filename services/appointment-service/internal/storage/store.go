// Package storage persists availability, appointments, notifications and payments.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
)

var (
	// ErrStaleStatus is returned by UpdateAppointment when the stored status no longer
	// matches the expected one.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
	// ErrDuplicatePayment is returned when a provider reference was already recorded.
	ErrDuplicatePayment = errors.New("payment already recorded")
)

// Tx is the unit of work used by booking, transitions, payments and delivery.
// Everything written through a Tx becomes visible atomically on commit.
type Tx interface {
	// LockDoctor serialises booking for one doctor until the transaction ends.
	LockDoctor(ctx context.Context, doctorID string) error
	ActiveWindows(ctx context.Context, doctorID string, weekday time.Weekday) ([]availability.Window, error)
	DoctorSettings(ctx context.Context, doctorID string) (model.DoctorSettings, bool, error)
	OverlappingAppointments(ctx context.Context, doctorID string, start, end time.Time) ([]model.Appointment, error)
	// InsertAppointment returns model.ErrSlotConflict when the overlap constraint fires.
	InsertAppointment(ctx context.Context, appt *model.Appointment) error

	// AppointmentForUpdate locks the row; model.ErrNotFound when missing.
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// UpdateAppointment writes appt only if the stored status still equals expected.
	UpdateAppointment(ctx context.Context, appt model.Appointment, expected model.Status) error
	MarkSessionStarted(ctx context.Context, id string, at time.Time) error

	// InsertNotification stores n and one pending delivery per channel.
	InsertNotification(ctx context.Context, n *model.Notification, maxAttempts int) error
	InsertOutbox(ctx context.Context, evt outbox.Event) error
	InsertPayment(ctx context.Context, p model.PaymentRecord) error

	// ClaimDueDeliveries leases pending deliveries whose next run is due by moving
	// their next run to leaseUntil. Rows claimed by other workers are skipped.
	ClaimDueDeliveries(ctx context.Context, now, leaseUntil time.Time, limit int) ([]model.Delivery, error)
	MarkDelivered(ctx context.Context, id int64, attempts int) error
	MarkDeliveryFailed(ctx context.Context, id int64, attempts int, status model.DeliveryStatus, nextRunAt time.Time, lastError string) error
}

type Store interface {
	availability.Store

	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	DoctorSettings(ctx context.Context, doctorID string) (model.DoctorSettings, bool, error)
	UpsertDoctorSettings(ctx context.Context, s model.DoctorSettings) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	// AwaitingPaymentSince lists ids of appointments that entered awaiting_payment before cutoff.
	AwaitingPaymentSince(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) error

	UpsertContact(ctx context.Context, userID, email string) error
	ContactEmail(ctx context.Context, userID string) (string, error)
}
