package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type tx struct {
	st  *state
	now func() time.Time
}

var _ storage.Tx = (*tx)(nil)

// LockDoctor is a no-op: the whole transaction already holds the store mutex.
func (t *tx) LockDoctor(context.Context, string) error { return nil }

func (t *tx) ActiveWindows(_ context.Context, doctorID string, weekday time.Weekday) ([]availability.Window, error) {
	return t.st.activeWindows(doctorID, weekday), nil
}

func (t *tx) DoctorSettings(_ context.Context, doctorID string) (model.DoctorSettings, bool, error) {
	v, ok := t.st.settings[doctorID]
	return v, ok, nil
}

func (t *tx) OverlappingAppointments(_ context.Context, doctorID string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.st.appointments {
		if a.DoctorID == doctorID && a.Status.BlocksSlot() && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (t *tx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	clash, _ := t.OverlappingAppointments(ctx, appt.DoctorID, appt.StartTime, appt.EndTime())
	if len(clash) > 0 {
		return model.ErrSlotConflict
	}
	now := t.now()
	appt.CreatedAt = now
	appt.StatusChangedAt = now
	t.st.appointments[appt.ID] = *appt
	return nil
}

func (t *tx) AppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (t *tx) UpdateAppointment(_ context.Context, appt model.Appointment, expected model.Status) error {
	cur, ok := t.st.appointments[appt.ID]
	if !ok || cur.Status != expected {
		return storage.ErrStaleStatus
	}
	cur.Status = appt.Status
	cur.Prescription = appt.Prescription
	cur.CancelledBy = appt.CancelledBy
	cur.CancelReason = appt.CancelReason
	cur.StatusChangedAt = appt.StatusChangedAt
	t.st.appointments[appt.ID] = cur
	return nil
}

func (t *tx) MarkSessionStarted(_ context.Context, id string, at time.Time) error {
	cur, ok := t.st.appointments[id]
	if !ok {
		return model.ErrNotFound
	}
	if cur.SessionStartedAt == nil {
		cur.SessionStartedAt = &at
		t.st.appointments[id] = cur
	}
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n *model.Notification, maxAttempts int) error {
	now := t.now()
	n.CreatedAt = now
	t.st.notifications = append(t.st.notifications, *n)
	for _, ch := range n.Channels {
		t.st.nextDelivery++
		t.st.deliveries = append(t.st.deliveries, model.Delivery{
			ID:             t.st.nextDelivery,
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			Kind:           n.Kind,
			Payload:        n.Payload,
			Channel:        ch,
			Status:         model.DeliveryPending,
			MaxAttempts:    maxAttempts,
			NextRunAt:      now,
		})
	}
	return nil
}

func (t *tx) InsertOutbox(_ context.Context, evt outbox.Event) error {
	t.st.outbox = append(t.st.outbox, evt)
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p model.PaymentRecord) error {
	if _, dup := t.st.payments[p.ProviderReference]; dup {
		return storage.ErrDuplicatePayment
	}
	t.st.payments[p.ProviderReference] = p
	return nil
}

func (t *tx) ClaimDueDeliveries(_ context.Context, now, leaseUntil time.Time, limit int) ([]model.Delivery, error) {
	var out []model.Delivery
	for _, d := range t.st.deliveries {
		if d.Status == model.DeliveryPending && !d.NextRunAt.After(now) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b model.Delivery) int {
		if c := a.NextRunAt.Compare(b.NextRunAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		t.delivery(out[i].ID).NextRunAt = leaseUntil
		out[i].NextRunAt = leaseUntil
	}
	return out, nil
}

func (t *tx) delivery(id int64) *model.Delivery {
	for i := range t.st.deliveries {
		if t.st.deliveries[i].ID == id {
			return &t.st.deliveries[i]
		}
	}
	return nil
}

func (t *tx) MarkDelivered(_ context.Context, id int64, attempts int) error {
	d := t.delivery(id)
	if d == nil {
		return model.ErrNotFound
	}
	d.Status = model.DeliveryDelivered
	d.Attempts = attempts
	return nil
}

func (t *tx) MarkDeliveryFailed(_ context.Context, id int64, attempts int, status model.DeliveryStatus, nextRunAt time.Time, lastError string) error {
	d := t.delivery(id)
	if d == nil {
		return model.ErrNotFound
	}
	d.Attempts = attempts
	d.Status = status
	d.NextRunAt = nextRunAt
	d.LastError = lastError
	return nil
}
