// Package memstore is an in-memory storage.Store used by tests and local runs
// without Postgres. Transactions are serialised on a single mutex and applied
// only when the callback succeeds.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type state struct {
	windows       map[string]availability.Window
	settings      map[string]model.DoctorSettings
	appointments  map[string]model.Appointment
	notifications []model.Notification
	deliveries    []model.Delivery
	payments      map[string]model.PaymentRecord
	contacts      map[string]string
	outbox        []outbox.Event
	nextDelivery  int64
}

func New() *Store {
	return &Store{
		st: &state{
			windows:      map[string]availability.Window{},
			settings:     map[string]model.DoctorSettings{},
			appointments: map[string]model.Appointment{},
			payments:     map[string]model.PaymentRecord{},
			contacts:     map[string]string{},
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var _ storage.Store = (*Store)(nil)

func (st *state) clone() *state {
	c := &state{
		windows:       make(map[string]availability.Window, len(st.windows)),
		settings:      make(map[string]model.DoctorSettings, len(st.settings)),
		appointments:  make(map[string]model.Appointment, len(st.appointments)),
		notifications: slices.Clone(st.notifications),
		deliveries:    slices.Clone(st.deliveries),
		payments:      make(map[string]model.PaymentRecord, len(st.payments)),
		contacts:      make(map[string]string, len(st.contacts)),
		outbox:        slices.Clone(st.outbox),
		nextDelivery:  st.nextDelivery,
	}
	for k, v := range st.windows {
		c.windows[k] = v
	}
	for k, v := range st.settings {
		c.settings[k] = v
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.contacts {
		c.contacts[k] = v
	}
	return c
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Outbox returns a copy of every outbox event committed so far.
func (s *Store) Outbox() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.outbox)
}

// Deliveries returns a copy of every delivery row.
func (s *Store) Deliveries() []model.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.deliveries)
}

// Payments returns the number of recorded payments.
func (s *Store) Payments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.payments)
}

// PutAppointment stores appt as-is, bypassing booking rules.
func (s *Store) PutAppointment(appt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.appointments[appt.ID] = appt
}

// Windows

func (s *Store) ActiveWindows(_ context.Context, doctorID string, weekday time.Weekday) ([]availability.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.activeWindows(doctorID, weekday), nil
}

func (st *state) activeWindows(doctorID string, weekday time.Weekday) []availability.Window {
	iso, err := availability.ToISO(weekday)
	if err != nil {
		return nil
	}
	var out []availability.Window
	for _, w := range st.windows {
		if w.DoctorID == doctorID && w.Weekday == iso && w.Active {
			out = append(out, w)
		}
	}
	availability.SortWindows(out)
	return out
}

func (s *Store) ListWindows(_ context.Context, doctorID string) ([]availability.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availability.Window
	for _, w := range s.st.windows {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b availability.Window) int {
		if c := cmp.Compare(a.Weekday, b.Weekday); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return out, nil
}

func (s *Store) CreateWindow(_ context.Context, w *availability.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.st.windows[w.ID] = *w
	return nil
}

func (s *Store) UpdateWindow(_ context.Context, w availability.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.st.windows[w.ID]
	if !ok || old.DoctorID != w.DoctorID {
		return model.ErrNotFound
	}
	w.CreatedAt = old.CreatedAt
	w.UpdatedAt = s.now()
	s.st.windows[w.ID] = w
	return nil
}

func (s *Store) DeleteWindow(_ context.Context, doctorID, windowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.st.windows[windowID]
	if !ok || old.DoctorID != doctorID {
		return model.ErrNotFound
	}
	delete(s.st.windows, windowID)
	return nil
}

// Settings and contacts

func (s *Store) DoctorSettings(_ context.Context, doctorID string) (model.DoctorSettings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.settings[doctorID]
	return v, ok, nil
}

func (s *Store) UpsertDoctorSettings(_ context.Context, v model.DoctorSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.settings[v.DoctorID] = v
	return nil
}

func (s *Store) UpsertContact(_ context.Context, userID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.contacts[userID] = email
	return nil
}

func (s *Store) ContactEmail(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email, ok := s.st.contacts[userID]; ok {
		return email, nil
	}
	if v, ok := s.st.settings[userID]; ok && v.Email != "" {
		return v.Email, nil
	}
	return "", model.ErrNotFound
}

// Appointments

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.st.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (s *Store) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var out []model.Appointment
	for _, a := range s.st.appointments {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return b.StartTime.Compare(a.StartTime) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) AwaitingPaymentSince(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []model.Appointment
	for _, a := range s.st.appointments {
		if a.Status == model.StatusAwaitingPayment && a.StatusChangedAt.Before(cutoff) {
			matches = append(matches, a)
		}
	}
	slices.SortFunc(matches, func(a, b model.Appointment) int { return a.StatusChangedAt.Compare(b.StatusChangedAt) })
	var ids []string
	for _, a := range matches {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// Notifications

func (s *Store) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []model.Notification
	for i := len(s.st.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.st.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.notifications {
		n := &s.st.notifications[i]
		if n.ID != id || n.RecipientID != recipientID {
			continue
		}
		if !n.Read {
			n.Read = true
			n.ReadAt = &at
		}
		return nil
	}
	return model.ErrNotFound
}
