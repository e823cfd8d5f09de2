package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2026, 1, 28, 9, 5, 0, 0, time.UTC)
	doctor   = model.Actor{ID: "doc-1", Role: model.RoleDoctor}
	patient  = model.Actor{ID: "pat-1", Role: model.RolePatient}
	admin    = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
	gate     = model.Actor{ID: "stripe", Role: model.RolePaymentGate}
)

func newMachine(t *testing.T) (*Machine, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.SetClock(func() time.Time { return fixedNow })
	m := NewMachine(store, notify.NewDispatcher(3), runtime.DiscardLogger(), nil, func() time.Time { return fixedNow })
	return m, store
}

func seed(store *memstore.Store, id string, status model.Status) {
	store.PutAppointment(model.Appointment{
		ID:              id,
		PatientID:       "pat-1",
		DoctorID:        "doc-1",
		StartTime:       time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Type:            model.TypeVideo,
		Status:          status,
		ConsultationFee: 5000,
		Currency:        "USD",
		StatusChangedAt: fixedNow.Add(-time.Hour),
	})
}

func TestCancelFromEveryStatus(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		from  model.Status
		legal bool
	}{
		{model.StatusScheduled, true},
		{model.StatusAwaitingPayment, true},
		{model.StatusConfirmed, true},
		{model.StatusCompleted, false},
		{model.StatusCancelled, false},
		{model.StatusNoShow, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from), func(t *testing.T) {
			m, store := newMachine(t)
			seed(store, "appt-1", tc.from)

			appt, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusCancelled, Actor: patient, Reason: " travel "})
			if !tc.legal {
				require.ErrorIs(t, err, model.ErrIllegalTransition)
				got, _ := store.GetAppointment(ctx, "appt-1")
				require.Equal(t, tc.from, got.Status)
				require.Empty(t, store.Outbox())
				return
			}
			require.NoError(t, err)
			require.Equal(t, model.StatusCancelled, appt.Status)
			require.Equal(t, "pat-1", appt.CancelledBy)
			require.Equal(t, "travel", appt.CancelReason)
			require.Equal(t, fixedNow, appt.StatusChangedAt)

			// Patient cancelled, so the doctor is told.
			notes, err := store.ListNotifications(ctx, "doc-1", false, 10)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			require.Equal(t, model.KindAppointmentCancelled, notes[0].Kind)
			require.Equal(t, "patient", notes[0].Payload["cancelled_by_role"])
			require.Len(t, store.Deliveries(), 2)
		})
	}
}

func TestTransitionRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusScheduled)

	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusAwaitingPayment, Actor: model.Actor{ID: "doc-2", Role: model.RoleDoctor}})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusCancelled, Actor: model.Actor{ID: "pat-9", Role: model.RolePatient}})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusAwaitingPayment, Actor: patient})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	require.Empty(t, store.Outbox())
	require.Empty(t, store.Deliveries())

	appt, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusAwaitingPayment, Actor: doctor})
	require.NoError(t, err)
	require.Equal(t, model.StatusAwaitingPayment, appt.Status)
}

func TestRequestPaymentNotifiesPatientWithAmount(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusScheduled)

	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusAwaitingPayment, Actor: doctor})
	require.NoError(t, err)

	notes, err := store.ListNotifications(ctx, "pat-1", true, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, model.KindPaymentPending, notes[0].Kind)
	require.EqualValues(t, 5000, notes[0].Payload["amount"])
	require.Equal(t, "USD", notes[0].Payload["currency"])

	var types []string
	for _, evt := range store.Outbox() {
		require.Equal(t, "appt-1", evt.AggregateID)
		types = append(types, evt.EventType)
	}
	require.ElementsMatch(t, []string{outbox.TopicNotificationRequested, outbox.TopicAppointmentStatus}, types)
}

func TestConfirmOnlyByPaymentGate(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusAwaitingPayment)

	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusConfirmed, Actor: admin})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusConfirmed, Actor: gate})
	require.NoError(t, err)

	notes, _ := store.ListNotifications(ctx, "doc-1", false, 10)
	require.Len(t, notes, 1)
	require.Equal(t, model.KindAppointmentConfirmed, notes[0].Kind)
}

func TestCompletionNeedsStartedSession(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusConfirmed)

	rx := &model.Prescription{Text: "Rest and fluids"}
	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusCompleted, Actor: doctor, Prescription: rx})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	started, err := m.RecordSessionStart(ctx, "appt-1", patient)
	require.NoError(t, err)
	require.NotNil(t, started.SessionStartedAt)

	// A second start keeps the first timestamp.
	again, err := m.RecordSessionStart(ctx, "appt-1", doctor)
	require.NoError(t, err)
	require.Equal(t, *started.SessionStartedAt, *again.SessionStartedAt)

	appt, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusCompleted, Actor: doctor, Prescription: rx})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, appt.Status)
	require.Equal(t, "Rest and fluids", appt.Prescription.Text)

	stored, err := store.GetAppointment(ctx, "appt-1")
	require.NoError(t, err)
	require.Equal(t, "Rest and fluids", stored.Prescription.Text)

	notes, _ := store.ListNotifications(ctx, "pat-1", false, 10)
	require.Len(t, notes, 1)
	require.Equal(t, "Rest and fluids", notes[0].Payload["prescription_text"])
}

func TestPrescriptionOnlyOnCompletion(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusScheduled)

	_, err := m.Transition(ctx, Request{
		AppointmentID: "appt-1",
		To:            model.StatusNoShow,
		Actor:         doctor,
		Prescription:  &model.Prescription{Text: "n/a"},
	})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	got, _ := store.GetAppointment(ctx, "appt-1")
	require.Equal(t, model.StatusScheduled, got.Status)
	require.Nil(t, got.Prescription)
}

func TestRecordSessionStartGuards(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusAwaitingPayment)
	seed(store, "appt-2", model.StatusScheduled)

	_, err := m.RecordSessionStart(ctx, "appt-1", doctor)
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = m.RecordSessionStart(ctx, "appt-2", model.Actor{ID: "pat-2", Role: model.RolePatient})
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = m.RecordSessionStart(ctx, "missing", admin)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = m.RecordSessionStart(ctx, "appt-2", model.Actor{Role: model.RoleAdmin})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestTransitionValidation(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusScheduled)

	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: "paused", Actor: doctor})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = m.Transition(ctx, Request{AppointmentID: "missing", To: model.StatusCancelled, Actor: admin})
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusCancelled, Actor: model.Actor{ID: "x", Role: "nurse"}})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestStatusEventPayload(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "appt-1", model.StatusScheduled)

	_, err := m.Transition(ctx, Request{AppointmentID: "appt-1", To: model.StatusNoShow, Actor: admin})
	require.NoError(t, err)

	var found bool
	for _, evt := range store.Outbox() {
		if evt.EventType != outbox.TopicAppointmentStatus {
			continue
		}
		found = true
		var body statusChanged
		require.NoError(t, json.Unmarshal(evt.Payload, &body))
		require.Equal(t, "scheduled", body.From)
		require.Equal(t, "no-show", body.To)
		require.Equal(t, "admin", body.ActorRole)
	}
	require.True(t, found)
}

func TestExpirySweeperCancelsStaleAwaitingPayment(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	seed(store, "stale", model.StatusAwaitingPayment)
	store.PutAppointment(model.Appointment{
		ID:              "fresh",
		PatientID:       "pat-1",
		DoctorID:        "doc-1",
		StartTime:       time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Type:            model.TypeVideo,
		Status:          model.StatusAwaitingPayment,
		StatusChangedAt: fixedNow.Add(-time.Minute),
	})
	seed(store, "confirmed", model.StatusConfirmed)

	s := NewExpirySweeper(store, m, runtime.DiscardLogger(), nil, ExpiryConfig{
		TTL: 30 * time.Minute,
		Now: func() time.Time { return fixedNow },
	})
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stale, _ := store.GetAppointment(ctx, "stale")
	require.Equal(t, model.StatusCancelled, stale.Status)
	require.Equal(t, SystemExpiryActor, stale.CancelledBy)

	fresh, _ := store.GetAppointment(ctx, "fresh")
	require.Equal(t, model.StatusAwaitingPayment, fresh.Status)

	notes, _ := store.ListNotifications(ctx, "pat-1", false, 10)
	require.Len(t, notes, 1)

	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
