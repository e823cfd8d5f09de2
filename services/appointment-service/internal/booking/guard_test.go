package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage/memstore"
)

// 2026-01-28 is a Wednesday.
var wednesdayNine = time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)

func newGuard(t *testing.T, now time.Time) (*Guard, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	w := availability.Window{ID: "w-1", DoctorID: "doc-1", Weekday: availability.Wednesday, Start: 9 * 60, End: 10 * 60, Active: true}
	if err := store.CreateWindow(context.Background(), &w); err != nil {
		t.Fatalf("create window: %v", err)
	}
	g := NewGuard(store, runtime.DiscardLogger(), nil, Config{
		Location:         time.UTC,
		IncrementMinutes: 30,
		Defaults:         Defaults{ConsultationFee: 5000, Currency: "USD", AppointmentMinutes: 30},
		Now:              func() time.Time { return now },
	})
	return g, store
}

func request(start time.Time) Request {
	return Request{DoctorID: "doc-1", PatientID: "pat-1", Start: start, Type: model.TypeVideo}
}

func TestReserveCreatesScheduledAppointment(t *testing.T) {
	g, store := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))

	appt, err := g.Reserve(context.Background(), request(wednesdayNine))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if appt.Status != model.StatusScheduled || appt.ConsultationFee != 5000 || appt.DurationMinutes != 30 {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if len(store.Outbox()) != 0 || len(store.Deliveries()) != 0 {
		t.Fatal("booking must not emit notifications")
	}

	_, err = g.Reserve(context.Background(), Request{DoctorID: "doc-1", PatientID: "pat-2", Start: wednesdayNine, Type: model.TypeInPerson})
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
}

func TestReserveRejectsTimesOutsideTheGrid(t *testing.T) {
	g, _ := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))

	for _, start := range []time.Time{
		wednesdayNine.Add(15 * time.Minute),
		wednesdayNine.Add(2 * time.Hour),
		wednesdayNine.Add(24 * time.Hour),
	} {
		if _, err := g.Reserve(context.Background(), request(start)); !errors.Is(err, model.ErrSlotNotOffered) {
			t.Fatalf("start %s: expected slot not offered, got %v", start, err)
		}
	}
}

func TestReserveRequiresWholeDurationInsideWindows(t *testing.T) {
	g, store := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))
	_ = store.UpsertDoctorSettings(context.Background(), model.DoctorSettings{
		DoctorID: "doc-1", ConsultationFee: 8000, Currency: "EUR", AppointmentMinutes: 45,
	})

	if _, err := g.Reserve(context.Background(), request(wednesdayNine.Add(30*time.Minute))); !errors.Is(err, model.ErrSlotNotOffered) {
		t.Fatalf("expected 09:30+45m to be rejected, got %v", err)
	}
	appt, err := g.Reserve(context.Background(), request(wednesdayNine))
	if err != nil {
		t.Fatalf("expected 09:00+45m to fit, got %v", err)
	}
	if appt.ConsultationFee != 8000 || appt.Currency != "EUR" || appt.DurationMinutes != 45 {
		t.Fatalf("expected doctor settings applied, got %+v", appt)
	}
}

func TestReserveRejectsPastAndTodayElapsedSlots(t *testing.T) {
	g, _ := newGuard(t, wednesdayNine.Add(10*time.Minute))

	if _, err := g.Reserve(context.Background(), request(wednesdayNine)); !errors.Is(err, model.ErrSlotNotOffered) {
		t.Fatalf("expected elapsed slot rejected, got %v", err)
	}
	if _, err := g.Reserve(context.Background(), request(wednesdayNine.Add(30*time.Minute))); err != nil {
		t.Fatalf("expected 09:30 still bookable, got %v", err)
	}
}

func TestReserveValidation(t *testing.T) {
	g, _ := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))

	cases := []Request{
		{PatientID: "pat-1", Start: wednesdayNine, Type: model.TypeVideo},
		{DoctorID: "doc-1", Start: wednesdayNine, Type: model.TypeVideo},
		{DoctorID: "doc-1", PatientID: "pat-1", Type: model.TypeVideo},
		{DoctorID: "doc-1", PatientID: "pat-1", Start: wednesdayNine.Add(5 * time.Second), Type: model.TypeVideo},
		{DoctorID: "doc-1", PatientID: "pat-1", Start: wednesdayNine, Type: "phone"},
	}
	for i, req := range cases {
		if _, err := g.Reserve(context.Background(), req); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCancelledAppointmentFreesTheSlot(t *testing.T) {
	g, store := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))
	store.PutAppointment(model.Appointment{
		ID: "old", DoctorID: "doc-1", PatientID: "pat-9", StartTime: wednesdayNine,
		DurationMinutes: 30, Status: model.StatusCancelled,
	})

	if _, err := g.Reserve(context.Background(), request(wednesdayNine)); err != nil {
		t.Fatalf("expected cancelled appointment not to block, got %v", err)
	}
}

func TestConcurrentReservationsYieldExactlyOneBooking(t *testing.T) {
	g, store := newGuard(t, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Reserve(context.Background(), Request{
				DoctorID: "doc-1", PatientID: "pat-" + string(rune('a'+i)), Start: wednesdayNine, Type: model.TypeVideo,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, successes, conflicts)
	}
	booked, _ := store.ListAppointments(context.Background(), model.AppointmentFilter{DoctorID: "doc-1"})
	if len(booked) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(booked))
	}
}
