package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPostgres(mock, nil)
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("doc-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.LockDoctor(ctx, "doc-1")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	mock, store := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(context.Context, Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertAppointmentMapsExclusionViolation(t *testing.T) {
	mock, store := newMock(t)
	start := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("appt-1", "pat-1", "doc-1", start, start.Add(30*time.Minute), 30, "video", "scheduled", int64(5000), "USD", "").
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertAppointment(ctx, &model.Appointment{
			ID: "appt-1", PatientID: "pat-1", DoctorID: "doc-1", StartTime: start, DurationMinutes: 30,
			Type: model.TypeVideo, Status: model.StatusScheduled, ConsultationFee: 5000, Currency: "USD",
		})
	})
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAppointmentDetectsStaleStatus(t *testing.T) {
	mock, store := newMock(t)
	changed := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", "scheduled", "cancelled", pgxmock.AnyArg(), "pat-1", "sick", changed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.UpdateAppointment(ctx, model.Appointment{
			ID: "appt-1", Status: model.StatusCancelled, CancelledBy: "pat-1", CancelReason: "sick", StatusChangedAt: changed,
		}, model.StatusScheduled)
	})
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected stale status, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertPaymentDuplicate(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs("pi_1", "appt-1", int64(5000), "USD", "stripe").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertPayment(ctx, model.PaymentRecord{
			ProviderReference: "pi_1", AppointmentID: "appt-1", Amount: 5000, Currency: "USD", Provider: "stripe",
		})
	})
	if !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected duplicate payment, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActiveWindowsConvertsWeekday(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "doctor_id", "weekday", "start_minute", "end_minute", "active", "created_at", "updated_at"}).
		AddRow("w-1", "doc-1", 0, 540, 600, true, now, now)
	mock.ExpectQuery("FROM availability_windows").WithArgs("doc-1", 0).WillReturnRows(rows)

	windows, err := store.ActiveWindows(context.Background(), "doc-1", time.Sunday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 || windows[0].Weekday != availability.Sunday {
		t.Fatalf("expected one Sunday (7) window, got %+v", windows)
	}
	if windows[0].Start.String() != "09:00" || windows[0].End.String() != "10:00" {
		t.Fatalf("unexpected window times: %+v", windows[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWindowStoresInternalWeekday(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO availability_windows").
		WithArgs("w-1", "doc-1", 3, 540, 600, true).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	w := availability.Window{ID: "w-1", DoctorID: "doc-1", Weekday: availability.Wednesday, Start: 540, End: 600, Active: true}
	if err := store.CreateWindow(context.Background(), &w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at to be populated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteWindowNotFound(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectExec("DELETE FROM availability_windows").WithArgs("w-404", "doc-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := store.DeleteWindow(context.Background(), "doc-1", "w-404"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContactEmailNotFound(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery("SELECT email FROM contacts").WithArgs("pat-1").WillReturnError(pgx.ErrNoRows)

	if _, err := store.ContactEmail(context.Background(), "pat-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetAppointmentDecodesPrescription(t *testing.T) {
	mock, store := newMock(t)
	start := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "patient_id", "doctor_id", "start_time", "duration_minutes", "type", "status",
		"consultation_fee", "currency", "notes", "prescription", "session_started_at", "status_changed_at",
		"cancelled_by", "cancel_reason", "created_at"}
	var session *time.Time
	rows := pgxmock.NewRows(cols).AddRow("appt-1", "pat-1", "doc-1", start, 30, "video", "completed",
		int64(5000), "USD", "", []byte(`{"text":"rest"}`), session, start, "", "", start)
	mock.ExpectQuery("FROM appointments").WithArgs("appt-1").WillReturnRows(rows)

	appt, err := store.GetAppointment(context.Background(), "appt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != model.StatusCompleted || appt.Prescription == nil || appt.Prescription.Text != "rest" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}

	mock.ExpectQuery("FROM appointments").WithArgs("missing").WillReturnRows(pgxmock.NewRows(cols))
	if _, err := store.GetAppointment(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
