package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func TestRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "payments.payment.confirmed.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "payments.payment.confirmed.v1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-2", "payments.payment.confirmed.v1").
		WillReturnError(errors.New("connection reset"))

	ok, err := repo.Record(context.Background(), "evt-1", "payments.payment.confirmed.v1")
	if err != nil || !ok {
		t.Fatalf("first record: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Record(context.Background(), "evt-1", "payments.payment.confirmed.v1")
	if err != nil || ok {
		t.Fatalf("duplicate record: ok=%v err=%v", ok, err)
	}
	if _, err := repo.Record(context.Background(), "evt-2", "payments.payment.confirmed.v1"); err == nil {
		t.Fatal("expected error to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	seen, err := repo.Seen(context.Background(), "evt-1")
	if err != nil || !seen {
		t.Fatalf("evt-1: seen=%v err=%v", seen, err)
	}
	seen, err = repo.Seen(context.Background(), "evt-2")
	if err != nil || seen {
		t.Fatalf("evt-2: seen=%v err=%v", seen, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
