package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/docbook/libs/db"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
)

// conn is satisfied by both the pool and pgx.Tx.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool   db.Querier
	outbox *outbox.Repository
}

func NewPostgres(pool db.Querier, outboxRepo *outbox.Repository) *Postgres {
	if outboxRepo == nil {
		outboxRepo = outbox.NewRepository()
	}
	return &Postgres{pool: pool, outbox: outboxRepo}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx, outbox: p.outbox}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) LockDoctor(ctx context.Context, doctorID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID)
	return err
}

func (t *pgTx) ActiveWindows(ctx context.Context, doctorID string, weekday time.Weekday) ([]availability.Window, error) {
	return activeWindows(ctx, t.tx, doctorID, weekday)
}

func (t *pgTx) DoctorSettings(ctx context.Context, doctorID string) (model.DoctorSettings, bool, error) {
	return doctorSettings(ctx, t.tx, doctorID)
}

func (t *pgTx) InsertOutbox(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) InsertPayment(ctx context.Context, p model.PaymentRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (provider_reference, appointment_id, amount, currency, provider)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ProviderReference, p.AppointmentID, p.Amount, p.Currency, p.Provider)
	if db.SQLState(err) == db.CodeUniqueViolation {
		return ErrDuplicatePayment
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Contacts

func (p *Postgres) UpsertContact(ctx context.Context, userID, email string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO contacts (user_id, email)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
	`, userID, email)
	return err
}

// ContactEmail prefers the user's own contact row and falls back to the doctor settings email.
func (p *Postgres) ContactEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := p.pool.QueryRow(ctx, `
		SELECT email FROM contacts WHERE user_id = $1
		UNION ALL
		SELECT email FROM doctor_settings WHERE doctor_id = $1 AND email <> ''
		LIMIT 1
	`, userID).Scan(&email)
	if isNoRows(err) {
		return "", model.ErrNotFound
	}
	return email, err
}

// Doctor settings

func (p *Postgres) DoctorSettings(ctx context.Context, doctorID string) (model.DoctorSettings, bool, error) {
	return doctorSettings(ctx, p.pool, doctorID)
}

func (p *Postgres) UpsertDoctorSettings(ctx context.Context, s model.DoctorSettings) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO doctor_settings (doctor_id, consultation_fee, currency, appointment_minutes, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id) DO UPDATE SET
			consultation_fee = EXCLUDED.consultation_fee,
			currency = EXCLUDED.currency,
			appointment_minutes = EXCLUDED.appointment_minutes,
			email = EXCLUDED.email,
			updated_at = now()
	`, s.DoctorID, s.ConsultationFee, s.Currency, s.AppointmentMinutes, s.Email)
	return err
}

func doctorSettings(ctx context.Context, c conn, doctorID string) (model.DoctorSettings, bool, error) {
	s := model.DoctorSettings{DoctorID: doctorID}
	err := c.QueryRow(ctx, `
		SELECT consultation_fee, currency, appointment_minutes, email
		FROM doctor_settings
		WHERE doctor_id = $1
	`, doctorID).Scan(&s.ConsultationFee, &s.Currency, &s.AppointmentMinutes, &s.Email)
	if isNoRows(err) {
		return model.DoctorSettings{}, false, nil
	}
	if err != nil {
		return model.DoctorSettings{}, false, err
	}
	return s, true, nil
}
