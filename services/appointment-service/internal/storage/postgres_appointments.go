package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/db"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

const appointmentColumns = `id::text, patient_id, doctor_id, start_time, duration_minutes, type, status,
	consultation_fee, currency, notes, prescription, session_started_at, status_changed_at,
	cancelled_by, cancel_reason, created_at`

func (t *pgTx) OverlappingAppointments(ctx context.Context, doctorID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, start_time, end_time, duration_minutes, type, status,
			 consultation_fee, currency, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, status_changed_at
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.StartTime, appt.EndTime(), appt.DurationMinutes,
		string(appt.Type), string(appt.Status), appt.ConsultationFee, appt.Currency, appt.Notes,
	).Scan(&appt.CreatedAt, &appt.StatusChangedAt)
	if db.SQLState(err) == db.CodeExclusionViolation {
		return model.ErrSlotConflict
	}
	return err
}

func (t *pgTx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer rows.Close()
	return singleAppointment(rows)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, appt model.Appointment, expected model.Status) error {
	var prescription []byte
	if !appt.Prescription.Empty() {
		raw, err := json.Marshal(appt.Prescription)
		if err != nil {
			return err
		}
		prescription = raw
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			prescription = $4,
			cancelled_by = $5,
			cancel_reason = $6,
			status_changed_at = $7
		WHERE id = $1 AND status = $2
	`, appt.ID, string(expected), string(appt.Status), prescription, appt.CancelledBy, appt.CancelReason, appt.StatusChangedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (t *pgTx) MarkSessionStarted(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET session_started_at = COALESCE(session_started_at, $2)
		WHERE id = $1
	`, id, at)
	return err
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer rows.Close()
	return singleAppointment(rows)
}

func (p *Postgres) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR doctor_id = $1)
			AND ($2 = '' OR patient_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY start_time DESC
		LIMIT $4
	`, f.DoctorID, f.PatientID, string(f.Status), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (p *Postgres) AwaitingPaymentSince(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text
		FROM appointments
		WHERE status = 'awaiting_payment' AND status_changed_at < $1
		ORDER BY status_changed_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

func singleAppointment(rows rowScanner) (model.Appointment, error) {
	appts, err := scanAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, model.ErrNotFound
	}
	return appts[0], nil
}

func scanAppointments(rows rowScanner) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var (
			appt         model.Appointment
			apptType     string
			status       string
			prescription []byte
			sessionStart *time.Time
		)
		if err := rows.Scan(
			&appt.ID,
			&appt.PatientID,
			&appt.DoctorID,
			&appt.StartTime,
			&appt.DurationMinutes,
			&apptType,
			&status,
			&appt.ConsultationFee,
			&appt.Currency,
			&appt.Notes,
			&prescription,
			&sessionStart,
			&appt.StatusChangedAt,
			&appt.CancelledBy,
			&appt.CancelReason,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appt.Type = model.AppointmentType(apptType)
		appt.Status = model.Status(status)
		appt.SessionStartedAt = sessionStart
		if len(prescription) > 0 {
			var p model.Prescription
			if err := json.Unmarshal(prescription, &p); err != nil {
				return nil, err
			}
			appt.Prescription = &p
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
