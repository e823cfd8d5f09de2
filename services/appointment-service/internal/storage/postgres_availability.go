package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

const windowColumns = `id::text, doctor_id, weekday, start_minute, end_minute, active, created_at, updated_at`

func (p *Postgres) ActiveWindows(ctx context.Context, doctorID string, weekday time.Weekday) ([]availability.Window, error) {
	return activeWindows(ctx, p.pool, doctorID, weekday)
}

func activeWindows(ctx context.Context, c conn, doctorID string, weekday time.Weekday) ([]availability.Window, error) {
	rows, err := c.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1 AND weekday = $2 AND active
		ORDER BY start_minute
	`, doctorID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWindows(rows)
}

func (p *Postgres) ListWindows(ctx context.Context, doctorID string) ([]availability.Window, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_minute
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWindows(rows)
}

func (p *Postgres) CreateWindow(ctx context.Context, w *availability.Window) error {
	internal, err := availability.ToInternal(w.Weekday)
	if err != nil {
		return model.Invalid("weekday", err.Error())
	}
	return p.pool.QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_id, weekday, start_minute, end_minute, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, w.ID, w.DoctorID, int(internal), int(w.Start), int(w.End), w.Active).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (p *Postgres) UpdateWindow(ctx context.Context, w availability.Window) error {
	internal, err := availability.ToInternal(w.Weekday)
	if err != nil {
		return model.Invalid("weekday", err.Error())
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE availability_windows
		SET weekday = $3, start_minute = $4, end_minute = $5, active = $6, updated_at = now()
		WHERE id = $1 AND doctor_id = $2
	`, w.ID, w.DoctorID, int(internal), int(w.Start), int(w.End), w.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteWindow(ctx context.Context, doctorID, windowID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE id = $1 AND doctor_id = $2
	`, windowID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanWindows(rows rowScanner) ([]availability.Window, error) {
	var windows []availability.Window
	for rows.Next() {
		var (
			w          availability.Window
			weekday    int
			start, end int
		)
		if err := rows.Scan(&w.ID, &w.DoctorID, &weekday, &start, &end, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		iso, err := availability.ToISO(time.Weekday(weekday))
		if err != nil {
			return nil, err
		}
		w.Weekday = iso
		w.Start = availability.TimeOfDay(start)
		w.End = availability.TimeOfDay(end)
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}
