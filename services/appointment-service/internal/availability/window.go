package availability

import (
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// Window is a recurring weekly interval [Start, End) during which a doctor accepts bookings.
type Window struct {
	ID        string
	DoctorID  string
	Weekday   Weekday
	Start     TimeOfDay
	End       TimeOfDay
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate rejects windows that cross midnight or sit outside a single day.
func (w Window) Validate() error {
	if w.DoctorID == "" {
		return model.Invalid("doctor_id", "required")
	}
	if !w.Weekday.Valid() {
		return model.Invalid("weekday", "must be 1 (Monday) .. 7 (Sunday)")
	}
	if w.Start < 0 || w.End > MinutesPerDay {
		return model.Invalid("window", "times must be within 00:00..24:00")
	}
	if w.Start >= w.End {
		return model.Invalid("window", "start must be before end; windows spanning midnight are not supported")
	}
	return nil
}

func (w Window) Contains(t TimeOfDay) bool {
	return w.Start <= t && t < w.End
}
