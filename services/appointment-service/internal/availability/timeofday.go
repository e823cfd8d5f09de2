package availability

import (
	"encoding/json"
	"fmt"
	"time"
)

const MinutesPerDay = 24 * 60

// TimeOfDay is a minute offset from local midnight.
type TimeOfDay int

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if raw == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("time of day must be HH:MM (got %q)", raw)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Date is a calendar day in the clinic's location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return Date{}, fmt.Errorf("date must be YYYY-MM-DD (got %q)", raw)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) Weekday() Weekday {
	return ISOWeekday(d.Midnight(time.UTC))
}

func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant for time-of-day t on this date in loc. It uses wall-clock
// construction so DST days still map "09:00" to 09:00 local.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, int(t)/60, int(t)%60, 0, 0, loc)
}
