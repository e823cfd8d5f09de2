package availability

import (
	"fmt"
	"time"
)

// Weekday is ISO-8601 numbering (1=Monday .. 7=Sunday), used at every external boundary.
// Persistence stores time.Weekday (0=Sunday .. 6=Saturday); ToInternal and ToISO convert.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	t, _ := ToInternal(w)
	return t.String()
}

// ToInternal maps ISO 1..7 onto time.Weekday. Sunday (7) becomes 0.
func ToInternal(w Weekday) (time.Weekday, error) {
	if !w.Valid() {
		return 0, fmt.Errorf("weekday %d out of range 1..7", int(w))
	}
	return time.Weekday(int(w) % 7), nil
}

// ToISO maps time.Weekday 0..6 onto ISO numbering. Sunday (0) becomes 7.
func ToISO(w time.Weekday) (Weekday, error) {
	if w < time.Sunday || w > time.Saturday {
		return 0, fmt.Errorf("weekday %d out of range 0..6", int(w))
	}
	return Weekday((int(w)+6)%7 + 1), nil
}

func ISOWeekday(t time.Time) Weekday {
	w, _ := ToISO(t.Weekday())
	return w
}
