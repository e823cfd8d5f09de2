package model

import "strings"

// Status is the closed set of appointment states.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusNoShow          Status = "no-show"
)

var allStatuses = []Status{
	StatusScheduled,
	StatusAwaitingPayment,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// ParseStatus matches case-insensitively and treats "-" and "_" alike, so
// "no_show" and "awaiting-payment" are accepted. Anything else is a validation error.
func ParseStatus(raw string) (Status, error) {
	norm := foldStatus(raw)
	for _, s := range allStatuses {
		if foldStatus(string(s)) == norm {
			return s, nil
		}
	}
	return "", Invalid("status", "unknown status "+quote(raw))
}

func foldStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// BlocksSlot reports whether an appointment in this status occupies its interval.
func (s Status) BlocksSlot() bool {
	return s != StatusCancelled
}

func (s Status) String() string { return string(s) }

type AppointmentType string

const (
	TypeVideo    AppointmentType = "video"
	TypeInPerson AppointmentType = "in_person"
)

func ParseAppointmentType(raw string) (AppointmentType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_") {
	case "video":
		return TypeVideo, nil
	case "in_person":
		return TypeInPerson, nil
	default:
		return "", Invalid("type", "unknown appointment type "+quote(raw))
	}
}

func quote(s string) string { return "\"" + s + "\"" }
