package model

import "time"

type Prescription struct {
	Text    string `json:"text"`
	FileRef string `json:"file_ref,omitempty"`
}

func (p *Prescription) Empty() bool {
	return p == nil || (p.Text == "" && p.FileRef == "")
}

type Appointment struct {
	ID               string
	PatientID        string
	DoctorID         string
	StartTime        time.Time
	DurationMinutes  int
	Type             AppointmentType
	Status           Status
	ConsultationFee  int64
	Currency         string
	Notes            string
	Prescription     *Prescription
	SessionStartedAt *time.Time
	StatusChangedAt  time.Time
	CancelledBy      string
	CancelReason     string
	CreatedAt        time.Time
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps uses half-open intervals: [s1,e1) overlaps [s2,e2) iff s1 < e2 && s2 < e1.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime())
}

// AppointmentFilter selects appointments for listing. Exactly one of the fields
// is usually set; empty fields are ignored.
type AppointmentFilter struct {
	DoctorID  string
	PatientID string
	Status    Status
	Limit     int
}
