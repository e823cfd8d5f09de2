package model

// DoctorSettings holds per-doctor booking parameters.
type DoctorSettings struct {
	DoctorID           string
	ConsultationFee    int64
	Currency           string
	AppointmentMinutes int
	Email              string
}

// PaymentRecord is a verified payment accepted by the payment gate.
type PaymentRecord struct {
	ProviderReference string
	AppointmentID     string
	Amount            int64
	Currency          string
	Provider          string
}
