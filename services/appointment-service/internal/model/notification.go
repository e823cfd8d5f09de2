package model

import "time"

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

type NotificationKind string

const (
	KindPaymentPending       NotificationKind = "payment_pending"
	KindAppointmentConfirmed NotificationKind = "appointment_confirmed"
	KindAppointmentCompleted NotificationKind = "appointment_completed"
	KindAppointmentCancelled NotificationKind = "appointment_cancelled"
	KindNoShowRecorded       NotificationKind = "no_show_recorded"
)

type Notification struct {
	ID            string
	RecipientID   string
	AppointmentID string
	Kind          NotificationKind
	Payload       map[string]any
	Channels      []Channel
	Read          bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery is one channel's attempt record for a notification.
type Delivery struct {
	ID             int64
	NotificationID string
	RecipientID    string
	Kind           NotificationKind
	Payload        map[string]any
	Channel        Channel
	Status         DeliveryStatus
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	LastError      string
}
