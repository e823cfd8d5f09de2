package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType and the message key is AggregateID.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"

	TopicNotificationRequested = "appointment.notification.requested.v1"
	TopicAppointmentStatus     = "appointment.status.changed.v1"
)
