package outbox

import "encoding/json"

// Topic names. The Kafka topic equals the event type.
const (
	TopicAppointmentBooked    = "agenda.appointment.booked.v1"
	TopicAppointmentConfirmed = "agenda.appointment.confirmed.v1"
	TopicAppointmentCancelled = "agenda.appointment.cancelled.v1"
	TopicAppointmentCompleted = "agenda.appointment.completed.v1"
	TopicAppointmentSettled   = "agenda.appointment.settled.v1"
	TopicPaymentRecorded      = "agenda.payment.recorded.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	BusinessID    string
	EventType     string
	Payload       []byte
}

// AppointmentEvent marshals payload into an appointment-scoped event.
func AppointmentEvent(eventType, appointmentID, businessID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		BusinessID:    businessID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
