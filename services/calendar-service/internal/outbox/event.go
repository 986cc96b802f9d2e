package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
// Calendar emits calendar.appointment.*.v1 and calendar.event.*.v1 change
// events plus reminder.schedule.v1 / reminder.cancel.v1 for the scheduler.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
