package outbox

// Event is the domain event envelope written to the outbox table.
// Scheduler emits reminder.due.v1 when a job fires and reminder.dlq.v1
// once a job exhausts its attempts.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
