package outbox

// Event is the domain event envelope written to the outbox table.
// Notification emits notification.sent.v1 / notification.failed.v1
// per delivery attempt.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
