package outbox

// Event is the domain event envelope written to the outbox table.
// Identity emits identity.owner.registered.v1 on signup and
// identity.audit.v1 for audited admin actions.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
