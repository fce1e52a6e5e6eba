package pubsub

// EventType labels a published event.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is a typed payload delivered to subscribers.
type Event[T any] struct {
	Type    EventType
	Payload T
}
