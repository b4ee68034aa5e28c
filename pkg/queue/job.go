package queue

import "context"

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes a message. A returned error schedules a retry until
	// the retry limit is reached, then the message goes to the dead letter
	// list.
	Handle(ctx context.Context, msg Message) error
}
