package queue

// MessageQueue is the broker-facing side of the event pipeline. Subjects
// follow the ocpp.* naming used by the event publisher.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// NoopQueue satisfies MessageQueue when eventing is disabled in config.
type NoopQueue struct{}

func NewNoopQueue() MessageQueue { return NoopQueue{} }

func (NoopQueue) Publish(string, []byte) error                    { return nil }
func (NoopQueue) Subscribe(string, func(data []byte) error) error { return nil }
func (NoopQueue) Close() error                                    { return nil }
