package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// Publisher fans domain events out to the message queue and to in-process
// subscribers. Publish never blocks the caller; the buffer drops events
// under sustained backpressure.
type Publisher struct {
	queue   queue.MessageQueue
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger

	mu    sync.RWMutex
	sinks []func(domain.Event)

	ch   chan domain.Event
	once sync.Once
	done chan struct{}
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher starts the delivery worker. A nil queue keeps only the
// in-process fan-out.
func NewPublisher(q queue.MessageQueue, log *zap.Logger) *Publisher {
	p := &Publisher{
		queue: q,
		log:   log,
		ch:    make(chan domain.Event, 256),
		done:  make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-queue",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("event queue circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	go p.run()
	return p
}

// Subscribe registers an in-process sink. Sinks run on the delivery worker
// and must not block.
func (p *Publisher) Subscribe(sink func(domain.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

func (p *Publisher) Publish(subject, chargePoint string, payload interface{}) {
	evt := domain.Event{
		ID:          uuid.New().String(),
		Subject:     subject,
		ChargePoint: chargePoint,
		Time:        time.Now().UTC(),
		Payload:     payload,
	}
	select {
	case p.ch <- evt:
	default:
		p.log.Warn("event buffer full, dropping", zap.String("subject", subject))
	}
}

func (p *Publisher) run() {
	for evt := range p.ch {
		p.deliver(evt)
	}
	close(p.done)
}

func (p *Publisher) deliver(evt domain.Event) {
	p.mu.RLock()
	sinks := p.sinks
	p.mu.RUnlock()
	for _, sink := range sinks {
		sink(evt)
	}

	if p.queue == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("event marshal failed", zap.String("subject", evt.Subject), zap.Error(err))
		return
	}
	if _, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.queue.Publish(evt.Subject, data)
	}); err != nil {
		p.log.Warn("event publish failed", zap.String("subject", evt.Subject), zap.Error(err))
	}
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.ch) })
	<-p.done
}
