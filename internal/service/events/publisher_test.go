package events

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

type recordingQueue struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{messages: make(map[string][][]byte)}
}

func (q *recordingQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages[subject] = append(q.messages[subject], data)
	return nil
}

func (q *recordingQueue) Subscribe(string, func(data []byte) error) error { return nil }
func (q *recordingQueue) Close() error                                    { return nil }

func (q *recordingQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages[subject])
}

func TestPublisher_DeliversToQueueAndSinks(t *testing.T) {
	// Arrange
	q := newRecordingQueue()
	p := NewPublisher(q, zap.NewNop())
	var mu sync.Mutex
	var seen []domain.Event
	p.Subscribe(func(evt domain.Event) {
		mu.Lock()
		seen = append(seen, evt)
		mu.Unlock()
	})

	// Act
	p.Publish(domain.SubjectTransactionStarted, "CP_A", map[string]int{"transaction_id": 1})
	p.Close()

	// Assert
	if q.count(domain.SubjectTransactionStarted) != 1 {
		t.Fatalf("expected one queued message, got %d", q.count(domain.SubjectTransactionStarted))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("expected one sink delivery, got %d", len(seen))
	}
	if seen[0].ChargePoint != "CP_A" || seen[0].ID == "" {
		t.Fatalf("unexpected event: %+v", seen[0])
	}

	var decoded domain.Event
	q.mu.Lock()
	raw := q.messages[domain.SubjectTransactionStarted][0]
	q.mu.Unlock()
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("queued payload not json: %v", err)
	}
	if decoded.Subject != domain.SubjectTransactionStarted {
		t.Fatalf("expected subject on the wire, got %s", decoded.Subject)
	}
}

func TestPublisher_NilQueueServesSinksOnly(t *testing.T) {
	p := NewPublisher(nil, zap.NewNop())
	got := make(chan domain.Event, 1)
	p.Subscribe(func(evt domain.Event) { got <- evt })

	p.Publish(domain.SubjectStationConnected, "CP_B", nil)
	p.Close()

	select {
	case evt := <-got:
		if evt.Subject != domain.SubjectStationConnected {
			t.Fatalf("unexpected subject %s", evt.Subject)
		}
	default:
		t.Fatalf("sink never saw the event")
	}
}

func TestPublisher_CloseDrainsBuffer(t *testing.T) {
	q := newRecordingQueue()
	p := NewPublisher(q, zap.NewNop())

	for i := 0; i < 50; i++ {
		p.Publish(domain.SubjectConnectorStatus, "CP_C", map[string]int{"seq": i})
	}
	p.Close()

	if q.count(domain.SubjectConnectorStatus) != 50 {
		t.Fatalf("expected 50 drained messages, got %d", q.count(domain.SubjectConnectorStatus))
	}
}

func TestPublisher_UnmarshalablePayloadSkipsQueue(t *testing.T) {
	q := newRecordingQueue()
	p := NewPublisher(q, zap.NewNop())

	p.Publish(domain.SubjectStationBooted, "CP_D", make(chan int))
	p.Close()

	if q.count(domain.SubjectStationBooted) != 0 {
		t.Fatalf("unmarshalable payload should not reach the queue")
	}
}
