package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

type fakeFeedConn struct {
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeFeedConn() *fakeFeedConn {
	return &fakeFeedConn{
		outbound: make(chan []byte, 32),
		closed:   make(chan struct{}),
	}
}

func (c *fakeFeedConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeFeedConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.outbound <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeFeedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestHub_RelayDeliversEventToClient(t *testing.T) {
	// Arrange
	hub := newTestHub(t)
	conn := newFakeFeedConn()
	go hub.AddClient(conn)
	waitFor(t, func() bool { return hub.Clients() == 1 }, "client never registered")

	// Act
	hub.Relay(domain.Event{
		ID:          "evt-1",
		Subject:     domain.SubjectTransactionStarted,
		ChargePoint: "CP_1",
		Time:        time.Now().UTC(),
	})

	// Assert
	select {
	case frame := <-conn.outbound:
		var evt domain.Event
		if err := json.Unmarshal(frame, &evt); err != nil {
			t.Fatalf("frame is not a json event: %v", err)
		}
		if evt.Subject != domain.SubjectTransactionStarted {
			t.Errorf("expected subject %s, got %s", domain.SubjectTransactionStarted, evt.Subject)
		}
		if evt.ChargePoint != "CP_1" {
			t.Errorf("expected cpid CP_1, got %s", evt.ChargePoint)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no frame delivered to client")
	}
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	// Arrange
	hub := newTestHub(t)
	conn := newFakeFeedConn()
	go hub.AddClient(conn)
	waitFor(t, func() bool { return hub.Clients() == 1 }, "client never registered")

	// Act
	conn.Close()

	// Assert
	waitFor(t, func() bool { return hub.Clients() == 0 }, "client never unregistered")
}

func TestHub_RelaySkipsUnmarshalablePayload(t *testing.T) {
	// Arrange
	hub := newTestHub(t)
	conn := newFakeFeedConn()
	go hub.AddClient(conn)
	waitFor(t, func() bool { return hub.Clients() == 1 }, "client never registered")

	// Act: channels cannot be marshaled, so the first relay is dropped
	hub.Relay(domain.Event{Subject: "bad", Payload: make(chan int)})
	hub.Relay(domain.Event{Subject: domain.SubjectStationConnected, ChargePoint: "CP_2"})

	// Assert: the only frame delivered is the second event
	select {
	case frame := <-conn.outbound:
		var evt domain.Event
		if err := json.Unmarshal(frame, &evt); err != nil {
			t.Fatalf("frame is not a json event: %v", err)
		}
		if evt.Subject != domain.SubjectStationConnected {
			t.Errorf("expected subject %s, got %s", domain.SubjectStationConnected, evt.Subject)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no frame delivered to client")
	}
}

func TestHub_StopDetachesClients(t *testing.T) {
	// Arrange
	hub := NewHub(zap.NewNop())
	go hub.Run()
	conn := newFakeFeedConn()
	go hub.AddClient(conn)
	waitFor(t, func() bool { return hub.Clients() == 1 }, "client never registered")

	// Act
	hub.Stop()

	// Assert
	waitFor(t, func() bool { return hub.Clients() == 0 }, "client survived hub stop")
}
