package v16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
)

// wsConn is the slice of *websocket.Conn the orchestrator needs. Tests
// substitute an in-memory pipe.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config carries the per-station tunables of the OCPP session layer.
type Config struct {
	HeartbeatInterval time.Duration // advertised in the BootNotification reply
	WatchdogTimeout   time.Duration // plugged-in-but-idle unlock timer
	CallTimeout       time.Duration // applies to GetConfiguration only
	QRBaseURL         string        // base for per-connector payment QR codes
	RatePerKWh        float64       // 0 disables billing on StopTransaction
	Currency          string
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 300 * time.Second
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = 90 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "BRL"
	}
	return c
}

// Services bundles the collaborators shared by every charge point. They are
// constructed once in main and handed to the acceptor.
type Services struct {
	Registry *registry.Registry
	Identity ports.IdentityService
	Wallet   ports.WalletService
	Events   ports.EventPublisher
	Alerts   ports.AlertMailer
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

// ChargePoint drives one OCPP 1.6J session. It owns the socket read loop,
// the call correlation slots and the per-connector runtime state. Its
// lifetime equals the WebSocket lifetime.
type ChargePoint struct {
	id        string
	stationID int
	conn      wsConn
	cfg       Config
	svc       Services
	log       *zap.Logger

	writeMu sync.Mutex // one frame on the wire at a time

	mu            sync.Mutex
	pendingCalls  map[string]chan callOutcome
	activeTx      map[int]int    // connector number -> open transaction id
	pendingRemote map[int]string // connector number -> armed id tag
	watchdogs     map[int]*time.Timer
	lastVID       string
	lastMAC       string
	closed        bool
	done          chan struct{}
}

func NewChargePoint(id string, conn wsConn, cfg Config, svc Services, log *zap.Logger) *ChargePoint {
	station := svc.Registry.EnsureStation(id)
	return &ChargePoint{
		id:            id,
		stationID:     station.ID,
		conn:          conn,
		cfg:           cfg.withDefaults(),
		svc:           svc,
		log:           log.With(zap.String("charge_point_id", id)),
		pendingCalls:  make(map[string]chan callOutcome),
		activeTx:      make(map[int]int),
		pendingRemote: make(map[int]string),
		watchdogs:     make(map[int]*time.Timer),
		done:          make(chan struct{}),
	}
}

func (cp *ChargePoint) ID() string { return cp.id }

// Run consumes frames until the socket dies. Inbound calls are handled
// synchronously, so replies leave in arrival order.
func (cp *ChargePoint) Run() {
	defer cp.teardown()
	for {
		_, raw, err := cp.conn.ReadMessage()
		if err != nil {
			cp.log.Info("websocket closed", zap.Error(err))
			return
		}
		cp.handleFrame(raw)
	}
}

// Close tears the socket down; Run unwinds on the resulting read error.
func (cp *ChargePoint) Close() {
	cp.conn.Close()
}

func (cp *ChargePoint) handleFrame(raw []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 3 {
		cp.log.Warn("dropping malformed frame", zap.ByteString("frame", raw))
		return
	}

	var msgType int
	if err := json.Unmarshal(frame[0], &msgType); err != nil {
		cp.log.Warn("dropping frame with non-numeric type", zap.ByteString("frame", raw))
		return
	}
	var msgID string
	if err := json.Unmarshal(frame[1], &msgID); err != nil {
		cp.log.Warn("dropping frame with invalid message id", zap.ByteString("frame", raw))
		return
	}

	switch msgType {
	case CallMessage:
		if len(frame) < 4 {
			cp.log.Warn("dropping truncated call", zap.String("message_id", msgID))
			return
		}
		var action string
		if err := json.Unmarshal(frame[2], &action); err != nil {
			cp.log.Warn("dropping call with invalid action", zap.String("message_id", msgID))
			return
		}
		cp.dispatch(msgID, action, frame[3])
	case CallResultMessage:
		cp.resolveCall(msgID, frame[2], nil)
	case CallErrorMessage:
		var code, description string
		json.Unmarshal(frame[2], &code)
		if len(frame) > 3 {
			json.Unmarshal(frame[3], &description)
		}
		cp.resolveCall(msgID, nil, fmt.Errorf("call error %s: %s", code, description))
	default:
		cp.log.Warn("dropping frame with unknown type", zap.Int("message_type", msgType))
	}
}

func (cp *ChargePoint) dispatch(msgID, action string, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			cp.log.Error("handler panic", zap.String("action", action), zap.Any("panic", r))
			cp.sendCallError(msgID, "InternalError", "internal error")
		}
	}()

	handler, ok := actionTable[action]
	if !ok {
		cp.log.Warn("action not implemented", zap.String("action", action))
		cp.sendCallError(msgID, "NotImplemented", fmt.Sprintf("action %s is not implemented", action))
		return
	}

	telemetry.OCPPMessagesTotal.WithLabelValues(action, "in").Inc()
	resp, err := handler(cp, payload)
	if err != nil {
		cp.log.Warn("handler failed", zap.String("action", action), zap.Error(err))
		cp.sendCallError(msgID, "InternalError", err.Error())
		return
	}
	cp.sendCallResult(msgID, resp)
}

// Send issues a CALL and blocks until the station answers, the context
// expires or the socket dies. Each message id resolves at most once.
func (cp *ChargePoint) Send(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	msgID := uuid.New().String()
	ch := make(chan callOutcome, 1)

	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil, domain.ErrDisconnected
	}
	cp.pendingCalls[msgID] = ch
	cp.mu.Unlock()

	start := time.Now()
	if err := cp.writeFrame([]interface{}{CallMessage, msgID, action, payload}); err != nil {
		cp.mu.Lock()
		delete(cp.pendingCalls, msgID)
		cp.mu.Unlock()
		return nil, fmt.Errorf("write %s: %w", action, err)
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "out").Inc()

	select {
	case out := <-ch:
		telemetry.OCPPCallDuration.Observe(time.Since(start).Seconds())
		if out.err != nil {
			return nil, out.err
		}
		return out.payload, nil
	case <-ctx.Done():
		cp.mu.Lock()
		delete(cp.pendingCalls, msgID)
		cp.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", action, domain.ErrTimeout)
		}
		return nil, ctx.Err()
	case <-cp.done:
		return nil, domain.ErrDisconnected
	}
}

func (cp *ChargePoint) resolveCall(msgID string, payload json.RawMessage, callErr error) {
	cp.mu.Lock()
	ch, ok := cp.pendingCalls[msgID]
	if ok {
		delete(cp.pendingCalls, msgID)
	}
	cp.mu.Unlock()
	if !ok {
		cp.log.Warn("reply without a waiting call", zap.String("message_id", msgID))
		return
	}
	ch <- callOutcome{payload: payload, err: callErr}
}

func (cp *ChargePoint) sendCallResult(msgID string, payload interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if err := cp.writeFrame([]interface{}{CallResultMessage, msgID, payload}); err != nil {
		cp.log.Warn("failed to send call result", zap.String("message_id", msgID), zap.Error(err))
	}
}

func (cp *ChargePoint) sendCallError(msgID, code, description string) {
	frame := []interface{}{CallErrorMessage, msgID, code, description, map[string]interface{}{}}
	if err := cp.writeFrame(frame); err != nil {
		cp.log.Warn("failed to send call error", zap.String("message_id", msgID), zap.Error(err))
	}
}

func (cp *ChargePoint) writeFrame(frame []interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	cp.writeMu.Lock()
	defer cp.writeMu.Unlock()
	return cp.conn.WriteMessage(websocket.TextMessage, data)
}

// teardown resolves every waiting call with a disconnect error and stops
// the watchdogs. Registry connectivity is the acceptor's business.
func (cp *ChargePoint) teardown() {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return
	}
	cp.closed = true
	close(cp.done)
	waiters := cp.pendingCalls
	cp.pendingCalls = make(map[string]chan callOutcome)
	dogs := cp.watchdogs
	cp.watchdogs = make(map[int]*time.Timer)
	cp.mu.Unlock()

	for _, ch := range waiters {
		ch <- callOutcome{err: domain.ErrDisconnected}
	}
	for _, timer := range dogs {
		timer.Stop()
	}
	cp.conn.Close()
}

// --- per-connector runtime state ---

func (cp *ChargePoint) setHints(vid, mac string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if vid != "" {
		cp.lastVID = vid
	}
	if mac != "" {
		cp.lastMAC = mac
	}
}

func (cp *ChargePoint) hints() (vid, mac string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.lastVID, cp.lastMAC
}

// ActiveTransaction reports the open transaction on a connector, if any.
func (cp *ChargePoint) ActiveTransaction(connector int) (int, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	txID, ok := cp.activeTx[connector]
	return txID, ok
}

func (cp *ChargePoint) armWatchdog(connector int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.closed {
		return
	}
	if _, armed := cp.watchdogs[connector]; armed {
		return
	}
	cp.watchdogs[connector] = time.AfterFunc(cp.cfg.WatchdogTimeout, func() {
		cp.watchdogExpired(connector)
	})
	cp.log.Info("armed idle watchdog",
		zap.Int("connector_id", connector),
		zap.Duration("timeout", cp.cfg.WatchdogTimeout))
}

func (cp *ChargePoint) cancelWatchdog(connector int) {
	cp.mu.Lock()
	timer, ok := cp.watchdogs[connector]
	if ok {
		delete(cp.watchdogs, connector)
	}
	cp.mu.Unlock()
	if ok {
		timer.Stop()
		cp.log.Debug("cancelled idle watchdog", zap.Int("connector_id", connector))
	}
}

// watchdogExpired unlocks a connector that sat in Preparing or Occupied
// without ever opening a transaction.
func (cp *ChargePoint) watchdogExpired(connector int) {
	cp.mu.Lock()
	delete(cp.watchdogs, connector)
	_, hasTx := cp.activeTx[connector]
	cp.mu.Unlock()
	if hasTx {
		return
	}
	conn, ok := cp.svc.Registry.ConnectorByNumber(cp.id, connector)
	if !ok || !conn.Status.Armed() {
		return
	}

	cp.mu.Lock()
	delete(cp.pendingRemote, connector)
	cp.mu.Unlock()
	cp.svc.Registry.ClearPending(cp.id, connector)

	cp.log.Warn("no transaction started in time, unlocking connector",
		zap.Int("connector_id", connector))
	if _, err := cp.UnlockConnector(context.Background(), connector); err != nil {
		cp.log.Warn("watchdog unlock failed", zap.Int("connector_id", connector), zap.Error(err))
	}
}

func (cp *ChargePoint) publish(subject string, payload interface{}) {
	if cp.svc.Events == nil {
		return
	}
	cp.svc.Events.Publish(subject, cp.id, payload)
}
