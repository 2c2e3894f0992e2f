package v16

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{"ocpp1.6"},
}

// Server accepts charge point connections on /ocpp/<chargePointId> and owns
// the live charge point map. A reconnect under the same id evicts the
// previous socket.
type Server struct {
	cfg        Config
	svc        Services
	log        *zap.Logger
	httpServer *http.Server

	mu     sync.RWMutex
	points map[string]*ChargePoint
}

var _ ports.StationCommander = (*Server)(nil)

func NewServer(cfg Config, svc Services, log *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		svc:    svc,
		log:    log,
		points: make(map[string]*ChargePoint),
	}
}

// Handler exposes the upgrade endpoint for embedding in another listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", s.handleWebSocket)
	return mux
}

// Start blocks serving WebSocket upgrades on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	s.log.Info("starting OCPP 1.6 websocket server", zap.String("addr", addr))

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes every charge point socket and the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	points := make([]*ChargePoint, 0, len(s.points))
	for _, cp := range s.points {
		points = append(points, cp)
	}
	s.mu.Unlock()

	for _, cp := range points {
		cp.Close()
	}
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.log.Info("OCPP server stopped")
}

// Get returns the live orchestrator for a charge point id.
func (s *Server) Get(chargePointID string) (*ChargePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.points[chargePointID]
	if !ok {
		return nil, fmt.Errorf("charge point %s: %w", chargePointID, domain.ErrNotConnected)
	}
	return cp, nil
}

// Connected lists the ids of the charge points currently online.
func (s *Server) Connected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	return ids
}

// IsConnected reports whether a live socket exists for the cpid.
func (s *Server) IsConnected(chargePointID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[chargePointID]
	return ok
}

// --- ports.StationCommander, fanned to the live charge point ---

func (s *Server) StartSession(ctx context.Context, cpid string, connector int, idTag, vid, mac string) error {
	cp, err := s.Get(cpid)
	if err != nil {
		return err
	}
	return cp.StartSession(ctx, connector, idTag, vid, mac)
}

func (s *Server) StopTransaction(ctx context.Context, cpid string, transactionID int) error {
	cp, err := s.Get(cpid)
	if err != nil {
		return err
	}
	return cp.RemoteStop(ctx, transactionID)
}

func (s *Server) Release(ctx context.Context, cpid string, connector int) error {
	cp, err := s.Get(cpid)
	if err != nil {
		return err
	}
	return cp.Release(ctx, connector)
}

func (s *Server) Unlock(ctx context.Context, cpid string, connector int) (string, error) {
	cp, err := s.Get(cpid)
	if err != nil {
		return "", err
	}
	return cp.UnlockConnector(ctx, connector)
}

func (s *Server) Reset(ctx context.Context, cpid, resetType string) error {
	cp, err := s.Get(cpid)
	if err != nil {
		return err
	}
	return cp.Reset(ctx, resetType)
}

func (s *Server) ChangeAvailability(ctx context.Context, cpid string, connector int, available bool) (string, error) {
	cp, err := s.Get(cpid)
	if err != nil {
		return "", err
	}
	return cp.ChangeAvailability(ctx, connector, available)
}

func (s *Server) ChangeConfiguration(ctx context.Context, cpid, key, value string) (string, error) {
	cp, err := s.Get(cpid)
	if err != nil {
		return "", err
	}
	return cp.ChangeConfiguration(ctx, key, value)
}

func (s *Server) Configuration(ctx context.Context, cpid string) ([]domain.ConfigurationKey, error) {
	cp, err := s.Get(cpid)
	if err != nil {
		return nil, err
	}
	keys, err := cp.GetConfiguration(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConfigurationKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.ConfigurationKey{Key: k.Key, Readonly: k.Readonly, Value: k.Value})
	}
	return out, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chargePointID := strings.TrimPrefix(r.URL.Path, "/ocpp/")
	if chargePointID == "" || strings.Contains(chargePointID, "/") {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed",
			zap.String("charge_point_id", chargePointID),
			zap.Error(err))
		return
	}

	cp := NewChargePoint(chargePointID, conn, s.cfg, s.svc, s.log)
	s.attach(cp)
	cp.Run()
	s.detach(cp)
}

func (s *Server) attach(cp *ChargePoint) {
	s.mu.Lock()
	previous := s.points[cp.ID()]
	s.points[cp.ID()] = cp
	s.mu.Unlock()

	if previous != nil {
		s.log.Warn("duplicate connection, evicting previous socket",
			zap.String("charge_point_id", cp.ID()))
		previous.Close()
	}

	s.svc.Registry.SetConnected(cp.ID(), true)
	telemetry.ConnectedStations.Inc()
	if s.svc.Events != nil {
		s.svc.Events.Publish(domain.SubjectStationConnected, cp.ID(), nil)
	}
	s.log.Info("charge point connected", zap.String("charge_point_id", cp.ID()))
}

// detach drops the orchestrator from the live map. When a newer socket for
// the same id has already replaced it, the registry entry stays connected.
func (s *Server) detach(cp *ChargePoint) {
	s.mu.Lock()
	current, ok := s.points[cp.ID()]
	if ok && current == cp {
		delete(s.points, cp.ID())
	} else {
		ok = false
	}
	s.mu.Unlock()

	telemetry.ConnectedStations.Dec()
	if !ok {
		return
	}

	s.svc.Registry.SetConnected(cp.ID(), false)
	if s.svc.Events != nil {
		s.svc.Events.Publish(domain.SubjectStationDisconnected, cp.ID(), nil)
	}
	s.log.Info("charge point disconnected", zap.String("charge_point_id", cp.ID()))
}
