package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// pendingKey addresses the pending-session table. Connector 0 is the
// station-level wildcard.
type pendingKey struct {
	stationID int
	connector int
}

// StationView is a station row joined with its connector rows, used by the
// HTTP listings and the console.
type StationView struct {
	domain.ChargePoint
	Connectors []domain.Connector `json:"connectors"`
}

// Registry is the flat arena behind the control plane: stations, connectors
// and sessions live in three id-keyed tables, references between them are
// ids, and one lock guards the lot. It also owns the process-wide
// transaction counter. Getters return copies; arena rows never escape.
type Registry struct {
	mu sync.RWMutex

	stations   map[int]*domain.ChargePoint
	byName     map[string]int
	connectors map[int]*domain.Connector
	sessions   map[int]*domain.Session
	pending    map[pendingKey]*domain.PendingSession

	nextStation   int
	nextConnector int
	txCounter     int

	log *zap.Logger
}

// New creates an empty registry. The first transaction id handed out is 1.
func New(log *zap.Logger) *Registry {
	return &Registry{
		stations:   make(map[int]*domain.ChargePoint),
		byName:     make(map[string]int),
		connectors: make(map[int]*domain.Connector),
		sessions:   make(map[int]*domain.Session),
		pending:    make(map[pendingKey]*domain.PendingSession),
		log:        log,
	}
}

// --- stations ---

// CreateStation inserts a station row with the next free id.
func (r *Registry) CreateStation(name, location string) domain.ChargePoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		st := r.stations[id]
		if location != "" {
			st.Location = location
		}
		return *st
	}
	st := r.createStationLocked(name)
	st.Location = location
	return *st
}

// EnsureStation returns the station row for a cpid, creating it on first
// contact.
func (r *Registry) EnsureStation(name string) domain.ChargePoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.ensureStationLocked(name)
}

// Station fetches a station row by arena id.
func (r *Registry) Station(id int) (StationView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stations[id]
	if !ok {
		return StationView{}, false
	}
	return r.viewLocked(st), true
}

// StationByName fetches a station row by cpid.
func (r *Registry) StationByName(name string) (StationView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return StationView{}, false
	}
	return r.viewLocked(r.stations[id]), true
}

// DeleteStation removes a station row, its connectors and its pending
// entries. Session history is kept.
func (r *Registry) DeleteStation(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stations[id]
	if !ok {
		return false
	}
	for _, cid := range st.ConnectorIDs {
		delete(r.connectors, cid)
	}
	for key := range r.pending {
		if key.stationID == id {
			delete(r.pending, key)
		}
	}
	delete(r.byName, st.Name)
	delete(r.stations, id)

	r.log.Info("station deleted", zap.Int("station_id", id), zap.String("cpid", st.Name))
	return true
}

// Stations lists all station rows with their connectors, ordered by id.
func (r *Registry) Stations() []StationView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StationView, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, r.viewLocked(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetConnected flips the live flag when an orchestrator attaches or
// detaches.
func (r *Registry) SetConnected(name string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureStationLocked(name).Connected = connected
}

// UpdateStationInfo records the identity a station reported in its
// BootNotification.
func (r *Registry) UpdateStationInfo(name, vendor, model, serial, firmware string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensureStationLocked(name)
	st.Vendor = vendor
	st.Model = model
	st.SerialNumber = serial
	st.FirmwareVersion = firmware
}

// Heartbeat records the last heartbeat time for a station.
func (r *Registry) Heartbeat(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureStationLocked(name).LastHeartbeat = at
}

// --- connectors ---

// SetConnectorStatus updates a connector row, creating it on first sight,
// and returns the new row plus the status it replaced.
func (r *Registry) SetConnectorStatus(name string, number int, status domain.ConnectorStatus, errorCode string) (domain.Connector, domain.ConnectorStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensureStationLocked(name)
	conn := r.connectorLocked(st, number)
	prev := conn.Status
	conn.Status = status
	conn.ErrorCode = errorCode
	conn.StatusAt = time.Now()
	return *conn, prev
}

// ConnectorByNumber fetches a connector row by station name and 1-based
// connector number.
func (r *Registry) ConnectorByNumber(name string, number int) (domain.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return domain.Connector{}, false
	}
	for _, cid := range r.stations[id].ConnectorIDs {
		if c := r.connectors[cid]; c.Number == number {
			return *c, true
		}
	}
	return domain.Connector{}, false
}

// SetConnectorTransaction binds or clears (txID 0) the live transaction on
// a connector.
func (r *Registry) SetConnectorTransaction(name string, number, txID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensureStationLocked(name)
	r.connectorLocked(st, number).TransactionID = txID
}

// ConnectorStatuses lists every connector row, ordered by station then
// connector number.
func (r *Registry) ConnectorStatuses() []domain.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].Number < out[j].Number
	})
	return out
}

// --- pending sessions ---

// SetPending creates or updates the pending entry for (station, connector).
// Non-empty fields overwrite; empty ones keep what is already there.
func (r *Registry) SetPending(name string, connector int, idTag, vid, mac string) domain.PendingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensureStationLocked(name)
	key := pendingKey{st.ID, connector}
	p, ok := r.pending[key]
	if !ok {
		p = &domain.PendingSession{
			StationID:   st.ID,
			ChargePoint: name,
			ConnectorID: connector,
			CreatedAt:   time.Now(),
		}
		r.pending[key] = p
	}
	if idTag != "" {
		p.IDTag = idTag
	}
	if vid != "" {
		p.VID = vid
	}
	if mac != "" {
		p.MAC = mac
	}
	return *p
}

// Pending fetches the pending entry for (station, connector).
func (r *Registry) Pending(name string, connector int) (domain.PendingSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return domain.PendingSession{}, false
	}
	p, ok := r.pending[pendingKey{id, connector}]
	if !ok {
		return domain.PendingSession{}, false
	}
	return *p, true
}

// ClearPending drops the pending entry for (station, connector).
func (r *Registry) ClearPending(name string, connector int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		delete(r.pending, pendingKey{id, connector})
	}
}

// TakeWildcard removes and returns the station-level wildcard entry
// (connector 0), if any.
func (r *Registry) TakeWildcard(name string) (domain.PendingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		return domain.PendingSession{}, false
	}
	key := pendingKey{id, 0}
	p, ok := r.pending[key]
	if !ok {
		return domain.PendingSession{}, false
	}
	delete(r.pending, key)
	return *p, true
}

// PromotePending rewrites the VID (and MAC, when given) on every pending
// entry of a station and returns the VIDs that were displaced, so the
// caller can merge them into the new one.
func (r *Registry) PromotePending(name, vid, mac string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	var displaced []string
	for key, p := range r.pending {
		if key.stationID != id {
			continue
		}
		if p.VID != "" && p.VID != vid {
			displaced = append(displaced, p.VID)
		}
		p.VID = vid
		if mac != "" {
			p.MAC = mac
		}
	}
	return displaced
}

// PendingSessions lists all pending entries, oldest first.
func (r *Registry) PendingSessions() []domain.PendingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PendingSession, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- sessions ---

// NextTransactionID hands out the process-wide monotonically increasing
// transaction id, starting at 1.
func (r *Registry) NextTransactionID() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txCounter++
	return r.txCounter
}

// PutSession stores or replaces a session row.
func (r *Registry) PutSession(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := s
	r.sessions[s.TransactionID] = &row
}

// Session fetches a session row by transaction id.
func (r *Registry) Session(txID int) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[txID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// UpdateSession applies mutate to a session row under the lock.
func (r *Registry) UpdateSession(txID int, mutate func(*domain.Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[txID]
	if !ok {
		return false
	}
	mutate(s)
	return true
}

// ActiveSessions lists the live transaction rows, ordered by id.
func (r *Registry) ActiveSessions() []domain.Session {
	return r.sessionsByState(domain.SessionStateActive)
}

// CompletedSessions lists the history rows, ordered by id.
func (r *Registry) CompletedSessions() []domain.Session {
	return r.sessionsByState(domain.SessionStateCompleted)
}

// ActiveOnConnector finds the live transaction on (station, connector).
func (r *Registry) ActiveOnConnector(name string, connector int) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.State == domain.SessionStateActive && s.ChargePoint == name && s.ConnectorID == connector {
			return *s, true
		}
	}
	return domain.Session{}, false
}

func (r *Registry) sessionsByState(state domain.SessionState) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State == state {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

// --- internals ---

func (r *Registry) createStationLocked(name string) *domain.ChargePoint {
	r.nextStation++
	st := &domain.ChargePoint{
		ID:           r.nextStation,
		Name:         name,
		RegisteredAt: time.Now(),
	}
	r.stations[st.ID] = st
	r.byName[name] = st.ID
	r.log.Info("station registered", zap.Int("station_id", st.ID), zap.String("cpid", name))
	return st
}

func (r *Registry) ensureStationLocked(name string) *domain.ChargePoint {
	if id, ok := r.byName[name]; ok {
		return r.stations[id]
	}
	return r.createStationLocked(name)
}

func (r *Registry) connectorLocked(st *domain.ChargePoint, number int) *domain.Connector {
	for _, cid := range st.ConnectorIDs {
		if c := r.connectors[cid]; c.Number == number {
			return c
		}
	}
	r.nextConnector++
	c := &domain.Connector{
		ID:        r.nextConnector,
		StationID: st.ID,
		Number:    number,
		Status:    domain.ConnectorStatusAvailable,
	}
	r.connectors[c.ID] = c
	st.ConnectorIDs = append(st.ConnectorIDs, c.ID)
	return c
}

func (r *Registry) viewLocked(st *domain.ChargePoint) StationView {
	view := StationView{ChargePoint: *st}
	view.Connectors = make([]domain.Connector, 0, len(st.ConnectorIDs))
	for _, cid := range st.ConnectorIDs {
		view.Connectors = append(view.Connectors, *r.connectors[cid])
	}
	sort.Slice(view.Connectors, func(i, j int) bool { return view.Connectors[i].Number < view.Connectors[j].Number })
	return view
}
