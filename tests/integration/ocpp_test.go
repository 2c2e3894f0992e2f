package integration

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type callReply struct {
	kind    int // 3 result, 4 error
	payload json.RawMessage
}

// centralCall is a CALL the central pushed to the station.
type centralCall struct {
	Action  string
	Payload json.RawMessage
}

// stationClient speaks the charge-point side of OCPP 1.6J over a real
// socket. A background reader answers calls coming from the central, so
// the post-boot configuration probe never stalls, and forwards the
// remote-control actions to a channel the test asserts on.
type stationClient struct {
	t    *testing.T // background logging only; helpers take their own t
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[string]chan callReply

	commands  chan centralCall
	closeOnce sync.Once
}

func dialStation(t *testing.T, env *TestEnv, cpid string) *stationClient {
	t.Helper()

	dialer := websocket.Dialer{
		Subprotocols:     []string{"ocpp1.6"},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.Dial(env.OCPPURL+"/"+cpid, nil)
	if err != nil {
		t.Fatalf("Failed to dial station %s: %v", cpid, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	sc := &stationClient{
		t:        t,
		conn:     conn,
		pending:  make(map[string]chan callReply),
		commands: make(chan centralCall, 16),
	}
	go sc.readLoop()
	t.Cleanup(sc.close)
	return sc
}

func (s *stationClient) close() {
	s.closeOnce.Do(func() { s.conn.Close() })
}

func (s *stationClient) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
			continue
		}
		var kind int
		var msgID string
		if json.Unmarshal(frame[0], &kind) != nil || json.Unmarshal(frame[1], &msgID) != nil {
			continue
		}
		switch kind {
		case 2:
			var action string
			if json.Unmarshal(frame[2], &action) != nil {
				continue
			}
			var payload json.RawMessage
			if len(frame) > 3 {
				payload = frame[3]
			}
			s.handleCentralCall(msgID, action, payload)
		case 3:
			s.route(msgID, callReply{kind: 3, payload: frame[2]})
		case 4:
			s.route(msgID, callReply{kind: 4, payload: data})
		}
	}
}

func (s *stationClient) route(msgID string, rep callReply) {
	s.mu.Lock()
	ch, ok := s.pending[msgID]
	delete(s.pending, msgID)
	s.mu.Unlock()
	if ok {
		ch <- rep
	}
}

// handleCentralCall answers every action the central can push. Only the
// remote-control actions are forwarded to the commands channel; the
// post-boot configuration traffic is answered silently.
func (s *stationClient) handleCentralCall(msgID, action string, payload json.RawMessage) {
	switch action {
	case "GetConfiguration":
		s.writeFrame([]interface{}{3, msgID, map[string]interface{}{
			"configurationKey": []map[string]interface{}{
				{"key": "AuthorizeRemoteTxRequests", "readonly": false, "value": "true"},
				{"key": "HeartbeatInterval", "readonly": false, "value": "300"},
			},
			"unknownKey": []string{},
		}})
	case "UnlockConnector":
		s.writeFrame([]interface{}{3, msgID, map[string]string{"status": "Unlocked"}})
	case "RemoteStartTransaction", "RemoteStopTransaction", "Reset",
		"ChangeAvailability", "ChangeConfiguration", "DataTransfer":
		s.writeFrame([]interface{}{3, msgID, map[string]string{"status": "Accepted"}})
	default:
		s.writeFrame([]interface{}{4, msgID, "NotImplemented", action + " not supported by test station", map[string]string{}})
		return
	}

	switch action {
	case "RemoteStartTransaction", "RemoteStopTransaction", "UnlockConnector",
		"Reset", "ChangeAvailability":
		select {
		case s.commands <- centralCall{Action: action, Payload: payload}:
		default:
			s.t.Logf("command buffer full, dropping %s", action)
		}
	}
}

func (s *stationClient) writeFrame(frame []interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(frame); err != nil {
		s.t.Logf("station write failed: %v", err)
	}
}

// call sends a CALL and waits for the matching CALLRESULT.
func (s *stationClient) call(t *testing.T, action string, payload interface{}) json.RawMessage {
	t.Helper()

	s.mu.Lock()
	s.nextID++
	msgID := strconv.Itoa(s.nextID)
	ch := make(chan callReply, 1)
	s.pending[msgID] = ch
	s.mu.Unlock()

	s.writeFrame([]interface{}{2, msgID, action, payload})

	select {
	case rep := <-ch:
		if rep.kind != 3 {
			t.Fatalf("%s rejected by central: %s", action, rep.payload)
		}
		return rep.payload
	case <-time.After(5 * time.Second):
		t.Fatalf("No answer to %s within 5s", action)
	}
	return nil
}

// expectCommand waits for the central to push the given action, skipping
// unrelated commands that may arrive first.
func (s *stationClient) expectCommand(t *testing.T, action string, within time.Duration) centralCall {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case cmd := <-s.commands:
			if cmd.Action == action {
				return cmd
			}
			t.Logf("skipping %s while waiting for %s", cmd.Action, action)
		case <-deadline:
			t.Fatalf("Central never sent %s within %v", action, within)
			return centralCall{}
		}
	}
}

type bootResult struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

func (s *stationClient) boot(t *testing.T, vendor, model string) bootResult {
	t.Helper()
	raw := s.call(t, "BootNotification", map[string]string{
		"chargePointVendor":       vendor,
		"chargePointModel":        model,
		"chargePointSerialNumber": "SIM001",
		"firmwareVersion":         "1.0.0",
	})
	var out bootResult
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode BootNotification response: %v", err)
	}
	return out
}

func (s *stationClient) status(t *testing.T, connector int, status string) {
	t.Helper()
	s.call(t, "StatusNotification", map[string]interface{}{
		"connectorId": connector,
		"errorCode":   "NoError",
		"status":      status,
	})
}

func (s *stationClient) authorize(t *testing.T, idTag string) string {
	t.Helper()
	raw := s.call(t, "Authorize", map[string]string{"idTag": idTag})
	var out struct {
		IDTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode Authorize response: %v", err)
	}
	return out.IDTagInfo.Status
}

func (s *stationClient) startTransaction(t *testing.T, connector int, idTag string, meterStart int) (int, string) {
	t.Helper()
	raw := s.call(t, "StartTransaction", map[string]interface{}{
		"connectorId": connector,
		"idTag":       idTag,
		"meterStart":  meterStart,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	var out struct {
		TransactionID int `json:"transactionId"`
		IDTagInfo     struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode StartTransaction response: %v", err)
	}
	return out.TransactionID, out.IDTagInfo.Status
}

func (s *stationClient) stopTransaction(t *testing.T, txID, meterStop int, reason string) string {
	t.Helper()
	raw := s.call(t, "StopTransaction", map[string]interface{}{
		"transactionId": txID,
		"meterStop":     meterStop,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"reason":        reason,
	})
	var out struct {
		IDTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode StopTransaction response: %v", err)
	}
	return out.IDTagInfo.Status
}

func (s *stationClient) meterValues(t *testing.T, connector, txID, energyWh int) {
	t.Helper()
	s.call(t, "MeterValues", map[string]interface{}{
		"connectorId":   connector,
		"transactionId": txID,
		"meterValue": []map[string]interface{}{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]string{
				{"value": strconv.Itoa(energyWh), "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
				{"value": "16.4", "measurand": "Current.Import", "unit": "A"},
				{"value": "228.1", "measurand": "Voltage", "unit": "V"},
				{"value": "64", "measurand": "SoC", "unit": "Percent"},
			},
		}},
	})
}

func (s *stationClient) dataTransfer(t *testing.T, vendorID, messageID string, data interface{}) string {
	t.Helper()
	body := map[string]interface{}{"vendorId": vendorID}
	if messageID != "" {
		body["messageId"] = messageID
	}
	if data != nil {
		body["data"] = data
	}
	raw := s.call(t, "DataTransfer", body)
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode DataTransfer response: %v", err)
	}
	return out.Status
}

// TestChargingLifecycle walks a funded vehicle through the full loop:
// boot, remote start, metering, stop and settlement against the wallet.
func TestChargingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP100")

	const vid = "VID:CAFE0001"

	t.Run("Boot", func(t *testing.T) {
		boot := st.boot(t, "VirtualEVSE", "SimulatorV1")
		if boot.Status != "Accepted" {
			t.Fatalf("BootNotification status = %q, want Accepted", boot.Status)
		}
		if boot.Interval != 300 {
			t.Errorf("BootNotification interval = %d, want 300", boot.Interval)
		}
		if boot.CurrentTime == "" {
			t.Error("BootNotification currentTime is empty")
		}

		st.status(t, 1, "Available")
		st.status(t, 2, "Available")

		view, ok := env.Registry.StationByName("CP100")
		if !ok {
			t.Fatal("Station missing from registry after boot")
		}
		if !view.Connected {
			t.Error("Station not marked connected after boot")
		}
		if view.Vendor != "VirtualEVSE" {
			t.Errorf("Station vendor = %q, want VirtualEVSE", view.Vendor)
		}
	})

	t.Run("Heartbeat", func(t *testing.T) {
		raw := st.call(t, "Heartbeat", map[string]string{})
		var out struct {
			CurrentTime string `json:"currentTime"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Failed to decode Heartbeat response: %v", err)
		}
		if out.CurrentTime == "" {
			t.Error("Heartbeat currentTime is empty")
		}
	})

	var txID int

	t.Run("RemoteStart", func(t *testing.T) {
		resp := env.api(t, "POST", "/api/v1/wallet/topup", map[string]interface{}{
			"identifier": map[string]string{"vid": vid},
			"amount":     50,
		})
		var topup struct {
			VID     string  `json:"vid"`
			Balance float64 `json:"balance"`
		}
		decode(t, resp, &topup)
		if topup.VID != vid || topup.Balance != 50 {
			t.Fatalf("TopUp = %+v, want vid %s balance 50", topup, vid)
		}

		resp = env.api(t, "POST", "/api/v1/start", map[string]interface{}{
			"cpid":        "CP100",
			"connectorId": 1,
			"idTag":       "TAG1",
			"vid":         vid,
		})
		if resp.StatusCode != 200 {
			t.Fatalf("POST /start status = %d, want 200", resp.StatusCode)
		}
		var started struct {
			Status string `json:"status"`
		}
		decode(t, resp, &started)
		if started.Status != "Accepted" {
			t.Fatalf("Remote start status = %q, want Accepted", started.Status)
		}

		cmd := st.expectCommand(t, "RemoteStartTransaction", 2*time.Second)
		var rs struct {
			ConnectorID *int   `json:"connectorId"`
			IDTag       string `json:"idTag"`
		}
		if err := json.Unmarshal(cmd.Payload, &rs); err != nil {
			t.Fatalf("Failed to decode RemoteStartTransaction: %v", err)
		}
		if rs.ConnectorID == nil || *rs.ConnectorID != 1 {
			t.Errorf("RemoteStartTransaction connectorId = %v, want 1", rs.ConnectorID)
		}
		if rs.IDTag != "TAG1" {
			t.Errorf("RemoteStartTransaction idTag = %q, want TAG1", rs.IDTag)
		}

		if got := st.authorize(t, "TAG1"); got != "Accepted" {
			t.Fatalf("Authorize status = %q, want Accepted", got)
		}

		var status string
		txID, status = st.startTransaction(t, 1, "TAG1", 1000)
		if status != "Accepted" {
			t.Fatalf("StartTransaction status = %q, want Accepted", status)
		}
		if txID < 1 {
			t.Fatalf("StartTransaction transactionId = %d, want >= 1", txID)
		}
	})

	t.Run("Metering", func(t *testing.T) {
		st.status(t, 1, "Charging")
		st.meterValues(t, 1, txID, 1200)

		resp := env.api(t, "GET", "/api/v1/active", nil)
		var active struct {
			Count        int `json:"count"`
			Transactions []struct {
				TransactionID int    `json:"transaction_id"`
				ConnectorID   int    `json:"connector_id"`
				VID           string `json:"vid"`
			} `json:"transactions"`
		}
		decode(t, resp, &active)
		if active.Count != 1 {
			t.Fatalf("Active count = %d, want 1", active.Count)
		}
		if got := active.Transactions[0]; got.TransactionID != txID || got.VID != vid {
			t.Errorf("Active transaction = %+v, want tx %d vid %s", got, txID, vid)
		}
	})

	t.Run("Settlement", func(t *testing.T) {
		if got := st.stopTransaction(t, txID, 1500, "Local"); got != "Accepted" {
			t.Fatalf("StopTransaction status = %q, want Accepted", got)
		}
		st.status(t, 1, "Available")

		resp := env.api(t, "GET", "/api/v1/history", nil)
		var history struct {
			Count    int `json:"count"`
			Sessions []struct {
				TransactionID int     `json:"transaction_id"`
				EnergyWh      int     `json:"energy_wh"`
				VID           string  `json:"vid"`
				Cost          float64 `json:"cost"`
				Currency      string  `json:"currency"`
				Reason        string  `json:"reason"`
			} `json:"sessions"`
		}
		decode(t, resp, &history)
		if history.Count != 1 {
			t.Fatalf("History count = %d, want 1", history.Count)
		}
		got := history.Sessions[0]
		if got.TransactionID != txID {
			t.Errorf("History transaction_id = %d, want %d", got.TransactionID, txID)
		}
		if got.EnergyWh != 500 {
			t.Errorf("History energy_wh = %d, want 500", got.EnergyWh)
		}
		if got.VID != vid {
			t.Errorf("History vid = %q, want %s", got.VID, vid)
		}
		// 0.5 kWh at 0.5 per kWh
		if got.Cost != 0.25 {
			t.Errorf("History cost = %v, want 0.25", got.Cost)
		}
		if got.Reason != "Local" {
			t.Errorf("History reason = %q, want Local", got.Reason)
		}

		if balance, ok := env.Wallet.Account(vid); !ok || balance != 49.75 {
			t.Errorf("Wallet balance = %v (exists %v), want 49.75", balance, ok)
		}
	})
}

// TestRemoteStartTagMismatch covers a station presenting a different tag
// than the one the remote start was armed with: the transaction must be
// refused with Invalid and the connector unlocked.
func TestRemoteStartTagMismatch(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP200")

	st.boot(t, "VirtualEVSE", "SimulatorV1")
	st.status(t, 1, "Available")

	env.api(t, "POST", "/api/v1/start", map[string]interface{}{
		"cpid":        "CP200",
		"connectorId": 1,
		"idTag":       "TAG1",
	}).Body.Close()
	st.expectCommand(t, "RemoteStartTransaction", 2*time.Second)

	txID, status := st.startTransaction(t, 1, "TAG2", 0)
	if txID != 0 {
		t.Errorf("StartTransaction transactionId = %d, want 0", txID)
	}
	if status != "Invalid" {
		t.Errorf("StartTransaction status = %q, want Invalid", status)
	}

	if _, ok := env.Registry.Pending("CP200", 1); ok {
		t.Error("Pending session survived a rejected start")
	}

	cmd := st.expectCommand(t, "UnlockConnector", 2*time.Second)
	var unlock struct {
		ConnectorID int `json:"connectorId"`
	}
	if err := json.Unmarshal(cmd.Payload, &unlock); err != nil {
		t.Fatalf("Failed to decode UnlockConnector: %v", err)
	}
	if unlock.ConnectorID != 1 {
		t.Errorf("UnlockConnector connectorId = %d, want 1", unlock.ConnectorID)
	}
}

// TestIdleConnectorWatchdog covers a driver who plugs in after a remote
// start but never begins charging: once the watchdog expires the central
// unlocks the connector and drops the pending session.
func TestIdleConnectorWatchdog(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP300")

	st.boot(t, "VirtualEVSE", "SimulatorV1")
	st.status(t, 1, "Available")

	env.api(t, "POST", "/api/v1/start", map[string]interface{}{
		"cpid":        "CP300",
		"connectorId": 1,
		"idTag":       "TAG1",
	}).Body.Close()
	st.expectCommand(t, "RemoteStartTransaction", 2*time.Second)

	st.status(t, 1, "Preparing")

	st.expectCommand(t, "UnlockConnector", testWatchdog+2*time.Second)

	if !waitFor(t, time.Second, func() bool {
		_, ok := env.Registry.Pending("CP300", 1)
		return !ok
	}) {
		t.Error("Pending session survived the watchdog")
	}
}

// TestZeroCreditCutoff covers a vehicle whose prepaid account exists but
// holds no credit: the transaction opens normally and is remotely stopped
// right after.
func TestZeroCreditCutoff(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP400")

	st.boot(t, "VirtualEVSE", "SimulatorV1")
	st.status(t, 1, "Available")

	const vid = "VID:BROKE0001"

	resp := env.api(t, "POST", "/api/v1/wallet/topup", map[string]interface{}{
		"identifier": map[string]string{"vid": vid},
		"amount":     0,
	})
	var topup struct {
		Balance float64 `json:"balance"`
	}
	decode(t, resp, &topup)
	if topup.Balance != 0 {
		t.Fatalf("TopUp balance = %v, want 0", topup.Balance)
	}

	env.api(t, "POST", "/api/v1/start", map[string]interface{}{
		"cpid":        "CP400",
		"connectorId": 1,
		"idTag":       "TAG4",
		"vid":         vid,
	}).Body.Close()
	st.expectCommand(t, "RemoteStartTransaction", 2*time.Second)

	txID, status := st.startTransaction(t, 1, "TAG4", 100)
	if status != "Accepted" {
		t.Fatalf("StartTransaction status = %q, want Accepted", status)
	}

	cmd := st.expectCommand(t, "RemoteStopTransaction", 2*time.Second)
	var stop struct {
		TransactionID int `json:"transactionId"`
	}
	if err := json.Unmarshal(cmd.Payload, &stop); err != nil {
		t.Fatalf("Failed to decode RemoteStopTransaction: %v", err)
	}
	if stop.TransactionID != txID {
		t.Errorf("RemoteStopTransaction transactionId = %d, want %d", stop.TransactionID, txID)
	}

	if got := st.stopTransaction(t, txID, 100, "Remote"); got != "Accepted" {
		t.Fatalf("StopTransaction status = %q, want Accepted", got)
	}
	if balance, ok := env.Wallet.Account(vid); !ok || balance != 0 {
		t.Errorf("Wallet balance = %v (exists %v), want 0", balance, ok)
	}
}

// TestMacIdentityPromotion covers the modem-reported MAC being folded into
// the driver's identity: after the tag authorizes, the MAC seen before
// plug-in must resolve to the same vehicle.
func TestMacIdentityPromotion(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP500")

	st.boot(t, "VirtualEVSE", "SimulatorV1")
	st.status(t, 1, "Available")

	const mac = "AA:BB:CC:DD:EE:FF"

	if got := st.dataTransfer(t, "MacID", "", mac); got != "Accepted" {
		t.Fatalf("DataTransfer MacID status = %q, want Accepted", got)
	}

	st.status(t, 1, "Preparing")

	if got := st.authorize(t, "TAG9"); got != "Accepted" {
		t.Fatalf("Authorize status = %q, want Accepted", got)
	}

	tagVID := env.Identity.Resolve("id_tag", "TAG9")
	macVID := env.Identity.Resolve("mac", mac)
	if tagVID != macVID {
		t.Errorf("MAC resolves to %s, tag to %s; want the same VID", macVID, tagVID)
	}
}

// TestRemoteStopByConnector covers stopping by connector number when two
// transactions run side by side: only the addressed connector's
// transaction may be stopped.
func TestRemoteStopByConnector(t *testing.T) {
	env := newTestEnv(t)
	st := dialStation(t, env, "CP600")

	st.boot(t, "VirtualEVSE", "SimulatorV1")
	st.status(t, 1, "Available")
	st.status(t, 2, "Available")

	start := func(connector int, idTag string) int {
		t.Helper()
		env.api(t, "POST", "/api/v1/start", map[string]interface{}{
			"cpid":        "CP600",
			"connectorId": connector,
			"idTag":       idTag,
		}).Body.Close()
		st.expectCommand(t, "RemoteStartTransaction", 2*time.Second)
		txID, status := st.startTransaction(t, connector, idTag, 0)
		if status != "Accepted" {
			t.Fatalf("StartTransaction on connector %d status = %q", connector, status)
		}
		return txID
	}

	tx1 := start(1, "TAG1")
	tx2 := start(2, "TAG2")
	if tx1 == tx2 {
		t.Fatalf("Transaction ids collide: %d", tx1)
	}

	resp := env.api(t, "POST", "/api/v1/stop", map[string]interface{}{
		"cpid":        "CP600",
		"connectorId": 2,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("POST /stop status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	cmd := st.expectCommand(t, "RemoteStopTransaction", 2*time.Second)
	var stop struct {
		TransactionID int `json:"transactionId"`
	}
	if err := json.Unmarshal(cmd.Payload, &stop); err != nil {
		t.Fatalf("Failed to decode RemoteStopTransaction: %v", err)
	}
	if stop.TransactionID != tx2 {
		t.Errorf("RemoteStopTransaction transactionId = %d, want %d", stop.TransactionID, tx2)
	}
}
