package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig holds the simulated station's identity plate.
type SimulatorConfig struct {
	ServerURL       string
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	ConnectorCount  int
}

// ConnectorState tracks one simulated connector.
type ConnectorState struct {
	ID            int
	Status        string // Available, Preparing, Charging, Finishing, Unavailable, Faulted
	MeterWh       int
	TransactionID int
	IDTag         string
}

// Simulator plays an OCPP 1.6J charge point against the central system. It
// answers central commands like a real station and walks the full
// Authorize/StartTransaction flow on a remote start.
type Simulator struct {
	config *SimulatorConfig
	conn   *websocket.Conn
	log    *zap.Logger

	mu         sync.RWMutex
	connectors []ConnectorState
	configKeys map[string]string
	mac        string

	heartbeatInterval int

	messageID   int
	pendingMsgs map[string]chan []byte

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSimulator creates a charge point simulator with all connectors Available.
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := 0; i < config.ConnectorCount; i++ {
		connectors[i] = ConnectorState{
			ID:      i + 1,
			Status:  "Available",
			MeterWh: 1000,
		}
	}

	return &Simulator{
		config:     config,
		log:        log,
		connectors: connectors,
		configKeys: map[string]string{
			"AuthorizeRemoteTxRequests": "false",
			"HeartbeatInterval":         "300",
			"MeterValueSampleInterval":  "60",
			"NumberOfConnectors":        strconv.Itoa(config.ConnectorCount),
			"QRcodeConnectorID1":        "",
		},
		pendingMsgs:       make(map[string]chan []byte),
		stopChan:          make(chan struct{}),
		heartbeatInterval: 300,
	}
}

// Connect dials the central, boots and announces every connector.
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.config.ServerURL, "/"), s.config.ChargePointID)

	dialer := websocket.Dialer{
		Subprotocols: []string{"ocpp1.6"},
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.conn = conn
	s.log.Info("Connected to central system",
		zap.String("url", url),
		zap.String("chargePointId", s.config.ChargePointID),
	)

	s.wg.Add(1)
	go s.readMessages()

	resp, err := s.sendBootNotification()
	if err != nil {
		s.log.Error("BootNotification failed", zap.Error(err))
	} else {
		s.log.Info("BootNotification response", zap.Any("response", resp))
		if interval, ok := resp["interval"].(float64); ok && interval > 0 {
			s.heartbeatInterval = int(interval)
		}
	}

	for _, c := range s.snapshot() {
		s.sendStatusNotification(c.ID, c.Status, "NoError")
	}

	s.wg.Add(1)
	go s.heartbeatLoop()

	return nil
}

// Stop stops the simulator
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

// readMessages reads and processes incoming frames
func (s *Simulator) readMessages() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				s.log.Error("Read error, connection lost", zap.Error(err))
				return
			}
			s.handleMessage(message)
		}
	}
}

// handleMessage dispatches one OCPP-J frame
func (s *Simulator) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Error("Invalid frame", zap.Error(err))
		return
	}

	if len(raw) < 3 {
		return
	}

	var msgType int
	json.Unmarshal(raw[0], &msgType)

	var msgID string
	json.Unmarshal(raw[1], &msgID)

	switch msgType {
	case 2: // Call from the central
		var action string
		json.Unmarshal(raw[2], &action)
		var payload json.RawMessage
		if len(raw) > 3 {
			payload = raw[3]
		}
		s.handleCentralRequest(msgID, action, payload)

	case 3: // CallResult for one of our calls
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			ch <- raw[2]
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()

	case 4: // CallError
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			close(ch)
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()
	}
}

// handleCentralRequest answers commands the way a real station would
func (s *Simulator) handleCentralRequest(msgID, action string, payload json.RawMessage) {
	s.log.Info("Central request", zap.String("action", action))

	var response interface{}

	switch action {
	case "RemoteStartTransaction":
		response = s.handleRemoteStart(payload)
	case "RemoteStopTransaction":
		response = s.handleRemoteStop(payload)
	case "Reset":
		response = s.handleReset(payload)
	case "UnlockConnector":
		response = s.handleUnlockConnector(payload)
	case "ChangeAvailability":
		response = s.handleChangeAvailability(payload)
	case "ChangeConfiguration":
		response = s.handleChangeConfiguration(payload)
	case "GetConfiguration":
		response = s.handleGetConfiguration(payload)
	case "DataTransfer":
		response = s.handleDataTransfer(payload)
	default:
		s.sendCallError(msgID, "NotImplemented", fmt.Sprintf("Action %s not implemented", action))
		return
	}

	s.sendCallResult(msgID, response)
}

// --- Command handlers ---

func (s *Simulator) handleRemoteStart(payload json.RawMessage) map[string]interface{} {
	var req struct {
		ConnectorID *int   `json:"connectorId"`
		IDTag       string `json:"idTag"`
	}
	json.Unmarshal(payload, &req)

	connectorID := 1
	if req.ConnectorID != nil {
		connectorID = *req.ConnectorID
	}
	if connectorID < 1 || connectorID > len(s.connectors) {
		return map[string]interface{}{"status": "Rejected"}
	}

	s.mu.RLock()
	busy := s.connectors[connectorID-1].TransactionID != 0
	s.mu.RUnlock()
	if busy {
		return map[string]interface{}{"status": "Rejected"}
	}

	s.log.Info("Remote start accepted",
		zap.Int("connectorId", connectorID),
		zap.String("idTag", req.IDTag),
	)

	// A real station walks through Preparing, Authorize and StartTransaction.
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.beginCharging(connectorID, req.IDTag)
	}()

	return map[string]interface{}{"status": "Accepted"}
}

func (s *Simulator) handleRemoteStop(payload json.RawMessage) map[string]interface{} {
	var req struct {
		TransactionID int `json:"transactionId"`
	}
	json.Unmarshal(payload, &req)

	connectorID := s.connectorForTx(req.TransactionID)
	if connectorID == 0 {
		return map[string]interface{}{"status": "Rejected"}
	}

	s.log.Info("Remote stop accepted", zap.Int("transactionId", req.TransactionID))

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.stopTransaction(connectorID, "Remote")
	}()

	return map[string]interface{}{"status": "Accepted"}
}

func (s *Simulator) handleReset(payload json.RawMessage) map[string]interface{} {
	var req struct {
		Type string `json:"type"`
	}
	json.Unmarshal(payload, &req)

	s.log.Info("Reset requested", zap.String("type", req.Type))

	go func() {
		time.Sleep(500 * time.Millisecond)

		reason := "SoftReset"
		if req.Type == "Hard" {
			reason = "HardReset"
		}
		for _, c := range s.snapshot() {
			if c.TransactionID != 0 {
				s.stopTransaction(c.ID, reason)
			}
		}

		// A rebooted station introduces itself again.
		s.sendBootNotification()
		for _, c := range s.snapshot() {
			s.sendStatusNotification(c.ID, c.Status, "NoError")
		}
	}()

	return map[string]interface{}{"status": "Accepted"}
}

func (s *Simulator) handleUnlockConnector(payload json.RawMessage) map[string]interface{} {
	var req struct {
		ConnectorID int `json:"connectorId"`
	}
	json.Unmarshal(payload, &req)

	if req.ConnectorID < 1 || req.ConnectorID > len(s.connectors) {
		return map[string]interface{}{"status": "NotSupported"}
	}

	s.log.Info("Unlock connector", zap.Int("connectorId", req.ConnectorID))

	go func() {
		time.Sleep(100 * time.Millisecond)

		s.mu.RLock()
		txID := s.connectors[req.ConnectorID-1].TransactionID
		s.mu.RUnlock()

		if txID != 0 {
			s.stopTransaction(req.ConnectorID, "UnlockCommand")
			return
		}
		s.setStatus(req.ConnectorID, "Available")
		s.sendStatusNotification(req.ConnectorID, "Available", "NoError")
	}()

	return map[string]interface{}{"status": "Unlocked"}
}

func (s *Simulator) handleChangeAvailability(payload json.RawMessage) map[string]interface{} {
	var req struct {
		ConnectorID int    `json:"connectorId"`
		Type        string `json:"type"`
	}
	json.Unmarshal(payload, &req)

	status := "Available"
	if req.Type == "Inoperative" {
		status = "Unavailable"
	}

	// Connector 0 addresses the whole station.
	var ids []int
	switch {
	case req.ConnectorID == 0:
		for _, c := range s.snapshot() {
			ids = append(ids, c.ID)
		}
	case req.ConnectorID <= len(s.connectors):
		ids = append(ids, req.ConnectorID)
	default:
		return map[string]interface{}{"status": "Rejected"}
	}

	s.log.Info("Change availability",
		zap.Int("connectorId", req.ConnectorID),
		zap.String("type", req.Type),
	)

	go func() {
		time.Sleep(100 * time.Millisecond)
		for _, id := range ids {
			s.setStatus(id, status)
			s.sendStatusNotification(id, status, "NoError")
		}
	}()

	return map[string]interface{}{"status": "Accepted"}
}

func (s *Simulator) handleChangeConfiguration(payload json.RawMessage) map[string]interface{} {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	json.Unmarshal(payload, &req)

	if req.Key == "" {
		return map[string]interface{}{"status": "Rejected"}
	}

	s.mu.Lock()
	s.configKeys[req.Key] = req.Value
	s.mu.Unlock()

	s.log.Info("Configuration changed",
		zap.String("key", req.Key),
		zap.String("value", req.Value),
	)

	return map[string]interface{}{"status": "Accepted"}
}

func (s *Simulator) handleGetConfiguration(payload json.RawMessage) map[string]interface{} {
	var req struct {
		Key []string `json:"key"`
	}
	json.Unmarshal(payload, &req)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []map[string]interface{}
	var unknown []string
	if len(req.Key) == 0 {
		for k, v := range s.configKeys {
			keys = append(keys, map[string]interface{}{"key": k, "readonly": false, "value": v})
		}
	} else {
		for _, k := range req.Key {
			if v, ok := s.configKeys[k]; ok {
				keys = append(keys, map[string]interface{}{"key": k, "readonly": false, "value": v})
			} else {
				unknown = append(unknown, k)
			}
		}
	}

	return map[string]interface{}{"configurationKey": keys, "unknownKey": unknown}
}

func (s *Simulator) handleDataTransfer(payload json.RawMessage) map[string]interface{} {
	var req struct {
		VendorID  string `json:"vendorId"`
		MessageID string `json:"messageId"`
		Data      string `json:"data"`
	}
	json.Unmarshal(payload, &req)

	s.log.Info("Data transfer from central",
		zap.String("vendorId", req.VendorID),
		zap.String("messageId", req.MessageID),
		zap.String("data", req.Data),
	)

	return map[string]interface{}{"status": "Accepted"}
}

// --- Charging flow ---

// beginCharging runs the station side of a session start: Preparing status,
// Authorize, then StartTransaction. A refused start rolls the connector back
// to Available.
func (s *Simulator) beginCharging(connectorID int, idTag string) {
	s.setStatus(connectorID, "Preparing")
	s.sendStatusNotification(connectorID, "Preparing", "NoError")

	s.sendAuthorize(idTag)

	s.mu.RLock()
	meterStart := s.connectors[connectorID-1].MeterWh
	s.mu.RUnlock()

	resp, err := s.sendCall("StartTransaction", map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       idTag,
		"meterStart":  meterStart,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StartTransaction failed", zap.Error(err))
		return
	}

	txID := 0
	if v, ok := resp["transactionId"].(float64); ok {
		txID = int(v)
	}
	tagStatus := ""
	if info, ok := resp["idTagInfo"].(map[string]interface{}); ok {
		tagStatus, _ = info["status"].(string)
	}

	if txID == 0 || tagStatus != "Accepted" {
		s.log.Warn("StartTransaction refused",
			zap.Int("transactionId", txID),
			zap.String("idTagStatus", tagStatus),
		)
		s.setStatus(connectorID, "Available")
		s.sendStatusNotification(connectorID, "Available", "NoError")
		return
	}

	s.mu.Lock()
	s.connectors[connectorID-1].TransactionID = txID
	s.connectors[connectorID-1].IDTag = idTag
	s.connectors[connectorID-1].Status = "Charging"
	s.mu.Unlock()

	s.sendStatusNotification(connectorID, "Charging", "NoError")
	s.log.Info("Charging",
		zap.Int("connectorId", connectorID),
		zap.Int("transactionId", txID),
	)
}

// stopTransaction closes the connector's open transaction and walks the
// Finishing to Available status sequence.
func (s *Simulator) stopTransaction(connectorID int, reason string) {
	s.mu.Lock()
	c := &s.connectors[connectorID-1]
	txID := c.TransactionID
	if txID == 0 {
		s.mu.Unlock()
		return
	}
	meterStop := c.MeterWh
	c.TransactionID = 0
	c.IDTag = ""
	c.Status = "Finishing"
	s.mu.Unlock()

	s.sendStatusNotification(connectorID, "Finishing", "NoError")
	s.sendCall("StopTransaction", map[string]interface{}{
		"transactionId": txID,
		"meterStop":     meterStop,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"reason":        reason,
	})

	s.setStatus(connectorID, "Available")
	s.sendStatusNotification(connectorID, "Available", "NoError")
	s.log.Info("Transaction stopped",
		zap.Int("transactionId", txID),
		zap.Int("meterStop", meterStop),
		zap.String("reason", reason),
	)
}

func (s *Simulator) connectorForTx(txID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connectors {
		if c.TransactionID == txID && txID != 0 {
			return c.ID
		}
	}
	return 0
}

func (s *Simulator) snapshot() []ConnectorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConnectorState, len(s.connectors))
	copy(out, s.connectors)
	return out
}

func (s *Simulator) setStatus(connectorID int, status string) {
	s.mu.Lock()
	if connectorID >= 1 && connectorID <= len(s.connectors) {
		s.connectors[connectorID-1].Status = status
	}
	s.mu.Unlock()
}

// --- Outgoing calls ---

func (s *Simulator) sendCall(action string, payload interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	s.messageID++
	msgID := fmt.Sprintf("%d", s.messageID)
	responseChan := make(chan []byte, 1)
	s.pendingMsgs[msgID] = responseChan
	s.mu.Unlock()

	msg := []interface{}{2, msgID, action, payload}
	data, _ := json.Marshal(msg)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, err
	}

	select {
	case respData, ok := <-responseChan:
		if !ok {
			return nil, fmt.Errorf("central answered %s with an error", action)
		}
		var result map[string]interface{}
		json.Unmarshal(respData, &result)
		return result, nil
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timeout waiting for %s response", action)
	}
}

func (s *Simulator) sendCallResult(msgID string, payload interface{}) {
	msg := []interface{}{3, msgID, payload}
	data, _ := json.Marshal(msg)
	s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Simulator) sendCallError(msgID, code, desc string) {
	msg := []interface{}{4, msgID, code, desc, map[string]interface{}{}}
	data, _ := json.Marshal(msg)
	s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Simulator) sendBootNotification() (map[string]interface{}, error) {
	return s.sendCall("BootNotification", map[string]interface{}{
		"chargePointVendor":       s.config.Vendor,
		"chargePointModel":        s.config.Model,
		"chargePointSerialNumber": s.config.SerialNumber,
		"firmwareVersion":         s.config.FirmwareVersion,
	})
}

func (s *Simulator) sendHeartbeat() {
	s.sendCall("Heartbeat", map[string]interface{}{})
}

func (s *Simulator) sendAuthorize(idTag string) string {
	resp, err := s.sendCall("Authorize", map[string]interface{}{"idTag": idTag})
	if err != nil {
		s.log.Error("Authorize failed", zap.Error(err))
		return ""
	}

	status := ""
	if info, ok := resp["idTagInfo"].(map[string]interface{}); ok {
		status, _ = info["status"].(string)
	}
	s.log.Info("Authorize answered",
		zap.String("idTag", idTag),
		zap.String("status", status),
	)
	return status
}

func (s *Simulator) sendStatusNotification(connectorID int, status, errorCode string) {
	s.sendCall("StatusNotification", map[string]interface{}{
		"connectorId": connectorID,
		"errorCode":   errorCode,
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Simulator) sendMeterValues(connectorID, valueWh int) {
	if connectorID < 1 || connectorID > len(s.connectors) {
		return
	}

	s.mu.Lock()
	s.connectors[connectorID-1].MeterWh = valueWh
	txID := s.connectors[connectorID-1].TransactionID
	s.mu.Unlock()

	payload := map[string]interface{}{
		"connectorId": connectorID,
		"meterValue": []map[string]interface{}{
			{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"sampledValue": []map[string]interface{}{
					{"value": strconv.Itoa(valueWh), "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
					{"value": "16.4", "measurand": "Current.Import", "unit": "A"},
					{"value": "228.1", "measurand": "Voltage", "unit": "V"},
					{"value": "64", "measurand": "SoC", "unit": "Percent"},
				},
			},
		},
	}
	if txID != 0 {
		payload["transactionId"] = txID
	}
	s.sendCall("MeterValues", payload)
}

// sendMacID pushes the plugged vehicle's MAC the way MacID-capable stations
// do: a DataTransfer whose data slot is the bare address.
func (s *Simulator) sendMacID(mac string) {
	s.mu.Lock()
	s.mac = mac
	s.mu.Unlock()

	resp, err := s.sendCall("DataTransfer", map[string]interface{}{
		"vendorId": "MacID",
		"data":     mac,
	})
	if err != nil {
		s.log.Error("DataTransfer failed", zap.Error(err))
		return
	}
	s.log.Info("MacID transfer answered",
		zap.String("mac", mac),
		zap.Any("response", resp),
	)
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.heartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sendHeartbeat()
		}
	}
}

// RunInteractive reads operator commands from stdin until exit or EOF.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)

		if len(parts) == 0 {
			fmt.Print("> ")
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "auth":
			if len(args) < 1 {
				fmt.Println("Usage: auth <idTag>")
			} else {
				status := s.sendAuthorize(args[0])
				fmt.Printf("Authorize %s: %s\n", args[0], status)
			}

		case "start":
			if len(args) < 2 {
				fmt.Println("Usage: start <connector> <idTag>")
			} else {
				connID, _ := strconv.Atoi(args[0])
				if connID < 1 || connID > len(s.connectors) {
					fmt.Printf("No such connector: %s\n", args[0])
				} else {
					s.beginCharging(connID, args[1])
				}
			}

		case "stop":
			stopped := false
			for _, c := range s.snapshot() {
				if c.TransactionID != 0 {
					s.stopTransaction(c.ID, "Local")
					stopped = true
					break
				}
			}
			if !stopped {
				fmt.Println("Not currently charging")
			}

		case "status":
			if len(args) < 2 {
				fmt.Println("Usage: status <connector> <status>")
			} else {
				connID, _ := strconv.Atoi(args[0])
				s.setStatus(connID, args[1])
				s.sendStatusNotification(connID, args[1], "NoError")
				fmt.Printf("Sent status %s for connector %d\n", args[1], connID)
			}

		case "fault":
			connID := 1
			if len(args) > 0 {
				connID, _ = strconv.Atoi(args[0])
			}
			s.setStatus(connID, "Faulted")
			s.sendStatusNotification(connID, "Faulted", "GroundFailure")
			fmt.Printf("Sent fault for connector %d\n", connID)

		case "meter":
			if len(args) < 1 {
				fmt.Println("Usage: meter <valueWh> [connector]")
			} else {
				value, _ := strconv.Atoi(args[0])
				connID := 1
				if len(args) > 1 {
					connID, _ = strconv.Atoi(args[1])
				}
				s.sendMeterValues(connID, value)
				fmt.Printf("Sent meter value %d Wh for connector %d\n", value, connID)
			}

		case "mac":
			if len(args) < 1 {
				fmt.Println("Usage: mac <address>")
			} else {
				s.sendMacID(args[0])
			}

		case "heartbeat":
			s.sendHeartbeat()
			fmt.Println("Sent heartbeat")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		fmt.Print("> ")
	}
}
