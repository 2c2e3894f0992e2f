package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
)

type handlerFunc func(cp *ChargePoint, payload json.RawMessage) (interface{}, error)

// actionTable routes inbound calls. Handlers run on the read loop, so
// anything that talks back to the station is spawned from inside them.
var actionTable = map[string]handlerFunc{
	"BootNotification":   (*ChargePoint).handleBootNotification,
	"Heartbeat":          (*ChargePoint).handleHeartbeat,
	"Authorize":          (*ChargePoint).handleAuthorize,
	"StatusNotification": (*ChargePoint).handleStatusNotification,
	"StartTransaction":   (*ChargePoint).handleStartTransaction,
	"StopTransaction":    (*ChargePoint).handleStopTransaction,
	"MeterValues":        (*ChargePoint).handleMeterValues,
	"DataTransfer":       (*ChargePoint).handleDataTransfer,
}

func (cp *ChargePoint) handleBootNotification(payload json.RawMessage) (interface{}, error) {
	var req BootNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid BootNotification payload: %w", err)
	}

	cp.log.Info("boot notification",
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion))

	cp.svc.Registry.UpdateStationInfo(cp.id, req.ChargePointVendor, req.ChargePointModel,
		req.ChargePointSerialNumber, req.FirmwareVersion)
	cp.publish(domain.SubjectStationBooted, map[string]string{
		"vendor":   req.ChargePointVendor,
		"model":    req.ChargePointModel,
		"firmware": req.FirmwareVersion,
	})

	go cp.postBootConfigure()

	return BootNotificationResponse{
		Status:      "Accepted",
		CurrentTime: ocppTime(time.Now()),
		Interval:    int(cp.cfg.HeartbeatInterval.Seconds()),
	}, nil
}

func (cp *ChargePoint) handleHeartbeat(json.RawMessage) (interface{}, error) {
	cp.svc.Registry.Heartbeat(cp.id, time.Now())
	return HeartbeatResponse{CurrentTime: ocppTime(time.Now())}, nil
}

// handleAuthorize resolves the presented tag to a vehicle id and folds any
// provisional identity from the pending context into it.
func (cp *ChargePoint) handleAuthorize(payload json.RawMessage) (interface{}, error) {
	var req AuthorizeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid Authorize payload: %w", err)
	}

	vid := cp.svc.Identity.Resolve("id_tag", req.IDTag)

	// Authorize carries no connector id, so only the station-level wildcard
	// entry and the last-seen hints can belong to this driver. Pending
	// entries on specific connectors stay untouched.
	wildcard, _ := cp.svc.Registry.TakeWildcard(cp.id)
	_, hintMAC := cp.hints()
	mac := wildcard.MAC
	if mac == "" {
		mac = hintMAC
	}
	if mac != "" {
		if macVID := cp.svc.Identity.Resolve("mac", mac); macVID != vid {
			cp.svc.Identity.Merge(macVID, vid)
		}
	}
	if wildcard.VID != "" && wildcard.VID != vid {
		cp.svc.Identity.Merge(wildcard.VID, vid)
	}
	cp.svc.Registry.SetPending(cp.id, 0, req.IDTag, vid, mac)
	cp.setHints(vid, mac)

	cp.log.Info("authorized", zap.String("id_tag", req.IDTag), zap.String("vid", vid))
	return AuthorizeResponse{IDTagInfo: IDTagInfo{Status: "Accepted"}}, nil
}

func (cp *ChargePoint) handleStatusNotification(payload json.RawMessage) (interface{}, error) {
	var req StatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StatusNotification payload: %w", err)
	}

	status := domain.ConnectorStatus(req.Status)
	_, prev := cp.svc.Registry.SetConnectorStatus(cp.id, req.ConnectorID, status, req.ErrorCode)

	cp.log.Info("status notification",
		zap.Int("connector_id", req.ConnectorID),
		zap.String("status", req.Status),
		zap.String("error_code", req.ErrorCode))
	cp.publish(domain.SubjectConnectorStatus, map[string]interface{}{
		"connector_id": req.ConnectorID,
		"status":       req.Status,
		"error_code":   req.ErrorCode,
	})

	if status == domain.ConnectorStatusFaulted {
		cp.publish(domain.SubjectConnectorFaulted, map[string]interface{}{
			"connector_id": req.ConnectorID,
			"error_code":   req.ErrorCode,
		})
		if cp.svc.Alerts != nil {
			go cp.svc.Alerts.ConnectorFaulted(context.Background(), cp.id, req.ConnectorID, req.ErrorCode)
		}
	}

	// Connector 0 is the station itself and never carries a session.
	if req.ConnectorID < 1 {
		return map[string]interface{}{}, nil
	}

	if status == domain.ConnectorStatusPreparing {
		if prev != domain.ConnectorStatusPreparing {
			cp.ensurePending(req.ConnectorID)
		}
	} else {
		cp.svc.Registry.ClearPending(cp.id, req.ConnectorID)
	}

	cp.mu.Lock()
	_, hasTx := cp.activeTx[req.ConnectorID]
	cp.mu.Unlock()
	if status.Armed() && !hasTx {
		cp.armWatchdog(req.ConnectorID)
	} else {
		cp.cancelWatchdog(req.ConnectorID)
	}

	return map[string]interface{}{}, nil
}

// ensurePending guarantees a plugged-in connector has a pending context with
// some identity for StartTransaction to pick up. A wildcard seeded by the
// control plane wins, then the last identity seen on this socket, then a
// freshly minted provisional id.
func (cp *ChargePoint) ensurePending(connector int) {
	if wildcard, ok := cp.svc.Registry.TakeWildcard(cp.id); ok {
		cp.svc.Registry.SetPending(cp.id, connector, wildcard.IDTag, wildcard.VID, wildcard.MAC)
	}
	if p, ok := cp.svc.Registry.Pending(cp.id, connector); ok && p.VID != "" {
		return
	}

	vid, mac := cp.hints()
	if vid == "" && mac != "" {
		vid = cp.svc.Identity.Resolve("mac", mac)
	}
	if vid == "" {
		key := fmt.Sprintf("%s:%d:%s", cp.id, connector, uuid.New().String()[:8])
		vid = cp.svc.Identity.Resolve("temp", key)
	}
	cp.svc.Registry.SetPending(cp.id, connector, "", vid, mac)
	cp.log.Info("pending session opened",
		zap.Int("connector_id", connector),
		zap.String("vid", vid))
}

func (cp *ChargePoint) handleStartTransaction(payload json.RawMessage) (interface{}, error) {
	var req StartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StartTransaction payload: %w", err)
	}
	connector := req.ConnectorID

	cp.mu.Lock()
	armedTag, hasRemote := cp.pendingRemote[connector]
	cp.mu.Unlock()
	if hasRemote && armedTag != req.IDTag {
		cp.mu.Lock()
		delete(cp.pendingRemote, connector)
		cp.mu.Unlock()
		cp.svc.Registry.ClearPending(cp.id, connector)
		cp.log.Warn("start rejected, tag does not match remote start",
			zap.Int("connector_id", connector),
			zap.String("expected", armedTag),
			zap.String("presented", req.IDTag))
		go func() {
			time.Sleep(100 * time.Millisecond)
			if _, err := cp.UnlockConnector(context.Background(), connector); err != nil {
				cp.log.Warn("unlock after rejected start failed", zap.Error(err))
			}
		}()
		return StartTransactionResponse{TransactionID: 0, IDTagInfo: IDTagInfo{Status: "Invalid"}}, nil
	}

	pending, _ := cp.svc.Registry.Pending(cp.id, connector)
	hintVID, hintMAC := cp.hints()
	var vid string
	switch {
	case pending.VID != "":
		// the pending vid may have been folded into another identity by a
		// later Authorize or MacID transfer
		vid = cp.svc.Identity.Canonical(pending.VID)
	case req.IDTag != "":
		vid = cp.svc.Identity.Resolve("id_tag", req.IDTag)
	case hintVID != "":
		vid = hintVID
	case hintMAC != "":
		vid = cp.svc.Identity.Resolve("mac", hintMAC)
	}
	mac := pending.MAC
	if mac == "" {
		mac = hintMAC
	}

	txID := cp.svc.Registry.NextTransactionID()
	session := domain.Session{
		TransactionID: txID,
		StationID:     cp.stationID,
		ChargePoint:   cp.id,
		ConnectorID:   connector,
		IDTag:         req.IDTag,
		VID:           vid,
		MAC:           mac,
		MeterStart:    req.MeterStart,
		StartTime:     parseOCPPTime(req.Timestamp),
		Currency:      cp.cfg.Currency,
		State:         domain.SessionStateActive,
	}
	cp.svc.Registry.PutSession(session)
	cp.svc.Registry.SetConnectorTransaction(cp.id, connector, txID)
	cp.svc.Registry.ClearPending(cp.id, connector)

	cp.mu.Lock()
	cp.activeTx[connector] = txID
	delete(cp.pendingRemote, connector)
	cp.mu.Unlock()
	cp.cancelWatchdog(connector)
	cp.setHints(vid, mac)

	telemetry.ActiveTransactions.Inc()
	cp.publish(domain.SubjectTransactionStarted, session)
	cp.log.Info("transaction started",
		zap.Int("transaction_id", txID),
		zap.Int("connector_id", connector),
		zap.String("id_tag", req.IDTag),
		zap.String("vid", vid))

	if vid != "" {
		if balance, exists := cp.svc.Wallet.Account(vid); exists && balance <= 0 {
			go cp.cutOff(txID, vid, balance)
		}
	}

	return StartTransactionResponse{TransactionID: txID, IDTagInfo: IDTagInfo{Status: "Accepted"}}, nil
}

// cutOff stops a freshly opened transaction whose prepaid account has no
// credit left. It runs after the StartTransaction reply has gone out.
func (cp *ChargePoint) cutOff(txID int, vid string, balance float64) {
	time.Sleep(100 * time.Millisecond)
	telemetry.WalletCutoffsTotal.Inc()
	cp.log.Warn("no credit, stopping transaction",
		zap.Int("transaction_id", txID),
		zap.String("vid", vid),
		zap.Float64("balance", balance))
	cp.publish(domain.SubjectWalletCutoff, map[string]interface{}{
		"transaction_id": txID,
		"vid":            vid,
		"balance":        balance,
	})
	if cp.svc.Alerts != nil {
		go cp.svc.Alerts.ZeroCreditCutoff(context.Background(), vid, txID)
	}
	if err := cp.RemoteStop(context.Background(), txID); err != nil {
		cp.log.Warn("cutoff remote stop failed", zap.Int("transaction_id", txID), zap.Error(err))
	}
}

func (cp *ChargePoint) handleStopTransaction(payload json.RawMessage) (interface{}, error) {
	var req StopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StopTransaction payload: %w", err)
	}

	session, ok := cp.svc.Registry.Session(req.TransactionID)
	if !ok || session.State != domain.SessionStateActive {
		cp.log.Warn("stop for unknown transaction", zap.Int("transaction_id", req.TransactionID))
		return StopTransactionResponse{IDTagInfo: IDTagInfo{Status: "Accepted"}}, nil
	}

	stopTime := parseOCPPTime(req.Timestamp)
	energyWh := req.MeterStop - session.MeterStart
	duration := int(stopTime.Sub(session.StartTime).Seconds())

	var cost float64
	if session.VID != "" && cp.cfg.RatePerKWh > 0 && energyWh > 0 {
		owed := float64(energyWh) / 1000 * cp.cfg.RatePerKWh
		cost = cp.svc.Wallet.DeductUpTo(session.VID, owed, fmt.Sprintf("transaction %d", req.TransactionID))
	}

	cp.svc.Registry.UpdateSession(req.TransactionID, func(s *domain.Session) {
		s.MeterStop = req.MeterStop
		s.EnergyWh = energyWh
		s.StopTime = &stopTime
		s.Duration = duration
		s.Reason = req.Reason
		s.Cost = cost
		s.State = domain.SessionStateCompleted
	})
	cp.svc.Registry.SetConnectorTransaction(cp.id, session.ConnectorID, 0)

	cp.mu.Lock()
	delete(cp.activeTx, session.ConnectorID)
	cp.mu.Unlock()

	telemetry.ActiveTransactions.Dec()
	if energyWh > 0 {
		telemetry.EnergyDeliveredTotal.Add(float64(energyWh))
	}
	cp.publish(domain.SubjectTransactionStopped, map[string]interface{}{
		"transaction_id": req.TransactionID,
		"connector_id":   session.ConnectorID,
		"energy_wh":      energyWh,
		"duration_s":     duration,
		"reason":         req.Reason,
	})
	cp.log.Info("transaction stopped",
		zap.Int("transaction_id", req.TransactionID),
		zap.Int("energy_wh", energyWh),
		zap.Int("duration_s", duration),
		zap.String("reason", req.Reason))

	return StopTransactionResponse{IDTagInfo: IDTagInfo{Status: "Accepted"}}, nil
}

func (cp *ChargePoint) handleMeterValues(payload json.RawMessage) (interface{}, error) {
	var req MeterValuesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid MeterValues payload: %w", err)
	}

	txID := 0
	if req.TransactionID != nil {
		txID = *req.TransactionID
	} else {
		cp.mu.Lock()
		txID = cp.activeTx[req.ConnectorID]
		cp.mu.Unlock()
	}
	if txID == 0 {
		return map[string]interface{}{}, nil
	}

	for _, mv := range req.MeterValue {
		sample := domain.MeterSample{Timestamp: parseOCPPTime(mv.Timestamp)}
		for _, sv := range mv.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			switch sv.Measurand {
			case "Current.Import":
				sample.Current = &value
			case "Voltage":
				sample.Voltage = &value
			case "SoC":
				sample.SoC = &value
			case "Temperature":
				sample.Temperature = &value
			}
		}
		cp.svc.Registry.UpdateSession(txID, func(s *domain.Session) {
			s.Samples = append(s.Samples, sample)
			s.LastSample = &sample
		})
	}

	return map[string]interface{}{}, nil
}

// handleDataTransfer accepts vehicle identity pushed by the station. The
// data slot is a JSON string or object carrying vid and mac fields; the
// MacID vendor sends the MAC as the bare string.
func (cp *ChargePoint) handleDataTransfer(payload json.RawMessage) (interface{}, error) {
	var req DataTransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid DataTransfer payload: %w", err)
	}

	raw := string(req.Data)
	if len(req.Data) > 0 {
		var inner string
		if err := json.Unmarshal(req.Data, &inner); err == nil {
			raw = inner
		}
	}

	vid, mac, parsed := extractIdentity(raw)
	if req.VendorID == "MacID" && mac == "" {
		mac = strings.TrimSpace(raw)
		parsed = mac != ""
	}
	if !parsed {
		cp.log.Warn("rejecting data transfer",
			zap.String("vendor_id", req.VendorID),
			zap.String("data", raw))
		return DataTransferResponse{Status: "Rejected"}, nil
	}

	if mac != "" {
		macVID := cp.svc.Identity.Resolve("mac", mac)
		if vid == "" {
			vid = macVID
		} else if vid != macVID {
			cp.svc.Identity.Merge(macVID, vid)
		}
	}

	promoted := 0
	if vid != "" {
		cp.setHints(vid, mac)
		for _, displaced := range cp.svc.Registry.PromotePending(cp.id, vid, mac) {
			cp.svc.Identity.Merge(displaced, vid)
			promoted++
		}
	}

	cp.log.Info("data transfer accepted",
		zap.String("vendor_id", req.VendorID),
		zap.String("vid", vid),
		zap.String("mac", mac),
		zap.Int("promoted", promoted))
	return DataTransferResponse{Status: "Accepted"}, nil
}

// extractIdentity pulls vid and mac out of a JSON object, tolerating the
// field spellings seen across firmwares.
func extractIdentity(raw string) (vid, mac string, ok bool) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", "", false
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, found := m[k]; found {
				if s, isString := v.(string); isString && s != "" {
					return s
				}
			}
		}
		return ""
	}
	return pick("vid", "vehicleId", "vehicle_id"), pick("mac", "macId", "mac_id"), true
}
