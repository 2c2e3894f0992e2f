package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// RemoteStart asks the station to open a transaction and, on acceptance,
// arms the tag so a mismatching StartTransaction gets rejected.
func (cp *ChargePoint) RemoteStart(ctx context.Context, connector int, idTag string) error {
	req := RemoteStartTransactionRequest{IDTag: idTag}
	if connector > 0 {
		req.ConnectorID = &connector
	}
	status, err := cp.statusCall(ctx, "RemoteStartTransaction", req)
	if err != nil {
		return err
	}
	if status != "Accepted" {
		return fmt.Errorf("remote start returned %s: %w", status, domain.ErrRejected)
	}
	cp.mu.Lock()
	cp.pendingRemote[connector] = idTag
	cp.mu.Unlock()
	cp.log.Info("remote start accepted", zap.Int("connector_id", connector), zap.String("id_tag", idTag))
	return nil
}

func (cp *ChargePoint) RemoteStop(ctx context.Context, transactionID int) error {
	status, err := cp.statusCall(ctx, "RemoteStopTransaction", RemoteStopTransactionRequest{TransactionID: transactionID})
	if err != nil {
		return err
	}
	if status != "Accepted" {
		return fmt.Errorf("remote stop returned %s: %w", status, domain.ErrRejected)
	}
	return nil
}

// Reset sends a Hard or Soft reset request.
func (cp *ChargePoint) Reset(ctx context.Context, resetType string) error {
	status, err := cp.statusCall(ctx, "Reset", ResetRequest{Type: resetType})
	if err != nil {
		return err
	}
	if status != "Accepted" {
		return fmt.Errorf("reset returned %s: %w", status, domain.ErrRejected)
	}
	return nil
}

func (cp *ChargePoint) UnlockConnector(ctx context.Context, connector int) (string, error) {
	status, err := cp.statusCall(ctx, "UnlockConnector", UnlockConnectorRequest{ConnectorID: connector})
	if err != nil {
		return "", err
	}
	if status != "Unlocked" {
		return status, fmt.Errorf("unlock returned %s: %w", status, domain.ErrRejected)
	}
	return status, nil
}

// ChangeAvailability flips a connector between Operative and Inoperative.
// Scheduled counts as success; the station applies it after the running
// transaction finishes.
func (cp *ChargePoint) ChangeAvailability(ctx context.Context, connector int, available bool) (string, error) {
	kind := "Inoperative"
	if available {
		kind = "Operative"
	}
	status, err := cp.statusCall(ctx, "ChangeAvailability", ChangeAvailabilityRequest{ConnectorID: connector, Type: kind})
	if err != nil {
		return "", err
	}
	if status != "Accepted" && status != "Scheduled" {
		return status, fmt.Errorf("change availability returned %s: %w", status, domain.ErrRejected)
	}
	return status, nil
}

func (cp *ChargePoint) ChangeConfiguration(ctx context.Context, key, value string) (string, error) {
	status, err := cp.statusCall(ctx, "ChangeConfiguration", ChangeConfigurationRequest{Key: key, Value: value})
	if err != nil {
		return "", err
	}
	if status != "Accepted" && status != "RebootRequired" {
		return status, fmt.Errorf("change configuration of %s returned %s: %w", key, status, domain.ErrRejected)
	}
	return status, nil
}

// GetConfiguration reads station keys; nil asks for all of them.
func (cp *ChargePoint) GetConfiguration(ctx context.Context, keys []string) ([]ConfigurationKey, error) {
	raw, err := cp.Send(ctx, "GetConfiguration", GetConfigurationRequest{Key: keys})
	if err != nil {
		return nil, err
	}
	var resp GetConfigurationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("invalid GetConfiguration response: %w", err)
	}
	return resp.Keys(), nil
}

func (cp *ChargePoint) DataTransfer(ctx context.Context, vendorID, messageID, data string) (string, error) {
	raw, err := cp.Send(ctx, "DataTransfer", DataTransferSend{VendorID: vendorID, MessageID: messageID, Data: data})
	if err != nil {
		return "", err
	}
	var resp DataTransferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("invalid DataTransfer response: %w", err)
	}
	return resp.Status, nil
}

func (cp *ChargePoint) statusCall(ctx context.Context, action string, payload interface{}) (string, error) {
	raw, err := cp.Send(ctx, action, payload)
	if err != nil {
		return "", err
	}
	var resp StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("invalid %s response: %w", action, err)
	}
	return resp.Status, nil
}

// postBootConfigure pushes the remote-start and QR settings right after a
// station boots. GetConfiguration is the only call with a deadline; a
// station that ignores it just gets the DataTransfer fallback.
func (cp *ChargePoint) postBootConfigure() {
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), cp.cfg.CallTimeout)
	defer cancel()
	keys, err := cp.GetConfiguration(ctx, nil)
	if err != nil {
		cp.log.Warn("post-boot configuration read failed", zap.Error(err))
	}

	var hasRemoteAuth, hasQRKey bool
	for _, k := range keys {
		switch k.Key {
		case "AuthorizeRemoteTxRequests":
			hasRemoteAuth = true
		case "QRcodeConnectorID1":
			hasQRKey = true
		}
	}

	bg := context.Background()
	if hasRemoteAuth {
		if _, err := cp.ChangeConfiguration(bg, "AuthorizeRemoteTxRequests", "true"); err != nil {
			cp.log.Warn("failed to enable remote authorization", zap.Error(err))
		}
	}

	qrURL := fmt.Sprintf("%s/%s/1", strings.TrimRight(cp.cfg.QRBaseURL, "/"), cp.id)
	if hasQRKey {
		if _, err := cp.ChangeConfiguration(bg, "QRcodeConnectorID1", qrURL); err == nil {
			return
		}
		cp.log.Warn("station refused QR configuration key, falling back to data transfer")
	}
	body, _ := json.Marshal(map[string]string{"message_type": "QRCode", "uri": qrURL})
	if _, err := cp.DataTransfer(bg, "com.yourcompany.payment", "DisplayQRCode", string(body)); err != nil {
		cp.log.Warn("QR data transfer failed", zap.Error(err))
	}
}

// StartSession is the control-plane entry point behind the start endpoint
// and the console. It seeds the pending context, records any tag-to-vehicle
// binding the operator supplied and dispatches the remote start.
func (cp *ChargePoint) StartSession(ctx context.Context, connector int, idTag, vid, mac string) error {
	if idTag == "" {
		idTag = vid
	}
	if idTag == "" {
		return fmt.Errorf("idTag or vid required: %w", domain.ErrInvalidInput)
	}

	if vid != "" {
		cp.svc.Identity.Bind("id_tag", idTag, vid)
		if mac != "" {
			cp.svc.Identity.Bind("mac", mac, vid)
		}
	}
	cp.svc.Registry.SetPending(cp.id, connector, idTag, vid, mac)

	return cp.RemoteStart(ctx, connector, idTag)
}

// Release drops the pending context on a connector and unlocks it. Fails
// when a transaction is open there.
func (cp *ChargePoint) Release(ctx context.Context, connector int) error {
	cp.mu.Lock()
	txID, hasTx := cp.activeTx[connector]
	cp.mu.Unlock()
	if hasTx {
		return fmt.Errorf("transaction %d open on connector %d: %w", txID, connector, domain.ErrInvalidInput)
	}

	cp.cancelWatchdog(connector)
	cp.mu.Lock()
	delete(cp.pendingRemote, connector)
	cp.mu.Unlock()
	cp.svc.Registry.ClearPending(cp.id, connector)

	_, err := cp.UnlockConnector(ctx, connector)
	return err
}
