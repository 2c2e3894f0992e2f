package v16

import (
	"encoding/json"
	"time"
)

// OCPP 1.6 message type tags
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// --- Requests from charge points ---

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
}

type BootNotificationResponse struct {
	Status      string `json:"status"` // Accepted, Pending, Rejected
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type AuthorizeRequest struct {
	IDTag string `json:"idTag"`
}

type IDTagInfo struct {
	Status string `json:"status"` // Accepted, Blocked, Expired, Invalid, ConcurrentTx
}

type AuthorizeResponse struct {
	IDTagInfo IDTagInfo `json:"idTagInfo"`
}

type StatusNotificationRequest struct {
	ConnectorID     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode"`
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp,omitempty"`
	Info            string `json:"info,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

type StartTransactionRequest struct {
	ConnectorID   int    `json:"connectorId"`
	IDTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationID *int   `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IDTagInfo     IDTagInfo `json:"idTagInfo"`
}

type StopTransactionRequest struct {
	TransactionID   int          `json:"transactionId"`
	MeterStop       int          `json:"meterStop"`
	Timestamp       string       `json:"timestamp"`
	IDTag           string       `json:"idTag,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IDTagInfo IDTagInfo `json:"idTagInfo"`
}

type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type MeterValue struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"` // Current.Import, Voltage, SoC, Temperature, Energy.Active.Import.Register
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// DataTransferRequest keeps data raw: stations send either a JSON string
// or a bare object in that slot.
type DataTransferRequest struct {
	VendorID  string          `json:"vendorId"`
	MessageID string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string `json:"status"` // Accepted, Rejected, UnknownMessageId, UnknownVendorId
	Data   string `json:"data,omitempty"`
}

// --- Commands from the central ---

type RemoteStartTransactionRequest struct {
	ConnectorID *int   `json:"connectorId,omitempty"`
	IDTag       string `json:"idTag"`
}

type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

// StatusResponse covers the commands that answer with a bare status word.
type StatusResponse struct {
	Status string `json:"status"`
}

type ResetRequest struct {
	Type string `json:"type"` // Hard, Soft
}

type UnlockConnectorRequest struct {
	ConnectorID int `json:"connectorId"`
}

type ChangeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"` // Operative, Inoperative
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type ConfigurationKey struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value,omitempty"`
}

// GetConfigurationResponse tolerates both key-list spellings seen in the
// field; Keys folds them into one slice.
type GetConfigurationResponse struct {
	ConfigurationKey      []ConfigurationKey `json:"configurationKey,omitempty"`
	ConfigurationKeySnake []ConfigurationKey `json:"configuration_key,omitempty"`
	UnknownKey            []string           `json:"unknownKey,omitempty"`
}

func (r GetConfigurationResponse) Keys() []ConfigurationKey {
	if len(r.ConfigurationKey) > 0 {
		return r.ConfigurationKey
	}
	return r.ConfigurationKeySnake
}

type DataTransferSend struct {
	VendorID  string `json:"vendorId"`
	MessageID string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ocppTime renders a timestamp the way 1.6J stations expect it.
func ocppTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseOCPPTime is lenient about fractional seconds; a value that does not
// parse falls back to the current time.
func parseOCPPTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
