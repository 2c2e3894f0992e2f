package domain

import (
	"time"
)

type ConnectorStatus string

const (
	ConnectorStatusAvailable     ConnectorStatus = "Available"
	ConnectorStatusPreparing     ConnectorStatus = "Preparing"
	ConnectorStatusCharging      ConnectorStatus = "Charging"
	ConnectorStatusSuspendedEV   ConnectorStatus = "SuspendedEV"
	ConnectorStatusSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	ConnectorStatusFinishing     ConnectorStatus = "Finishing"
	ConnectorStatusOccupied      ConnectorStatus = "Occupied"
	ConnectorStatusReserved      ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable   ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted       ConnectorStatus = "Faulted"
)

// Armed reports whether a connector in this status is waiting for a
// transaction to begin, which is what the no-session watchdog guards.
func (s ConnectorStatus) Armed() bool {
	return s == ConnectorStatusPreparing || s == ConnectorStatusOccupied
}

// ChargePoint is a station row in the registry arena. Connectors are
// referenced by arena id, never by pointer.
type ChargePoint struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"` // the cpid used on the WebSocket path
	Location        string    `json:"location,omitempty"`
	Vendor          string    `json:"vendor,omitempty"`
	Model           string    `json:"model,omitempty"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	Connected       bool      `json:"connected"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat,omitempty"`
	ConnectorIDs    []int     `json:"-"`
}

// Connector is a connector row in the registry arena.
type Connector struct {
	ID            int             `json:"id"`
	StationID     int             `json:"station_id"`
	Number        int             `json:"connector_id"` // 1-based; 0 is the station itself
	Type          string          `json:"type,omitempty"`
	Status        ConnectorStatus `json:"status"`
	ErrorCode     string          `json:"error_code,omitempty"`
	TransactionID int             `json:"transaction_id,omitempty"` // 0 when idle
	StatusAt      time.Time       `json:"status_at,omitempty"`
}

// ConfigurationKey is one entry of a station's reported configuration.
type ConfigurationKey struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value,omitempty"`
}

// PendingSession records that a start has been armed for a connector (via
// the control plane or a Preparing status) but no transaction exists yet.
// Connector number 0 is a station-level wildcard absorbed by the first
// connector that goes Preparing.
type PendingSession struct {
	StationID   int       `json:"station_id"`
	ChargePoint string    `json:"cpid"`
	ConnectorID int       `json:"connector_id"`
	IDTag       string    `json:"id_tag,omitempty"`
	VID         string    `json:"vid,omitempty"`
	MAC         string    `json:"mac,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
