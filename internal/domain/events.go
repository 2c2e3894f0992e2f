package domain

import "time"

// Bus subjects for lifecycle events. The operator event feed subscribes to
// all of them; external consumers pick the ones they need.
const (
	SubjectStationConnected    = "ocpp.station.connected"
	SubjectStationDisconnected = "ocpp.station.disconnected"
	SubjectStationBooted       = "ocpp.station.booted"
	SubjectConnectorStatus     = "ocpp.connector.status"
	SubjectConnectorFaulted    = "ocpp.connector.faulted"
	SubjectTransactionStarted  = "ocpp.transaction.started"
	SubjectTransactionStopped  = "ocpp.transaction.stopped"
	SubjectWalletLowBalance    = "ocpp.wallet.low_balance"
	SubjectWalletCutoff        = "ocpp.wallet.cutoff"
)

// Event is the envelope published on the bus and relayed to the operator
// WebSocket feed.
type Event struct {
	ID          string      `json:"id"`
	Subject     string      `json:"subject"`
	ChargePoint string      `json:"cpid,omitempty"`
	Time        time.Time   `json:"time"`
	Payload     interface{} `json:"payload,omitempty"`
}
