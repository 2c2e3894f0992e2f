package domain

import (
	"time"
)

type SessionState string

const (
	SessionStateActive    SessionState = "Active"
	SessionStateCompleted SessionState = "Completed"
)

// MeterSample is one parsed MeterValues sample. Fields are pointers so a
// sample only carries the measurands the station actually reported.
type MeterSample struct {
	Timestamp   time.Time `json:"timestamp"`
	Current     *float64  `json:"current,omitempty"`     // A
	Voltage     *float64  `json:"voltage,omitempty"`     // V
	SoC         *float64  `json:"soc,omitempty"`         // percent
	Temperature *float64  `json:"temperature,omitempty"` // Celsius
}

// Session is a transaction row in the registry arena, from StartTransaction
// to StopTransaction. Completed rows stay in the arena as history.
type Session struct {
	TransactionID int           `json:"transaction_id"`
	StationID     int           `json:"station_id"`
	ChargePoint   string        `json:"cpid"`
	ConnectorID   int           `json:"connector_id"`
	IDTag         string        `json:"id_tag"`
	VID           string        `json:"vid,omitempty"`
	MAC           string        `json:"mac,omitempty"`
	MeterStart    int           `json:"meter_start"` // Wh
	MeterStop     int           `json:"meter_stop"`  // Wh
	EnergyWh      int           `json:"energy_wh"`
	StartTime     time.Time     `json:"start_time"`
	StopTime      *time.Time    `json:"stop_time,omitempty"`
	Duration      int           `json:"duration_seconds"`
	Reason        string        `json:"reason,omitempty"`
	Cost          float64       `json:"cost"`
	Currency      string        `json:"currency,omitempty"`
	State         SessionState  `json:"state"`
	Samples       []MeterSample `json:"samples,omitempty"`
	LastSample    *MeterSample  `json:"last_sample,omitempty"`
}
