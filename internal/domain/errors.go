package domain

import "errors"

// Sentinel errors shared across the orchestrator, services and the HTTP
// adapter. Wrap them with fmt.Errorf("...: %w", Err...) so callers can
// match with errors.Is.
var (
	ErrNotConnected      = errors.New("charge point not connected")
	ErrNotFound          = errors.New("not found")
	ErrRejected          = errors.New("rejected by charge point")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTimeout           = errors.New("timed out")
	ErrProtocolFraming   = errors.New("malformed ocpp frame")
	ErrDisconnected      = errors.New("charge point disconnected")
)
