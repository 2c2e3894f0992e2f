package domain

import (
	"time"
)

// Wallet is a prepaid balance keyed by VID. Balances never go negative;
// a deduct that would overdraw fails and leaves the balance unchanged.
type Wallet struct {
	VID       string    `json:"vid"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletTransaction is one wallet mutation, appended after the balance
// change it records.
type WalletTransaction struct {
	ID          string    `json:"id"`
	VID         string    `json:"vid"`
	Type        string    `json:"type"` // topup, charge
	Amount      float64   `json:"amount"`
	Balance     float64   `json:"balance"` // balance after
	Description string    `json:"description,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty"` // payment intent or tx id
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentIntent is the provider-side handle for a card top-up awaiting
// client confirmation.
type PaymentIntent struct {
	ID           string  `json:"id"`
	ClientSecret string  `json:"client_secret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}
