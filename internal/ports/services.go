package ports

import (
	"context"
	"time"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// IdentityService maps external identifiers onto stable VIDs. All operations
// are short, in-memory and atomic relative to each other.
type IdentityService interface {
	// Resolve returns the VID for a (source_type, source_value) pair,
	// allocating one when the pair is unseen. Values already shaped like a
	// VID are adopted verbatim.
	Resolve(sourceType, sourceValue string) string

	// Bind points a pair at an explicit VID, overriding any prior binding.
	Bind(sourceType, sourceValue, vid string)

	// Merge re-points every pair bound to tempVID at permVID. Merging an
	// already-merged or identical VID is a no-op.
	Merge(tempVID, permVID string)

	// Canonical follows merge redirects; a VID never merged away comes
	// back unchanged.
	Canonical(vid string) string

	// Identify resolves the highest-priority field of a UserIdentifier.
	Identify(id domain.UserIdentifier) (string, error)

	// Pairs snapshots the forward table for diagnostics.
	Pairs() []domain.IdentityPair
}

// WalletService keeps prepaid balances by VID. Balance reads on unknown
// VIDs return zero without creating an account; only TopUp creates one.
type WalletService interface {
	Balance(vid string) float64
	// Account reports the balance and whether an account exists. The
	// zero-credit cutoff only applies to VIDs that have an account.
	Account(vid string) (float64, bool)
	TopUp(vid string, amount float64) (float64, error)
	Deduct(vid string, amount float64) (float64, error)
	// DeductUpTo takes at most amount, clamped to the balance, and returns
	// what was actually taken. Used by end-of-session billing.
	DeductUpTo(vid string, amount float64, reference string) float64
	History(vid string) []domain.WalletTransaction
}

// StationCommander is the control-plane face of the OCPP server: commands
// addressed by cpid, fanned to the right live charge point. Every method
// returns ErrNotConnected (wrapped) when no socket is attached for the cpid.
type StationCommander interface {
	IsConnected(cpid string) bool
	Connected() []string
	StartSession(ctx context.Context, cpid string, connector int, idTag, vid, mac string) error
	StopTransaction(ctx context.Context, cpid string, transactionID int) error
	Release(ctx context.Context, cpid string, connector int) error
	// Unlock sends a bare UnlockConnector without touching pending state.
	Unlock(ctx context.Context, cpid string, connector int) (string, error)
	Reset(ctx context.Context, cpid, resetType string) error
	ChangeAvailability(ctx context.Context, cpid string, connector int, available bool) (string, error)
	ChangeConfiguration(ctx context.Context, cpid, key, value string) (string, error)
	// Configuration asks the station for its full configuration key list.
	// Slow stations can take up to the call timeout to answer.
	Configuration(ctx context.Context, cpid string) ([]domain.ConfigurationKey, error)
}

// EventPublisher fans lifecycle events out to the message bus. Publishing
// must never block or fail the calling path.
type EventPublisher interface {
	Publish(subject, cpid string, payload interface{})
}

// AlertMailer notifies operators about conditions that need eyes on the
// hardware. Implementations log failures instead of returning them into
// handler paths.
type AlertMailer interface {
	ConnectorFaulted(ctx context.Context, cpid string, connector int, errorCode string)
	LowBalance(ctx context.Context, vid string, balance float64)
	ZeroCreditCutoff(ctx context.Context, vid string, transactionID int)
}

// Cache stores small serializable values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
