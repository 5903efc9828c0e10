// Package port defines the interfaces between the ledger's core and
// its collaborators: the persistent store and the broadcast bus.
package port

import (
	"context"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
)

// LedgerStore is the authoritative keyed collection of transactions,
// the service price list and scalar settings. Implementations must keep
// every operation atomic at the row level; any persistence fault is
// surfaced as *domain.ErrStorage.
type LedgerStore interface {
	// InsertTransaction is an upsert keyed by id: an existing id is
	// silently replaced. Relied upon for replay safety.
	InsertTransaction(ctx context.Context, tx domain.Transaction) error

	// DeleteTransaction is a silent no-op on an unknown id.
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns the full ledger ordered by date
	// descending, ties broken by arrival order.
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	// UpdateServicePrice updates only existing rows; unknown ids are a
	// no-op and new services are never created here.
	UpdateServicePrice(ctx context.Context, id string, price float64) error

	ListServices(ctx context.Context) ([]domain.ServiceEntry, error)

	// UpsertSetting always succeeds, last write wins per key.
	UpsertSetting(ctx context.Context, key, value string) error

	ListSettings(ctx context.Context) (map[string]string, error)
}

// EventPublisher fans a broadcast event out to every currently
// connected client, including the mutation's originator. Delivery is
// fire-and-forget: no acknowledgment, no retry, no retraction. Events
// must reach each client in publish order.
type EventPublisher interface {
	Publish(ev domain.Event)
}
