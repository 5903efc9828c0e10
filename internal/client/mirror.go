// Package client implements a sync client for the cash-flow server: a
// local mirror of the shared state plus a reconciler that keeps it
// converged over HTTP and the event stream.
package client

import (
	"sync"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
)

// Mirror is a client's local replica of the shared ledger. Mutations
// are applied optimistically before the server confirms them; broadcast
// events merge idempotently, so applying an event for a change the
// mirror already holds changes nothing.
type Mirror struct {
	mu       sync.RWMutex
	txs      []domain.Transaction
	services map[string]domain.ServiceEntry
	settings map[string]string
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		services: make(map[string]domain.ServiceEntry),
		settings: make(map[string]string),
	}
}

// ApplyAdd inserts a transaction optimistically. If the id already
// exists the row is replaced in place; otherwise it is added and the
// ledger re-sorted, newest date first.
func (m *Mirror) ApplyAdd(tx domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(tx)
}

// ApplyDelete removes a transaction. Unknown ids are a no-op.
func (m *Mirror) ApplyDelete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
}

// MergeAdded applies a transactionAdded broadcast. A row the mirror
// already holds (from its own optimistic insert) is skipped, so the
// echo of a client's own mutation never duplicates it.
func (m *Mirror) MergeAdded(tx domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.txs {
		if existing.ID == tx.ID {
			return
		}
	}
	m.upsertLocked(tx)
}

// MergeDeleted applies a transactionDeleted broadcast.
func (m *Mirror) MergeDeleted(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
}

// SetServicePrice updates a price-list entry. Unknown ids are ignored;
// the price list is server seed data and never grows from events.
func (m *Mirror) SetServicePrice(id string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.services[id]
	if !ok {
		return
	}
	entry.DefaultPrice = price
	m.services[id] = entry
}

// SetSetting upserts a setting value.
func (m *Mirror) SetSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

// ReplaceAll swaps the entire mirror for a fresh server snapshot.
// Called on every (re)connect; any divergence accumulated while
// offline is discarded in favor of the server's state.
func (m *Mirror) ReplaceAll(txs []domain.Transaction, services []domain.ServiceEntry, settings map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txs = make([]domain.Transaction, len(txs))
	copy(m.txs, txs)
	domain.SortByDateDesc(m.txs)

	m.services = make(map[string]domain.ServiceEntry, len(services))
	for _, svc := range services {
		m.services[svc.ID] = svc
	}

	m.settings = make(map[string]string, len(settings))
	for k, v := range settings {
		m.settings[k] = v
	}
}

// Transactions returns a copy of the mirrored ledger, newest date first.
func (m *Mirror) Transactions() []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

// Service returns one price-list entry by id.
func (m *Mirror) Service(id string) (domain.ServiceEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.services[id]
	return entry, ok
}

// Setting returns one setting value by key.
func (m *Mirror) Setting(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	return v, ok
}

// Summary folds the mirrored ledger into totals, matching what the
// server would report for the same rows.
func (m *Mirror) Summary() domain.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.ComputeSummary(m.txs)
}

func (m *Mirror) upsertLocked(tx domain.Transaction) {
	for i, existing := range m.txs {
		if existing.ID == tx.ID {
			m.txs[i] = tx
			domain.SortByDateDesc(m.txs)
			return
		}
	}
	// Append so a same-date tie lands after older arrivals once the
	// stable sort runs, matching the server's ordering.
	m.txs = append(m.txs, tx)
	domain.SortByDateDesc(m.txs)
}

func (m *Mirror) deleteLocked(id string) {
	for i, existing := range m.txs {
		if existing.ID == id {
			m.txs = append(m.txs[:i], m.txs[i+1:]...)
			return
		}
	}
}
