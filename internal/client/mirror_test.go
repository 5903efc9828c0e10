package client

import (
	"testing"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
)

func f(v float64) *float64 { return &v }

func tx(id, date string, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Type:        domain.TypeExpense,
		Description: "test " + id,
		Amount:      amount,
		Date:        date,
		Category:    "outros",
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func TestMergeAddedSkipsOptimisticDuplicate(t *testing.T) {
	m := NewMirror()

	local := tx("tx-1", "2026-08-10", 50)
	m.ApplyAdd(local)

	// The broadcast echo of our own mutation carries the same id with
	// server-computed fields; the row count must not change.
	echo := local
	echo.Description = "server version"
	m.MergeAdded(echo)

	got := m.Transactions()
	if len(got) != 1 {
		t.Fatalf("expected 1 transaction after echo, got %d", len(got))
	}
	if got[0].Description != "test tx-1" {
		t.Errorf("echo replaced the optimistic row: %q", got[0].Description)
	}

	// A genuinely new remote row does merge.
	m.MergeAdded(tx("tx-2", "2026-08-11", 30))
	if got := m.Transactions(); len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
}

func TestApplyAddReplacesAndResorts(t *testing.T) {
	m := NewMirror()
	m.ApplyAdd(tx("a", "2026-08-01", 10))
	m.ApplyAdd(tx("b", "2026-08-03", 10))
	m.ApplyAdd(tx("c", "2026-08-02", 10))

	got := ids(m.Transactions())
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	// Moving "a" to the newest date re-sorts instead of duplicating.
	moved := tx("a", "2026-08-09", 10)
	m.ApplyAdd(moved)
	got = ids(m.Transactions())
	if len(got) != 3 || got[0] != "a" {
		t.Errorf("after date change order = %v", got)
	}
}

func TestSameDateTiesKeepArrivalOrder(t *testing.T) {
	m := NewMirror()
	m.ApplyAdd(tx("first", "2026-08-05", 10))
	m.ApplyAdd(tx("second", "2026-08-05", 10))
	m.ApplyAdd(tx("third", "2026-08-05", 10))

	got := ids(m.Transactions())
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := NewMirror()
	m.ApplyAdd(tx("a", "2026-08-01", 10))

	m.MergeDeleted("a")
	m.MergeDeleted("a")
	m.MergeDeleted("never-there")

	if got := m.Transactions(); len(got) != 0 {
		t.Errorf("expected empty mirror, got %v", ids(got))
	}
}

func TestSetServicePriceIgnoresUnknownIDs(t *testing.T) {
	m := NewMirror()
	m.ReplaceAll(nil, []domain.ServiceEntry{
		{ID: "res-8h", Category: "residencial", Name: "Diária 8h", DefaultPrice: 200},
	}, nil)

	m.SetServicePrice("res-8h", 220)
	m.SetServicePrice("ghost", 999)

	if entry, ok := m.Service("res-8h"); !ok || entry.DefaultPrice != 220 {
		t.Errorf("price not applied: %+v", entry)
	}
	if _, ok := m.Service("ghost"); ok {
		t.Error("unknown service id must not create an entry")
	}
}

func TestReplaceAllDiscardsDivergence(t *testing.T) {
	m := NewMirror()
	m.ApplyAdd(tx("offline-only", "2026-08-01", 10))
	m.SetSetting("simplesNacionalRate", "9")

	server := []domain.Transaction{tx("srv-1", "2026-08-02", 20)}
	m.ReplaceAll(server, nil, map[string]string{"simplesNacionalRate": "6"})

	got := m.Transactions()
	if len(got) != 1 || got[0].ID != "srv-1" {
		t.Errorf("snapshot not authoritative: %v", ids(got))
	}
	if v, _ := m.Setting("simplesNacionalRate"); v != "6" {
		t.Errorf("setting = %q, want server value", v)
	}
}

func TestMirrorSummaryMatchesComputation(t *testing.T) {
	m := NewMirror()
	income := domain.Transaction{
		ID:            "i1",
		Type:          domain.TypeIncome,
		Description:   "Diária",
		Amount:        200,
		Date:          "2026-08-10",
		Category:      "residencial",
		PaymentMethod: domain.PaymentCredit,
		TaxRate:       f(6),
		CardRate:      f(4.15),
		PayoutType:    domain.PayoutPercentage,
		PayoutValue:   f(70),
		NetAmount:     f(39.7),
	}
	m.ApplyAdd(income)
	m.ApplyAdd(tx("e1", "2026-08-11", 50))

	sum := m.Summary()
	if sum.TotalIncome != 200 {
		t.Errorf("TotalIncome = %v", sum.TotalIncome)
	}
	if sum != domain.ComputeSummary(m.Transactions()) {
		t.Error("mirror summary diverges from domain computation")
	}
}
