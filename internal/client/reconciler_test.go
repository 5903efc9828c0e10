package client_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/client"
	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/handler"
	"github.com/donahelp/fluxo-sync-go/internal/infra/bus"
	"github.com/donahelp/fluxo-sync-go/internal/infra/observability"
	"github.com/donahelp/fluxo-sync-go/internal/infra/sqlite"
	"github.com/donahelp/fluxo-sync-go/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newSyncServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "fluxo.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	metrics := observability.NewMetrics()
	hub := bus.NewHub(metrics, zap.NewNop())
	svc := service.NewLedgerService(store, hub, metrics, zap.NewNop())

	ts := httptest.NewServer(handler.NewRouter(svc, hub, metrics, zap.NewNop()))
	t.Cleanup(ts.Close)
	return ts
}

func startClient(t *testing.T, ctx context.Context, baseURL string) (*client.Reconciler, *client.Mirror) {
	t.Helper()
	mirror := client.NewMirror()
	rec := client.NewReconciler(baseURL, mirror, client.Options{}, zap.NewNop())
	go rec.Run(ctx)
	return rec, mirror
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func expense(id, date string, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Type:        domain.TypeExpense,
		Description: "test " + id,
		Amount:      amount,
		Date:        date,
		Category:    "outros",
	}
}

func TestMutationPropagatesBetweenClients(t *testing.T) {
	ts := newSyncServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recA, mirrorA := startClient(t, ctx, ts.URL)
	_, mirrorB := startClient(t, ctx, ts.URL)

	waitFor(t, func() bool {
		_, ok := mirrorB.Service("res-8h")
		return ok
	}, "client B never finished its initial resync")

	tx := expense(uuid.NewString(), "2026-08-20", 35)
	if err := recA.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	waitFor(t, func() bool {
		txs := mirrorB.Transactions()
		return len(txs) == 1 && txs[0].ID == tx.ID
	}, "client B never saw A's transaction")

	// A's own optimistic row was deduplicated by the echo.
	if txs := mirrorA.Transactions(); len(txs) != 1 {
		t.Errorf("client A has %d rows, want 1", len(txs))
	}
}

func TestLateJoinerConvergesViaSnapshot(t *testing.T) {
	ts := newSyncServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recA, _ := startClient(t, ctx, ts.URL)

	for _, tx := range []domain.Transaction{
		expense(uuid.NewString(), "2026-08-01", 10),
		expense(uuid.NewString(), "2026-08-02", 20),
	} {
		if err := recA.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction() error = %v", err)
		}
	}
	if err := recA.UpdateServicePrice(ctx, "res-8h", 240); err != nil {
		t.Fatalf("UpdateServicePrice() error = %v", err)
	}

	// C connects only now; it converges from the snapshot alone.
	_, mirrorC := startClient(t, ctx, ts.URL)

	waitFor(t, func() bool {
		return len(mirrorC.Transactions()) == 2
	}, "late joiner never converged on the ledger")

	waitFor(t, func() bool {
		entry, ok := mirrorC.Service("res-8h")
		return ok && entry.DefaultPrice == 240
	}, "late joiner never converged on the price list")

	txs := mirrorC.Transactions()
	if txs[0].Date != "2026-08-02" || txs[1].Date != "2026-08-01" {
		t.Errorf("snapshot order: %s, %s", txs[0].Date, txs[1].Date)
	}
}

func TestSettingUpdatePropagates(t *testing.T) {
	ts := newSyncServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recA, mirrorA := startClient(t, ctx, ts.URL)
	_, mirrorB := startClient(t, ctx, ts.URL)

	waitFor(t, func() bool {
		_, ok := mirrorB.Setting(domain.SettingSimplesNacionalRate)
		return ok
	}, "client B never finished its initial resync")

	if err := recA.UpdateSetting(ctx, domain.SettingSimplesNacionalRate, "8.5"); err != nil {
		t.Fatalf("UpdateSetting() error = %v", err)
	}

	waitFor(t, func() bool {
		v, _ := mirrorB.Setting(domain.SettingSimplesNacionalRate)
		return v == "8.5"
	}, "client B never saw the setting update")

	if v, _ := mirrorA.Setting(domain.SettingSimplesNacionalRate); v != "8.5" {
		t.Errorf("client A setting = %q, want 8.5", v)
	}
}

func TestIntentOverChannelConverges(t *testing.T) {
	ts := newSyncServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recA, mirrorA := startClient(t, ctx, ts.URL)
	_, mirrorB := startClient(t, ctx, ts.URL)

	waitFor(t, func() bool {
		_, okA := mirrorA.Service("res-8h")
		_, okB := mirrorB.Service("res-8h")
		return okA && okB
	}, "clients never finished their initial resync")

	tx := expense(uuid.NewString(), "2026-08-21", 18)
	if err := recA.SendIntent(domain.IntentAddTransaction, tx); err != nil {
		t.Fatalf("SendIntent() error = %v", err)
	}

	for name, mirror := range map[string]*client.Mirror{"a": mirrorA, "b": mirrorB} {
		waitFor(t, func() bool {
			txs := mirror.Transactions()
			return len(txs) == 1 && txs[0].ID == tx.ID
		}, "client "+name+" never converged after the intent")
	}
}

func TestResyncAfterServerRestartState(t *testing.T) {
	ts := newSyncServer(t)
	mirror := client.NewMirror()
	rec := client.NewReconciler(ts.URL, mirror, client.Options{}, zap.NewNop())

	// Local divergence accumulated while offline.
	mirror.ApplyAdd(expense("offline-only", "2026-08-01", 99))

	if err := rec.Resync(context.Background()); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}

	if txs := mirror.Transactions(); len(txs) != 0 {
		t.Errorf("offline divergence survived resync: %d rows", len(txs))
	}
	if entry, ok := mirror.Service("pos-obra"); !ok || entry.DefaultPrice != 500 {
		t.Errorf("seeded price list not mirrored: %+v", entry)
	}
}
