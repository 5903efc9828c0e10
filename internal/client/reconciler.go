package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/infra/resilience"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const reconnectDelay = 2 * time.Second

// Reconciler keeps a Mirror converged with the server. Mutations go
// out over HTTP with an optimistic local apply; confirmations and
// remote changes come back over the event stream. On every connect it
// replaces the whole mirror with a server snapshot, so missed events
// while offline are absorbed rather than replayed.
type Reconciler struct {
	baseURL    string
	httpClient *http.Client
	mirror     *Mirror
	breaker    *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	retryCfg   resilience.Config
	logger     *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// Options tunes a Reconciler. Zero values fall back to defaults.
type Options struct {
	HTTPTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// NewReconciler creates a reconciler for the server at baseURL
// (e.g. "http://192.168.0.10:8080").
func NewReconciler(baseURL string, mirror *Mirror, opts Options, logger *zap.Logger) *Reconciler {
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 8
	}

	return &Reconciler{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
		mirror:     mirror,
		breaker:    resilience.NewCircuitBreaker("fluxo-server"),
		bulkhead:   resilience.NewBulkhead(opts.MaxConcurrency),
		retryCfg: resilience.Config{
			MaxRetries:     opts.MaxRetries,
			InitialBackoff: opts.InitialBackoff,
		},
		logger: logger,
	}
}

// AddTransaction applies the entry to the mirror immediately, then
// sends it to the server. The optimistic row stays even when the send
// fails; the duplicate-skipping merge deduplicates it once the server
// confirms or the next resync settles the truth.
func (r *Reconciler) AddTransaction(ctx context.Context, tx domain.Transaction) error {
	r.mirror.ApplyAdd(tx)

	var saved domain.Transaction
	err := r.do(ctx, http.MethodPost, "/v1/transactions", tx, &saved)
	if err != nil {
		r.logger.Warn("addTransaction not confirmed, keeping optimistic row",
			zap.String("id", tx.ID), zap.Error(err))
		return err
	}
	// The server recomputes derived fields; adopt its version.
	r.mirror.ApplyAdd(saved)
	return nil
}

// DeleteTransaction drops the row locally, then tells the server.
// No rollback on failure; the next resync restores the row if the
// delete never landed.
func (r *Reconciler) DeleteTransaction(ctx context.Context, id string) error {
	r.mirror.ApplyDelete(id)

	if err := r.do(ctx, http.MethodDelete, "/v1/transactions/"+id, nil, nil); err != nil {
		r.logger.Warn("deleteTransaction not confirmed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// UpdateServicePrice updates the mirror, then the server.
func (r *Reconciler) UpdateServicePrice(ctx context.Context, id string, price float64) error {
	r.mirror.SetServicePrice(id, price)

	body := map[string]float64{"price": price}
	if err := r.do(ctx, http.MethodPut, "/v1/services/"+id, body, nil); err != nil {
		r.logger.Warn("updateServicePrice not confirmed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// UpdateSetting updates the mirror, then the server.
func (r *Reconciler) UpdateSetting(ctx context.Context, key, value string) error {
	r.mirror.SetSetting(key, value)

	body := map[string]string{"value": value}
	if err := r.do(ctx, http.MethodPut, "/v1/settings/"+key, body, nil); err != nil {
		r.logger.Warn("updateSetting not confirmed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Resync replaces the mirror with a fresh server snapshot.
func (r *Reconciler) Resync(ctx context.Context) error {
	var txs []domain.Transaction
	if err := r.do(ctx, http.MethodGet, "/v1/transactions", nil, &txs); err != nil {
		return err
	}
	var services []domain.ServiceEntry
	if err := r.do(ctx, http.MethodGet, "/v1/services", nil, &services); err != nil {
		return err
	}
	var settings map[string]string
	if err := r.do(ctx, http.MethodGet, "/v1/settings", nil, &settings); err != nil {
		return err
	}

	r.mirror.ReplaceAll(txs, services, settings)
	r.logger.Info("resynced from server",
		zap.Int("transactions", len(txs)),
		zap.Int("services", len(services)),
		zap.Int("settings", len(settings)))
	return nil
}

// Run connects to the event stream and keeps the mirror converged,
// reconnecting with a fixed delay until ctx is cancelled. Each
// (re)connect starts with a full resync, then applies events as they
// arrive.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.runOnce(ctx); err != nil {
			r.logger.Warn("sync session ended", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) error {
	wsURL := "ws" + strings.TrimPrefix(r.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return &domain.ErrExternalService{Service: "fluxo-server", Err: err}
	}
	defer conn.Close()

	r.setConn(conn)
	defer r.setConn(nil)

	// Snapshot after subscribing, so events arriving during the
	// snapshot are reapplied on top of it rather than lost.
	if err := r.Resync(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		r.applyEvent(frame)
	}
}

// applyEvent merges one broadcast frame into the mirror.
func (r *Reconciler) applyEvent(frame []byte) {
	var ev domain.WireEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		r.logger.Warn("malformed event frame", zap.Error(err))
		return
	}

	switch ev.Name {
	case domain.EventTransactionAdded:
		var tx domain.Transaction
		if err := json.Unmarshal(ev.Data, &tx); err != nil {
			r.logger.Warn("bad transactionAdded payload", zap.Error(err))
			return
		}
		r.mirror.MergeAdded(tx)

	case domain.EventTransactionDeleted:
		var id string
		if err := json.Unmarshal(ev.Data, &id); err != nil {
			r.logger.Warn("bad transactionDeleted payload", zap.Error(err))
			return
		}
		r.mirror.MergeDeleted(id)

	case domain.EventServicePriceUpdated:
		var upd domain.ServicePriceUpdate
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			r.logger.Warn("bad servicePriceUpdated payload", zap.Error(err))
			return
		}
		r.mirror.SetServicePrice(upd.ID, upd.Price)

	case domain.EventSettingUpdated:
		var upd domain.SettingUpdate
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			r.logger.Warn("bad settingUpdated payload", zap.Error(err))
			return
		}
		r.mirror.SetSetting(upd.Key, upd.Value)

	default:
		r.logger.Debug("ignoring unknown event", zap.String("event", ev.Name))
	}
}

func (r *Reconciler) setConn(conn *websocket.Conn) {
	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()
}

// SendIntent ships a mutation intent over the persistent channel,
// fire-and-forget: no reply ever comes back, the broadcast stream is
// the only confirmation. The mutation is applied to the mirror
// optimistically first, the same as the HTTP path.
func (r *Reconciler) SendIntent(name string, data any) error {
	switch name {
	case domain.IntentAddTransaction:
		if tx, ok := data.(domain.Transaction); ok {
			r.mirror.ApplyAdd(tx)
		}
	case domain.IntentDeleteTransaction:
		if id, ok := data.(string); ok {
			r.mirror.ApplyDelete(id)
		}
	case domain.IntentUpdateServicePrice:
		if upd, ok := data.(domain.ServicePriceUpdate); ok {
			r.mirror.SetServicePrice(upd.ID, upd.Price)
		}
	case domain.IntentUpdateSetting:
		if upd, ok := data.(domain.SettingUpdate); ok {
			r.mirror.SetSetting(upd.Key, upd.Value)
		}
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return &domain.ErrExternalService{Service: "fluxo-server", Err: errors.New("not connected")}
	}
	return r.conn.WriteJSON(domain.Event{Name: name, Data: data})
}

// do runs one HTTP exchange through the bulkhead, circuit breaker and
// retry policy. Retrying mutations is safe: inserts are upserts and
// deletes are no-ops on unknown ids.
func (r *Reconciler) do(ctx context.Context, method, path string, body, out any) error {
	if err := r.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer r.bulkhead.Release()

	_, err := r.breaker.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, r.retryCfg, func() error {
			return r.exchange(ctx, method, path, body, out)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "fluxo-server"}
	}
	return err
}

func (r *Reconciler) exchange(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &domain.ErrExternalService{Service: "fluxo-server", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.ErrExternalService{
			Service: "fluxo-server",
			Err:     fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
