// Package service holds the business logic of the cash-flow ledger.
package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/infra/observability"
	"github.com/donahelp/fluxo-sync-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/ledger")

// LedgerService applies mutations to the shared ledger and broadcasts
// the resulting events. A single mutex serializes all mutations, so
// every client observes the same mutation order.
type LedgerService struct {
	store   port.LedgerStore
	bus     port.EventPublisher
	metrics *observability.Metrics
	logger  *zap.Logger

	mu sync.Mutex
}

// NewLedgerService wires the service to its store and event publisher.
func NewLedgerService(store port.LedgerStore, bus port.EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:   store,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
}

// AddTransaction validates, normalizes and persists a transaction, then
// broadcasts transactionAdded. Derived fields sent by the client are
// ignored; the server recomputes them from the gross amount, payment
// method, tax rate and payout policy. A missing id gets a fresh UUID,
// which also makes re-sends of the same id safe upserts.
func (s *LedgerService) AddTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Ledger.AddTransaction")
	defer span.End()
	defer s.observe(observability.OpAddTransaction, time.Now())

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := validateTransaction(tx); err != nil {
		s.metrics.IncrMutationError(observability.OpAddTransaction)
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An income entry without a declared rate inherits the current
	// Simples Nacional setting; the value freezes into the row.
	if tx.IsIncome() && tx.TaxRate == nil {
		settings, err := s.store.ListSettings(ctx)
		if err != nil {
			s.metrics.IncrMutationError(observability.OpAddTransaction)
			return domain.Transaction{}, err
		}
		rate := ParseTaxRate(settings)
		tx.TaxRate = &rate
	}
	tx = normalize(tx)

	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		s.metrics.IncrMutationError(observability.OpAddTransaction)
		return domain.Transaction{}, err
	}

	s.metrics.IncrMutation(observability.OpAddTransaction)
	s.bus.Publish(domain.NewTransactionAdded(tx))
	s.logger.Info("transaction added",
		zap.String("id", tx.ID),
		zap.String("type", string(tx.Type)),
		zap.Float64("amount", tx.Amount))
	return tx, nil
}

// DeleteTransaction removes a transaction and broadcasts
// transactionDeleted. Unknown ids still broadcast: a client that
// already holds the row locally must drop it either way.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Ledger.DeleteTransaction")
	defer span.End()
	defer s.observe(observability.OpDeleteTransaction, time.Now())

	if id == "" {
		s.metrics.IncrMutationError(observability.OpDeleteTransaction)
		return &domain.ErrValidation{Field: "id", Message: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		s.metrics.IncrMutationError(observability.OpDeleteTransaction)
		return err
	}

	s.metrics.IncrMutation(observability.OpDeleteTransaction)
	s.bus.Publish(domain.NewTransactionDeleted(id))
	s.logger.Info("transaction deleted", zap.String("id", id))
	return nil
}

// UpdateServicePrice changes a price-list entry and broadcasts
// servicePriceUpdated. Unknown ids are persisted as a no-op but still
// broadcast so all clients converge on the same stream.
func (s *LedgerService) UpdateServicePrice(ctx context.Context, id string, price float64) error {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateServicePrice")
	defer span.End()
	defer s.observe(observability.OpUpdateServicePrice, time.Now())

	if id == "" {
		s.metrics.IncrMutationError(observability.OpUpdateServicePrice)
		return &domain.ErrValidation{Field: "id", Message: "must not be empty"}
	}
	if price <= 0 {
		s.metrics.IncrMutationError(observability.OpUpdateServicePrice)
		return &domain.ErrValidation{Field: "price", Message: "must be greater than zero"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpdateServicePrice(ctx, id, price); err != nil {
		s.metrics.IncrMutationError(observability.OpUpdateServicePrice)
		return err
	}

	s.metrics.IncrMutation(observability.OpUpdateServicePrice)
	s.bus.Publish(domain.NewServicePriceUpdated(id, price))
	s.logger.Info("service price updated", zap.String("id", id), zap.Float64("price", price))
	return nil
}

// UpdateSetting upserts a setting and broadcasts settingUpdated.
func (s *LedgerService) UpdateSetting(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateSetting")
	defer span.End()
	defer s.observe(observability.OpUpdateSetting, time.Now())

	if key == "" {
		s.metrics.IncrMutationError(observability.OpUpdateSetting)
		return &domain.ErrValidation{Field: "key", Message: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpsertSetting(ctx, key, value); err != nil {
		s.metrics.IncrMutationError(observability.OpUpdateSetting)
		return err
	}

	s.metrics.IncrMutation(observability.OpUpdateSetting)
	s.bus.Publish(domain.NewSettingUpdated(key, value))
	s.logger.Info("setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

// ListTransactions returns the full ledger, newest date first.
func (s *LedgerService) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ListTransactions")
	defer span.End()
	return s.store.ListTransactions(ctx)
}

// ListServices returns the service price list.
func (s *LedgerService) ListServices(ctx context.Context) ([]domain.ServiceEntry, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ListServices")
	defer span.End()
	return s.store.ListServices(ctx)
}

// ListSettings returns all settings.
func (s *LedgerService) ListSettings(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ListSettings")
	defer span.End()
	return s.store.ListSettings(ctx)
}

// Summary folds the full ledger into totals and balance.
func (s *LedgerService) Summary(ctx context.Context) (domain.Summary, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Summary")
	defer span.End()

	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.ComputeSummary(txs), nil
}

// DailyFlow buckets the ledger by date for the cash-flow chart.
func (s *LedgerService) DailyFlow(ctx context.Context) ([]domain.DailyFlow, error) {
	ctx, span := tracer.Start(ctx, "Ledger.DailyFlow")
	defer span.End()

	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return domain.ComputeDailyFlow(txs), nil
}

func (s *LedgerService) observe(op string, start time.Time) {
	s.metrics.RecordRequestDuration(op, time.Since(start))
}

// validateTransaction rejects payloads that could never have come from
// a well-behaved client.
func validateTransaction(tx domain.Transaction) error {
	if tx.Description == "" {
		return &domain.ErrValidation{Field: "description", Message: "must not be empty"}
	}
	if tx.Amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	if tx.Type != domain.TypeIncome && tx.Type != domain.TypeExpense {
		return &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if tx.Category == "" {
		return &domain.ErrValidation{Field: "category", Message: "must not be empty"}
	}
	if _, err := time.Parse("2006-01-02", tx.Date); err != nil {
		return &domain.ErrValidation{Field: "date", Message: "must be a YYYY-MM-DD date"}
	}
	if !tx.PaymentMethod.Valid() {
		return &domain.ErrValidation{Field: "paymentMethod", Message: "unknown payment method"}
	}
	if tx.PayoutType != "" && tx.PayoutType != domain.PayoutPercentage && tx.PayoutType != domain.PayoutFixed {
		return &domain.ErrValidation{Field: "providerPayoutType", Message: "must be percentage or fixed"}
	}
	if tx.PayoutValue != nil && *tx.PayoutValue < 0 {
		return &domain.ErrValidation{Field: "providerPayoutValue", Message: "must not be negative"}
	}
	if tx.TaxRate != nil && *tx.TaxRate < 0 {
		return &domain.ErrValidation{Field: "simplesNacionalRate", Message: "must not be negative"}
	}
	return nil
}

// normalize recomputes every derived field from scratch. Income entries
// get the card rate fixed by the payment method and a fresh net amount;
// expenses carry none of the income-only fields.
func normalize(tx domain.Transaction) domain.Transaction {
	if !tx.IsIncome() {
		tx.PaymentMethod = ""
		tx.TaxRate = nil
		tx.CardRate = nil
		tx.PayoutType = ""
		tx.PayoutValue = nil
		tx.NetAmount = nil
		return tx
	}

	taxRate := 0.0
	if tx.TaxRate != nil {
		taxRate = *tx.TaxRate
	}
	derived := domain.ComputeDerivedFields(tx.Amount, tx.PaymentMethod, taxRate, tx.PayoutPolicy())

	tx.CardRate = &derived.CardSurchargeRate
	tx.NetAmount = &derived.NetAmount
	if tx.TaxRate == nil {
		zero := 0.0
		tx.TaxRate = &zero
	}
	if tx.PayoutValue != nil && tx.PayoutType == "" {
		tx.PayoutType = domain.PayoutPercentage
	}
	return tx
}

// ParseTaxRate reads the Simples Nacional rate out of a settings map,
// falling back to zero on a missing or malformed value.
func ParseTaxRate(settings map[string]string) float64 {
	raw, ok := settings[domain.SettingSimplesNacionalRate]
	if !ok {
		return 0
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return rate
}
