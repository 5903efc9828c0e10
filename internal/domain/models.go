// Package domain defines the core entities of the cash-flow ledger.
// These models are independent of storage and transport and carry the
// wire names used by the Controle de Fluxo clients.
package domain

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// PaymentMethod is how an income transaction was paid. Each method
// carries a fixed card surcharge rate (percent of gross).
type PaymentMethod string

const (
	PaymentPix    PaymentMethod = "pix"
	PaymentMoney  PaymentMethod = "money"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
)

// Card machine rates charged by the acquirer.
const (
	creditSurchargeRate = 4.15
	debitSurchargeRate  = 1.99
)

// SurchargeRate returns the fixed card fee percentage for the method.
// Pix, cash and unset methods cost nothing.
func (m PaymentMethod) SurchargeRate() float64 {
	switch m {
	case PaymentCredit:
		return creditSurchargeRate
	case PaymentDebit:
		return debitSurchargeRate
	default:
		return 0
	}
}

// Valid reports whether m is a known payment method. The empty string
// is valid: expenses carry no method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case "", PaymentPix, PaymentMoney, PaymentCredit, PaymentDebit:
		return true
	}
	return false
}

// PayoutType is how a provider's cut of an income entry is expressed.
type PayoutType string

const (
	PayoutPercentage PayoutType = "percentage"
	PayoutFixed      PayoutType = "fixed"
)

// Transaction is a single ledger entry. The id is assigned by the
// creator (client or server) and never reassigned. Income entries carry
// the deduction fields; expense entries never do, and their net amount
// is not stored.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"` // gross value, before deductions
	Date        string          `json:"date"`   // calendar date, YYYY-MM-DD
	Category    string          `json:"category"`

	// Income-only fields.
	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
	TaxRate       *float64      `json:"simplesNacionalRate,omitempty"`
	CardRate      *float64      `json:"cardTaxRate,omitempty"`
	PayoutType    PayoutType    `json:"providerPayoutType,omitempty"`
	PayoutValue   *float64      `json:"providerPayoutValue,omitempty"`
	NetAmount     *float64      `json:"netAmount,omitempty"`
}

// IsIncome reports whether the entry is an income transaction.
func (t Transaction) IsIncome() bool { return t.Type == TypeIncome }

// PayoutPolicy returns the provider payout policy of an income entry,
// or nil when none was declared.
func (t Transaction) PayoutPolicy() *PayoutPolicy {
	if t.PayoutValue == nil {
		return nil
	}
	kind := t.PayoutType
	if kind == "" {
		kind = PayoutPercentage
	}
	return &PayoutPolicy{Type: kind, Value: *t.PayoutValue}
}

// PayoutPolicy is a downstream provider's cut of an income transaction:
// either a fixed currency amount or a percentage of gross.
type PayoutPolicy struct {
	Type  PayoutType
	Value float64
}

// ServiceEntry is a row of the service price list. Category and name
// are seed data and immutable; only the default price is updatable.
type ServiceEntry struct {
	ID           string  `json:"id"`
	Category     string  `json:"category"`
	Name         string  `json:"name"`
	DefaultPrice float64 `json:"defaultPrice"`
}

// Service price list categories seeded at bootstrap.
const (
	ServiceCategoryResidencial = "residencial"
	ServiceCategoryMensal      = "mensal"
	ServiceCategoryPosObra     = "pos-obra"
)

// SettingSimplesNacionalRate is the key of the Simples Nacional tax
// rate setting, stored as a plain decimal string.
const SettingSimplesNacionalRate = "simplesNacionalRate"

// Summary is derived from the full transaction set on every read and
// never persisted.
type Summary struct {
	TotalIncome  float64 `json:"totalIncome"`
	TotalExpense float64 `json:"totalExpense"`
	Balance      float64 `json:"balance"`
}

// DailyFlow is one chart bucket: income and expense volume for a date.
// Income deductions count as expense volume here: the chart shows cash
// movement, not accounting net.
type DailyFlow struct {
	Date    string  `json:"date"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// SyncStats is the snapshot returned by GET /v1/sync/stats.
type SyncStats struct {
	TransactionsAdded   int64 `json:"transactionsAdded"`
	TransactionsDeleted int64 `json:"transactionsDeleted"`
	PriceUpdates        int64 `json:"priceUpdates"`
	SettingUpdates      int64 `json:"settingUpdates"`
	EventsBroadcast     int64 `json:"eventsBroadcast"`
	EventsDropped       int64 `json:"eventsDropped"`
	ConnectedClients    int64 `json:"connectedClients"`
}

// SuccessResponse acknowledges an accepted mutation.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
