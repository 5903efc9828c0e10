package domain

import "encoding/json"

// Broadcast event names, one per accepted mutation. Every connected
// client receives every event, including the mutation's originator.
const (
	EventTransactionAdded    = "transactionAdded"
	EventTransactionDeleted  = "transactionDeleted"
	EventServicePriceUpdated = "servicePriceUpdated"
	EventSettingUpdated      = "settingUpdated"
)

// Mutation intent names a client may send over the persistent channel,
// fire-and-forget.
const (
	IntentAddTransaction     = "addTransaction"
	IntentDeleteTransaction  = "deleteTransaction"
	IntentUpdateServicePrice = "updateServicePrice"
	IntentUpdateSetting      = "updateSetting"
)

// Event is the envelope broadcast to connected clients.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// WireEvent is the decode-side view of an Event (or intent), with the
// payload left raw for dispatch by name.
type WireEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// ServicePriceUpdate is the payload of servicePriceUpdated and
// updateServicePrice messages.
type ServicePriceUpdate struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
}

// SettingUpdate is the payload of settingUpdated and updateSetting
// messages.
type SettingUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewTransactionAdded builds the broadcast event for an accepted insert.
func NewTransactionAdded(tx Transaction) Event {
	return Event{Name: EventTransactionAdded, Data: tx}
}

// NewTransactionDeleted builds the broadcast event for a delete.
// The payload is the bare id, as the original wire format had it.
func NewTransactionDeleted(id string) Event {
	return Event{Name: EventTransactionDeleted, Data: id}
}

// NewServicePriceUpdated builds the broadcast event for a price update.
func NewServicePriceUpdated(id string, price float64) Event {
	return Event{Name: EventServicePriceUpdated, Data: ServicePriceUpdate{ID: id, Price: price}}
}

// NewSettingUpdated builds the broadcast event for a setting upsert.
func NewSettingUpdated(key, value string) Event {
	return Event{Name: EventSettingUpdated, Data: SettingUpdate{Key: key, Value: value}}
}
