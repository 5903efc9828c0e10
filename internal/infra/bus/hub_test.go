package bus

import (
	"encoding/json"
	"testing"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/infra/observability"

	"go.uber.org/zap"
)

func newTestHub() *Hub {
	return NewHub(observability.NewMetrics(), zap.NewNop())
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := newTestHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(domain.NewTransactionDeleted("tx-9"))

	for name, sub := range map[string]*Subscriber{"a": a, "b": b} {
		select {
		case frame := <-sub.C():
			var ev domain.WireEvent
			if err := json.Unmarshal(frame, &ev); err != nil {
				t.Fatalf("subscriber %s: bad frame: %v", name, err)
			}
			if ev.Name != domain.EventTransactionDeleted {
				t.Errorf("subscriber %s: event = %q", name, ev.Name)
			}
			var id string
			if err := json.Unmarshal(ev.Data, &id); err != nil || id != "tx-9" {
				t.Errorf("subscriber %s: data = %s", name, ev.Data)
			}
		default:
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	h.Publish(domain.NewSettingUpdated("simplesNacionalRate", "6"))
	h.Publish(domain.NewSettingUpdated("simplesNacionalRate", "7"))
	h.Publish(domain.NewSettingUpdated("simplesNacionalRate", "8"))

	want := []string{"6", "7", "8"}
	for i, expected := range want {
		frame := <-sub.C()
		var ev domain.WireEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		var upd domain.SettingUpdate
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			t.Fatalf("frame %d payload: %v", i, err)
		}
		if upd.Value != expected {
			t.Errorf("frame %d: value = %q, want %q", i, upd.Value, expected)
		}
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	// Nobody drains the subscriber, so everything past the buffer is
	// discarded and Publish still returns promptly.
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(domain.NewTransactionDeleted("tx"))
	}

	if got := len(sub.ch); got != subscriberBuffer {
		t.Errorf("buffered frames = %d, want %d", got, subscriberBuffer)
	}
}

func TestUnsubscribeClosesStreamOnce(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe()

	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // repeat must not panic

	if _, open := <-sub.C(); open {
		t.Error("stream still open after unsubscribe")
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d after unsubscribe", h.Len())
	}

	// Publishing with no subscribers is a no-op.
	h.Publish(domain.NewTransactionDeleted("tx"))
}
