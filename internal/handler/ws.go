package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/infra/bus"
	"github.com/donahelp/fluxo-sync-go/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Clients connect from file:// dashboards and LAN hosts, so origin
// checks are disabled like the rest of the API surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection and runs the sync session: every
// broadcast event flows out, and intents flowing in are applied as
// mutations. Intent failures are logged, never answered; the client
// learns the real state from the event stream or its next resync.
func wsHandler(svc *service.LedgerService, hub *bus.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := hub.Subscribe()
		logger.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

		go writePump(conn, sub, logger)
		readPump(r.Context(), conn, svc, logger)

		hub.Unsubscribe(sub)
		conn.Close()
		logger.Info("client disconnected", zap.String("remote_addr", r.RemoteAddr))
	}
}

// writePump forwards hub frames to the socket and keeps the connection
// alive with pings. It exits when the subscriber is closed or a write
// fails.
func writePump(conn *websocket.Conn, sub *bus.Subscriber, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-sub.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump applies incoming intents until the connection drops.
func readPump(ctx context.Context, conn *websocket.Conn, svc *service.LedgerService, logger *zap.Logger) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var ev domain.WireEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			logger.Warn("malformed intent frame", zap.Error(err))
			continue
		}
		dispatchIntent(ctx, svc, ev, logger)
	}
}

// dispatchIntent routes one client intent to the service. Unknown
// intents and failed mutations are logged and dropped.
func dispatchIntent(ctx context.Context, svc *service.LedgerService, ev domain.WireEvent, logger *zap.Logger) {
	switch ev.Name {
	case domain.IntentAddTransaction:
		var tx domain.Transaction
		if err := json.Unmarshal(ev.Data, &tx); err != nil {
			logger.Warn("bad addTransaction payload", zap.Error(err))
			return
		}
		if _, err := svc.AddTransaction(ctx, tx); err != nil {
			logger.Warn("addTransaction intent failed", zap.Error(err))
		}

	case domain.IntentDeleteTransaction:
		var id string
		if err := json.Unmarshal(ev.Data, &id); err != nil {
			logger.Warn("bad deleteTransaction payload", zap.Error(err))
			return
		}
		if err := svc.DeleteTransaction(ctx, id); err != nil {
			logger.Warn("deleteTransaction intent failed", zap.Error(err))
		}

	case domain.IntentUpdateServicePrice:
		var upd domain.ServicePriceUpdate
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			logger.Warn("bad updateServicePrice payload", zap.Error(err))
			return
		}
		if err := svc.UpdateServicePrice(ctx, upd.ID, upd.Price); err != nil {
			logger.Warn("updateServicePrice intent failed", zap.Error(err))
		}

	case domain.IntentUpdateSetting:
		var upd domain.SettingUpdate
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			logger.Warn("bad updateSetting payload", zap.Error(err))
			return
		}
		if err := svc.UpdateSetting(ctx, upd.Key, upd.Value); err != nil {
			logger.Warn("updateSetting intent failed", zap.Error(err))
		}

	default:
		logger.Warn("unknown intent", zap.String("event", ev.Name))
	}
}
