package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/service/status"
	ws "plantwatch/internal/service/websocket"
)

const greetingWait = 5 * time.Second

// Upgrader upgrades HTTP connections to WebSocket. Origins are checked by the CORS middleware.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler greets a viewer with the current status, then
// registers it in the hub to receive one message per published frame.
func ViewWebsocketHandler(hub *ws.HubService, store *status.Store, loop LoopReporter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		// The hub owns writes once the viewer is registered.
		if snap := store.Snapshot(); snap.Ready() {
			conn.SetWriteDeadline(time.Now().Add(greetingWait))
			if err := conn.WriteJSON(liveStatus(snap, loop)); err != nil {
				logger.Warning("Viewer greeting failed: %v", err)
				conn.Close()
				return
			}
		}
		if !hub.Register(conn) {
			return
		}
		defer hub.Unregister(conn)

		logger.Info("Viewer connected from %s", r.RemoteAddr)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}

func liveStatus(snap status.Snapshot, loop LoopReporter) dto.LiveStatus {
	return dto.LiveStatus{
		Status:      snap.Summary.Status,
		Confidence:  snap.Summary.Confidence,
		ObjectCount: snap.Summary.ObjectCount,
		AvgFPS:      math.Round(snap.FPS*100) / 100,
		Timestamp:   unixSeconds(snap.Timestamp),
		Seq:         snap.Seq,
		LoopState:   loop.State().String(),
	}
}
