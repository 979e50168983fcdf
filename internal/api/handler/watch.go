package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/godseye3002/godseye/internal/api/response"
	"github.com/godseye3002/godseye/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const watchWriteTimeout = 10 * time.Second

// ProgressSubscriber defines the subscription surface the watch handler
// depends on. Subscribe delivers the cached snapshot immediately (when one
// exists) and every subsequent change until the returned unsubscribe
// function is called.
type ProgressSubscriber interface {
	Subscribe(ctx context.Context, productID uuid.UUID, engine string, onUpdate func(models.ProgressSnapshot)) func()
}

// NewWatchProgressHandler returns the handler for
// GET /api/v1/products/{productID}/progress/watch. It upgrades the request
// to a websocket and streams progress snapshots until the run completes or
// the client disconnects.
func NewWatchProgressHandler(broadcaster ProgressSubscriber, engines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, ok := parseProductID(w, r)
		if !ok {
			return
		}
		engine := r.URL.Query().Get("engine")
		if !validEngine(engine, engines) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "engine must be one of the configured engines", nil)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			slog.Warn("websocket upgrade failed", "error", err, "product_id", productID)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Snapshots are pushed from broadcaster goroutines; a single writer
		// drains the channel so the connection never sees concurrent writes.
		updates := make(chan models.ProgressSnapshot, 16)
		unsubscribe := broadcaster.Subscribe(ctx, productID, engine, func(snap models.ProgressSnapshot) {
			select {
			case updates <- snap:
			default:
			}
		})
		defer unsubscribe()

		// Drain reads so close frames are processed.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
				if snap.Terminal() {
					conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"))
					return
				}
			}
		}
	}
}
