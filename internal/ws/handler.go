package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/hub"
	"github.com/DoyleJ11/chart-collab-backend/internal/room"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string
	QueueSize      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	// ReadLimit caps one inbound frame. Full-state syncs carry every drawing.
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = room.DefaultQueueSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Handler upgrades GET /rooms/join?roomId=&displayName= and pumps frames between
// the socket and the room until either side goes away.
func Handler(h *hub.Hub, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("roomId")
		if roomID == "" {
			http.Error(w, "missing roomId", http.StatusBadRequest)
			return
		}
		displayName := r.URL.Query().Get("displayName")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Warn("accept failed", zap.String("room", roomID), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		p := room.NewParticipant(displayName, opts.QueueSize)
		rm, _, err := h.Join(ctx, roomID, p)
		if errors.Is(err, hub.ErrRoomNotFound) {
			log.Info("join for unknown room", zap.String("room", roomID))
			conn.Close(websocket.StatusCode(types.CloseRoomNotFound), "room not found")
			return
		}
		if err != nil {
			log.Error("join failed", zap.String("room", roomID), zap.Error(err))
			conn.Close(websocket.StatusInternalError, "join failed")
			return
		}
		clog := log.With(zap.String("room", roomID), zap.String("participant", p.ID))

		defer func() {
			// The request context is likely done already; leave must still reach the room.
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer leaveCancel()
			if err := rm.Leave(leaveCtx, p.ID); err != nil && !errors.Is(err, room.ErrClosed) {
				clog.Warn("leave failed", zap.Error(err))
			}
		}()

		// Writer goroutine
		go func() {
			defer cancel()
			for frame := range p.Outbox() {
				wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, frame)
				wcancel()
				if err != nil {
					clog.Debug("write failed, closing", zap.Error(err))
					return
				}
			}
			// Outbox closed: the room removed us or shut down.
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		// Keepalive
		go func() {
			t := time.NewTicker(opts.PingInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					pctx, pcancel := context.WithTimeout(ctx, opts.PingInterval)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						clog.Debug("ping failed, closing", zap.Error(err))
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("client closed")
				default:
					if ctx.Err() == nil {
						clog.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			a, err := types.DecodeFrame(data)
			if err != nil {
				clog.Warn("dropping malformed frame", zap.Error(err))
				continue
			}
			if !a.Type.IsRelayable() {
				clog.Warn("dropping non-relayable frame", zap.String("type", string(a.Type)))
				continue
			}

			if err := rm.Broadcast(ctx, p.ID, data); err != nil {
				if !errors.Is(err, room.ErrClosed) && ctx.Err() == nil {
					clog.Warn("broadcast failed", zap.Error(err))
				}
				return
			}
		}
	}
}
