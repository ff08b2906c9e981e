package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/cache"
	"github.com/DoyleJ11/chart-collab-backend/internal/client"
	"github.com/DoyleJ11/chart-collab-backend/internal/collab"
	"github.com/DoyleJ11/chart-collab-backend/internal/config"
	"github.com/DoyleJ11/chart-collab-backend/internal/engine"
	"github.com/DoyleJ11/chart-collab-backend/internal/logging"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

// A headless participant: joins (or creates) a room, mirrors its drawings into
// the local cache and logs every change until interrupted.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.ParseClientFlags(os.Args[1:])
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	dc, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer dc.Close()

	store := client.NewStore(client.Options{
		SettleDelay: cfg.SyncSettleDelay,
		Cache:       dc,
	}, log)
	defer store.Close()

	var (
		mu   sync.Mutex
		last engine.State
	)
	store.OnChange(func(st engine.State) {
		mu.Lock()
		defer mu.Unlock()
		logChange(log, last, st)
		last = st
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := client.JoinOptions{
		ServerURL:   cfg.ServerURL,
		RoomID:      cfg.RoomID,
		DisplayName: cfg.DisplayName,
		Policy: collab.Policy{
			Base:       cfg.ReconnectBase,
			Cap:        cfg.ReconnectCap,
			MaxRetries: cfg.ReconnectMaxRetries,
		},
	}
	if opts.RoomID == "" {
		id, err := store.CreateRoom(ctx, opts)
		if err != nil {
			return err
		}
		log.Info("created room, share this id", zap.String("room", id))
	} else if err := store.JoinRoom(ctx, opts); err != nil {
		return err
	}

	conn := store.Conn()
	select {
	case <-ctx.Done():
		log.Info("interrupted, leaving room")
		return nil
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			if errors.Is(err, collab.ErrRoomNotFound) {
				return fmt.Errorf("room %s does not exist", cfg.RoomID)
			}
			return err
		}
		return nil
	}
}

// logChange reports the parts of the state a headless participant cares about.
func logChange(log *zap.Logger, prev, st engine.State) {
	if prev.Collaboration.Status != st.Collaboration.Status {
		log.Info("connection", zap.String("status", string(st.Collaboration.Status)))
	}
	if prev.Collaboration.IsHost != st.Collaboration.IsHost && st.Collaboration.IsHost {
		log.Info("now hosting the room")
	}
	if len(prev.Collaboration.ActiveUsers) != len(st.Collaboration.ActiveUsers) {
		log.Info("participants", zap.Strings("users", st.Collaboration.ActiveUsers))
	}
	if prev.Chart.ID != st.Chart.ID {
		log.Info("chart", zap.String("id", st.Chart.ID), zap.String("timeframe", string(st.Chart.Timeframe)))
	}
	prevLive, live := prev.Chart.LiveDrawings(), st.Chart.LiveDrawings()
	if len(prevLive) != len(live) {
		ids := make([]string, len(live))
		for i, d := range live {
			ids[i] = d.ID
		}
		log.Info("drawings", zap.Strings("ids", ids), zap.String("chart", st.Chart.ID))
	}
	if st.Collaboration.Status == types.StatusError && prev.Collaboration.Status != types.StatusError {
		log.Warn("collaboration connection failed")
	}
}
