package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/collab"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

type JoinOptions struct {
	ServerURL   string
	RoomID      string
	DisplayName string
	Policy      collab.Policy
	HTTPClient  *http.Client
}

type CreatedRoom struct {
	RoomID string `json:"roomId"`
	URL    string `json:"url"`
}

// RequestRoom asks the server for a new empty room.
func RequestRoom(ctx context.Context, httpClient *http.Client, serverURL string) (CreatedRoom, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	u, err := url.JoinPath(serverURL, "rooms", "create")
	if err != nil {
		return CreatedRoom{}, fmt.Errorf("build create url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return CreatedRoom{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return CreatedRoom{}, fmt.Errorf("%w: create room: %v", collab.ErrConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CreatedRoom{}, fmt.Errorf("%w: create room: status %d", collab.ErrConnection, resp.StatusCode)
	}

	var out CreatedRoom
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatedRoom{}, fmt.Errorf("decode create room response: %w", err)
	}
	if out.RoomID == "" {
		return CreatedRoom{}, fmt.Errorf("create room: empty room id")
	}
	return out, nil
}

// CreateRoom creates a room on the server and joins it as host.
func (s *Store) CreateRoom(ctx context.Context, o JoinOptions) (string, error) {
	created, err := RequestRoom(ctx, o.HTTPClient, o.ServerURL)
	if err != nil {
		return "", err
	}
	o.RoomID = created.RoomID
	if err := s.connect(ctx, types.ActionCreateCollabRoom, o); err != nil {
		return "", err
	}
	return created.RoomID, nil
}

// JoinRoom joins an existing room as a guest. Connection progress is reflected
// in the collaboration status; a missing room ends in the error status.
func (s *Store) JoinRoom(ctx context.Context, o JoinOptions) error {
	return s.connect(ctx, types.ActionJoinCollabRoom, o)
}

func (s *Store) connect(ctx context.Context, t types.ActionType, o JoinOptions) error {
	s.LeaveRoom()
	s.Dispatch(types.MustAction(t, types.RoomPayload{RoomID: o.RoomID}))

	conn, err := collab.New(ctx, collab.Options{
		ServerURL:   o.ServerURL,
		RoomID:      o.RoomID,
		DisplayName: o.DisplayName,
		Policy:      o.Policy,
		OnAction:    s.Apply,
		OnStatus:    s.connectionStatus,
		HTTPClient:  o.HTTPClient,
	}, s.log)
	if err != nil {
		s.Dispatch(types.MustAction(types.ActionLeaveCollabRoom, nil))
		return err
	}

	// Published before the first callback can fire.
	s.mu.Lock()
	s.conn = conn
	s.sender = conn
	s.mu.Unlock()
	conn.Start()
	return nil
}

// LeaveRoom closes the room connection, if any, and resets collaboration state.
// It must not be called from an OnChange listener, which may run on the
// connection goroutine it waits for.
func (s *Store) LeaveRoom() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.sender = nil
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	s.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Disconnect()
	s.log.Info("left room", zap.String("room", conn.RoomID()))
	s.Dispatch(types.MustAction(types.ActionLeaveCollabRoom, nil))
}

// Conn exposes the live room connection, nil when not in a room.
func (s *Store) Conn() *collab.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Store) connectionStatus(cs types.ConnectionState) {
	s.Dispatch(types.MustAction(types.ActionSetConnectionStatus, types.ConnectionStatusPayload{Status: cs.Status}))
	if cs.Status == types.StatusError {
		s.Dispatch(types.MustAction(types.ActionEndLoading, nil))
	}
}
