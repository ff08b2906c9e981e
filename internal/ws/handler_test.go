package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/hub"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

type fixture struct {
	hub *hub.Hub
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := hub.NewHub(context.Background(), zap.NewNop(), hub.Config{})
	srv := httptest.NewServer(Handler(h, Options{PingInterval: time.Second}, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return &fixture{hub: h, srv: srv}
}

func (f *fixture) dial(t *testing.T, roomID, name string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?roomId=" + roomID + "&displayName=" + name
	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readAction(t *testing.T, conn *websocket.Conn) types.Action {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	a, err := types.DecodeFrame(data)
	require.NoError(t, err)
	return a
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want types.ActionType) types.Action {
	t.Helper()
	for {
		if a := readAction(t, conn); a.Type == want {
			return a
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestHandler_UnknownRoomClosesWith4004(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "does-not-exist", "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(types.CloseRoomNotFound), websocket.CloseStatus(err))
}

func TestHandler_RelaysToOthersOnly(t *testing.T) {
	f := newFixture(t)
	id, err := f.hub.CreateRoom(context.Background())
	require.NoError(t, err)

	a := f.dial(t, id, "alice")
	welcome := readAction(t, a)
	require.Equal(t, types.ActionRoomWelcome, welcome.Type)

	b := f.dial(t, id, "bob")
	readUntil(t, b, types.ActionRoomWelcome)
	joined := readUntil(t, a, types.ActionUserJoined)
	p, err := types.DecodePayload[types.UserPresencePayload](joined)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.DisplayName)

	write(t, a, `{"type":"DELETE_DRAWING","payload":{"drawingId":"t1"}}`)
	got := readAction(t, b)
	assert.Equal(t, types.ActionDeleteDrawing, got.Type)

	// Sender hears nothing back.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err = a.Read(ctx)
	assert.Error(t, err)
}

func TestHandler_MalformedFramesAreDropped(t *testing.T) {
	f := newFixture(t)
	id, err := f.hub.CreateRoom(context.Background())
	require.NoError(t, err)

	a := f.dial(t, id, "alice")
	readAction(t, a)
	b := f.dial(t, id, "bob")
	readAction(t, b)

	write(t, a, `not json`)
	write(t, a, `{"type":"ADD_DRAWING","payload":{"drawing":{"id":"x","type":"Circle","points":[]}}}`)
	write(t, a, `{"type":"ROOM_WELCOME","payload":{"participantId":"spoof","isHost":true,"activeUsers":[]}}`)
	write(t, a, `{"type":"SELECT_CHART","payload":{"product":{"symbol":"BTC-USD","name":"BTCUSD","exchange":"coinbase"},"timeframe":"5m"}}`)

	// Only the valid frame arrives, and the connection survived the bad ones.
	got := readAction(t, b)
	assert.Equal(t, types.ActionSelectChart, got.Type)
}

func TestHandler_DisconnectAnnouncesLeave(t *testing.T) {
	f := newFixture(t)
	id, err := f.hub.CreateRoom(context.Background())
	require.NoError(t, err)

	a := f.dial(t, id, "alice")
	readAction(t, a)
	b := f.dial(t, id, "bob")
	readAction(t, b)

	require.NoError(t, a.Close(websocket.StatusNormalClosure, "bye"))

	left := readUntil(t, b, types.ActionUserLeft)
	p, err := types.DecodePayload[types.UserPresencePayload](left)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.DisplayName)
	assert.Equal(t, 1, p.NumActiveUsers)

	changed := readUntil(t, b, types.ActionHostChanged)
	hp, err := types.DecodePayload[types.HostChangedPayload](changed)
	require.NoError(t, err)
	assert.Equal(t, "bob", hp.DisplayName)
}
