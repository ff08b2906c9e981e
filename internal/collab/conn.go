package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

var (
	ErrConnection         = errors.New("collab connection error")
	ErrMaxRetriesExceeded = errors.New("max reconnect attempts exceeded")
	ErrRoomNotFound       = types.ErrRoomNotFound
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 3 * time.Second
	sendQueue    = 64
	readLimit    = 1 << 20
)

type Options struct {
	// ServerURL is the http(s) base of the collaboration server.
	ServerURL   string
	RoomID      string
	DisplayName string
	Policy      Policy

	// OnAction receives every valid inbound action, on the connection goroutine.
	OnAction func(types.Action)
	// OnStatus receives every status transition, on the connection goroutine.
	OnStatus func(types.ConnectionState)

	HTTPClient *http.Client
}

// Conn is a client connection to one room. A single goroutine owns dialing,
// reading and reconnecting; Send and Disconnect may be called from anywhere.
type Conn struct {
	url  string
	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	done   chan struct{}

	mu    sync.Mutex
	ws    *websocket.Conn
	out   chan []byte // nil unless open
	state types.ConnectionState
	err   error
}

// JoinURL builds the socket URL for roomID on an http(s) or ws(s) server base.
func JoinURL(serverURL, roomID, displayName string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u = u.JoinPath("rooms", "join")
	q := url.Values{}
	q.Set("roomId", roomID)
	q.Set("displayName", displayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect is New followed by Start.
func Connect(parent context.Context, opts Options, log *zap.Logger) (*Conn, error) {
	c, err := New(parent, opts, log)
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// New prepares a connection to a room without dialing. No callback runs before
// Start.
func New(parent context.Context, opts Options, log *zap.Logger) (*Conn, error) {
	if opts.RoomID == "" {
		return nil, errors.New("room id required")
	}
	u, err := JoinURL(opts.ServerURL, opts.RoomID, opts.DisplayName)
	if err != nil {
		return nil, err
	}
	opts.Policy = opts.Policy.withDefaults()
	if opts.OnAction == nil {
		opts.OnAction = func(types.Action) {}
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(types.ConnectionState) {}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Conn{
		url:    u,
		opts:   opts,
		log:    log.Named("collab").With(zap.String("room", opts.RoomID)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  types.ConnectionState{Status: types.StatusDisconnected},
	}
	return c, nil
}

// Start begins connecting in the background and returns immediately. Progress
// is reported through Options.OnStatus. Only the first call has an effect.
func (c *Conn) Start() {
	c.start.Do(func() { go c.run() })
}

func (c *Conn) RoomID() string { return c.opts.RoomID }

// Status returns the latest reported state.
func (c *Conn) Status() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the terminal error once Done is closed; nil after Disconnect.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection has stopped for good.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send queues a for the server without blocking. It reports false, dropping the
// action, unless the socket is open. Nothing is kept for a later reconnect.
func (c *Conn) Send(a types.Action) bool {
	frame, err := a.Encode()
	if err != nil {
		c.log.Warn("encode outbound action", zap.String("type", string(a.Type)), zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.log.Warn("send queue full, dropping action", zap.String("type", string(a.Type)))
		return false
	}
}

// Disconnect closes the socket with a normal closure and stops reconnecting.
// It waits for the connection goroutine to finish. A Conn that was never
// started is simply marked done.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.cancel()
	ws := c.ws
	c.mu.Unlock()

	c.start.Do(func() { close(c.done) })
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "user disconnected")
	}
	<-c.done
}

func (c *Conn) run() {
	defer close(c.done)

	bo := c.opts.Policy.NewBackOff()
	attempts := 0
	c.setState(types.ConnectionState{Status: types.StatusConnecting})

	for {
		err := c.session(func() {
			bo.Reset()
			attempts = 0
		})

		if c.ctx.Err() != nil {
			c.finish(types.ConnectionState{Status: types.StatusDisconnected}, nil)
			return
		}
		if errors.Is(err, ErrRoomNotFound) {
			c.log.Warn("room not found, giving up")
			c.finish(types.ConnectionState{Status: types.StatusError, ReconnectAttempts: attempts, Error: err.Error()}, err)
			return
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			err = fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
			c.log.Warn("giving up", zap.Int("attempts", attempts), zap.Error(err))
			c.finish(types.ConnectionState{Status: types.StatusError, ReconnectAttempts: attempts, Error: err.Error()}, err)
			return
		}
		attempts++
		c.log.Info("reconnecting", zap.Int("attempt", attempts), zap.Duration("delay", wait), zap.Error(err))
		c.setState(types.ConnectionState{Status: types.StatusReconnecting, ReconnectAttempts: attempts, Error: err.Error()})

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-c.ctx.Done():
			t.Stop()
			c.finish(types.ConnectionState{Status: types.StatusDisconnected}, nil)
			return
		}
	}
}

// session dials once and pumps frames until the socket fails. onOpen runs once
// the socket is open.
func (c *Conn) session(onOpen func()) error {
	dctx, dcancel := context.WithTimeout(c.ctx, dialTimeout)
	ws, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{HTTPClient: c.opts.HTTPClient})
	dcancel()
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrConnection, err)
	}
	ws.SetReadLimit(readLimit)

	sctx, scancel := context.WithCancel(context.Background())
	defer scancel()

	out := make(chan []byte, sendQueue)
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "user disconnected")
		return c.ctx.Err()
	}
	c.ws, c.out = ws, out
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws, c.out = nil, nil
		c.mu.Unlock()
		ws.CloseNow()
	}()

	onOpen()
	c.log.Info("connected")
	c.setState(types.ConnectionState{Status: types.StatusConnected})

	// Writer goroutine
	go func() {
		for {
			select {
			case <-sctx.Done():
				return
			case frame := <-out:
				wctx, wcancel := context.WithTimeout(sctx, writeTimeout)
				err := ws.Write(wctx, websocket.MessageText, frame)
				wcancel()
				if err != nil {
					c.log.Debug("write failed", zap.Error(err))
					scancel()
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, data, err := ws.Read(sctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusCode(types.CloseRoomNotFound) {
				return fmt.Errorf("%w: %s", ErrRoomNotFound, c.opts.RoomID)
			}
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}

		a, err := types.DecodeFrame(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.opts.OnAction(a)
	}
}

func (c *Conn) setState(s types.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.opts.OnStatus(s)
}

func (c *Conn) finish(s types.ConnectionState, err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.setState(s)
}
