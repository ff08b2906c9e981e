package hub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/room"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

var ErrRoomNotFound = types.ErrRoomNotFound
var ErrHubClosed = errors.New("hub closed")

// maxIDAttempts bounds collision retries when generating room ids.
const maxIDAttempts = 8

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Reply chan Created
}

type Created struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// RemoveRoom is sent by a room when it empties. Room guards against removing a
// newer room registered under the same id.
type RemoveRoom struct {
	ID   string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Room room.Options
	// NewID generates room identifiers. Defaults to GenerateRoomID.
	NewID func() (string, error)
}

// Hub is the room registry, the only process-wide state. It owns the id -> room
// mapping from a single goroutine.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, log *zap.Logger, cfg Config) *Hub {
	if cfg.NewID == nil {
		cfg.NewID = GenerateRoomID
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    log.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

// GenerateRoomID returns 128 random bits, hex encoded.
func GenerateRoomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				id, err := h.uniqueID()
				if err != nil {
					msg.Reply <- Created{Err: err}
					break
				}
				rm := room.NewRoom(h.ctx, id, h.cfg.Room, h.removeRoom, h.log.Named("room"))
				h.rooms[id] = rm
				h.log.Info("created room", zap.String("room", id), zap.Int("rooms", len(h.rooms)))
				msg.Reply <- Created{Room: rm}

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case RemoveRoom:
				if h.rooms[msg.ID] == msg.Room {
					delete(h.rooms, msg.ID)
					h.log.Info("removed room", zap.String("room", msg.ID), zap.Int("rooms", len(h.rooms)))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) uniqueID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := h.cfg.NewID()
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := h.rooms[id]; !taken {
			return id, nil
		}
		h.log.Warn("collision on room id, regenerating", zap.String("room", id))
	}
	return "", errors.New("generate room id: too many collisions")
}

// removeRoom runs on the room's goroutine.
func (h *Hub) removeRoom(id string, rm *room.Room) {
	select {
	case h.inbox <- RemoveRoom{ID: id, Room: rm}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Shutdown()
	}
	clear(h.rooms)
	h.cancel()
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// CreateRoom registers an empty room and returns its id.
func (h *Hub) CreateRoom(ctx context.Context) (string, error) {
	reply := make(chan Created, 1)
	if err := h.send(ctx, CreateRoom{Reply: reply}); err != nil {
		return "", err
	}
	c, err := recv(ctx, h, reply)
	if err != nil {
		return "", err
	}
	if c.Err != nil {
		return "", c.Err
	}
	return c.Room.ID(), nil
}

// Room looks up a live room.
func (h *Hub) Room(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	rm, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return rm, nil
}

// Join adds p to the room. A room that closed between lookup and join is
// reported as not found.
func (h *Hub) Join(ctx context.Context, roomID string, p *room.Participant) (*room.Room, room.View, error) {
	rm, err := h.Room(ctx, roomID)
	if err != nil {
		return nil, room.View{}, err
	}
	view, err := rm.Join(ctx, p)
	if errors.Is(err, room.ErrClosed) {
		return nil, room.View{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, room.View{}, err
	}
	return rm, view, nil
}

func (h *Hub) Leave(ctx context.Context, roomID, participantID string) error {
	rm, err := h.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if err := rm.Leave(ctx, participantID); err != nil && !errors.Is(err, room.ErrClosed) {
		return err
	}
	return nil
}

func (h *Hub) Broadcast(ctx context.Context, roomID, senderID string, frame []byte) error {
	rm, err := h.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if err := rm.Broadcast(ctx, senderID, frame); errors.Is(err, room.ErrClosed) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	} else if err != nil {
		return err
	}
	return nil
}

func (h *Hub) View(ctx context.Context, roomID string) (room.View, error) {
	rm, err := h.Room(ctx, roomID)
	if err != nil {
		return room.View{}, err
	}
	v, err := rm.View(ctx)
	if errors.Is(err, room.ErrClosed) {
		return room.View{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return v, err
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountRooms{Reply: reply}); err != nil {
		return 0, err
	}
	return recv(ctx, h, reply)
}

// Shutdown stops every room and the registry. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}
