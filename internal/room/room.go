package room

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

var ErrClosed = errors.New("room closed")

const DefaultIdleTimeout = 5 * time.Minute

type Msg interface{ isRoomMsg() }

type Join struct {
	Participant *Participant
	Reply       chan View
}

func (Join) isRoomMsg() {}

type Leave struct {
	ParticipantID string
	Reply         chan struct{}
}

func (Leave) isRoomMsg() {}

// Broadcast fans Frame out to everyone but the sender.
type Broadcast struct {
	SenderID string
	Frame    []byte
}

func (Broadcast) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type ParticipantInfo struct {
	ID          string `json:"-"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

type View struct {
	RoomID       string
	HostID       string
	Participants []ParticipantInfo // join order
}

func (v View) NumParticipants() int { return len(v.Participants) }

func (v View) DisplayNames() []string {
	names := make([]string, len(v.Participants))
	for i, p := range v.Participants {
		names[i] = p.DisplayName
	}
	return names
}

type Options struct {
	// IdleTimeout reaps a room nobody ever joined.
	IdleTimeout time.Duration
}

// Room is one collaboration session. All membership state is owned by the loop
// goroutine; other goroutines talk to it through the inbox.
type Room struct {
	id      string
	inbox   chan Msg
	members map[string]*Participant
	order   []string
	hostID  string
	joined  bool
	opts    Options
	onEmpty func(id string, r *Room)
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRoom starts the room loop. onEmpty is called from the loop when the last
// participant leaves or the idle timeout fires; the room stops right after.
func NewRoom(parent context.Context, id string, opts Options, onEmpty func(id string, r *Room), log *zap.Logger) *Room {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		members: make(map[string]*Participant),
		opts:    opts,
		onEmpty: onEmpty,
		log:     log.With(zap.String("room", id)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// Shutdown stops the room without reporting it empty.
func (r *Room) Shutdown() { r.cancel() }

func (r *Room) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, r *Room, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		// The loop may have replied right before stopping.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Join registers p. The first participant a room ever sees becomes its host.
func (r *Room) Join(ctx context.Context, p *Participant) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, Join{Participant: p, Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

func (r *Room) Leave(ctx context.Context, participantID string) error {
	reply := make(chan struct{}, 1)
	if err := r.send(ctx, Leave{ParticipantID: participantID, Reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, r, reply)
	return err
}

// Broadcast is fire-and-forget; it only waits for the frame to reach the inbox.
func (r *Room) Broadcast(ctx context.Context, senderID string, frame []byte) error {
	return r.send(ctx, Broadcast{SenderID: senderID, Frame: frame})
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

func (r *Room) loop() {
	defer close(r.done)

	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()
	idleC := idle.C

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-idleC:
			r.log.Info("room never joined, reaping")
			r.onEmpty(r.id, r)
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				if !r.joined {
					r.joined = true
					r.hostID = msg.Participant.ID
					idle.Stop()
					idleC = nil
				}
				r.join(msg.Participant)
				msg.Reply <- r.view()

			case Leave:
				empty := r.leave(msg.ParticipantID)
				if empty {
					r.log.Info("room empty, cleaning up")
				}
				if msg.Reply != nil {
					msg.Reply <- struct{}{}
				}
				if empty {
					r.onEmpty(r.id, r)
					r.cancel()
					return
				}

			case Broadcast:
				if _, ok := r.members[msg.SenderID]; !ok {
					// Sender already left; its frames are stale.
					break
				}
				r.broadcast(msg.Frame, msg.SenderID)

			case GetState:
				msg.Reply <- r.view()
			}
		}
	}
}

func (r *Room) join(p *Participant) {
	r.members[p.ID] = p
	r.order = append(r.order, p.ID)
	v := r.view()

	r.deliver(p, types.ActionRoomWelcome, types.WelcomePayload{
		ParticipantID: p.ID,
		IsHost:        p.ID == r.hostID,
		ActiveUsers:   v.DisplayNames(),
	})
	r.emit(types.ActionUserJoined, types.UserPresencePayload{
		DisplayName:    p.DisplayName,
		NumActiveUsers: len(r.members),
	}, p.ID)

	r.log.Info("user joined",
		zap.String("participant", p.ID),
		zap.String("display_name", p.DisplayName),
		zap.Bool("host", p.ID == r.hostID),
		zap.Int("total", len(r.members)))
}

// leave removes the participant, promoting a new host if needed. Reports whether
// the room is now empty.
func (r *Room) leave(id string) bool {
	p, ok := r.members[id]
	if !ok {
		return false
	}
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(o string) bool { return o == id })
	close(p.out)

	r.log.Info("user left",
		zap.String("participant", id),
		zap.String("display_name", p.DisplayName),
		zap.Int("total", len(r.members)),
		zap.Int("dropped_frames", p.dropped))

	if len(r.members) == 0 {
		return true
	}

	r.emit(types.ActionUserLeft, types.UserPresencePayload{
		DisplayName:    p.DisplayName,
		NumActiveUsers: len(r.members),
	}, "")

	if id == r.hostID {
		next := r.members[r.order[0]]
		r.hostID = next.ID
		r.log.Info("host migrated", zap.String("participant", next.ID), zap.String("display_name", next.DisplayName))
		r.emit(types.ActionHostChanged, types.HostChangedPayload{
			ParticipantID: next.ID,
			DisplayName:   next.DisplayName,
		}, "")
	}
	return false
}

// emit encodes a server-originated action and fans it out, skipping exceptID.
func (r *Room) emit(t types.ActionType, payload any, exceptID string) {
	frame, err := encode(t, payload)
	if err != nil {
		r.log.Error("encode action", zap.String("type", string(t)), zap.Error(err))
		return
	}
	r.broadcast(frame, exceptID)
}

func (r *Room) deliver(p *Participant, t types.ActionType, payload any) {
	frame, err := encode(t, payload)
	if err != nil {
		r.log.Error("encode action", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if p.enqueue(frame) {
		r.log.Warn("outbound queue full, dropped oldest frame", zap.String("participant", p.ID))
	}
}

func (r *Room) broadcast(frame []byte, exceptID string) {
	for _, id := range r.order {
		if id == exceptID {
			continue
		}
		p := r.members[id]
		if p.enqueue(frame) {
			r.log.Warn("outbound queue full, dropped oldest frame", zap.String("participant", id))
		}
	}
}

func (r *Room) view() View {
	v := View{RoomID: r.id, HostID: r.hostID, Participants: make([]ParticipantInfo, 0, len(r.order))}
	for _, id := range r.order {
		p := r.members[id]
		v.Participants = append(v.Participants, ParticipantInfo{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			IsHost:      p.ID == r.hostID,
		})
	}
	return v
}

func (r *Room) shutdown() {
	for id, p := range r.members {
		close(p.out) // tell the writer no more frames
		delete(r.members, id)
	}
	r.order = nil
	r.cancel()
}

func encode(t types.ActionType, payload any) ([]byte, error) {
	a, err := types.NewAction(t, payload)
	if err != nil {
		return nil, err
	}
	return a.Encode()
}
