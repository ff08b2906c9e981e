package room

import (
	"github.com/google/uuid"
)

const DefaultQueueSize = 64

// Participant is one connection's membership in a room. The room goroutine is the
// only producer on the outbound queue and closes it when the participant leaves;
// the connection's writer goroutine is the only consumer.
type Participant struct {
	ID          string
	DisplayName string

	out     chan []byte
	dropped int
}

func NewParticipant(displayName string, queueSize int) *Participant {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Participant{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		out:         make(chan []byte, queueSize),
	}
}

// Outbox is drained by the connection writer. It is closed once the participant
// has left the room or the room has shut down.
func (p *Participant) Outbox() <-chan []byte { return p.out }

// enqueue never blocks: when the queue is full the oldest frame is discarded.
// Reports whether something was dropped.
func (p *Participant) enqueue(frame []byte) bool {
	dropped := false
	for {
		select {
		case p.out <- frame:
			return dropped
		default:
		}
		select {
		case <-p.out:
			p.dropped++
			dropped = true
		default:
		}
	}
}
