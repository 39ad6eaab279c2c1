package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Plan is an ordered list of ops with one history event per op. Ops[i] and
// Events[i] always belong together so history can be appended for exactly the
// ops that applied.
type Plan struct {
	Ops    []UpdateOp
	Events []HistoryEvent
}

// Len returns the number of ops.
func (p Plan) Len() int {
	return len(p.Ops)
}

// Empty reports whether the plan has no ops.
func (p Plan) Empty() bool {
	return len(p.Ops) == 0
}

func (p *Plan) add(op UpdateOp, ev HistoryEvent) {
	p.Ops = append(p.Ops, op)
	p.Events = append(p.Events, ev)
}

// Append concatenates other after p.
func (p *Plan) Append(other Plan) {
	p.Ops = append(p.Ops, other.Ops...)
	p.Events = append(p.Events, other.Events...)
}

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func newEvent(clock Clock, id Identity, action Action, details string, actor Actor) HistoryEvent {
	return HistoryEvent{
		ID:        uuid.NewString(),
		Timestamp: clock.now(),
		Identity:  id,
		Action:    action,
		Details:   details,
		UserName:  actor.UserName,
	}
}
