package ledger

import (
	"sort"
	"sync"
	"time"
)

// Assignment records who is working on an entry.
type Assignment struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	StartedAt time.Time `json:"started_at"`
}

// Conflict is an entry another user already holds.
type Conflict struct {
	Entry  Identity   `json:"entry"`
	Holder Assignment `json:"holder"`
}

// StartAllReport itemizes a bulk start.
type StartAllReport struct {
	Started         []Identity `json:"started"`
	AlreadyComplete []Identity `json:"already_complete"`
	Conflicts       []Conflict `json:"conflicts"`
	Missing         []Identity `json:"missing,omitempty"`
}

// WorkerTracker holds at most one assignment per entry. Start and Stop are
// check-then-act, so every access goes through mu.
type WorkerTracker struct {
	mu          sync.Mutex
	assignments map[Identity]Assignment
	clock       Clock
}

// NewWorkerTracker creates an empty tracker.
func NewWorkerTracker(clock Clock) *WorkerTracker {
	return &WorkerTracker{
		assignments: make(map[Identity]Assignment),
		clock:       clock,
	}
}

// Start assigns id to actor. Restarting by the current holder keeps the
// original assignment; any other user gets an AlreadyAssignedError.
func (t *WorkerTracker) Start(id Identity, actor Actor) (Assignment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(id, actor)
}

func (t *WorkerTracker) startLocked(id Identity, actor Actor) (Assignment, error) {
	if held, ok := t.assignments[id]; ok {
		if held.UserID == actor.UserID {
			return held, nil
		}
		return Assignment{}, &AlreadyAssignedError{Entry: id, Holder: held}
	}
	a := Assignment{
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		StartedAt: t.clock.now(),
	}
	t.assignments[id] = a
	return a, nil
}

// Stop releases id. A nil actor is an administrative reset and always
// succeeds; otherwise only the holder may stop. Stopping an idle entry is a
// no-op.
func (t *WorkerTracker) Stop(id Identity, actor *Actor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.assignments[id]
	if !ok {
		return nil
	}
	if actor != nil && held.UserID != actor.UserID {
		return &AlreadyAssignedError{Entry: id, Holder: held}
	}
	delete(t.assignments, id)
	return nil
}

// StartAll attempts each entry independently. Complete entries are never
// assigned in bulk and conflicts do not block the others.
func (t *WorkerTracker) StartAll(entries []Entry, actor Actor) StartAllReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	var report StartAllReport
	for _, e := range entries {
		if e.IsComplete() {
			report.AlreadyComplete = append(report.AlreadyComplete, e.Identity)
			continue
		}
		if _, err := t.startLocked(e.Identity, actor); err != nil {
			held := t.assignments[e.Identity]
			report.Conflicts = append(report.Conflicts, Conflict{Entry: e.Identity, Holder: held})
			continue
		}
		report.Started = append(report.Started, e.Identity)
	}
	return report
}

// Release drops any assignment for id.
func (t *WorkerTracker) Release(id Identity) {
	t.mu.Lock()
	delete(t.assignments, id)
	t.mu.Unlock()
}

// Rekey moves an assignment after a rename.
func (t *WorkerTracker) Rekey(from, to Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.assignments[from]; ok {
		delete(t.assignments, from)
		t.assignments[to] = a
	}
}

// AssignmentOf returns the current holder of id.
func (t *WorkerTracker) AssignmentOf(id Identity) (Assignment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.assignments[id]
	return a, ok
}

// WorkerEntry pairs an entry with its assignment.
type WorkerEntry struct {
	Entry      Identity   `json:"entry"`
	Assignment Assignment `json:"assignment"`
}

// Assignments returns a snapshot sorted by start time.
func (t *WorkerTracker) Assignments() []WorkerEntry {
	t.mu.Lock()
	out := make([]WorkerEntry, 0, len(t.assignments))
	for id, a := range t.assignments {
		out = append(out, WorkerEntry{Entry: id, Assignment: a})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Assignment.StartedAt.Equal(out[j].Assignment.StartedAt) {
			return out[i].Assignment.StartedAt.Before(out[j].Assignment.StartedAt)
		}
		return out[i].Entry.String() < out[j].Entry.String()
	})
	return out
}
