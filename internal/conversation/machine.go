// Package conversation holds the pending multi-step interaction of each
// caller: choosing a download category and confirming a deletion.
package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/plexmon/plexmon/internal/metrics"
)

// ErrSessionExpired is returned when a selection has no matching pending
// session, including one superseded by a newer command.
var ErrSessionExpired = errors.New("session expired")

// Step is the state a session is waiting in.
type Step int

const (
	AwaitingType Step = iota + 1
	AwaitingDeleteConfirmation
)

func (s Step) String() string {
	switch s {
	case AwaitingType:
		return "awaiting_type"
	case AwaitingDeleteConfirmation:
		return "awaiting_delete_confirmation"
	default:
		return "unknown"
	}
}

// Payload is the step-specific data of a session: AddPayload or
// DeletePayload.
type Payload interface {
	step() Step
}

// AddPayload is held while the caller picks a category.
type AddPayload struct {
	Magnet string
}

func (AddPayload) step() Step { return AwaitingType }

// DeletePayload is held while the caller confirms a deletion.
type DeletePayload struct {
	ID   string
	Name string
}

func (DeletePayload) step() Step { return AwaitingDeleteConfirmation }

// Session is one caller's pending interaction.
type Session struct {
	Caller    int64
	Payload   Payload
	CreatedAt time.Time
}

// Step returns the state implied by the payload.
func (s Session) Step() Step {
	return s.Payload.step()
}

// Machine maps callers to their single pending session. Starting a new
// session replaces any previous one for the same caller.
type Machine struct {
	mu       sync.Mutex
	sessions map[int64]Session
	now      func() time.Time
}

// NewMachine creates an empty machine.
func NewMachine() *Machine {
	return &Machine{
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

// StartAdd opens a category selection for magnet.
func (m *Machine) StartAdd(caller int64, magnet string) {
	m.start(caller, AddPayload{Magnet: magnet})
}

// StartDelete opens a delete confirmation for one download.
func (m *Machine) StartDelete(caller int64, id, name string) {
	m.start(caller, DeletePayload{ID: id, Name: name})
}

func (m *Machine) start(caller int64, p Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[caller] = Session{Caller: caller, Payload: p, CreatedAt: m.now()}
	metrics.SetConversationSessions(len(m.sessions))
}

// Pending returns the caller's session, if any.
func (m *Machine) Pending(caller int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[caller]
	return s, ok
}

// Len returns the number of pending sessions.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Resolve applies a selection. A selection for the wrong flow, or with no
// pending session, yields ErrSessionExpired and leaves state untouched.
// Every accepted selection, cancel included, destroys the session.
func (m *Machine) Resolve(caller int64, sel Selection) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[caller]
	if !ok || !sel.valid() || sel.flow() != s.Step() {
		return Outcome{}, ErrSessionExpired
	}

	delete(m.sessions, caller)
	metrics.SetConversationSessions(len(m.sessions))

	switch p := s.Payload.(type) {
	case AddPayload:
		switch sel {
		case SelectMovie:
			return Outcome{Action: ActionAdd, Category: CategoryMovie, Magnet: p.Magnet}, nil
		case SelectSeries:
			return Outcome{Action: ActionAdd, Category: CategorySeries, Magnet: p.Magnet}, nil
		default:
			return Outcome{Action: ActionCancelAdd}, nil
		}
	case DeletePayload:
		switch sel {
		case ConfirmKeepFiles:
			return Outcome{Action: ActionDelete, ID: p.ID, Name: p.Name}, nil
		case ConfirmDeleteFiles:
			return Outcome{Action: ActionDelete, ID: p.ID, Name: p.Name, DeleteFiles: true}, nil
		default:
			return Outcome{Action: ActionCancelDelete, Name: p.Name}, nil
		}
	}
	return Outcome{}, ErrSessionExpired
}
