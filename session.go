package taverna

import "time"

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

const (
	SessionLobby  SessionStatus = "LOBBY"
	SessionLive   SessionStatus = "LIVE"
	SessionPaused SessionStatus = "PAUSED"
	SessionEnded  SessionStatus = "ENDED"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionLobby, SessionLive, SessionPaused, SessionEnded:
		return true
	}
	return false
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionLobby:  {SessionLive},
	SessionLive:   {SessionPaused, SessionEnded},
	SessionPaused: {SessionLive, SessionEnded},
}

// CanTransition reports whether a session may move from s to next in one
// step. ENDED has no outgoing edges. LOBBY to ENDED is refused here even
// though the store itself would accept it.
func (s SessionStatus) CanTransition(next SessionStatus) error {
	if !next.Valid() {
		return Invalid("unknown session status %q", next)
	}
	if s == next {
		return Invalid("session is already %s", s)
	}
	if s == SessionEnded {
		return ErrSessionEnded
	}
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return nil
		}
	}
	return Invalid("cannot move session from %s to %s", s, next)
}

// Lifecycle is the part of a session the state machine touches.
type Lifecycle struct {
	Status    SessionStatus
	StartedAt *time.Time
	EndedAt   *time.Time
}

// Transition moves l to next, stamping StartedAt the first time the session
// goes live and EndedAt when it ends.
func (l *Lifecycle) Transition(next SessionStatus, now time.Time) error {
	if err := l.Status.CanTransition(next); err != nil {
		return err
	}

	l.Status = next
	switch next {
	case SessionLive:
		if l.StartedAt == nil {
			t := now
			l.StartedAt = &t
		}
	case SessionEnded:
		t := now
		l.EndedAt = &t
	}
	return nil
}

// AddConnected returns ids with id present exactly once.
func AddConnected(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// RemoveConnected returns ids without id.
func RemoveConnected(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
