package taverna

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		kind     Kind
		ok       bool
	}{
		{SessionLobby, SessionLive, 0, true},
		{SessionLive, SessionPaused, 0, true},
		{SessionPaused, SessionLive, 0, true},
		{SessionLive, SessionEnded, 0, true},
		{SessionPaused, SessionEnded, 0, true},
		{SessionLobby, SessionEnded, KindValidation, false},
		{SessionLobby, SessionPaused, KindValidation, false},
		{SessionLive, SessionLobby, KindValidation, false},
		{SessionLive, SessionLive, KindValidation, false},
		{SessionEnded, SessionLive, KindConflict, false},
		{SessionLive, "DONE", KindValidation, false},
	}

	for _, tc := range tests {
		err := tc.from.CanTransition(tc.to)
		if tc.ok {
			if err != nil {
				t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s -> %s: expected error", tc.from, tc.to)
			continue
		}
		if KindOf(err) != tc.kind {
			t.Errorf("%s -> %s: kind %s, want %s", tc.from, tc.to, KindOf(err), tc.kind)
		}
	}
}

func TestLifecycleTimestamps(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	l := Lifecycle{Status: SessionLobby}

	if err := l.Transition(SessionLive, t0); err != nil {
		t.Fatal(err)
	}
	if l.StartedAt == nil || !l.StartedAt.Equal(t0) {
		t.Fatalf("startedAt = %v, want %v", l.StartedAt, t0)
	}

	if err := l.Transition(SessionPaused, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := l.Transition(SessionLive, t0.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !l.StartedAt.Equal(t0) {
		t.Errorf("startedAt moved on resume: %v", l.StartedAt)
	}
	if l.EndedAt != nil {
		t.Error("endedAt set before end")
	}

	end := t0.Add(3 * time.Hour)
	if err := l.Transition(SessionEnded, end); err != nil {
		t.Fatal(err)
	}
	if l.EndedAt == nil || !l.EndedAt.Equal(end) {
		t.Errorf("endedAt = %v, want %v", l.EndedAt, end)
	}

	if err := l.Transition(SessionLive, end); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded, got %v", err)
	}
}

func TestConnectedPlayers(t *testing.T) {
	ids := AddConnected(nil, 3)
	ids = AddConnected(ids, 5)
	ids = AddConnected(ids, 3)
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	ids = RemoveConnected(ids, 3)
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("expected [5], got %v", ids)
	}
	ids = RemoveConnected(ids, 9)
	if len(ids) != 1 {
		t.Errorf("removing an absent id changed the list: %v", ids)
	}
}
