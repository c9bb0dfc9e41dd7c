package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingQueue struct {
	mu    sync.Mutex
	calls []string
	known map[string]bool
}

func (q *recordingQueue) Enqueue(teamID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, teamID)
	if q.known == nil {
		q.known = make(map[string]bool)
	}
	if q.known[teamID] {
		return false
	}
	q.known[teamID] = true
	return true
}

func (q *recordingQueue) Calls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

func TestDirectNotifierEnqueues(t *testing.T) {
	q := &recordingQueue{}
	n := NewDirectNotifier(q, nil)

	if err := n.NotifyTeamComplete(context.Background(), " team-1 "); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := n.NotifyTeamComplete(context.Background(), "team-1"); err != nil {
		t.Fatalf("expected duplicate notification to be accepted, got %v", err)
	}

	calls := q.Calls()
	if len(calls) != 2 || calls[0] != "team-1" {
		t.Fatalf("expected trimmed team id enqueued twice, got %v", calls)
	}
}

func TestDirectNotifierRejectsEmptyID(t *testing.T) {
	n := NewDirectNotifier(&recordingQueue{}, nil)
	if err := n.NotifyTeamComplete(context.Background(), "  "); !errors.Is(err, ErrEmptyTeamID) {
		t.Fatalf("expected ErrEmptyTeamID, got %v", err)
	}
}
