package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"team-roles/internal/domain"
)

type recordingEnqueuer struct {
	mu     sync.Mutex
	calls  map[string]int
	active map[string]bool
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{calls: make(map[string]int), active: make(map[string]bool)}
}

func (e *recordingEnqueuer) Enqueue(teamID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[teamID]++
	return true
}

func (e *recordingEnqueuer) IsActive(teamID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[teamID]
}

func (e *recordingEnqueuer) count(teamID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[teamID]
}

func TestSweepOnce_RequeuesStuckScoringSession(t *testing.T) {
	now := time.Now()
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "stuck", Status: domain.StatusScoring, UpdatedAt: now.Add(-6 * time.Minute)})
	repo.put(domain.AssignmentSession{TeamID: "fresh", Status: domain.StatusScoring, UpdatedAt: now.Add(-time.Minute)})
	queue := newRecordingEnqueuer()
	h := NewHealthChecker(repo, queue, HealthConfig{Interval: time.Minute, StuckThreshold: 5 * time.Minute}, nil, nil)

	report, err := h.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Checked != 1 || report.Requeued != 1 || report.Recovered != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if s, _ := repo.get("stuck"); s.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", s.Status)
	}
	if queue.count("stuck") != 1 {
		t.Fatalf("expected exactly one enqueue, got %d", queue.count("stuck"))
	}
	if s, _ := repo.get("fresh"); s.Status != domain.StatusScoring || queue.count("fresh") != 0 {
		t.Fatalf("expected fresh session untouched")
	}
}

func TestSweepOnce_ForcesCompleteWhenAssignmentExists(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{
		TeamID:     "j",
		Status:     domain.StatusJustifying,
		UpdatedAt:  time.Now().Add(-time.Hour),
		Assignment: &domain.TeamAssignment{Assignments: []domain.Assignment{{ApplicantID: "a", RoleID: "leader"}}},
	})
	repo.put(domain.AssignmentSession{TeamID: "empty", Status: domain.StatusJustifying, UpdatedAt: time.Now().Add(-time.Hour)})
	queue := newRecordingEnqueuer()
	h := NewHealthChecker(repo, queue, DefaultHealthConfig(), nil, nil)

	report, err := h.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.ForcedComplete != 1 || report.Requeued != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if s, _ := repo.get("j"); s.Status != domain.StatusComplete {
		t.Fatalf("expected complete, got %s", s.Status)
	}
	if queue.count("j") != 0 {
		t.Fatalf("expected no enqueue for forced complete")
	}
	if s, _ := repo.get("empty"); s.Status != domain.StatusPending || queue.count("empty") != 1 {
		t.Fatalf("expected justifying without assignment to be requeued")
	}
}

func TestSweepOnce_SkipsTeamsActiveInQueue(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "busy", Status: domain.StatusAssigning, UpdatedAt: time.Now().Add(-time.Hour)})
	queue := newRecordingEnqueuer()
	queue.active["busy"] = true
	h := NewHealthChecker(repo, queue, DefaultHealthConfig(), nil, nil)

	report, err := h.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Results[0].Action != RecoverySkipped || report.Recovered != 0 {
		t.Fatalf("expected skipped, got %+v", report)
	}
	if s, _ := repo.get("busy"); s.Status != domain.StatusAssigning {
		t.Fatalf("expected status unchanged, got %s", s.Status)
	}
}

func TestSweepOnce_ReportsUpdateFailures(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "x", Status: domain.StatusScoring, UpdatedAt: time.Now().Add(-time.Hour)})
	repo.failStatus[domain.StatusPending] = errors.New("db down")
	queue := newRecordingEnqueuer()
	h := NewHealthChecker(repo, queue, DefaultHealthConfig(), nil, nil)

	report, err := h.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Failed != 1 || report.Results[0].Action != RecoveryFailed || report.Results[0].Error == "" {
		t.Fatalf("unexpected report %+v", report)
	}
	if queue.count("x") != 0 {
		t.Fatalf("expected no enqueue when reset fails")
	}

	repo.listErr = errors.New("db down")
	if _, err := h.SweepOnce(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestRecoverTeams(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "pending", Status: domain.StatusPending, UpdatedAt: time.Now()})
	repo.put(domain.AssignmentSession{TeamID: "done", Status: domain.StatusComplete, UpdatedAt: time.Now()})
	repo.put(domain.AssignmentSession{TeamID: "scoring", Status: domain.StatusScoring, UpdatedAt: time.Now()})
	repo.put(domain.AssignmentSession{TeamID: "weird", Status: domain.AssignmentStatus("weird"), UpdatedAt: time.Now()})
	queue := newRecordingEnqueuer()
	h := NewHealthChecker(repo, queue, DefaultHealthConfig(), nil, nil)

	results := h.RecoverTeams(context.Background(), []string{"pending", "done", "scoring", "ghost", "weird"})
	want := []string{RecoveryRequeued, RecoverySkipped, RecoveryRequeued, RecoveryNotFound, RecoveryUnrecoverable}
	for i, w := range want {
		if results[i].Action != w {
			t.Fatalf("result %d: expected %s, got %s", i, w, results[i].Action)
		}
	}
	if queue.count("pending") != 1 || queue.count("scoring") != 1 || queue.count("done") != 0 {
		t.Fatalf("unexpected enqueue calls %v", queue.calls)
	}
	if s, _ := repo.get("scoring"); s.Status != domain.StatusPending {
		t.Fatalf("expected explicit recovery to ignore age, got %s", s.Status)
	}
	if s, _ := repo.get("weird"); s.Status != domain.AssignmentStatus("weird") {
		t.Fatalf("expected unknown status left untouched, got %s", s.Status)
	}
	if queue.count("weird") != 0 {
		t.Fatalf("expected no enqueue for unknown status, got %d", queue.count("weird"))
	}
	if results[4].Error == "" {
		t.Fatalf("expected unrecoverable result to carry a reason")
	}
}

func TestHealthStats(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "a", Status: domain.StatusComplete, UpdatedAt: time.Now()})
	repo.put(domain.AssignmentSession{TeamID: "b", Status: domain.StatusComplete, UpdatedAt: time.Now()})
	repo.put(domain.AssignmentSession{TeamID: "c", Status: domain.StatusScoring, UpdatedAt: time.Now().Add(-time.Hour)})
	h := NewHealthChecker(repo, nil, DefaultHealthConfig(), nil, nil)

	stats, err := h.Stats(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stats.Total != 3 || stats.Stuck != 1 || stats.Counts[domain.StatusComplete] != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestHealthChecker_StartSweepsImmediately(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.put(domain.AssignmentSession{TeamID: "s", Status: domain.StatusScoring, UpdatedAt: time.Now().Add(-time.Hour)})
	queue := newRecordingEnqueuer()
	h := NewHealthChecker(repo, queue, HealthConfig{Interval: time.Hour, StuckThreshold: time.Minute}, nil, nil)

	h.Start(context.Background())
	h.Start(context.Background())
	eventually(t, func() bool { return queue.count("s") == 1 }, "immediate sweep enqueued team")
	h.Stop()
	h.Stop()

	if queue.count("s") != 1 {
		t.Fatalf("expected a single sweep, got %d enqueues", queue.count("s"))
	}
}
