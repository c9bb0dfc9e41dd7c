package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"team-roles/internal/domain"
	"team-roles/internal/llm"
)

func newTestScorer(client llm.LLMClient) *Scorer {
	cfg := DefaultScorerConfig()
	cfg.Retry = fastRetry()
	cfg.Batch = fastBatch()
	return NewScorer(client, cfg, nil, nil)
}

func TestScoreTeam_Success(t *testing.T) {
	client := &llm.MockClient{Response: "```json\n[[90, 10, 20], [10, 90, 30]]\n```"}
	s := newTestScorer(client)

	matrix, err := s.ScoreTeam(context.Background(), testTeam("t", 2), testRoles(3))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if matrix.TeamID != "t" || len(matrix.Scores) != 2 || matrix.Scores[1][1] != 90 {
		t.Fatalf("unexpected matrix %+v", matrix)
	}
	if matrix.GeneratedAt.IsZero() {
		t.Fatalf("expected generated_at")
	}
	req := client.Requests()[0]
	if !strings.Contains(req.UserPrompt, "exactly 2 rows") || !strings.Contains(req.UserPrompt, "exactly 3 numbers") {
		t.Fatalf("prompt missing shape instructions: %s", req.UserPrompt)
	}
	if req.Temperature != 0.3 || req.MaxTokens != 2000 {
		t.Fatalf("unexpected model params %+v", req)
	}
}

func TestScoreTeam_RowLengthMismatchFailsWithoutRetry(t *testing.T) {
	client := &llm.MockClient{Response: "[[90,10,10,10,10,10,10,10,10,10],[10,90],[10,10,90,10,10,10,10,10,10,10]]"}
	s := newTestScorer(client)

	_, err := s.ScoreTeam(context.Background(), testTeam("t", 3), testRoles(10))
	if !errors.Is(err, ErrInvalidScoreMatrix) {
		t.Fatalf("expected ErrInvalidScoreMatrix, got %v", err)
	}
	if client.Calls() != 1 {
		t.Fatalf("expected 1 llm call, got %d", client.Calls())
	}
}

func TestScoreTeam_OutOfRangeCellsFailWithoutRetry(t *testing.T) {
	for _, resp := range []string{"[[500,10],[10,90]]", "[[150,10],[10,90]]"} {
		client := &llm.MockClient{Response: resp}
		s := newTestScorer(client)

		_, err := s.ScoreTeam(context.Background(), testTeam("t", 2), testRoles(2))
		if !errors.Is(err, ErrInvalidScoreMatrix) {
			t.Fatalf("%s: expected ErrInvalidScoreMatrix, got %v", resp, err)
		}
		if client.Calls() != 1 {
			t.Fatalf("%s: expected 1 llm call, got %d", resp, client.Calls())
		}
	}
}

func TestScoreTeam_RetriesTransientErrors(t *testing.T) {
	client := &llm.MockClient{
		Errs:      []error{errors.New("llm http error: status=503"), errors.New("network unreachable")},
		Responses: []string{"", "", "[[50]]"},
	}
	s := newTestScorer(client)

	matrix, err := s.ScoreTeam(context.Background(), testTeam("t", 1), testRoles(1))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if matrix.Scores[0][0] != 50 {
		t.Fatalf("unexpected score %v", matrix.Scores[0][0])
	}
	if client.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", client.Calls())
	}
}

func TestScoreTeam_GivesUpAfterMaxAttempts(t *testing.T) {
	client := &llm.MockClient{Err: errors.New("request timeout")}
	s := newTestScorer(client)

	if _, err := s.ScoreTeam(context.Background(), testTeam("t", 1), testRoles(1)); err == nil {
		t.Fatalf("expected error")
	}
	if client.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", client.Calls())
	}
}

func TestScoreTeam_Preconditions(t *testing.T) {
	client := &llm.MockClient{Response: "[[1]]"}
	s := newTestScorer(client)

	incomplete := testTeam("t", 2)
	incomplete.IsComplete = false
	if _, err := s.ScoreTeam(context.Background(), incomplete, testRoles(3)); !errors.Is(err, ErrTeamNotComplete) {
		t.Fatalf("expected ErrTeamNotComplete, got %v", err)
	}
	if _, err := s.ScoreTeam(context.Background(), testTeam("t", 3), testRoles(2)); !errors.Is(err, ErrNotEnoughRoles) {
		t.Fatalf("expected ErrNotEnoughRoles, got %v", err)
	}
	empty := domain.Team{ID: "e", IsComplete: true}
	if _, err := s.ScoreTeam(context.Background(), empty, testRoles(2)); !errors.Is(err, ErrInvalidScoreMatrix) {
		t.Fatalf("expected ErrInvalidScoreMatrix, got %v", err)
	}
	if client.Calls() != 0 {
		t.Fatalf("expected no llm calls, got %d", client.Calls())
	}
}

func TestParseScoreMatrix(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"plain", "[[1, 2], [3, 4]]", nil},
		{"fenced", "```json\n[[1, 2], [3, 4]]\n```", nil},
		{"prose around", "Here you go: [[1.5, 2], [3, 100]] hope it helps", nil},
		{"no array", "I cannot score these participants", ErrLLMResponse},
		{"string cell", `[[1, "2"], [3, 4]]`, ErrInvalidScoreMatrix},
		{"null cell", `[[1, null], [3, 4]]`, ErrInvalidScoreMatrix},
		{"row not array", `[[1, 2], 3]`, ErrInvalidScoreMatrix},
		{"above range", "[[1, 2], [3, 140]]", ErrInvalidScoreMatrix},
		{"too many rows", "[[1, 2], [3, 4], [5, 6]]", ErrInvalidScoreMatrix},
	}
	for _, c := range cases {
		_, err := ParseScoreMatrix(c.raw, 2, 2)
		if c.wantErr == nil && err != nil {
			t.Fatalf("%s: expected no error, got %v", c.name, err)
		}
		if c.wantErr != nil && !errors.Is(err, c.wantErr) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.wantErr, err)
		}
	}
}

func TestScoreTeamsBatch_SecondPassRecoversFailures(t *testing.T) {
	var mu sync.Mutex
	threeRowCalls := 0
	client := &llm.MockClient{Fn: func(_ context.Context, req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "exactly 3 rows") {
			mu.Lock()
			threeRowCalls++
			first := threeRowCalls == 1
			mu.Unlock()
			if first {
				return "not json", nil
			}
			return "[[10, 20, 30], [30, 20, 10], [20, 30, 10]]", nil
		}
		return "[[10, 20, 30], [30, 20, 10]]", nil
	}}
	s := newTestScorer(client)

	teams := []domain.Team{testTeam("a", 2), testTeam("b", 3), testTeam("c", 2)}
	results, summary := s.ScoreTeamsBatch(context.Background(), teams, [][]domain.RoleDefinition{testRoles(3)})
	if summary.Total != 3 || summary.Succeeded != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for i, r := range results {
		if r.TeamID != teams[i].ID || !r.OK() {
			t.Fatalf("unexpected result %d: %+v", i, r)
		}
	}
	if threeRowCalls != 2 {
		t.Fatalf("expected 2 calls for team b, got %d", threeRowCalls)
	}
}

func TestScoreTeamsBatch_ReportsPartialFailures(t *testing.T) {
	client := &llm.MockClient{Fn: func(_ context.Context, req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "exactly 3 rows") {
			return "[]", nil
		}
		return "[[10, 20, 30], [30, 20, 10]]", nil
	}}
	cfg := DefaultScorerConfig()
	cfg.Retry = fastRetry()
	cfg.Batch = BatchConfig{ChunkSize: 1}
	s := NewScorer(client, cfg, nil, nil)

	incomplete := testTeam("d", 2)
	incomplete.IsComplete = false
	teams := []domain.Team{testTeam("a", 2), testTeam("b", 3), incomplete}
	results, summary := s.ScoreTeamsBatch(context.Background(), teams, [][]domain.RoleDefinition{testRoles(3)})
	if summary.Succeeded != 1 || summary.Failed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !results[0].OK() {
		t.Fatalf("expected team a to succeed, got %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, ErrInvalidScoreMatrix) {
		t.Fatalf("expected team b shape error, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, ErrTeamNotComplete) {
		t.Fatalf("expected team d not complete, got %v", results[2].Err)
	}
}
