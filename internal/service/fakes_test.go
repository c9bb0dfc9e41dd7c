package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"team-roles/internal/domain"
	"team-roles/internal/repository"
)

type fakeTeamRepo struct {
	mu    sync.Mutex
	teams map[string]domain.Team
	roles map[string]string
	err   error
}

func newFakeTeamRepo(teams ...domain.Team) *fakeTeamRepo {
	r := &fakeTeamRepo{teams: make(map[string]domain.Team), roles: make(map[string]string)}
	for _, t := range teams {
		r.teams[t.ID] = t
	}
	return r
}

func (r *fakeTeamRepo) GetByID(_ context.Context, id string) (domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.Team{}, r.err
	}
	t, ok := r.teams[id]
	if !ok {
		return domain.Team{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *fakeTeamRepo) SetMemberRole(_ context.Context, teamID, applicantID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[teamID+"/"+applicantID] = roleID
	return nil
}

func (r *fakeTeamRepo) roleOf(teamID, applicantID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roles[teamID+"/"+applicantID]
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.AssignmentSession // por team id
	history  map[string][]domain.AssignmentStatus
	now      func() time.Time
	nextID   int

	failStatus map[domain.AssignmentStatus]error
	saveErr    error
	listErr    error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions:   make(map[string]*domain.AssignmentSession),
		history:    make(map[string][]domain.AssignmentStatus),
		failStatus: make(map[domain.AssignmentStatus]error),
		now:        time.Now,
	}
}

// put siembra una sesion tal cual, incluido su UpdatedAt.
func (r *fakeSessionRepo) put(s domain.AssignmentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.nextID++
		s.ID = fmt.Sprintf("as-%d", r.nextID)
	}
	r.sessions[s.TeamID] = &s
}

func (r *fakeSessionRepo) byID(id string) *domain.AssignmentSession {
	for _, s := range r.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *fakeSessionRepo) get(teamID string) (domain.AssignmentSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[teamID]
	if !ok {
		return domain.AssignmentSession{}, false
	}
	return *s, true
}

func (r *fakeSessionRepo) statusHistory(teamID string) []domain.AssignmentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[teamID]
	if !ok {
		return nil
	}
	return append([]domain.AssignmentStatus(nil), r.history[s.ID]...)
}

func (r *fakeSessionRepo) GetOrCreate(_ context.Context, teamID, sessionID string, roles []domain.RoleDefinition) (domain.AssignmentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[teamID]; ok {
		return *s, nil
	}
	r.nextID++
	now := r.now()
	s := &domain.AssignmentSession{
		ID:        fmt.Sprintf("as-%d", r.nextID),
		TeamID:    teamID,
		SessionID: sessionID,
		Roles:     roles,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[teamID] = s
	return *s, nil
}

func (r *fakeSessionRepo) GetByTeamID(_ context.Context, teamID string) (domain.AssignmentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[teamID]
	if !ok {
		return domain.AssignmentSession{}, repository.ErrNotFound
	}
	return *s, nil
}

func (r *fakeSessionRepo) UpdateStatus(_ context.Context, id string, status domain.AssignmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failStatus[status]; err != nil {
		return err
	}
	s := r.byID(id)
	if s == nil {
		return repository.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = r.now()
	r.history[id] = append(r.history[id], status)
	return nil
}

func (r *fakeSessionRepo) SaveAssignmentData(_ context.Context, id string, assignment *domain.TeamAssignment, matrix *domain.ScoreMatrix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	s := r.byID(id)
	if s == nil {
		return repository.ErrNotFound
	}
	if assignment != nil {
		a := assignment.Clone()
		s.Assignment = &a
	}
	if matrix != nil {
		m := *matrix
		s.ScoreMatrix = &m
	}
	s.UpdatedAt = r.now()
	return nil
}

func (r *fakeSessionRepo) ListStuck(_ context.Context, statuses []domain.AssignmentStatus, olderThan time.Time) ([]domain.AssignmentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.AssignmentSession
	for _, s := range r.sessions {
		for _, st := range statuses {
			if s.Status == st && s.UpdatedAt.Before(olderThan) {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CountByStatus(_ context.Context) (map[domain.AssignmentStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.AssignmentStatus]int)
	for _, s := range r.sessions {
		counts[s.Status]++
	}
	return counts, nil
}

// --- fixtures ---

func testRoles(n int) []domain.RoleDefinition {
	return domain.DefaultRoleCatalog()[:n]
}

func testTeam(id string, size int) domain.Team {
	t := domain.Team{ID: id, SessionID: "s1", MaxMembers: size, IsComplete: true}
	for i := 0; i < size; i++ {
		t.Members = append(t.Members, domain.Applicant{
			ID:                fmt.Sprintf("%s-m%d", id, i),
			Name:              fmt.Sprintf("Member %d", i),
			Occupation:        "engineer",
			YearsOfExperience: i + 1,
			ExperienceUnit:    domain.ExperienceUnitYears,
			Skills:            []string{"go"},
			PersonalityTraits: []string{"calm"},
		})
	}
	return t
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 0}
}

func fastBatch() BatchConfig {
	return BatchConfig{ChunkSize: 2, ChunkDelay: 0, RetryFailed: true, RetryDelay: 0}
}
