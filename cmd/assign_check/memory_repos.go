package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"team-roles/internal/domain"
	"team-roles/internal/repository"
)

// --- Repositorios en memoria para la corrida offline ---

type memoryTeamRepo struct {
	mu    sync.Mutex
	teams map[string]domain.Team
}

func newMemoryTeamRepo(teams []domain.Team) *memoryTeamRepo {
	m := &memoryTeamRepo{teams: make(map[string]domain.Team, len(teams))}
	for _, t := range teams {
		m.teams[t.ID] = t
	}
	return m
}

func (m *memoryTeamRepo) GetByID(ctx context.Context, id string) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, repository.ErrNotFound
	}
	t.Members = append([]domain.Applicant(nil), t.Members...)
	return t, nil
}

func (m *memoryTeamRepo) SetMemberRole(ctx context.Context, teamID, applicantID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range t.Members {
		if t.Members[i].ID == applicantID {
			t.Members[i].RoleID = roleID
			return nil
		}
	}
	return repository.ErrNotFound
}

type memorySessionRepo struct {
	mu     sync.Mutex
	byTeam map[string]*domain.AssignmentSession
	byID   map[string]*domain.AssignmentSession
	now    func() time.Time
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{
		byTeam: make(map[string]*domain.AssignmentSession),
		byID:   make(map[string]*domain.AssignmentSession),
		now:    time.Now,
	}
}

func (m *memorySessionRepo) GetOrCreate(ctx context.Context, teamID, sessionID string, roles []domain.RoleDefinition) (domain.AssignmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byTeam[teamID]; ok {
		return *s, nil
	}
	now := m.now().UTC()
	s := &domain.AssignmentSession{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		SessionID: sessionID,
		Roles:     roles,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byTeam[teamID] = s
	m.byID[s.ID] = s
	return *s, nil
}

func (m *memorySessionRepo) GetByTeamID(ctx context.Context, teamID string) (domain.AssignmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byTeam[teamID]
	if !ok {
		return domain.AssignmentSession{}, repository.ErrNotFound
	}
	return *s, nil
}

func (m *memorySessionRepo) UpdateStatus(ctx context.Context, id string, status domain.AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memorySessionRepo) SaveAssignmentData(ctx context.Context, id string, assignment *domain.TeamAssignment, matrix *domain.ScoreMatrix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if assignment != nil {
		a := assignment.Clone()
		s.Assignment = &a
	}
	if matrix != nil {
		mx := *matrix
		s.ScoreMatrix = &mx
	}
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memorySessionRepo) ListStuck(ctx context.Context, statuses []domain.AssignmentStatus, olderThan time.Time) ([]domain.AssignmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AssignmentSession
	for _, s := range m.byID {
		for _, st := range statuses {
			if s.Status == st && s.UpdatedAt.Before(olderThan) {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (m *memorySessionRepo) CountByStatus(ctx context.Context) (map[domain.AssignmentStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.AssignmentStatus]int)
	for _, s := range m.byID {
		counts[s.Status]++
	}
	return counts, nil
}
