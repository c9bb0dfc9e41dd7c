package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"team-roles/internal/domain"
)

// AssignmentSessionRepository persiste una sesion de asignacion por equipo.
type AssignmentSessionRepository interface {
	// GetOrCreate devuelve la sesion existente del equipo o crea una nueva en estado pending.
	GetOrCreate(ctx context.Context, teamID, sessionID string, roles []domain.RoleDefinition) (domain.AssignmentSession, error)
	GetByTeamID(ctx context.Context, teamID string) (domain.AssignmentSession, error)
	UpdateStatus(ctx context.Context, id string, status domain.AssignmentStatus) error
	// SaveAssignmentData guarda la asignacion y la matriz; un argumento nil conserva el valor actual.
	SaveAssignmentData(ctx context.Context, id string, assignment *domain.TeamAssignment, matrix *domain.ScoreMatrix) error
	ListStuck(ctx context.Context, statuses []domain.AssignmentStatus, olderThan time.Time) ([]domain.AssignmentSession, error)
	CountByStatus(ctx context.Context) (map[domain.AssignmentStatus]int, error)
}

// PgAssignmentSessionRepository implementa AssignmentSessionRepository usando pgxpool.
// roles, score_matrix y assignment se guardan como JSONB.
type PgAssignmentSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgAssignmentSessionRepository(pool *pgxpool.Pool) *PgAssignmentSessionRepository {
	return &PgAssignmentSessionRepository{pool: pool}
}

const sessionColumns = `id, team_id, session_id, roles, score_matrix, assignment, status, created_at, updated_at`

func (r *PgAssignmentSessionRepository) GetOrCreate(ctx context.Context, teamID, sessionID string, roles []domain.RoleDefinition) (domain.AssignmentSession, error) {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return domain.AssignmentSession{}, fmt.Errorf("marshal roles: %w", err)
	}

	const query = `
		INSERT INTO assignment_sessions (id, team_id, session_id, roles, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (team_id) DO NOTHING
		RETURNING ` + sessionColumns
	now := time.Now().UTC()
	session, err := scanSession(r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		teamID,
		sessionID,
		rolesJSON,
		string(domain.StatusPending),
		now,
	))
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		// Otro escritor creo la sesion primero: se usa la existente.
		return r.GetByTeamID(ctx, teamID)
	default:
		return domain.AssignmentSession{}, err
	}
}

func (r *PgAssignmentSessionRepository) GetByTeamID(ctx context.Context, teamID string) (domain.AssignmentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM assignment_sessions WHERE team_id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, teamID))
}

func (r *PgAssignmentSessionRepository) UpdateStatus(ctx context.Context, id string, status domain.AssignmentStatus) error {
	const query = `
		UPDATE assignment_sessions
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	tag, err := r.pool.Exec(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgAssignmentSessionRepository) SaveAssignmentData(ctx context.Context, id string, assignment *domain.TeamAssignment, matrix *domain.ScoreMatrix) error {
	assignmentJSON, err := marshalNullable(assignment)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	matrixJSON, err := marshalNullable(matrix)
	if err != nil {
		return fmt.Errorf("marshal score matrix: %w", err)
	}

	const query = `
		UPDATE assignment_sessions
		SET assignment = COALESCE($1::jsonb, assignment),
		    score_matrix = COALESCE($2::jsonb, score_matrix),
		    updated_at = $3
		WHERE id = $4
	`
	tag, err := r.pool.Exec(ctx, query, assignmentJSON, matrixJSON, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgAssignmentSessionRepository) ListStuck(ctx context.Context, statuses []domain.AssignmentStatus, olderThan time.Time) ([]domain.AssignmentSession, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM assignment_sessions
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
	`
	rows, err := r.pool.Query(ctx, query, names, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.AssignmentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PgAssignmentSessionRepository) CountByStatus(ctx context.Context) (map[domain.AssignmentStatus]int, error) {
	const query = `
		SELECT status, COUNT(*)
		FROM assignment_sessions
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.AssignmentStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.AssignmentStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func scanSession(row pgx.Row) (domain.AssignmentSession, error) {
	var (
		s                                 domain.AssignmentSession
		status                            string
		rolesJSON, matrixJSON, assignJSON []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.TeamID,
		&s.SessionID,
		&rolesJSON,
		&matrixJSON,
		&assignJSON,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return domain.AssignmentSession{}, mapError(err)
	}
	s.Status = domain.AssignmentStatus(status)

	if len(rolesJSON) > 0 {
		if err := json.Unmarshal(rolesJSON, &s.Roles); err != nil {
			return domain.AssignmentSession{}, fmt.Errorf("decode roles: %w", err)
		}
	}
	if len(matrixJSON) > 0 {
		var m domain.ScoreMatrix
		if err := json.Unmarshal(matrixJSON, &m); err != nil {
			return domain.AssignmentSession{}, fmt.Errorf("decode score matrix: %w", err)
		}
		s.ScoreMatrix = &m
	}
	if len(assignJSON) > 0 {
		var a domain.TeamAssignment
		if err := json.Unmarshal(assignJSON, &a); err != nil {
			return domain.AssignmentSession{}, fmt.Errorf("decode assignment: %w", err)
		}
		s.Assignment = &a
	}
	return s, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
