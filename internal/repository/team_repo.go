package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"team-roles/internal/domain"
)

// TeamRepository expone la lectura de equipos y la anotacion de roles sobre sus miembros.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (domain.Team, error)
	SetMemberRole(ctx context.Context, teamID, applicantID, roleID string) error
}

// PgTeamRepository implementa TeamRepository usando pgxpool.
type PgTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgTeamRepository(pool *pgxpool.Pool) *PgTeamRepository {
	return &PgTeamRepository{pool: pool}
}

// GetByID devuelve el equipo con sus miembros en orden de ingreso.
func (r *PgTeamRepository) GetByID(ctx context.Context, id string) (domain.Team, error) {
	const teamQuery = `
		SELECT id, session_id, max_members, is_complete
		FROM teams
		WHERE id = $1
	`
	var t domain.Team
	err := r.pool.QueryRow(ctx, teamQuery, id).Scan(
		&t.ID,
		&t.SessionID,
		&t.MaxMembers,
		&t.IsComplete,
	)
	if err != nil {
		return domain.Team{}, mapError(err)
	}

	const membersQuery = `
		SELECT a.id, a.name, a.occupation, a.years_of_experience, a.experience_unit,
		       a.skills, a.personality_traits, COALESCE(tm.role_id, '')
		FROM team_members tm
		JOIN applicants a ON a.id = tm.applicant_id
		WHERE tm.team_id = $1
		ORDER BY tm.joined_at ASC, a.id ASC
	`
	rows, err := r.pool.Query(ctx, membersQuery, id)
	if err != nil {
		return domain.Team{}, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Applicant
		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Occupation,
			&a.YearsOfExperience,
			&a.ExperienceUnit,
			&a.Skills,
			&a.PersonalityTraits,
			&a.RoleID,
		); err != nil {
			return domain.Team{}, err
		}
		t.Members = append(t.Members, a)
	}
	if err := rows.Err(); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// SetMemberRole anota el rol asignado sobre la membresia del postulante.
func (r *PgTeamRepository) SetMemberRole(ctx context.Context, teamID, applicantID, roleID string) error {
	const query = `
		UPDATE team_members
		SET role_id = $1
		WHERE team_id = $2 AND applicant_id = $3
	`
	tag, err := r.pool.Exec(ctx, query, roleID, teamID, applicantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
