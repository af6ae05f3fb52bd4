package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type SkillRepo struct {
	pool *pgxpool.Pool
}

func NewSkillRepo(pool *pgxpool.Pool) *SkillRepo {
	return &SkillRepo{pool: pool}
}

func (r *SkillRepo) GetByID(ctx context.Context, id int64) (*domain.Skill, error) {
	var s domain.Skill

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description FROM skills WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("skillRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("skillRepo.GetByID: %w", err)
	}

	return &s, nil
}

func (r *SkillRepo) List(ctx context.Context) ([]*domain.Skill, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM skills ORDER BY name LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("skillRepo.List: %w", err)
	}
	defer rows.Close()

	var skills []*domain.Skill
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, fmt.Errorf("skillRepo.List: scan: %w", err)
		}
		skills = append(skills, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("skillRepo.List: rows: %w", err)
	}

	return skills, nil
}

type UserSkillRepo struct {
	pool *pgxpool.Pool
}

func NewUserSkillRepo(pool *pgxpool.Pool) *UserSkillRepo {
	return &UserSkillRepo{pool: pool}
}

func (r *UserSkillRepo) Get(ctx context.Context, userID, skillID int64) (*domain.UserSkill, error) {
	var us domain.UserSkill

	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, skill_id, grade_id, note, created_at, updated_at
		 FROM user_skills WHERE user_id = $1 AND skill_id = $2`,
		userID, skillID,
	).Scan(&us.ID, &us.UserID, &us.SkillID, &us.GradeID, &us.Note, &us.CreatedAt, &us.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("userSkillRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("userSkillRepo.Get: %w", err)
	}

	return &us, nil
}

// SetGrade records the grade of an existing user skill row.
func (r *UserSkillRepo) SetGrade(ctx context.Context, userID, skillID, gradeID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_skills SET grade_id = $1, updated_at = now()
		 WHERE user_id = $2 AND skill_id = $3`,
		gradeID, userID, skillID,
	)
	if err != nil {
		return fmt.Errorf("userSkillRepo.SetGrade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("userSkillRepo.SetGrade: %w", domain.ErrNotFound)
	}

	return nil
}
