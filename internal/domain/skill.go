package domain

import (
	"context"
	"time"
)

type Skill struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SkillRepository interface {
	GetByID(ctx context.Context, id int64) (*Skill, error)
	List(ctx context.Context) ([]*Skill, error)
}

// UserSkill is the currently recorded grade of a user for one skill.
type UserSkill struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SkillID   int64     `json:"skill_id"`
	GradeID   *int64    `json:"grade_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserSkillRepository interface {
	Get(ctx context.Context, userID, skillID int64) (*UserSkill, error)
	SetGrade(ctx context.Context, userID, skillID, gradeID int64) error
}
