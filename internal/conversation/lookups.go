package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// Lookups are the read-only facts the discrepancy step needs besides the
// grade scale stored on the thread.
type Lookups interface {
	// PriorGrade returns the grade recorded for the thread's user and skill and
	// when it was recorded. A nil grade means a first evaluation.
	PriorGrade(ctx context.Context, dc domain.DiscrepancyContext) (*int64, *time.Time, error)
	Today() time.Time
}

// ContextLookups answers from the discrepancy context captured when the
// thread was created.
type ContextLookups struct {
	Now func() time.Time
}

func (l ContextLookups) PriorGrade(_ context.Context, dc domain.DiscrepancyContext) (*int64, *time.Time, error) {
	return dc.GradeID, dc.RecordedAt, nil
}

func (l ContextLookups) Today() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// UserSkillGetter is the part of domain.UserSkillRepository the lookups need.
type UserSkillGetter interface {
	Get(ctx context.Context, userID, skillID int64) (*domain.UserSkill, error)
}

// StoreLookups reads the currently recorded grade from the user skill table so
// a grade changed while the chat was open is taken into account.
type StoreLookups struct {
	UserSkills UserSkillGetter
	Now        func() time.Time
}

func (l StoreLookups) PriorGrade(ctx context.Context, dc domain.DiscrepancyContext) (*int64, *time.Time, error) {
	us, err := l.UserSkills.Get(ctx, dc.UserID, dc.SkillID)
	if errors.Is(err, domain.ErrNotFound) {
		return dc.GradeID, dc.RecordedAt, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("conversation.StoreLookups.PriorGrade: %w", err)
	}
	if us.GradeID == nil {
		return nil, nil, nil
	}
	recorded := us.UpdatedAt
	return us.GradeID, &recorded, nil
}

func (l StoreLookups) Today() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// DaysBetween counts whole calendar days from a to b, ignoring time of day.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
