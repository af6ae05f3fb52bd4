package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
)

func TestSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  domain.Severity
	}{
		{0, domain.SeverityNone},
		{1, domain.SeverityModerate},
		{-1, domain.SeverityModerate},
		{2, domain.SeverityLarge},
		{-2, domain.SeverityLarge},
		{5, domain.SeverityLarge},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, conversation.Severity(tt.delta), "delta %d", tt.delta)
	}
}

func TestRecency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		recorded *time.Time
		want     domain.Recency
	}{
		{name: "one week", recorded: ptr(today.AddDate(0, 0, -7)), want: domain.RecencyRecent},
		{name: "three months", recorded: ptr(today.AddDate(0, -3, 0)), want: domain.RecencyRecent},
		{name: "six months", recorded: ptr(today.AddDate(0, -6, 0)), want: domain.RecencyRecentLimited},
		{name: "eighteen months", recorded: ptr(today.AddDate(0, -18, 0)), want: domain.RecencyOld},
		{name: "three years", recorded: ptr(today.AddDate(-3, 0, 0)), want: domain.RecencyStale},
		{name: "unknown date", recorded: nil, want: domain.RecencyOld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, conversation.Recency(tt.recorded, today))
		})
	}
}

func TestAssess(t *testing.T) {
	t.Parallel()

	t.Run("first evaluation", func(t *testing.T) {
		t.Parallel()

		a, err := conversation.Assess(scale(), nil, nil, 6, today)
		require.NoError(t, err)
		assert.Equal(t, domain.SeverityNone, a.Severity)
		assert.Equal(t, domain.RecencyFirst, a.Recency)
		assert.Nil(t, a.PriorGradeID)
	})

	t.Run("jump of five levels", func(t *testing.T) {
		t.Parallel()

		recorded := today.AddDate(0, 0, -7)
		a, err := conversation.Assess(scale(), ptr(int64(1)), &recorded, 6, today)
		require.NoError(t, err)
		assert.Equal(t, 5, a.Delta)
		assert.Equal(t, domain.SeverityLarge, a.Severity)
		assert.Equal(t, domain.RecencyRecent, a.Recency)
		assert.Equal(t, 7, a.DaysSincePrior)
	})

	t.Run("one level down", func(t *testing.T) {
		t.Parallel()

		recorded := today.AddDate(-1, -1, 0)
		a, err := conversation.Assess(scale(), ptr(int64(4)), &recorded, 3, today)
		require.NoError(t, err)
		assert.Equal(t, -1, a.Delta)
		assert.Equal(t, domain.SeverityModerate, a.Severity)
		assert.Equal(t, domain.RecencyOld, a.Recency)
	})

	t.Run("prior grade removed from scale", func(t *testing.T) {
		t.Parallel()

		s := scale()
		s[0].Deleted = true
		a, err := conversation.Assess(s, ptr(int64(1)), nil, 6, today)
		require.NoError(t, err)
		assert.Equal(t, domain.RecencyFirst, a.Recency)
	})

	t.Run("stated grade not on scale", func(t *testing.T) {
		t.Parallel()

		_, err := conversation.Assess(scale(), nil, nil, 99, today)
		require.ErrorIs(t, err, domain.ErrInvalidGrade)
	})
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	a := time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 1, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, conversation.DaysBetween(a, b))
	assert.Equal(t, 0, conversation.DaysBetween(a, a))
	assert.Equal(t, -1, conversation.DaysBetween(b, a))
}

type stubUserSkills struct {
	getFunc func(ctx context.Context, userID, skillID int64) (*domain.UserSkill, error)
}

func (s stubUserSkills) Get(ctx context.Context, userID, skillID int64) (*domain.UserSkill, error) {
	return s.getFunc(ctx, userID, skillID)
}

func TestStoreLookups_PriorGrade(t *testing.T) {
	t.Parallel()

	dc := domain.DiscrepancyContext{UserID: 1, SkillID: 2, GradeID: ptr(int64(3))}

	t.Run("recorded grade wins", func(t *testing.T) {
		t.Parallel()

		updated := today.AddDate(0, -2, 0)
		l := conversation.StoreLookups{UserSkills: stubUserSkills{getFunc: func(_ context.Context, _, _ int64) (*domain.UserSkill, error) {
			return &domain.UserSkill{GradeID: ptr(int64(5)), UpdatedAt: updated}, nil
		}}}

		grade, at, err := l.PriorGrade(context.Background(), dc)
		require.NoError(t, err)
		assert.Equal(t, int64(5), *grade)
		assert.Equal(t, updated, *at)
	})

	t.Run("missing row falls back to context", func(t *testing.T) {
		t.Parallel()

		l := conversation.StoreLookups{UserSkills: stubUserSkills{getFunc: func(_ context.Context, _, _ int64) (*domain.UserSkill, error) {
			return nil, domain.ErrNotFound
		}}}

		grade, _, err := l.PriorGrade(context.Background(), dc)
		require.NoError(t, err)
		assert.Equal(t, int64(3), *grade)
	})

	t.Run("store error surfaces", func(t *testing.T) {
		t.Parallel()

		l := conversation.StoreLookups{UserSkills: stubUserSkills{getFunc: func(_ context.Context, _, _ int64) (*domain.UserSkill, error) {
			return nil, assert.AnError
		}}}

		_, _, err := l.PriorGrade(context.Background(), dc)
		require.ErrorIs(t, err, assert.AnError)
	})
}
