package domain

import (
	"context"
	"fmt"
	"slices"
)

// Grade is one point on the expertise scale. Higher values mean more expertise.
type Grade struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	Value   int    `json:"value"`
	Deleted bool   `json:"deleted,omitempty"`
}

type GradeRepository interface {
	List(ctx context.Context) ([]Grade, error)
}

// GradeScale is the externally supplied, read-only grade list.
type GradeScale []Grade

// Lookup returns the grade with the given id, ignoring deleted grades.
func (s GradeScale) Lookup(id int64) (Grade, bool) {
	for _, g := range s {
		if g.ID == id && !g.Deleted {
			return g, true
		}
	}
	return Grade{}, false
}

// Validate returns the grade for id or ErrInvalidGrade.
func (s GradeScale) Validate(id int64) (Grade, error) {
	g, ok := s.Lookup(id)
	if !ok {
		return Grade{}, fmt.Errorf("grade %d: %w", id, ErrInvalidGrade)
	}
	return g, nil
}

// Distance is the absolute value difference between two grades.
func (s GradeScale) Distance(a, b int64) (int, error) {
	ga, err := s.Validate(a)
	if err != nil {
		return 0, err
	}
	gb, err := s.Validate(b)
	if err != nil {
		return 0, err
	}
	d := ga.Value - gb.Value
	if d < 0 {
		d = -d
	}
	return d, nil
}

// Active returns the non-deleted grades ordered by value.
func (s GradeScale) Active() GradeScale {
	out := make(GradeScale, 0, len(s))
	for _, g := range s {
		if !g.Deleted {
			out = append(out, g)
		}
	}
	slices.SortStableFunc(out, func(a, b Grade) int { return a.Value - b.Value })
	return out
}
