package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type GradeRepo struct {
	pool *pgxpool.Pool
}

func NewGradeRepo(pool *pgxpool.Pool) *GradeRepo {
	return &GradeRepo{pool: pool}
}

// List returns every grade, deleted ones included.
func (r *GradeRepo) List(ctx context.Context) ([]domain.Grade, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, label, value, is_deleted FROM grades ORDER BY value, id`)
	if err != nil {
		return nil, fmt.Errorf("gradeRepo.List: %w", err)
	}
	defer rows.Close()

	var grades []domain.Grade
	for rows.Next() {
		var g domain.Grade
		if err := rows.Scan(&g.ID, &g.Label, &g.Value, &g.Deleted); err != nil {
			return nil, fmt.Errorf("gradeRepo.List: scan: %w", err)
		}
		grades = append(grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gradeRepo.List: rows: %w", err)
	}

	return grades, nil
}
