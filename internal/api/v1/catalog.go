package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type ListGradesOutput struct {
	Body []domain.Grade
}

type ListSkillsOutput struct {
	Body []*domain.Skill
}

// RegisterCatalogRoutes exposes the read-only grade scale and skill list.
func RegisterCatalogRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-grades",
		Method:      http.MethodGet,
		Path:        "/grades",
		Summary:     "List the active grades ordered by value",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListGradesOutput, error) {
		grades, err := store.Grades().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list grades", err)
		}
		return &ListGradesOutput{Body: domain.GradeScale(grades).Active()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-skills",
		Method:      http.MethodGet,
		Path:        "/skills",
		Summary:     "List skills",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListSkillsOutput, error) {
		skills, err := store.Skills().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list skills", err)
		}
		if skills == nil {
			skills = []*domain.Skill{}
		}
		return &ListSkillsOutput{Body: skills}, nil
	})
}
