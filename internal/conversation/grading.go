package conversation

import (
	"context"
	"fmt"

	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

type gradingResult struct {
	Confirmed bool   `json:"confirmed"`
	GradeID   int64  `json:"grade_id"`
	Message   string `json:"message"`
}

const gradingSchemaName = "grading_result"

var gradingSchema = llm.GenerateSchema[gradingResult]() //nolint:gochecknoglobals // generated once

// grading confirms a grade only when the model is sure and the id is on the
// scale; anything else is recorded as not sure.
func (e *Engine) grading(ctx context.Context, r *run) (StepResult, error) {
	t := r.thread
	rendered, err := e.prompts.Render(prompts.Grading, prompts.Data{
		Grades:     formatGrades(t.Grades),
		Transcript: r.transcript,
	})
	if err != nil {
		return StepResult{}, err
	}

	var res gradingResult
	err = llm.Retry(ctx, e.retry.WithFormatRetry(), "grading", func(ctx context.Context) error {
		res = gradingResult{}
		_, err := e.llm.Chat(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   gradingSchemaName,
			Schema:       gradingSchema,
			Temperature:  llm.Temp(0),
		}, &res)
		return err
	})
	if err != nil {
		return StepResult{}, err
	}

	g, ok := t.Grades.Lookup(res.GradeID)
	if !res.Confirmed || !ok {
		t.ConfirmedGradeID = nil
		return Continue("Not sure: " + res.Message), nil
	}

	id := g.ID
	t.ConfirmedGradeID = &id
	out := fmt.Sprintf("Confirmed grade %s (id=%d). %s", g.Label, g.ID, res.Message)
	if t.JustificationPending() {
		out += " The large discrepancy is not justified yet."
	}
	return Continue(out), nil
}
