package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

const finalSchemaName = "final_classification"

var finalSchema = llm.GenerateSchema[domain.FinalClassification]() //nolint:gochecknoglobals // generated once

// finalize asks the model for the closing message. The grade id and label
// always come from the scale, never from the model.
func (e *Engine) finalize(ctx context.Context, r *run, gradeID int64) (*domain.FinalClassification, error) {
	t := r.thread
	grade, err := t.Grades.Validate(gradeID)
	if err != nil {
		return nil, err
	}
	r.emit.emit(Event{Type: PhaseFinalizing})

	rendered, err := e.prompts.Render(prompts.Finalize, prompts.Data{
		Grades:      formatGrades(t.Grades),
		Transcript:  r.transcript,
		StatedGrade: gradeLabel(t.Grades, &gradeID),
	})
	if err != nil {
		return nil, err
	}

	var final domain.FinalClassification
	err = llm.Retry(ctx, e.retry.WithFormatRetry(), "finalize", func(ctx context.Context) error {
		final = domain.FinalClassification{}
		_, err := e.llm.Chat(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   finalSchemaName,
			Schema:       finalSchema,
		}, &final)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	if final.FinalClassID != grade.ID {
		log.Warn().Str("chat_id", t.ID.String()).Int64("model_grade_id", final.FinalClassID).Int64("grade_id", grade.ID).Msg("final classification disagrees with confirmed grade")
	}
	final.FinalClass = grade.Label
	final.FinalClassID = grade.ID
	if strings.TrimSpace(final.MessageToTheUser) == "" {
		final.MessageToTheUser = fmt.Sprintf("Thank you. Your grade for this skill is %s.", grade.Label)
	}
	return &final, nil
}
