package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// AnswerKind classifies the employee's latest answer.
type AnswerKind string

const (
	AnswerDirect    AnswerKind = "direct"
	AnswerNeedHelp  AnswerKind = "need_help"
	AnswerEvasion   AnswerKind = "evasion"
	AnswerConfusion AnswerKind = "confusion"
	AnswerUnknown   AnswerKind = "unknown"
)

// GuidanceAnswer is the guidance model's structured reply.
type GuidanceAnswer struct {
	HasUserAnswered          bool       `json:"has_user_answered"`
	ExpertiseLevel           string     `json:"expertise_level"`
	IsMoreCategoriesAnswered bool       `json:"is_more_categories_answered"`
	ExpertiseID              int64      `json:"expertise_id"`
	ShouldAdminBeInvolved    bool       `json:"should_admin_be_involved"`
	AnswerKind               AnswerKind `json:"answer_kind" jsonschema:"enum=direct,enum=need_help,enum=evasion,enum=confusion,enum=unknown"`
	HasExplanation           bool       `json:"has_explanation"`
	Message                  string     `json:"message"`
}

const guidanceSchemaName = "guidance_answer"

var guidanceSchema = llm.GenerateSchema[GuidanceAnswer]() //nolint:gochecknoglobals // generated once

// fallbackGuidance is used when the model's output cannot be parsed.
func fallbackGuidance(raw string) GuidanceAnswer {
	return GuidanceAnswer{AnswerKind: AnswerUnknown, Message: llm.StripFences(raw)}
}

func (e *Engine) guidance(ctx context.Context, r *run) (StepResult, error) {
	t := r.thread

	ans, err := e.askGuidance(ctx, r)
	if err != nil {
		return StepResult{}, err
	}

	switch ans.AnswerKind {
	case AnswerDirect, AnswerNeedHelp, AnswerEvasion, AnswerConfusion:
	default:
		ans.AnswerKind = AnswerUnknown
	}

	// Counters only move once per employee message, however often the
	// supervisor asks for guidance.
	turns := t.HumanTurns()
	if turns > t.ClassifiedTurn {
		t.ClassifiedTurn = turns
		e.recordAnswer(t, ans)
	}

	stated := "none"
	if g, ok := t.Grades.Lookup(ans.ExpertiseID); ok {
		stated = g.Label
	}
	return Continue(fmt.Sprintf("answer=%s stated=%s explained=%t answered=%t: %s",
		ans.AnswerKind, stated, ans.HasExplanation, ans.HasUserAnswered, ans.Message)), nil
}

func (e *Engine) recordAnswer(t *domain.Thread, ans GuidanceAnswer) {
	if ans.AnswerKind == AnswerEvasion || ans.AnswerKind == AnswerConfusion {
		t.Evasions++
	}
	if ans.ShouldAdminBeInvolved {
		t.AdminSuggested = true
	}
	if ans.IsMoreCategoriesAnswered {
		return
	}

	g, ok := t.Grades.Lookup(ans.ExpertiseID)
	if !ok {
		return
	}
	t.Ratings = append(t.Ratings, domain.Rating{GradeID: g.ID, Value: g.Value, Explained: ans.HasExplanation})
	if t.ConfirmedGradeID != nil && *t.ConfirmedGradeID != g.ID {
		t.ConfirmedGradeID = nil
	}
}

// askGuidance degrades to a safe default record on malformed output instead
// of failing the turn.
func (e *Engine) askGuidance(ctx context.Context, r *run) (GuidanceAnswer, error) {
	t := r.thread
	rendered, err := e.prompts.Render(prompts.Guidance, prompts.Data{
		SkillName:        t.Subject.SkillName,
		SkillDescription: t.Subject.SkillDescription,
		Grades:           formatGrades(t.Grades),
		Transcript:       r.transcript,
	})
	if err != nil {
		return GuidanceAnswer{}, err
	}

	var ans GuidanceAnswer
	err = llm.Retry(ctx, e.retry, "guidance", func(ctx context.Context) error {
		ans = GuidanceAnswer{}
		_, err := e.llm.Chat(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   guidanceSchemaName,
			Schema:       guidanceSchema,
			Temperature:  llm.Temp(0),
		}, &ans)
		return err
	})

	var fe *llm.FormatError
	if errors.As(err, &fe) {
		return fallbackGuidance(fe.Raw), nil
	}
	if err != nil {
		return GuidanceAnswer{}, err
	}
	return ans, nil
}
