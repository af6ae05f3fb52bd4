package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// Decision is the supervisor's structured routing answer.
type Decision struct {
	Thought string          `json:"thought"`
	Call    domain.StepName `json:"call" jsonschema:"enum=discrepancy,enum=guidance,enum=feedback,enum=grading,enum=finish"`
	Reply   string          `json:"reply"`
}

const decisionSchemaName = "supervisor_decision"

var decisionSchema = llm.GenerateSchema[Decision]() //nolint:gochecknoglobals // generated once

// validate rejects calls outside the step set. Raw carries the decoded
// answer re-encoded, since the client keeps no copy of the completion.
func (d Decision) validate() error {
	if d.Call == domain.StepFinish || d.Call.IsSubStep() {
		return nil
	}
	raw, _ := json.Marshal(d)
	return &llm.FormatError{Schema: decisionSchemaName, Raw: string(raw), Err: fmt.Errorf("unknown call %q", d.Call)}
}

// supervise picks the next step. Bookkeeping rules come first so the model
// cannot skip classification, discrepancy checks or escalation.
func (e *Engine) supervise(ctx context.Context, r *run) (Decision, error) {
	if d, ok := e.route(r.thread); ok {
		log.Debug().Str("chat_id", r.thread.ID.String()).Str("step", string(d.Call)).Str("reason", d.Thought).Msg("routed without model")
		return d, nil
	}
	return e.decide(ctx, r)
}

func (e *Engine) route(t *domain.Thread) (Decision, bool) {
	turns := t.HumanTurns()

	if turns > t.ClassifiedTurn {
		return Decision{Thought: "new answer to classify", Call: domain.StepGuidance}, true
	}
	if t.Irregularities() >= e.threshold {
		return Decision{Thought: fmt.Sprintf("%d irregularities", t.Irregularities()), Call: domain.StepFeedback}, true
	}
	if rating, ok := t.LatestRating(); ok && (t.CheckedGradeID == nil || *t.CheckedGradeID != rating.GradeID) {
		return Decision{Thought: "stated grade not checked", Call: domain.StepDiscrepancy}, true
	}
	if t.JustificationPending() && turns > t.CheckedTurn {
		return Decision{Thought: "justification may have been given", Call: domain.StepDiscrepancy}, true
	}
	return Decision{}, false
}

func (e *Engine) decide(ctx context.Context, r *run) (Decision, error) {
	t := r.thread
	rendered, err := e.prompts.Render(prompts.Supervisor, prompts.Data{
		Grades:         formatGrades(t.Grades),
		Transcript:     r.transcript,
		Scratchpad:     RenderScratchpad(t.Scratchpad),
		Irregularities: t.Irregularities(),
		Threshold:      e.threshold,
		MaxTransitions: e.maxTransitions,
	})
	if err != nil {
		return Decision{}, err
	}

	var d Decision
	err = llm.Retry(ctx, e.retry.WithFormatRetry(), "supervisor", func(ctx context.Context) error {
		d = Decision{}
		if _, err := e.llm.Chat(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   decisionSchemaName,
			Schema:       decisionSchema,
			Temperature:  llm.Temp(0),
		}, &d); err != nil {
			return err
		}
		d.Call = domain.StepName(strings.ToLower(strings.TrimSpace(string(d.Call))))
		return d.validate()
	})
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: %w", err)
	}
	return d, nil
}
