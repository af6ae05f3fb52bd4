package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// feedback writes the message an administrator reviews and always suspends.
func (e *Engine) feedback(ctx context.Context, r *run) (StepResult, error) {
	t := r.thread
	rendered, err := e.prompts.Render(prompts.Feedback, prompts.Data{
		Transcript: r.transcript,
		Scratchpad: RenderScratchpad(t.Scratchpad),
	})
	if err != nil {
		return StepResult{}, err
	}

	var msg string
	err = llm.Retry(ctx, e.retry, "feedback", func(ctx context.Context) error {
		out, err := e.llm.Complete(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   prompts.Feedback,
		})
		if err != nil {
			return err
		}
		msg = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return StepResult{}, err
	}

	return Suspend(domain.InterruptPayload{
		AnswerToRevisit: msg,
		Reason:          fmt.Sprintf("%d irregularities (%d evasive answers)", t.Irregularities(), t.Evasions),
	}), nil
}
