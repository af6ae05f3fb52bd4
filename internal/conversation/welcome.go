package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// Welcome writes the greeting that opens a thread, appends it and persists
// the new thread.
func (e *Engine) Welcome(ctx context.Context, t *domain.Thread) (string, error) {
	rendered, err := e.prompts.Render(prompts.Welcome, prompts.Data{
		UserName:         t.Subject.UserName,
		SkillName:        t.Subject.SkillName,
		SkillDescription: t.Subject.SkillDescription,
		Grades:           formatGrades(t.Grades),
	})
	if err != nil {
		return "", fmt.Errorf("conversation.Engine.Welcome: %w", err)
	}

	var msg string
	err = llm.Retry(ctx, e.retry, "welcome", func(ctx context.Context) error {
		out, err := e.llm.Complete(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   prompts.Welcome,
		})
		if err != nil {
			return err
		}
		msg = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("conversation.Engine.Welcome: %w", err)
	}

	t.AppendMessage(domain.RoleAI, msg)
	if err := e.save(ctx, t); err != nil {
		return "", fmt.Errorf("conversation.Engine.Welcome: %w", err)
	}
	return msg, nil
}
