package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// keepRecent is the number of trailing messages that are never summarized.
const keepRecent = 2

// Trimmer shortens the history sent to the model. Once more than two assistant
// messages exist, every assistant message outside the last two messages is
// folded into a single summary. Employee and administrator messages are kept.
// The stored thread is never modified.
type Trimmer struct {
	llm     llm.Client
	prompts *prompts.Registry
	retry   llm.RetryPolicy
}

func NewTrimmer(client llm.Client, registry *prompts.Registry, retry llm.RetryPolicy) *Trimmer {
	return &Trimmer{llm: client, prompts: registry, retry: retry}
}

func (tr *Trimmer) Trim(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	aiCount := 0
	for _, m := range msgs {
		if m.Role == domain.RoleAI {
			aiCount++
		}
	}
	if aiCount <= keepRecent {
		return append([]domain.Message(nil), msgs...), nil
	}

	cutoff := len(msgs) - keepRecent
	first := -1
	var old []string
	for i, m := range msgs[:cutoff] {
		if m.Role != domain.RoleAI {
			continue
		}
		if first < 0 {
			first = i
		}
		old = append(old, m.Content)
	}
	if len(old) == 0 {
		return append([]domain.Message(nil), msgs...), nil
	}

	summary, err := tr.summarize(ctx, old)
	if err != nil {
		return nil, fmt.Errorf("conversation.Trimmer.Trim: %w", err)
	}

	out := make([]domain.Message, 0, len(msgs)-len(old)+1)
	for i, m := range msgs {
		switch {
		case i == first:
			out = append(out, domain.Message{Role: domain.RoleAI, Content: summary, CreatedAt: m.CreatedAt})
		case i < cutoff && m.Role == domain.RoleAI:
			// folded into the summary
		default:
			out = append(out, m)
		}
	}
	return out, nil
}

func (tr *Trimmer) summarize(ctx context.Context, questions []string) (string, error) {
	rendered, err := tr.prompts.Render(prompts.Summarize, prompts.Data{Text: strings.Join(questions, "\n")})
	if err != nil {
		return "", err
	}

	var summary string
	err = llm.Retry(ctx, tr.retry, "summarize", func(ctx context.Context) error {
		out, err := tr.llm.Complete(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   prompts.Summarize,
			Temperature:  llm.Temp(0),
		})
		if err != nil {
			return err
		}
		summary = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}
