package conversation

import (
	"fmt"
	"strings"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// RenderTranscript formats messages the way every prompt expects them:
// questions from the assistant, answers from the employee and administrator
// notes, one per line in stored order.
func RenderTranscript(msgs []domain.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch m.Role {
		case domain.RoleAI:
			sb.WriteString("Question: ")
		case domain.RoleHuman:
			sb.WriteString("Answer: ")
		case domain.RoleAdmin:
			sb.WriteString("Administrator: ")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// RenderScratchpad formats sub-step outputs as "<step>: <text>" lines.
func RenderScratchpad(outputs []domain.StepOutput) string {
	lines := make([]string, 0, len(outputs))
	for _, o := range outputs {
		lines = append(lines, string(o.Step)+": "+o.Content)
	}
	return strings.Join(lines, "\n")
}

func formatGrades(scale domain.GradeScale) string {
	active := scale.Active()
	lines := make([]string, 0, len(active))
	for _, g := range active {
		lines = append(lines, fmt.Sprintf("- id=%d label=%s value=%d", g.ID, g.Label, g.Value))
	}
	return strings.Join(lines, "\n")
}

func gradeLabel(scale domain.GradeScale, id *int64) string {
	if id == nil {
		return "none"
	}
	if g, ok := scale.Lookup(*id); ok {
		return fmt.Sprintf("%s (id=%d, value=%d)", g.Label, g.ID, g.Value)
	}
	return fmt.Sprintf("unknown (id=%d)", *id)
}
