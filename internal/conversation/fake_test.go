package conversation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
	"github.com/gosuda/skillmatrix/internal/store/memory"
)

// fakeLLM replays scripted answers per schema name. Free-text calls without a
// script get a canned answer.
type fakeLLM struct {
	mu       sync.Mutex
	chat     map[string][]string
	complete map[string][]string
	calls    map[string]int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		chat:     make(map[string][]string),
		complete: make(map[string][]string),
		calls:    make(map[string]int),
	}
}

func (f *fakeLLM) script(schema string, responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chat[schema] = append(f.chat[schema], responses...)
}

func (f *fakeLLM) scriptText(name string, responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete[name] = append(f.complete[name], responses...)
}

func (f *fakeLLM) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeLLM) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	queue := f.chat[req.SchemaName]
	if len(queue) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("fake: no scripted %s response", req.SchemaName)
	}
	raw := queue[0]
	f.chat[req.SchemaName] = queue[1:]
	f.mu.Unlock()

	return &llm.Response{}, llm.DecodeJSON(req.SchemaName, raw, result)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.SchemaName]++
	queue := f.complete[req.SchemaName]
	if len(queue) == 0 {
		return req.SchemaName + " text", nil
	}
	f.complete[req.SchemaName] = queue[1:]
	return queue[0], nil
}

func (f *fakeLLM) Model() string { return "fake" }

// ---------------------------------------------------------------------------
// Scripted answers
// ---------------------------------------------------------------------------

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func decision(call, reply string) string {
	return mustJSON(map[string]string{"thought": "thinking", "call": call, "reply": reply})
}

func guidance(kind string, gradeID int64, explained bool) string {
	return mustJSON(conversation.GuidanceAnswer{
		HasUserAnswered: gradeID != 0,
		ExpertiseID:     gradeID,
		AnswerKind:      conversation.AnswerKind(kind),
		HasExplanation:  explained,
		Message:         "noted",
	})
}

func discrepancy(stated int64, provided, valid bool) string {
	return mustJSON(map[string]any{
		"stated_grade_id":  stated,
		"reasons_provided": provided,
		"reasons_valid":    valid,
		"explanation":      "",
	})
}

func grading(confirmed bool, gradeID int64) string {
	return mustJSON(map[string]any{"confirmed": confirmed, "grade_id": gradeID, "message": "checked"})
}

func final(gradeID int64, label, msg string) string {
	return mustJSON(domain.FinalClassification{FinalClass: label, FinalClassID: gradeID, MessageToTheUser: msg})
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	schemaDecision    = "supervisor_decision"
	schemaGuidance    = "guidance_answer"
	schemaDiscrepancy = "discrepancy_check"
	schemaGrading     = "grading_result"
	schemaFinal       = "final_classification"
)

var today = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed test clock

func scale() domain.GradeScale {
	return domain.GradeScale{
		{ID: 1, Label: "Novice", Value: 1},
		{ID: 2, Label: "Beginner", Value: 2},
		{ID: 3, Label: "Intermediate", Value: 3},
		{ID: 4, Label: "Advanced", Value: 4},
		{ID: 5, Label: "Proficient", Value: 5},
		{ID: 6, Label: "Expert", Value: 6},
		{ID: 7, Label: "Master", Value: 7},
	}
}

func fastRetry() llm.RetryPolicy {
	return llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func newEngine(t *testing.T, fake *fakeLLM, opts ...conversation.Option) (*conversation.Engine, *memory.Checkpointer) {
	t.Helper()

	registry, err := prompts.Default()
	require.NoError(t, err)

	store := memory.NewCheckpointer()
	base := []conversation.Option{
		conversation.WithRetryPolicy(fastRetry()),
		conversation.WithLookups(conversation.ContextLookups{Now: func() time.Time { return today }}),
	}
	return conversation.NewEngine(fake, registry, store, append(base, opts...)...), store
}

// newThread returns a thread whose prior grade, if any, was recorded daysAgo.
func newThread(prior *int64, daysAgo int) *domain.Thread {
	dc := domain.DiscrepancyContext{UserID: 1, SkillID: 1}
	if prior != nil {
		recorded := today.AddDate(0, 0, -daysAgo)
		dc.GradeID = prior
		dc.RecordedAt = &recorded
	}
	th := domain.NewThread(uuid.New(), dc, scale())
	th.Subject = domain.Subject{UserName: "Ana", SkillName: "Go", SkillDescription: "The Go language"}
	th.AppendMessage(domain.RoleAI, "Welcome! Which grade describes your Go expertise?")
	return th
}

func ptr[T any](v T) *T { return &v }
