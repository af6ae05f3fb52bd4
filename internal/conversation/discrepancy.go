package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

// NoDiscrepancy is the exact output for a jump of less than two levels.
const NoDiscrepancy = "No discrepancies found"

type discrepancyCheck struct {
	StatedGradeID   int64  `json:"stated_grade_id"`
	ReasonsProvided bool   `json:"reasons_provided"`
	ReasonsValid    bool   `json:"reasons_valid"`
	Explanation     string `json:"explanation"`
}

const discrepancySchemaName = "discrepancy_check"

var discrepancySchema = llm.GenerateSchema[discrepancyCheck]() //nolint:gochecknoglobals // generated once

// Severity classifies the absolute difference in grade values.
func Severity(delta int) domain.Severity {
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta == 0:
		return domain.SeverityNone
	case delta == 1:
		return domain.SeverityModerate
	default:
		return domain.SeverityLarge
	}
}

// Recency classifies how long ago the prior grade was recorded.
func Recency(recordedAt *time.Time, today time.Time) domain.Recency {
	if recordedAt == nil {
		return domain.RecencyOld
	}
	rec := recordedAt.UTC()
	switch {
	case today.Before(rec.AddDate(0, 4, 0)):
		return domain.RecencyRecent
	case today.Before(rec.AddDate(1, 0, 0)):
		return domain.RecencyRecentLimited
	case today.Before(rec.AddDate(2, 0, 0)):
		return domain.RecencyOld
	default:
		return domain.RecencyStale
	}
}

// Assess compares a stated grade with the prior one. A prior grade that is
// missing or no longer on the scale counts as a first evaluation.
func Assess(scale domain.GradeScale, prior *int64, recordedAt *time.Time, stated int64, today time.Time) (domain.Assessment, error) {
	sg, err := scale.Validate(stated)
	if err != nil {
		return domain.Assessment{}, err
	}

	a := domain.Assessment{StatedGradeID: sg.ID, Severity: domain.SeverityNone, Recency: domain.RecencyFirst}
	if prior == nil {
		return a, nil
	}
	pg, ok := scale.Lookup(*prior)
	if !ok {
		return a, nil
	}

	id := pg.ID
	a.PriorGradeID = &id
	a.Delta = sg.Value - pg.Value
	a.Severity = Severity(a.Delta)
	a.Recency = Recency(recordedAt, today)
	if recordedAt != nil {
		a.DaysSincePrior = DaysBetween(*recordedAt, today)
	}
	return a, nil
}

func (e *Engine) discrepancy(ctx context.Context, r *run) (StepResult, error) {
	t := r.thread

	prior, recordedAt, err := e.lookups.PriorGrade(ctx, t.Discrepancy)
	if err != nil {
		return StepResult{}, err
	}
	today := e.lookups.Today()

	var check discrepancyCheck
	if err := e.askDiscrepancy(ctx, r, prior, today, &check); err != nil {
		return StepResult{}, err
	}

	stated, ok := e.statedGrade(t, check.StatedGradeID)
	if !ok {
		t.CheckedTurn = t.HumanTurns()
		return Continue("No grade has been stated yet"), nil
	}

	a, err := Assess(t.Grades, prior, recordedAt, stated, today)
	if err != nil {
		return StepResult{}, err
	}

	sameGrade := t.CheckedGradeID != nil && *t.CheckedGradeID == stated
	t.Assessment = &a
	t.CheckedGradeID = &stated
	t.CheckedTurn = t.HumanTurns()

	log.Debug().Str("chat_id", t.ID.String()).Int("delta", a.Delta).Str("severity", string(a.Severity)).Str("recency", string(a.Recency)).Msg("discrepancy assessed")

	if a.Severity != domain.SeverityLarge {
		t.JustificationRequired = false
		t.Justified = false
		return Continue(NoDiscrepancy), nil
	}

	from := gradeLabel(t.Grades, a.PriorGradeID)
	to := gradeLabel(t.Grades, &stated)

	switch {
	case sameGrade && t.Justified:
		return Continue(fmt.Sprintf("The move from %s to %s has already been justified.", from, to)), nil
	case sameGrade && t.JustificationRequired && check.ReasonsProvided && check.ReasonsValid:
		t.Justified = true
		return Continue(fmt.Sprintf("The employee gave valid reasons for moving from %s to %s. No further justification is needed.", from, to)), nil
	case sameGrade && t.JustificationRequired:
		return Continue(strings.TrimSpace(fmt.Sprintf(
			"The reasons for moving from %s to %s are missing or not sufficient. Ask the employee for 2 or 3 concrete reasons. %s",
			from, to, check.Explanation))), nil
	default:
		t.JustificationRequired = true
		t.Justified = false
		return Continue(strings.TrimSpace(fmt.Sprintf(
			"Large discrepancy: recorded grade %s (%s, %d days ago), stated grade %s, a change of %d levels. Ask the employee for 2 or 3 reasons before moving on. %s",
			from, a.Recency, a.DaysSincePrior, to, a.Delta, check.Explanation))), nil
	}
}

func (e *Engine) askDiscrepancy(ctx context.Context, r *run, prior *int64, today time.Time, out *discrepancyCheck) error {
	t := r.thread
	assessment := "none yet"
	if t.Assessment != nil {
		assessment = fmt.Sprintf("delta %d, severity %s, recency %s, justification required %t",
			t.Assessment.Delta, t.Assessment.Severity, t.Assessment.Recency, t.JustificationRequired)
	}

	rendered, err := e.prompts.Render(prompts.Discrepancy, prompts.Data{
		Grades:     formatGrades(t.Grades),
		Transcript: r.transcript,
		PriorGrade: gradeLabel(t.Grades, prior),
		Assessment: assessment,
		Today:      today.Format(time.DateOnly),
	})
	if err != nil {
		return err
	}

	return llm.Retry(ctx, e.retry.WithFormatRetry(), "discrepancy", func(ctx context.Context) error {
		*out = discrepancyCheck{}
		_, err := e.llm.Chat(ctx, llm.Request{
			SystemPrompt: rendered.System,
			UserPrompt:   rendered.User,
			SchemaName:   discrepancySchemaName,
			Schema:       discrepancySchema,
			Temperature:  llm.Temp(0),
		}, out)
		return err
	})
}

// statedGrade prefers the latest classified rating, then the grade the
// discrepancy model read from the discussion, then the grade checked last.
func (e *Engine) statedGrade(t *domain.Thread, fromModel int64) (int64, bool) {
	if rating, ok := t.LatestRating(); ok {
		return rating.GradeID, true
	}
	if _, ok := t.Grades.Lookup(fromModel); ok {
		return fromModel, true
	}
	if t.CheckedGradeID != nil {
		return *t.CheckedGradeID, true
	}
	return 0, false
}
