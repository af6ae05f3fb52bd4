// Package conversation drives the self-assessment dialogue: a supervisor
// routes each turn through sub-steps until it can answer the employee, a
// grade is finalized, or an administrator has to step in.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/prompts"
)

const (
	DefaultMaxTransitions        = 10
	DefaultIrregularityThreshold = 3

	defaultReply = "Please state the grade from the list that best describes your expertise."
)

// Engine runs threads. It holds no per-thread state and is safe for
// concurrent use on different threads.
type Engine struct {
	llm            llm.Client
	prompts        *prompts.Registry
	checkpoints    domain.Checkpointer
	lookups        Lookups
	trimmer        *Trimmer
	retry          llm.RetryPolicy
	maxTransitions int
	threshold      int
}

type Option func(*Engine)

// WithMaxTransitions bounds the supervisor to sub-step transitions per run.
func WithMaxTransitions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTransitions = n
		}
	}
}

// WithIrregularityThreshold sets how many irregularities trigger escalation.
func WithIrregularityThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

func WithLookups(l Lookups) Option {
	return func(e *Engine) {
		e.lookups = l
	}
}

func NewEngine(client llm.Client, registry *prompts.Registry, checkpoints domain.Checkpointer, opts ...Option) *Engine {
	e := &Engine{
		llm:            client,
		prompts:        registry,
		checkpoints:    checkpoints,
		lookups:        ContextLookups{},
		retry:          llm.DefaultRetryPolicy(),
		maxTransitions: DefaultMaxTransitions,
		threshold:      DefaultIrregularityThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.trimmer = NewTrimmer(client, registry, e.retry)
	return e
}

// RunBudget is the longest one Run or Resume can spend on model calls, with
// every call exhausting the retry policy. It is zero when model calls have no
// per-attempt deadline.
func (e *Engine) RunBudget() time.Duration {
	calls := 2*e.maxTransitions + 3
	return time.Duration(calls) * e.retry.Budget()
}

// run carries what one drive of the loop shares between steps.
type run struct {
	thread     *domain.Thread
	transcript string
	emit       EmitFunc
}

// Run processes the messages already appended to t and persists the result.
// Nothing is persisted when an error is returned.
func (e *Engine) Run(ctx context.Context, t *domain.Thread, emit EmitFunc) (*Outcome, error) {
	if t.Completed() {
		return nil, fmt.Errorf("conversation.Engine.Run: %w", ErrThreadCompleted)
	}
	if t.Blocked() {
		return nil, fmt.Errorf("conversation.Engine.Run: %w", ErrThreadBlocked)
	}

	t.Scratchpad = nil
	t.NextSteps = []domain.StepName{domain.StepSupervisor}

	out, err := e.drive(ctx, t, emit)
	if err != nil {
		return nil, fmt.Errorf("conversation.Engine.Run: %w", err)
	}

	if err := e.save(ctx, t); err != nil {
		return nil, fmt.Errorf("conversation.Engine.Run: %w", err)
	}
	return out, nil
}

// Resume answers the outstanding interrupt of a thread with an
// administrator's value. A grade finalizes the thread directly; a message is
// handed to the supervisor as the suspended step's output.
func (e *Engine) Resume(ctx context.Context, threadID uuid.UUID, value domain.ResumeValue, emit EmitFunc) (*Outcome, error) {
	t, err := e.checkpoints.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Engine.Resume: %w", err)
	}
	if t.Completed() {
		return nil, fmt.Errorf("conversation.Engine.Resume: %w", ErrThreadCompleted)
	}
	if !t.Blocked() {
		return nil, fmt.Errorf("conversation.Engine.Resume: %w", ErrNoPendingInterrupt)
	}

	var grade domain.Grade
	if value.GradeID != nil {
		grade, err = t.Grades.Validate(*value.GradeID)
		if err != nil {
			return nil, fmt.Errorf("conversation.Engine.Resume: %w: %w", ErrUnknownGrade, err)
		}
	}

	token := t.Interrupt
	t.Interrupt = nil
	t.LastResume = &domain.ResumeRecord{InterruptID: token.ID, Value: value, ResumedAt: time.Now().UTC()}
	// The administrator has looked at everything that led here.
	t.Evasions = 0
	for i := range t.Ratings {
		t.Ratings[i].Explained = true
	}
	if value.Message != "" {
		t.AppendMessage(domain.RoleAdmin, value.Message)
	}

	log.Info().Str("chat_id", t.ID.String()).Str("interrupt_id", token.ID.String()).Bool("with_grade", value.GradeID != nil).Msg("resuming thread")

	var out *Outcome
	if value.GradeID != nil {
		out = e.finalizeWithAdminGrade(t, grade, emit)
	} else {
		t.Scratchpad = append(t.Scratchpad, domain.StepOutput{Step: token.Step, Content: "Administrator: " + value.Message})
		t.NextSteps = []domain.StepName{domain.StepSupervisor}
		out, err = e.drive(ctx, t, emit)
		if err != nil {
			return nil, fmt.Errorf("conversation.Engine.Resume: %w", err)
		}
	}

	if err := e.save(ctx, t); err != nil {
		return nil, fmt.Errorf("conversation.Engine.Resume: %w", err)
	}
	return out, nil
}

func (e *Engine) save(ctx context.Context, t *domain.Thread) error {
	t.UpdatedAt = time.Now().UTC()
	if err := e.checkpoints.Put(ctx, t); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// drive loops supervisor -> sub-step -> supervisor until finish, suspension
// or the transition cap.
func (e *Engine) drive(ctx context.Context, t *domain.Thread, emit EmitFunc) (*Outcome, error) {
	trimmed, err := e.trimmer.Trim(ctx, t.Messages)
	if err != nil {
		return nil, err
	}
	r := &run{thread: t, transcript: RenderTranscript(trimmed), emit: emit}

	var reply string
	transitions := 0
	for {
		d, err := e.supervise(ctx, r)
		if err != nil {
			return nil, err
		}
		if d.Reply != "" {
			reply = d.Reply
		}

		if d.Call == domain.StepFinish {
			return e.finish(ctx, r, reply)
		}
		if transitions >= e.maxTransitions {
			log.Warn().Str("chat_id", t.ID.String()).Int("transitions", transitions).Str("step", string(d.Call)).Msg("transition limit reached, forcing finish")
			return e.finish(ctx, r, reply)
		}
		transitions++

		t.NextSteps = []domain.StepName{d.Call}
		res, err := e.runStep(ctx, r, d.Call)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Call, err)
		}

		if res.Suspended() {
			return e.suspend(r, d.Call, res.Payload), nil
		}

		log.Debug().Str("chat_id", t.ID.String()).Str("step", string(d.Call)).Msg("step completed")
		t.Scratchpad = append(t.Scratchpad, domain.StepOutput{Step: d.Call, Content: res.Output})
		t.NextSteps = []domain.StepName{domain.StepSupervisor}
	}
}

func (e *Engine) runStep(ctx context.Context, r *run, step domain.StepName) (StepResult, error) {
	switch step {
	case domain.StepDiscrepancy:
		r.emit.emit(Event{Type: PhaseClassifying})
		return e.discrepancy(ctx, r)
	case domain.StepGuidance:
		r.emit.emit(Event{Type: PhaseClassifyingAnswer})
		return e.guidance(ctx, r)
	case domain.StepFeedback:
		return e.feedback(ctx, r)
	case domain.StepGrading:
		r.emit.emit(Event{Type: PhaseClassifying})
		return e.grading(ctx, r)
	default:
		return StepResult{}, fmt.Errorf("unknown step %q", step)
	}
}

func (e *Engine) suspend(r *run, step domain.StepName, payload domain.InterruptPayload) *Outcome {
	t := r.thread
	t.Interrupt = &domain.InterruptToken{
		ID:        uuid.New(),
		Step:      step,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	t.NextSteps = []domain.StepName{step}
	t.AppendMessage(domain.RoleAI, payload.AnswerToRevisit)

	log.Info().Str("chat_id", t.ID.String()).Str("step", string(step)).Str("reason", payload.Reason).Msg("thread suspended for administrator")

	r.emit.emit(Event{
		Type:                PhaseInterrupt,
		InterruptHappened:   true,
		InterruptValue:      payload.AnswerToRevisit,
		Message:             payload.AnswerToRevisit,
		ShouldAdminContinue: true,
	})

	return &Outcome{
		Thread:              t,
		Reply:               payload.AnswerToRevisit,
		Interrupt:           t.Interrupt,
		ShouldAdminContinue: true,
	}
}

// finish either finalizes a confirmed grade or hands the supervisor's reply
// to the employee and leaves the thread open.
func (e *Engine) finish(ctx context.Context, r *run, reply string) (*Outcome, error) {
	t := r.thread
	t.NextSteps = nil

	if t.ConfirmedGradeID != nil && !t.JustificationPending() {
		final, err := e.finalize(ctx, r, *t.ConfirmedGradeID)
		if err != nil {
			return nil, err
		}
		return e.complete(r, final), nil
	}

	if reply == "" {
		reply = defaultReply
	}
	t.AppendMessage(domain.RoleAI, reply)
	r.emit.emit(Event{Type: PhaseReply, Message: reply, ShouldAdminContinue: t.AdminSuggested})

	return &Outcome{Thread: t, Reply: reply, ShouldAdminContinue: t.AdminSuggested}, nil
}

func (e *Engine) complete(r *run, final *domain.FinalClassification) *Outcome {
	t := r.thread
	t.Final = final
	t.NextSteps = nil
	t.AppendMessage(domain.RoleAI, final.MessageToTheUser)

	log.Info().Str("chat_id", t.ID.String()).Int64("grade_id", final.FinalClassID).Msg("thread finalized")

	r.emit.emit(Event{Type: PhaseFinalizing, Message: final.MessageToTheUser, FinalResult: encodeFinal(final)})
	return &Outcome{Thread: t, Reply: final.MessageToTheUser, Final: final}
}

func (e *Engine) finalizeWithAdminGrade(t *domain.Thread, grade domain.Grade, emit EmitFunc) *Outcome {
	id := grade.ID
	t.ConfirmedGradeID = &id
	final := &domain.FinalClassification{
		FinalClass:       grade.Label,
		FinalClassID:     grade.ID,
		MessageToTheUser: fmt.Sprintf("An administrator has reviewed your self-evaluation. Your grade for this skill is %s.", grade.Label),
	}
	return e.complete(&run{thread: t, emit: emit}, final)
}
