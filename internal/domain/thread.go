package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleAdmin Role = "admin"
)

type StepName string

const (
	StepSupervisor  StepName = "supervisor"
	StepDiscrepancy StepName = "discrepancy"
	StepGuidance    StepName = "guidance"
	StepFeedback    StepName = "feedback"
	StepGrading     StepName = "grading"
	StepFinish      StepName = "finish"
)

// IsSubStep reports whether n is one of the steps the supervisor may call.
func (n StepName) IsSubStep() bool {
	switch n {
	case StepDiscrepancy, StepGuidance, StepFeedback, StepGrading:
		return true
	default:
		return false
	}
}

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StepOutput is one entry of the scratchpad fed back to the supervisor.
type StepOutput struct {
	Step    StepName `json:"step"`
	Content string   `json:"content"`
}

// DiscrepancyContext identifies the grade a newly stated grade is compared against.
type DiscrepancyContext struct {
	UserID     int64      `json:"user_id"`
	SkillID    int64      `json:"skill_id"`
	GradeID    *int64     `json:"grade_id,omitempty"` // nil on a first evaluation
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityModerate Severity = "moderate"
	SeverityLarge    Severity = "large"
)

type Recency string

const (
	RecencyFirst         Recency = "first_evaluation"
	RecencyRecent        Recency = "recent"         // under 4 months
	RecencyRecentLimited Recency = "recent_limited" // 4 months to 1 year
	RecencyOld           Recency = "old"            // over 1 year
	RecencyStale         Recency = "stale"          // over 2 years
)

// Subject names who is rated on what. It is copied into the thread when the
// conversation starts so prompts can be rendered without extra lookups.
type Subject struct {
	UserName         string `json:"user_name"`
	SkillName        string `json:"skill_name"`
	SkillDescription string `json:"skill_description"`
}

// Assessment is the numeric result of the last discrepancy check.
type Assessment struct {
	StatedGradeID  int64    `json:"stated_grade_id"`
	PriorGradeID   *int64   `json:"prior_grade_id,omitempty"`
	Delta          int      `json:"delta"`
	Severity       Severity `json:"severity"`
	Recency        Recency  `json:"recency"`
	DaysSincePrior int      `json:"days_since_prior"`
}

// Rating is a grade the user stated for themselves in one turn.
type Rating struct {
	GradeID   int64 `json:"grade_id"`
	Value     int   `json:"value"`
	Explained bool  `json:"explained"`
}

type InterruptPayload struct {
	AnswerToRevisit string `json:"answer_to_revisit"`
	Reason          string `json:"reason,omitempty"`
}

// InterruptToken marks a thread as suspended until an administrator answers.
type InterruptToken struct {
	ID        uuid.UUID        `json:"id"`
	Step      StepName         `json:"step"`
	Payload   InterruptPayload `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
}

// ResumeValue is what an administrator supplies to unblock a thread.
type ResumeValue struct {
	GradeID *int64 `json:"grade_id,omitempty"`
	Message string `json:"message,omitempty"`
	AdminID *int64 `json:"admin_id,omitempty"`
}

type ResumeRecord struct {
	InterruptID uuid.UUID   `json:"interrupt_id"`
	Value       ResumeValue `json:"value"`
	ResumedAt   time.Time   `json:"resumed_at"`
}

type FinalClassification struct {
	FinalClass       string `json:"final_class"`
	FinalClassID     int64  `json:"final_class_id"`
	MessageToTheUser string `json:"message_to_the_user"`
}

// Thread is the persisted state of one conversation.
type Thread struct {
	ID                    uuid.UUID            `json:"id"`
	Version               int                  `json:"version"`
	Discrepancy           DiscrepancyContext   `json:"discrepancy"`
	Subject               Subject              `json:"subject"`
	Grades                GradeScale           `json:"grades"`
	Messages              []Message            `json:"messages"`
	Scratchpad            []StepOutput         `json:"scratchpad"`
	NextSteps             []StepName           `json:"next_steps"`
	Interrupt             *InterruptToken      `json:"interrupt,omitempty"`
	Ratings               []Rating             `json:"ratings"`
	Evasions              int                  `json:"evasions"`
	Assessment            *Assessment          `json:"assessment,omitempty"`
	CheckedGradeID        *int64               `json:"checked_grade_id,omitempty"`
	CheckedTurn           int                  `json:"checked_turn"`
	ClassifiedTurn        int                  `json:"classified_turn"`
	AdminSuggested        bool                 `json:"admin_suggested"`
	JustificationRequired bool                 `json:"justification_required"`
	Justified             bool                 `json:"justified"`
	ConfirmedGradeID      *int64               `json:"confirmed_grade_id,omitempty"`
	Final                 *FinalClassification `json:"final,omitempty"`
	LastResume            *ResumeRecord        `json:"last_resume,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// NewThread creates an empty thread for the given chat.
func NewThread(id uuid.UUID, dc DiscrepancyContext, grades GradeScale) *Thread {
	now := time.Now().UTC()
	return &Thread{
		ID:          id,
		Discrepancy: dc,
		Grades:      grades,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendMessage is the only way messages enter a thread.
func (t *Thread) AppendMessage(role Role, content string) {
	t.Messages = append(t.Messages, Message{Role: role, Content: content, CreatedAt: time.Now().UTC()})
}

// HumanTurns counts the human messages in the thread.
func (t *Thread) HumanTurns() int {
	n := 0
	for _, m := range t.Messages {
		if m.Role == RoleHuman {
			n++
		}
	}
	return n
}

// JustificationPending reports whether a large discrepancy still needs reasons.
func (t *Thread) JustificationPending() bool {
	return t.JustificationRequired && !t.Justified
}

// Blocked reports whether an interrupt is outstanding.
func (t *Thread) Blocked() bool { return t.Interrupt != nil }

// Completed reports whether a final classification exists.
func (t *Thread) Completed() bool { return t.Final != nil }

// LatestRating returns the most recent self-rating, if any.
func (t *Thread) LatestRating() (Rating, bool) {
	if len(t.Ratings) == 0 {
		return Rating{}, false
	}
	return t.Ratings[len(t.Ratings)-1], true
}

// InconsistentRun counts the trailing unexplained ratings when they spread
// over two or more grade values; it is zero otherwise.
func (t *Thread) InconsistentRun() int {
	start := len(t.Ratings)
	for start > 0 && !t.Ratings[start-1].Explained {
		start--
	}
	run := t.Ratings[start:]
	if len(run) < 2 {
		return 0
	}
	lo, hi := run[0].Value, run[0].Value
	for _, r := range run[1:] {
		lo = min(lo, r.Value)
		hi = max(hi, r.Value)
	}
	if hi-lo < 2 {
		return 0
	}
	return len(run)
}

// Irregularities is evasive answers plus unexplained inconsistent ratings.
func (t *Thread) Irregularities() int {
	return t.Evasions + t.InconsistentRun()
}

// Checkpoint is one stored version of a thread.
type Checkpoint struct {
	ThreadID  uuid.UUID `json:"thread_id"`
	Version   int       `json:"version"`
	State     []byte    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeThread serializes a thread for storage.
func EncodeThread(t *Thread) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeThread: %w", err)
	}
	return b, nil
}

// DecodeThread restores a thread stored at the given version.
func DecodeThread(state []byte, version int) (*Thread, error) {
	var t Thread
	if err := json.Unmarshal(state, &t); err != nil {
		return nil, fmt.Errorf("domain.DecodeThread: %w", err)
	}
	t.Version = version
	return &t, nil
}

// Checkpointer persists thread state. Put writes thread.Version+1 and fails
// with ErrConflict if the stored latest version is not thread.Version.
type Checkpointer interface {
	Get(ctx context.Context, threadID uuid.UUID) (*Thread, error)
	Put(ctx context.Context, t *Thread) error
	List(ctx context.Context, threadID uuid.UUID) ([]*Checkpoint, error)
}
