package conversation

import (
	"encoding/json"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// Stream phase labels.
const (
	PhaseClassifyingAnswer = "Classifying answer"
	PhaseClassifying       = "Classifying"
	PhaseInterrupt         = "Interrupt"
	PhaseFinalizing        = "Finalizing"
	PhaseReply             = "Reply"
	PhaseError             = "error"
)

// Event is one chunk of the response stream.
type Event struct {
	Type                string `json:"type"`
	InterruptHappened   bool   `json:"interrupt_happened"`
	InterruptValue      string `json:"interrupt_value"`
	Message             string `json:"message"`
	FinalResult         string `json:"final_result"`
	ShouldAdminContinue bool   `json:"should_admin_continue"`
}

// EmitFunc receives events as the engine makes progress. It must not block for long.
type EmitFunc func(Event)

func (f EmitFunc) emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Outcome summarizes one run or resume.
type Outcome struct {
	Thread              *domain.Thread
	Reply               string
	Interrupt           *domain.InterruptToken
	Final               *domain.FinalClassification
	ShouldAdminContinue bool
}

func (o *Outcome) Interrupted() bool { return o.Interrupt != nil }

// encodeFinal renders the final classification for the final_result field.
func encodeFinal(f *domain.FinalClassification) string {
	if f == nil {
		return ""
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(raw)
}
