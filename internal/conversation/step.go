package conversation

import "github.com/gosuda/skillmatrix/internal/domain"

type resultKind int

const (
	resultContinue resultKind = iota
	resultSuspend
)

// StepResult is what a sub-step hands back to the driver loop: either an
// output for the scratchpad or a suspension waiting for an administrator.
type StepResult struct {
	kind    resultKind
	Output  string
	Payload domain.InterruptPayload
}

func Continue(output string) StepResult {
	return StepResult{kind: resultContinue, Output: output}
}

func Suspend(payload domain.InterruptPayload) StepResult {
	return StepResult{kind: resultSuspend, Payload: payload}
}

func (r StepResult) Suspended() bool { return r.kind == resultSuspend }
