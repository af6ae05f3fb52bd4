package conversation

import "errors"

var (
	// ErrNoPendingInterrupt is returned when resuming a thread that is not suspended.
	ErrNoPendingInterrupt = errors.New("conversation: no pending interrupt") //nolint:gochecknoglobals // sentinel error
	// ErrThreadCompleted is returned when a thread already has a final classification.
	ErrThreadCompleted = errors.New("conversation: thread completed") //nolint:gochecknoglobals // sentinel error
	// ErrThreadBlocked is returned when new messages arrive while an administrator is expected.
	ErrThreadBlocked = errors.New("conversation: thread waiting for administrator") //nolint:gochecknoglobals // sentinel error
	// ErrUnknownGrade is returned when a resume value names a grade outside the scale.
	ErrUnknownGrade = errors.New("conversation: unknown grade") //nolint:gochecknoglobals // sentinel error
	// ErrThreadBusy is returned when another request holds the thread lock.
	ErrThreadBusy = errors.New("conversation: thread busy") //nolint:gochecknoglobals // sentinel error
)
