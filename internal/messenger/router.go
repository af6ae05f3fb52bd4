package messenger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// ErrEscalationNotFound is returned when a thread does not belong to any escalation.
var ErrEscalationNotFound = errors.New("messenger: escalation not found") //nolint:gochecknoglobals // sentinel error

// ErrAlreadyResolved is returned when answering an escalation that was already settled.
var ErrAlreadyResolved = errors.New("messenger: escalation already resolved") //nolint:gochecknoglobals // sentinel error

// ResumeFunc is called when an administrator answers an escalation so the
// blocked chat can continue.
type ResumeFunc func(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue) error

// NotificationRepository is the subset of domain.NotificationRepository used by the router.
type NotificationRepository interface {
	GetByThreadID(ctx context.Context, platform, threadID string) (*domain.Notification, error)
	AttachThread(ctx context.Context, id uuid.UUID, platform, threadID string) error
	ListExpired(ctx context.Context) ([]*domain.Notification, error)
	ExtendTimeout(ctx context.Context, id uuid.UUID, timeoutAt time.Time) error
}

// Router mirrors interrupt notifications into messenger threads and turns
// administrator answers back into resumes.
type Router struct {
	notifications NotificationRepository
	messenger     Messenger
	resume        ResumeFunc
	channelID     string
	timeout       time.Duration
	pollInterval  time.Duration
}

// RouterOption configures optional Router parameters.
type RouterOption func(*Router)

// WithPollInterval sets the interval at which the timeout watcher checks for expired escalations.
func WithPollInterval(d time.Duration) RouterOption {
	return func(r *Router) {
		r.pollInterval = d
	}
}

// WithTimeout sets how long an escalation may stay unanswered before it is
// announced again. Zero disables reminders.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

// NewRouter creates a Router posting escalations to channelID.
func NewRouter(
	notifications NotificationRepository,
	msg Messenger,
	channelID string,
	resume ResumeFunc,
	opts ...RouterOption,
) *Router {
	r := &Router{
		notifications: notifications,
		messenger:     msg,
		resume:        resume,
		channelID:     channelID,
		pollInterval:  time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Escalate posts a parent message for the notification and a thread with one
// option per active grade, then links the thread to the notification.
func (r *Router) Escalate(ctx context.Context, chat *domain.Chat, n *domain.Notification, payload domain.InterruptPayload, grades domain.GradeScale) error {
	msgID, err := r.messenger.SendMessage(ctx, r.channelID, n.Message)
	if err != nil {
		return fmt.Errorf("messenger.Router.Escalate: send message: %w", err)
	}

	active := grades.Active()
	options := make([]Option, 0, len(active))
	for _, g := range active {
		options = append(options, Option{Label: g.Label, Value: strconv.FormatInt(g.ID, 10)})
	}

	threadID, err := r.messenger.CreateThread(ctx, r.channelID, msgID, escalationText(chat, payload), options)
	if err != nil {
		return fmt.Errorf("messenger.Router.Escalate: create thread: %w", err)
	}

	if err := r.notifications.AttachThread(ctx, n.ID, r.messenger.Platform(), string(threadID)); err != nil {
		return fmt.Errorf("messenger.Router.Escalate: attach thread: %w", err)
	}

	if r.timeout > 0 {
		if err := r.notifications.ExtendTimeout(ctx, n.ID, time.Now().UTC().Add(r.timeout)); err != nil {
			return fmt.Errorf("messenger.Router.Escalate: set timeout: %w", err)
		}
	}

	return nil
}

func escalationText(chat *domain.Chat, payload domain.InterruptPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat `%s` (user %d, skill %d) needs a grade.\n", chat.ID, chat.UserID, chat.SkillID)
	if payload.Reason != "" {
		fmt.Fprintf(&b, "*Reason:* %s\n", payload.Reason)
	}
	if payload.AnswerToRevisit != "" {
		fmt.Fprintf(&b, "*Answer to revisit:* %s\n", payload.AnswerToRevisit)
	}
	b.WriteString("Pick a grade below, or reply in this thread with the grade id followed by a note.")
	return b.String()
}

// HandleResponse processes an administrator answer received from the messenger
// platform. It looks up the escalation by thread and resumes its chat.
func (r *Router) HandleResponse(ctx context.Context, platform, threadID string, value domain.ResumeValue) error {
	n, err := r.notifications.GetByThreadID(ctx, platform, threadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("messenger.Router.HandleResponse: thread %s: %w", threadID, ErrEscalationNotFound)
		}
		return fmt.Errorf("messenger.Router.HandleResponse: get by thread: %w", err)
	}

	if n.Status == domain.NotificationStatusResolved {
		return fmt.Errorf("messenger.Router.HandleResponse: chat %s: %w", n.ChatID, ErrAlreadyResolved)
	}

	if err := r.resume(ctx, n.ChatID, value); err != nil {
		return fmt.Errorf("messenger.Router.HandleResponse: resume chat: %w", err)
	}

	// Best-effort: mark the thread as handled.
	text := "Resolved."
	if value.GradeID != nil {
		text = fmt.Sprintf("Resolved with grade %d.", *value.GradeID)
	}
	if updateErr := r.messenger.UpdateMessage(ctx, r.channelID, MessageID(threadID), text); updateErr != nil {
		log.Error().Err(updateErr).Str("thread_id", threadID).Msg("update escalation thread")
	}

	return nil
}

// StartTimeoutWatcher polls for escalations nobody answered in time and
// announces them again. It blocks until the context is cancelled.
func (r *Router) StartTimeoutWatcher(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.processExpired(ctx)
		}
	}
}

// processExpired re-announces each expired escalation and pushes its timeout
// forward so it is reminded once per period.
func (r *Router) processExpired(ctx context.Context) {
	expired, err := r.notifications.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list expired escalations")
		return
	}

	for _, n := range expired {
		msg := fmt.Sprintf("Still waiting for an administrator: chat `%s`.", n.ChatID)
		if n.MessengerThreadID != "" {
			if _, err := r.messenger.CreateThread(ctx, r.channelID, MessageID(n.MessengerThreadID), msg, nil); err != nil {
				log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("remind escalation")
				continue
			}
		} else if _, err := r.messenger.SendMessage(ctx, r.channelID, msg); err != nil {
			log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("remind escalation")
			continue
		}

		next := time.Now().UTC().Add(max(r.timeout, r.pollInterval))
		if err := r.notifications.ExtendTimeout(ctx, n.ID, next); err != nil {
			log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("extend escalation timeout")
		}

		log.Warn().Str("notification_id", n.ID.String()).Str("chat_id", n.ChatID.String()).Msg("escalation timed out")
	}
}
