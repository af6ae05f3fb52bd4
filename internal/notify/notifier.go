package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/messenger"
)

// slackPlatform is the only messenger users link today, via User.SlackID.
const slackPlatform = "slack"

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// UserGetter loads the user a notification is addressed to.
type UserGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Notifier sends direct messages to employees through their linked messenger account.
type Notifier struct {
	messengers MessengerRegistry
	users      UserGetter
}

var _ conversation.CompletionNotifier = (*Notifier)(nil) //nolint:gochecknoglobals // compile-time check

// New creates a Notifier with the given messenger registry and user lookup.
func New(messengers MessengerRegistry, users UserGetter) *Notifier {
	return &Notifier{
		messengers: messengers,
		users:      users,
	}
}

// ChatCompleted tells the employee which grade their self-evaluation ended with.
func (n *Notifier) ChatCompleted(ctx context.Context, chat *domain.Chat, final *domain.FinalClassification) error {
	msg := fmt.Sprintf("Your self-evaluation is complete. Final grade: *%s*.", final.FinalClass)
	if final.MessageToTheUser != "" {
		msg += "\n\n" + final.MessageToTheUser
	}

	if err := n.Notify(ctx, chat.UserID, msg); err != nil {
		return fmt.Errorf("notify.Notifier.ChatCompleted: %w", err)
	}
	return nil
}

// Notify sends a message to the user's linked Slack account. Users without a
// link are skipped with a log line.
func (n *Notifier) Notify(ctx context.Context, userID int64, message string) error {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify.Notifier.Notify: get user: %w", err)
	}

	if user.SlackID == "" {
		log.Debug().Int64("user_id", userID).Msg("notify: user has no messenger link, skipping")
		return nil
	}

	return n.NotifyVia(ctx, slackPlatform, user.SlackID, message)
}

// NotifyVia sends a notification using a specific platform and external ID directly.
func (n *Notifier) NotifyVia(ctx context.Context, platform, externalID, message string) error {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	if err := msg.SendDirect(ctx, externalID, message); err != nil {
		return fmt.Errorf("notify.Notifier.NotifyVia: send: %w", err)
	}

	return nil
}
