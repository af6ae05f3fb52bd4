package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/skillmatrix/internal/messenger"
)

// Platform is the identifier stored with escalation threads.
const Platform = "slack"

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slacklib.MsgOption) (string, string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// SendMessage posts a text message to a Slack channel and returns the message timestamp as MessageID.
func (m *SlackMessenger) SendMessage(_ context.Context, channelID, text string) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessage(channelID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// CreateThread starts a threaded reply under a parent message. If options are provided,
// one grade button per option is included in the thread message. Slack names a
// thread by its parent timestamp, which is what replies and button clicks
// report back as thread_ts, so that is the returned ThreadID.
func (m *SlackMessenger) CreateThread(_ context.Context, channelID string, parentID messenger.MessageID, text string, options []messenger.Option) (messenger.ThreadID, error) {
	msgOpts := []slacklib.MsgOption{
		slacklib.MsgOptionTS(string(parentID)),
		slacklib.MsgOptionText(text, false),
	}

	if len(options) > 0 {
		blocks := BuildGradeBlocks(text, options)
		msgOpts = append(msgOpts, slacklib.MsgOptionBlocks(blocks...))
	}

	_, ts, err := m.api.PostMessage(channelID, msgOpts...)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.CreateThread: %w", err)
	}

	if parentID != "" {
		return messenger.ThreadID(parentID), nil
	}
	return messenger.ThreadID(ts), nil
}

// UpdateMessage replaces an existing Slack message, dropping any buttons it had.
func (m *SlackMessenger) UpdateMessage(_ context.Context, channelID string, messageID messenger.MessageID, text string) error {
	_, _, _, err := m.api.UpdateMessage(channelID, string(messageID),
		slacklib.MsgOptionText(text, false),
		slacklib.MsgOptionBlocks(BuildNoticeBlocks(text)...),
	)
	if err != nil {
		return fmt.Errorf("slack.SlackMessenger.UpdateMessage: %w", err)
	}

	return nil
}

// SendDirect posts a message to a user's direct-message channel. Slack accepts
// a member ID as the channel for chat.postMessage.
func (m *SlackMessenger) SendDirect(_ context.Context, userExternalID, text string) error {
	_, _, err := m.api.PostMessage(userExternalID,
		slacklib.MsgOptionText(text, false),
		slacklib.MsgOptionBlocks(BuildNoticeBlocks(text)...),
	)
	if err != nil {
		return fmt.Errorf("slack.SlackMessenger.SendDirect: %w", err)
	}

	return nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return Platform
}
