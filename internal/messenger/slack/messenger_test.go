package slack_test

import (
	"errors"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/messenger"
	smslack "github.com/gosuda/skillmatrix/internal/messenger/slack"
)

// --- mock SlackAPI ---

type mockSlackAPI struct {
	postMsgChannel string
	postMsgTS      string
	postMsgErr     error
	postMsgOpts    []slacklib.MsgOption
	postMsgCalls   int

	updateChannel string
	updateTS      string
	updateErr     error
}

func (m *mockSlackAPI) PostMessage(channelID string, options ...slacklib.MsgOption) (ch, ts string, err error) {
	m.postMsgCalls++
	m.postMsgChannel = channelID
	m.postMsgOpts = options
	if m.postMsgErr != nil {
		return "", "", m.postMsgErr
	}
	return channelID, m.postMsgTS, nil
}

func (m *mockSlackAPI) UpdateMessage(channelID, timestamp string, _ ...slacklib.MsgOption) (ch, ts, text string, err error) {
	m.updateChannel = channelID
	m.updateTS = timestamp
	if m.updateErr != nil {
		return "", "", "", m.updateErr
	}
	return channelID, timestamp, "", nil
}

// --- SlackMessenger tests ---

func TestSlackMessenger_SendMessage(t *testing.T) {
	t.Parallel()

	t.Run("success returns message timestamp as MessageID", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{postMsgTS: "1234567890.123456"}
		m := smslack.NewSlackMessenger(api)

		msgID, err := m.SendMessage(ctx, "C123", "hello world")

		require.NoError(t, err)
		assert.Equal(t, messenger.MessageID("1234567890.123456"), msgID)
		assert.Equal(t, "C123", api.postMsgChannel)
	})

	t.Run("API error is wrapped", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		apiErr := errors.New("channel_not_found")
		api := &mockSlackAPI{postMsgErr: apiErr}
		m := smslack.NewSlackMessenger(api)

		msgID, err := m.SendMessage(ctx, "C999", "hello")

		require.Error(t, err)
		assert.ErrorIs(t, err, apiErr)
		assert.Contains(t, err.Error(), "slack.SlackMessenger.SendMessage")
		assert.Empty(t, msgID)
	})
}

func TestSlackMessenger_CreateThread(t *testing.T) {
	t.Parallel()

	t.Run("thread is named by its parent timestamp", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{postMsgTS: "1111.2222"}
		m := smslack.NewSlackMessenger(api)

		threadID, err := m.CreateThread(ctx, "C123", "1000.0001", "Pick a grade", nil)

		require.NoError(t, err)
		assert.Equal(t, messenger.ThreadID("1000.0001"), threadID)
		assert.Equal(t, "C123", api.postMsgChannel)
		assert.Len(t, api.postMsgOpts, 2, "thread ts and text")
	})

	t.Run("grade options add blocks", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{postMsgTS: "1111.2222"}
		m := smslack.NewSlackMessenger(api)

		opts := []messenger.Option{
			{Label: "Novice", Value: "1"},
			{Label: "Expert", Value: "5"},
		}
		_, err := m.CreateThread(ctx, "C123", "1000.0001", "Pick a grade", opts)

		require.NoError(t, err)
		assert.Len(t, api.postMsgOpts, 3, "thread ts, text and blocks")
	})

	t.Run("without parent falls back to the posted timestamp", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{postMsgTS: "1111.2222"}
		m := smslack.NewSlackMessenger(api)

		threadID, err := m.CreateThread(ctx, "C123", "", "Pick a grade", nil)

		require.NoError(t, err)
		assert.Equal(t, messenger.ThreadID("1111.2222"), threadID)
	})

	t.Run("API error is wrapped", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		apiErr := errors.New("rate_limited")
		api := &mockSlackAPI{postMsgErr: apiErr}
		m := smslack.NewSlackMessenger(api)

		threadID, err := m.CreateThread(ctx, "C123", "1000.0001", "Pick a grade", nil)

		require.ErrorIs(t, err, apiErr)
		assert.Contains(t, err.Error(), "slack.SlackMessenger.CreateThread")
		assert.Empty(t, threadID)
	})
}

func TestSlackMessenger_UpdateMessage(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{}
		m := smslack.NewSlackMessenger(api)

		err := m.UpdateMessage(ctx, "C123", "1234.5678", "Resolved with grade 3.")

		require.NoError(t, err)
		assert.Equal(t, "C123", api.updateChannel)
		assert.Equal(t, "1234.5678", api.updateTS)
	})

	t.Run("API error is wrapped", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		apiErr := errors.New("message_not_found")
		api := &mockSlackAPI{updateErr: apiErr}
		m := smslack.NewSlackMessenger(api)

		err := m.UpdateMessage(ctx, "C123", "1234.5678", "updated")

		require.ErrorIs(t, err, apiErr)
		assert.Contains(t, err.Error(), "slack.SlackMessenger.UpdateMessage")
	})
}

func TestSlackMessenger_SendDirect(t *testing.T) {
	t.Parallel()

	t.Run("posts to the member id", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		api := &mockSlackAPI{postMsgTS: "5555.0000"}
		m := smslack.NewSlackMessenger(api)

		err := m.SendDirect(ctx, "U42", "Your assessment is complete.")

		require.NoError(t, err)
		assert.Equal(t, "U42", api.postMsgChannel)
		assert.Equal(t, 1, api.postMsgCalls)
	})

	t.Run("API error is wrapped", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		apiErr := errors.New("user_not_found")
		api := &mockSlackAPI{postMsgErr: apiErr}
		m := smslack.NewSlackMessenger(api)

		err := m.SendDirect(ctx, "U42", "hi")

		require.ErrorIs(t, err, apiErr)
		assert.Contains(t, err.Error(), "slack.SlackMessenger.SendDirect")
	})
}

func TestSlackMessenger_Platform(t *testing.T) {
	t.Parallel()

	m := smslack.NewSlackMessenger(&mockSlackAPI{})
	assert.Equal(t, "slack", m.Platform())
}
