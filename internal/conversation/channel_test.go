package conversation_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gosuda/skillmatrix/internal/conversation"
)

func TestChatChannel(t *testing.T) {
	t.Parallel()

	chatID := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	assert.Equal(t, "chat:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", conversation.ChatChannel(chatID))
	assert.Equal(t, "chat:00000000-0000-0000-0000-000000000000", conversation.ChatChannel(uuid.Nil))

	other := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.NotEqual(t, conversation.ChatChannel(chatID), conversation.ChatChannel(other))
}

func TestNotificationChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		group string
		want  string
	}{
		{group: "ADMIN", want: "notifications:admin"},
		{group: "USER", want: "notifications:user"},
		{group: "admin", want: "notifications:admin"},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			t.Parallel()

			got := conversation.NotificationChannel(tt.group)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, "notifications:"))
		})
	}
}

func TestChannels_NoCollisionAcrossTypes(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	assert.NotEqual(t, conversation.ChatChannel(id), conversation.NotificationChannel("ADMIN"))
}
