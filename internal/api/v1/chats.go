package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
)

// Message types as seen by chat clients.
const (
	MsgTypeHuman     = "human"
	MsgTypeAI        = "ai"
	MsgTypeAdminUser = "admin_user"
)

// MessageDict is one message of a chat as rendered to clients.
type MessageDict struct {
	MsgType             string `json:"msg_type"`
	Message             string `json:"message"`
	IsExecutionBlocked  bool   `json:"is_execution_blocked"`
	AreSeparateMessages bool   `json:"are_separate_messages"`
	IsAmbiguous         bool   `json:"is_ambiguous"`
	ShouldAdminContinue bool   `json:"should_admin_continue"`
}

func toMessageDict(m domain.Message) MessageDict {
	msgType := MsgTypeAI
	switch m.Role {
	case domain.RoleHuman:
		msgType = MsgTypeHuman
	case domain.RoleAdmin:
		msgType = MsgTypeAdminUser
	}
	return MessageDict{MsgType: msgType, Message: m.Content, AreSeparateMessages: true}
}

// UserSummary is the public part of a user embedded in chat responses.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ChatDetail struct {
	*domain.Chat
	User  UserSummary   `json:"user"`
	Skill *domain.Skill `json:"skill"`
}

type ListChatsInput struct {
	UserID int64 `query:"user_id" minimum:"0" doc:"Owner of the chats; defaults to the caller. Admin only for other users."`
	Limit  int   `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int   `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListChatsOutput struct {
	Body []*domain.Chat
}

type OpenChatInput struct {
	Body struct {
		UserID  int64 `json:"user_id,omitempty" minimum:"1" doc:"Employee to evaluate; defaults to the caller. Admin only for other users."`
		SkillID int64 `json:"skill_id" minimum:"1" doc:"Skill to evaluate"`
	}
}

type OpenChatOutput struct {
	Body *domain.Chat
}

type ChatIDInput struct {
	ID uuid.UUID `path:"id" doc:"Chat ID"`
}

type GetChatOutput struct {
	Body *ChatDetail
}

type ChatMessagesOutput struct {
	Body []MessageDict
}

type IncomingMessage struct {
	Role    string `json:"role" enum:"human,ai,system,admin_user" default:"human" doc:"Author of the message"`
	Message string `json:"message" maxLength:"8000" doc:"Message text"`
}

type SendMessagesInput struct {
	ID   uuid.UUID `path:"id" doc:"Chat ID"`
	Body struct {
		Messages []IncomingMessage `json:"messages" minItems:"1" doc:"Messages; only the latest human message is new, the server owns the history"`
	}
}

type InterruptInput struct {
	ID   uuid.UUID `path:"id" doc:"Chat ID"`
	Body struct {
		GradeID int64  `json:"grade_id" minimum:"1" doc:"Grade chosen by the administrator"`
		Message string `json:"message,omitempty" maxLength:"4000" doc:"Optional note recorded in the chat"`
	}
}

type InterruptOutput struct {
	Body MessageDict
}

func RegisterChatRoutes(api huma.API, store DataStore, chats ChatService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-chats",
		Method:      http.MethodGet,
		Path:        "/chats",
		Summary:     "List chats of a user",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *ListChatsInput) (*ListChatsOutput, error) {
		userID, err := targetUser(ctx, input.UserID)
		if err != nil {
			return nil, err
		}

		list, err := store.Chats().ListByUser(ctx, userID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list chats", err)
		}
		if list == nil {
			list = []*domain.Chat{}
		}
		return &ListChatsOutput{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-chat",
		Method:      http.MethodPost,
		Path:        "/chats",
		Summary:     "Open a self-evaluation chat for a skill",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *OpenChatInput) (*OpenChatOutput, error) {
		userID, err := targetUser(ctx, input.Body.UserID)
		if err != nil {
			return nil, err
		}

		chat, err := chats.OpenChat(ctx, userID, input.Body.SkillID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("user or skill not found")
			}
			return nil, huma.Error500InternalServerError("failed to open chat", err)
		}
		return &OpenChatOutput{Body: chat}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chat",
		Method:      http.MethodGet,
		Path:        "/chats/{id}",
		Summary:     "Get a chat with its user and skill",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *ChatIDInput) (*GetChatOutput, error) {
		chat, err := visibleChat(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}

		user, err := store.Users().GetByID(ctx, chat.UserID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get chat user", err)
		}
		skill, err := store.Skills().GetByID(ctx, chat.SkillID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get chat skill", err)
		}

		return &GetChatOutput{Body: &ChatDetail{
			Chat:  chat,
			User:  UserSummary{ID: user.ID, Name: user.Name, Email: user.Email},
			Skill: skill,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chat-messages",
		Method:      http.MethodGet,
		Path:        "/chats/{id}/messages",
		Summary:     "Get the chat history, creating the welcome message on first access",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *ChatIDInput) (*ChatMessagesOutput, error) {
		if _, err := visibleChat(ctx, store, input.ID); err != nil {
			return nil, err
		}

		msgs, err := chats.Messages(ctx, input.ID)
		if err != nil {
			return nil, chatError(err)
		}

		out := make([]MessageDict, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toMessageDict(m))
		}
		return &ChatMessagesOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-chat-messages",
		Method:      http.MethodPost,
		Path:        "/chats/{id}/messages",
		Summary:     "Send a message and stream the assistant's progress as NDJSON",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *SendMessagesInput) (*huma.StreamResponse, error) {
		chat, err := visibleChat(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		switch chat.Status {
		case domain.ChatStatusCompleted:
			return nil, chatError(conversation.ErrThreadCompleted)
		case domain.ChatStatusBlocked:
			return nil, chatError(conversation.ErrThreadBlocked)
		}

		text := latestHumanText(input.Body.Messages)
		if text == "" {
			return nil, huma.Error400BadRequest("a non-empty human message is required")
		}

		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				cw := &chunkWriter{hctx: hctx, w: hctx.BodyWriter()}

				_, err := chats.Send(hctx.Context(), input.ID, []string{text}, cw.event)
				if err != nil {
					cw.fail(input.ID, err)
				}
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-chat-interrupt",
		Method:      http.MethodPost,
		Path:        "/chats/{id}/interrupt",
		Summary:     "Resolve a blocked chat with an administrator's grade",
		Tags:        []string{"Chats"},
	}, func(ctx context.Context, input *InterruptInput) (*InterruptOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		value := domain.ResumeValue{GradeID: &input.Body.GradeID, Message: input.Body.Message}
		if adminID, _ := callerID(ctx); adminID > 0 {
			value.AdminID = &adminID
		}

		out, err := chats.Resume(ctx, input.ID, value, nil)
		if err != nil {
			return nil, chatError(err)
		}

		msg := MessageDict{
			MsgType:             MsgTypeAdminUser,
			Message:             out.Reply,
			IsExecutionBlocked:  out.Interrupted(),
			AreSeparateMessages: true,
			ShouldAdminContinue: out.ShouldAdminContinue,
		}
		if out.Final != nil {
			msg.Message = out.Final.MessageToTheUser
		}
		return &InterruptOutput{Body: msg}, nil
	})
}

// targetUser resolves the user a request acts on. Employees may only act on
// themselves.
func targetUser(ctx context.Context, requested int64) (int64, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	if requested == 0 || requested == caller {
		return caller, nil
	}
	if !isAdmin(ctx) {
		return 0, huma.Error403Forbidden("cannot act on another user's chats")
	}
	return requested, nil
}

// visibleChat loads a chat the caller may see.
func visibleChat(ctx context.Context, store DataStore, id uuid.UUID) (*domain.Chat, error) {
	chat, err := store.Chats().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("chat not found")
		}
		return nil, huma.Error500InternalServerError("failed to get chat", err)
	}
	if isAdmin(ctx) {
		return chat, nil
	}
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if chat.UserID != caller {
		// Same answer as a missing chat so ids cannot be probed.
		return nil, huma.Error404NotFound("chat not found")
	}
	return chat, nil
}

func latestHumanText(msgs []IncomingMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		role := msgs[i].Role
		if role == "" || role == MsgTypeHuman {
			return strings.TrimSpace(msgs[i].Message)
		}
	}
	return ""
}

// chunkWriter writes engine events as NDJSON. Headers are sent with the first
// chunk so a run that fails before producing output can still answer with a
// proper error status.
type chunkWriter struct {
	mu      sync.Mutex
	hctx    huma.Context
	w       io.Writer
	started bool
}

func (cw *chunkWriter) begin(status int, contentType string) bool {
	if cw.started {
		return false
	}
	cw.started = true
	cw.hctx.SetHeader("Content-Type", contentType)
	cw.hctx.SetStatus(status)
	return true
}

func (cw *chunkWriter) write(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	b = append(b, '\n')
	if _, err := cw.w.Write(b); err != nil {
		return
	}
	if f, ok := cw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *chunkWriter) event(e conversation.Event) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.begin(http.StatusOK, "application/x-ndjson")
	cw.write(e)
}

func (cw *chunkWriter) fail(chatID uuid.UUID, err error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	status, msg := chatStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("chat_id", chatID.String()).Msg("v1.sendChatMessages: run failed")
	}

	if cw.begin(status, "application/problem+json") {
		cw.write(huma.ErrorModel{
			Title:  http.StatusText(status),
			Status: status,
			Detail: msg,
		})
		return
	}
	cw.write(conversation.Event{Type: conversation.PhaseError, Message: "Something went wrong, please try again later."})
}
