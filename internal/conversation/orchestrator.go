package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
)

const (
	minLockTTL = 2 * time.Minute
	lockSlack  = 30 * time.Second
)

// Locker serializes work on one chat across processes.
type Locker interface {
	// Acquire returns ok=false without error when someone else holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Publisher abstracts the Redis pub/sub publish operation.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Escalator mirrors an interrupt notification to a place administrators read.
type Escalator interface {
	Escalate(ctx context.Context, chat *domain.Chat, n *domain.Notification, payload domain.InterruptPayload, grades domain.GradeScale) error
}

// CompletionNotifier tells the employee their evaluation is done.
type CompletionNotifier interface {
	ChatCompleted(ctx context.Context, chat *domain.Chat, final *domain.FinalClassification) error
}

// Repositories groups the stores the orchestrator reads and updates.
type Repositories struct {
	Chats         domain.ChatRepository
	Skills        domain.SkillRepository
	Users         domain.UserRepository
	UserSkills    domain.UserSkillRepository
	Grades        domain.GradeRepository
	Notifications domain.NotificationRepository
}

// ChatEvent is what watchers of a chat channel receive.
type ChatEvent struct {
	ChatID uuid.UUID         `json:"chat_id"`
	Status domain.ChatStatus `json:"status"`
	Event  Event             `json:"event"`
}

// ChatChannel returns the pub/sub channel for a chat.
func ChatChannel(chatID uuid.UUID) string {
	return "chat:" + chatID.String()
}

// NotificationChannel returns the pub/sub channel for a user group's
// notifications ("ADMIN" or "USER").
func NotificationChannel(group string) string {
	return "notifications:" + strings.ToLower(group)
}

// Orchestrator ties a chat to its thread: status lifecycle, locking,
// notifications, escalation and the final grade write-back.
type Orchestrator struct {
	engine      *Engine
	checkpoints domain.Checkpointer
	repos       Repositories
	locker      Locker
	publisher   Publisher
	escalator   Escalator
	notifier    CompletionNotifier
}

type OrchestratorOption func(*Orchestrator)

func WithLocker(l Locker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

func WithPublisher(p Publisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithEscalator(e Escalator) OrchestratorOption {
	return func(o *Orchestrator) { o.escalator = e }
}

func WithCompletionNotifier(n CompletionNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

func NewOrchestrator(engine *Engine, checkpoints domain.Checkpointer, repos Repositories, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:      engine,
		checkpoints: checkpoints,
		repos:       repos,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetEscalator wires the escalator after construction; the escalation router
// itself needs the orchestrator to resume chats.
func (o *Orchestrator) SetEscalator(e Escalator) {
	o.escalator = e
}

// OpenChat starts a new chat for a user and skill.
func (o *Orchestrator) OpenChat(ctx context.Context, userID, skillID int64) (*domain.Chat, error) {
	if _, err := o.repos.Users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.OpenChat: get user: %w", err)
	}
	if _, err := o.repos.Skills.GetByID(ctx, skillID); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.OpenChat: get skill: %w", err)
	}

	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:            uuid.New(),
		UserID:        userID,
		SkillID:       skillID,
		Status:        domain.ChatStatusInProgress,
		TimespanStart: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.repos.Chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.OpenChat: %w", err)
	}
	return chat, nil
}

// Messages returns the stored history of a chat. A chat without a thread gets
// its welcome message generated and stored first.
func (o *Orchestrator) Messages(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error) {
	t, err := o.checkpoints.Get(ctx, chatID)
	if err == nil {
		return t.Messages, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("conversation.Orchestrator.Messages: %w", err)
	}

	chat, err := o.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Messages: %w", err)
	}

	release, err := o.lock(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Messages: %w", err)
	}
	defer release()

	t, err = o.newThread(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Messages: %w", err)
	}
	if _, err := o.engine.Welcome(ctx, t); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Messages: %w", err)
	}
	return t.Messages, nil
}

// Send appends the employee's messages and runs the thread.
func (o *Orchestrator) Send(ctx context.Context, chatID uuid.UUID, texts []string, emit EmitFunc) (*Outcome, error) {
	chat, err := o.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
	}
	if chat.Status == domain.ChatStatusCompleted {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", ErrThreadCompleted)
	}

	release, err := o.lock(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
	}
	defer release()

	t, err := o.checkpoints.Get(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		t, err = o.newThread(ctx, chat)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
	}
	if t.Completed() {
		if _, err := o.settleFinal(ctx, chat, t); err != nil {
			return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
		}
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", ErrThreadCompleted)
	}
	if chat.Status == domain.ChatStatusBlocked {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", ErrThreadBlocked)
	}

	for _, text := range texts {
		if text = strings.TrimSpace(text); text != "" {
			t.AppendMessage(domain.RoleHuman, text)
		}
	}

	out, err := o.engine.Run(ctx, t, o.relay(chat, emit))
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
	}

	if err := o.settle(ctx, chat, out); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Send: %w", err)
	}
	return out, nil
}

// Resume hands an administrator's decision to a blocked chat.
func (o *Orchestrator) Resume(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue, emit EmitFunc) (*Outcome, error) {
	chat, err := o.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", err)
	}
	if chat.Status == domain.ChatStatusCompleted {
		return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", ErrThreadCompleted)
	}

	release, err := o.lock(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", err)
	}
	defer release()

	var out *Outcome
	t, err := o.checkpoints.Get(ctx, chatID)
	if err == nil && t.Completed() {
		out, err = o.settleFinal(ctx, chat, t)
		if err != nil {
			return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", err)
		}
		o.resolveNotifications(ctx, chatID)
		return out, nil
	}

	out, err = o.engine.Resume(ctx, chatID, value, o.relay(chat, emit))
	if err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", err)
	}

	o.resolveNotifications(ctx, chatID)

	if err := o.settle(ctx, chat, out); err != nil {
		return nil, fmt.Errorf("conversation.Orchestrator.Resume: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) resolveNotifications(ctx context.Context, chatID uuid.UUID) {
	if err := o.repos.Notifications.ResolveByChat(ctx, chatID); err != nil {
		log.Error().Err(err).Str("chat_id", chatID.String()).Msg("conversation.Resume: failed to resolve notifications")
	}
}

// settleFinal finishes the write-back for a thread whose final classification
// is stored while its chat is not yet COMPLETED.
func (o *Orchestrator) settleFinal(ctx context.Context, chat *domain.Chat, t *domain.Thread) (*Outcome, error) {
	log.Warn().Str("chat_id", chat.ID.String()).Str("status", string(chat.Status)).Msg("settling final thread left unsettled")
	out := &Outcome{Thread: t, Reply: t.Final.MessageToTheUser, Final: t.Final}
	if err := o.complete(ctx, chat, t.Final); err != nil {
		return nil, err
	}
	return out, nil
}

// ResumeFromMessenger is the callback used by the escalation router.
func (o *Orchestrator) ResumeFromMessenger(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue) error {
	_, err := o.Resume(ctx, chatID, value, nil)
	return err
}

// settle brings the chat row and side channels in line with the outcome.
func (o *Orchestrator) settle(ctx context.Context, chat *domain.Chat, out *Outcome) error {
	switch {
	case out.Final != nil:
		return o.complete(ctx, chat, out.Final)
	case out.Interrupted():
		if err := o.setStatus(ctx, chat, domain.ChatStatusBlocked); err != nil {
			return err
		}
		o.escalate(ctx, chat, out)
		return nil
	default:
		return o.setStatus(ctx, chat, domain.ChatStatusInProgress)
	}
}

// complete writes the grade back before the chat turns COMPLETED, so a failed
// write leaves the chat open for settleFinal on the next request.
func (o *Orchestrator) complete(ctx context.Context, chat *domain.Chat, final *domain.FinalClassification) error {
	if err := o.repos.UserSkills.SetGrade(ctx, chat.UserID, chat.SkillID, final.FinalClassID); err != nil {
		return fmt.Errorf("set user skill grade: %w", err)
	}
	if err := o.setStatus(ctx, chat, domain.ChatStatusCompleted); err != nil {
		return err
	}

	n := &domain.Notification{
		ID:        uuid.New(),
		Type:      domain.NotificationTypeCompleted,
		ChatID:    chat.ID,
		Status:    domain.NotificationStatusUnread,
		UserGroup: domain.UserGroupUser,
		Message:   fmt.Sprintf("Your self-evaluation for chat id %s is complete: %s", chat.ID, final.FinalClass),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.repos.Notifications.Create(ctx, n); err != nil {
		log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("conversation.complete: failed to create notification")
	} else {
		o.announce(ctx, n)
	}

	if o.notifier != nil {
		if err := o.notifier.ChatCompleted(ctx, chat, final); err != nil {
			log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("conversation.complete: failed to notify user")
		}
	}
	return nil
}

func (o *Orchestrator) escalate(ctx context.Context, chat *domain.Chat, out *Outcome) {
	n := &domain.Notification{
		ID:        uuid.New(),
		Type:      domain.NotificationTypeInterrupt,
		ChatID:    chat.ID,
		Status:    domain.NotificationStatusUnread,
		UserGroup: domain.UserGroupAdmin,
		Message:   fmt.Sprintf("Your involvement is required for chat id %s", chat.ID),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.repos.Notifications.Create(ctx, n); err != nil {
		log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("conversation.escalate: failed to create notification")
		return
	}
	o.announce(ctx, n)

	if o.escalator == nil {
		return
	}
	if err := o.escalator.Escalate(ctx, chat, n, out.Interrupt.Payload, out.Thread.Grades); err != nil {
		log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("conversation.escalate: failed to escalate")
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, chat *domain.Chat, status domain.ChatStatus) error {
	if chat.Status == status {
		return nil
	}
	if !chat.Status.ValidTransition(status) {
		return fmt.Errorf("chat status %s -> %s: %w", chat.Status, status, domain.ErrConflict)
	}
	if err := o.repos.Chats.UpdateStatus(ctx, chat.ID, status); err != nil {
		return fmt.Errorf("update chat status: %w", err)
	}
	chat.Status = status
	o.publish(ctx, chat, Event{Type: "status"})
	return nil
}

// relay forwards engine events to the caller and to chat watchers.
func (o *Orchestrator) relay(chat *domain.Chat, emit EmitFunc) EmitFunc {
	return func(e Event) {
		emit.emit(e)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.publish(ctx, chat, e)
	}
}

func (o *Orchestrator) publish(ctx context.Context, chat *domain.Chat, e Event) {
	if o.publisher == nil {
		return
	}
	payload, err := json.Marshal(ChatEvent{ChatID: chat.ID, Status: chat.Status, Event: e})
	if err != nil {
		return
	}
	channel := ChatChannel(chat.ID)
	if err := o.publisher.Publish(ctx, channel, payload); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("conversation.publish: failed to publish event")
	}
}

// announce pushes a new notification to its group's channel.
func (o *Orchestrator) announce(ctx context.Context, n *domain.Notification) {
	if o.publisher == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	channel := NotificationChannel(n.UserGroup)
	if err := o.publisher.Publish(ctx, channel, payload); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("conversation.announce: failed to publish notification")
	}
}

// lockTTL keeps the chat lock alive for a worst-case engine run.
func (o *Orchestrator) lockTTL() time.Duration {
	return max(minLockTTL, o.engine.RunBudget()+lockSlack)
}

func (o *Orchestrator) lock(ctx context.Context, chatID uuid.UUID) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	release, ok, err := o.locker.Acquire(ctx, "lock:chat:"+chatID.String(), o.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrThreadBusy
	}
	return release, nil
}

// newThread builds the initial thread state for a chat from the grade scale,
// the recorded grade and the user and skill names.
func (o *Orchestrator) newThread(ctx context.Context, chat *domain.Chat) (*domain.Thread, error) {
	grades, err := o.repos.Grades.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	user, err := o.repos.Users.GetByID(ctx, chat.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	skill, err := o.repos.Skills.GetByID(ctx, chat.SkillID)
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}

	dc := domain.DiscrepancyContext{UserID: chat.UserID, SkillID: chat.SkillID}
	us, err := o.repos.UserSkills.Get(ctx, chat.UserID, chat.SkillID)
	switch {
	case err == nil:
		if us.GradeID != nil {
			recorded := us.UpdatedAt
			dc.GradeID = us.GradeID
			dc.RecordedAt = &recorded
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, fmt.Errorf("get user skill: %w", err)
	}

	t := domain.NewThread(chat.ID, dc, domain.GradeScale(grades))
	t.Subject = domain.Subject{UserName: user.Name, SkillName: skill.Name, SkillDescription: skill.Description}
	return t, nil
}
