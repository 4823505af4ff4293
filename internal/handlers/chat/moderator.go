package chat

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/bot"
	"github.com/groupwarden/gwbot/internal/db"
	"github.com/groupwarden/gwbot/internal/moderation"
	"github.com/groupwarden/gwbot/internal/policy/permissions"
)

// Moderator scores every group message through the moderation engine and
// hands violations to the coordinator. Admin messages and private chats are
// never scored.
type Moderator struct {
	s           bot.Service
	engine      *moderation.Engine
	coordinator *moderation.Coordinator
}

func NewModerator(s bot.Service, engine *moderation.Engine, coordinator *moderation.Coordinator) *Moderator {
	m := &Moderator{
		s:           s,
		engine:      engine,
		coordinator: coordinator,
	}
	m.getLogEntry().Debug("created new moderator")
	return m
}

func (m *Moderator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u == nil {
		return false, errors.New("nil update")
	}
	msg := u.Message
	if msg == nil || chat == nil || user == nil {
		return true, nil
	}
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}

	settings, err := m.s.GetSettings(ctx, chat.ID)
	if err != nil {
		return true, errors.WithMessage(err, "cant get settings")
	}

	if len(msg.NewChatMembers) > 0 {
		m.welcome(msg, chat, settings)
		return true, nil
	}

	if !settings.Enabled || msg.IsCommand() || user.IsBot {
		return true, nil
	}
	if m.isExempt(chat.ID, user.ID) {
		return true, nil
	}

	content := bot.ExtractContentFromMessage(msg)
	if content == "" {
		return true, nil
	}

	violation := m.engine.EvaluateMessage(ctx, moderation.Message{
		SenderID: user.ID,
		ChatID:   chat.ID,
		Text:     content,
		SentAtMs: int64(msg.Date) * 1000,
	}, settings)
	if violation == nil {
		return true, nil
	}
	violation.MessageID = msg.MessageID
	violation.UserName = bot.GetUN(user)

	if _, err := m.coordinator.HandleViolation(ctx, violation, settings); err != nil {
		return true, errors.WithMessage(err, "cant handle violation")
	}
	// The message is moderated, nothing downstream should see it.
	return false, nil
}

// isExempt checks the sender's chat member status. Lookup failures lean
// toward moderating, a transient API error must not grant a bypass.
func (m *Moderator) isExempt(chatID, userID int64) bool {
	member, err := m.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			UserID: userID,
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		},
	})
	if err != nil {
		m.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("cant get chat member")
		return false
	}
	return permissions.IsExemptFromModeration(&member)
}

func (m *Moderator) welcome(msg *api.Message, chat *api.Chat, settings *db.Settings) {
	if settings.WelcomeMessage == "" {
		return
	}
	for _, member := range msg.NewChatMembers {
		if member.IsBot {
			continue
		}
		member := member
		text := tool.ExecTemplate(settings.WelcomeMessage, map[string]any{
			"user": bot.GetUN(&member),
			"chat": chat.Title,
		})
		welcomeMsg := api.NewMessage(chat.ID, text)
		welcomeMsg.MessageThreadID = msg.MessageThreadID
		if _, err := m.s.GetBot().Send(welcomeMsg); err != nil {
			m.getLogEntry().WithField("error", err.Error()).Error("cant send welcome message")
		}
	}
}

func (m *Moderator) getLogEntry() *log.Entry {
	return log.WithField("object", "Moderator")
}
