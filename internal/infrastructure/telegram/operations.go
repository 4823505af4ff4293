package telegram

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// Operations wraps the bot API with the restriction primitives used by the
// moderation engine. A zero until time means an indefinite restriction.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.WithMessage(err, "cant delete message")
	}
	return nil
}

// RestrictUser mutes a user by revoking every send permission until the
// given time.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UntilDate:   untilUnix(until),
		Permissions: chatPermissions(false),
	}); err != nil {
		return errors.WithMessage(err, "cant restrict")
	}
	return nil
}

func (o *Operations) UnrestrictUser(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		Permissions: chatPermissions(true),
	}); err != nil {
		return errors.WithMessage(err, "cant unrestrict")
	}
	return nil
}

func (o *Operations) BanUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UntilDate:      untilUnix(until),
		RevokeMessages: true,
	}); err != nil {
		return errors.WithMessage(err, "cant ban")
	}
	return nil
}

func (o *Operations) UnbanUser(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		OnlyIfBanned: true,
	}); err != nil {
		return errors.WithMessage(err, "cant unban")
	}
	return nil
}

func (o *Operations) SendMessage(ctx context.Context, chatID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Send(api.NewMessage(chatID, text)); err != nil {
		return errors.WithMessage(err, "cant send message")
	}
	return nil
}

func untilUnix(until time.Time) int64 {
	if until.IsZero() {
		return 0
	}
	return until.Unix()
}

func chatPermissions(allowed bool) *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       allowed,
		CanSendAudios:         allowed,
		CanSendDocuments:      allowed,
		CanSendPhotos:         allowed,
		CanSendVideos:         allowed,
		CanSendVideoNotes:     allowed,
		CanSendVoiceNotes:     allowed,
		CanSendPolls:          allowed,
		CanSendOtherMessages:  allowed,
		CanAddWebPagePreviews: allowed,
		CanChangeInfo:         allowed,
		CanInviteUsers:        allowed,
		CanPinMessages:        allowed,
		CanManageTopics:       allowed,
	}
}
