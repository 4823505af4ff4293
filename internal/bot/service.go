package bot

import (
	"context"
	"errors"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/config"
	"github.com/groupwarden/gwbot/internal/db"
)

type service struct {
	bot *api.BotAPI
	db  db.Client
	cfg config.Config
}

func NewService(bot *api.BotAPI, dbClient db.Client, cfg config.Config) *service {
	return &service{
		bot: bot,
		db:  dbClient,
		cfg: cfg,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetSettings returns the chat's settings, creating the defaults on first
// contact with a chat.
func (s *service) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	settings, err := s.db.GetSettings(ctx, chatID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	settings = db.DefaultSettings(chatID)
	settings.Language = s.cfg.DefaultLanguage
	if err := s.db.SetSettings(ctx, settings); err != nil {
		return nil, err
	}
	log.WithField("chat_id", chatID).Debug("created default settings")
	return settings, nil
}

func (s *service) SetSettings(ctx context.Context, settings *db.Settings) error {
	return s.db.SetSettings(ctx, settings)
}

// GetLanguage resolves the chat's language, falling back to the user's
// client language and then the configured default.
func (s *service) GetLanguage(ctx context.Context, chatID int64, user *api.User) string {
	if settings, err := s.GetSettings(ctx, chatID); err == nil && settings.Language != "" {
		return settings.Language
	}
	if user != nil && user.LanguageCode != "" {
		return user.LanguageCode
	}
	return s.cfg.DefaultLanguage
}
