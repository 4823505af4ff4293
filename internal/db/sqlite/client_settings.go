package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iamwavecut/tool"

	"github.com/groupwarden/gwbot/internal/db"
)

func (s *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := &db.Settings{}
	err := s.db.GetContext(ctx, res, `SELECT * FROM settings WHERE id = ?`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (s *sqliteClient) SetSettings(ctx context.Context, settings *db.Settings) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO settings (id, enabled, language, spam_sensitivity, max_warnings,
			mute_duration_minutes, ban_duration_minutes, welcome_message, rules_text)
		VALUES (:id, :enabled, :language, :spam_sensitivity, :max_warnings,
			:mute_duration_minutes, :ban_duration_minutes, :welcome_message, :rules_text)
		ON CONFLICT(id) DO UPDATE SET
		enabled=excluded.enabled,
		language=excluded.language,
		spam_sensitivity=excluded.spam_sensitivity,
		max_warnings=excluded.max_warnings,
		mute_duration_minutes=excluded.mute_duration_minutes,
		ban_duration_minutes=excluded.ban_duration_minutes,
		welcome_message=excluded.welcome_message,
		rules_text=excluded.rules_text;
	`
	return tool.Err(s.db.NamedExecContext(ctx, query, settings))
}
