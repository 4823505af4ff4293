package db

import "errors"

var ErrNotFound = errors.New("not found")

const (
	defaultSpamSensitivity     = 5
	defaultMaxWarnings         = 3
	defaultMuteDurationMinutes = 30
	defaultBanDurationMinutes  = 24 * 60
)

func DefaultSettings(chatID int64) *Settings {
	return &Settings{
		ID:                  chatID,
		Enabled:             true,
		Language:            "en",
		SpamSensitivity:     defaultSpamSensitivity,
		MaxWarnings:         defaultMaxWarnings,
		MuteDurationMinutes: defaultMuteDurationMinutes,
		BanDurationMinutes:  defaultBanDurationMinutes,
	}
}
