package bot

import (
	"context"
	"testing"

	"github.com/groupwarden/gwbot/internal/config"
	"github.com/groupwarden/gwbot/internal/db"
)

// fakeClient embeds db.Client so only the methods under test need bodies.
type fakeClient struct {
	db.Client
	settings map[int64]*db.Settings
}

func (c *fakeClient) GetSettings(_ context.Context, chatID int64) (*db.Settings, error) {
	if settings, ok := c.settings[chatID]; ok {
		return settings, nil
	}
	return nil, db.ErrNotFound
}

func (c *fakeClient) SetSettings(_ context.Context, settings *db.Settings) error {
	c.settings[settings.ID] = settings
	return nil
}

func TestServiceCreatesDefaultSettingsLazily(t *testing.T) {
	t.Parallel()

	client := &fakeClient{settings: map[int64]*db.Settings{}}
	s := NewService(nil, client, config.Config{DefaultLanguage: "ru"})

	settings, err := s.GetSettings(context.Background(), -100)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.Language != "ru" || !settings.Enabled {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if _, ok := client.settings[-100]; !ok {
		t.Fatal("defaults must be persisted on first read")
	}

	settings.SpamSensitivity = 9
	if err := s.SetSettings(context.Background(), settings); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	reread, err := s.GetSettings(context.Background(), -100)
	if err != nil || reread.SpamSensitivity != 9 {
		t.Fatalf("expected persisted sensitivity 9, got %+v, err %v", reread, err)
	}
}

func TestServiceGetLanguageFallbacks(t *testing.T) {
	t.Parallel()

	client := &fakeClient{settings: map[int64]*db.Settings{
		-1: {ID: -1, Language: "ru"},
	}}
	s := NewService(nil, client, config.Config{DefaultLanguage: "en"})

	if got := s.GetLanguage(context.Background(), -1, nil); got != "ru" {
		t.Fatalf("chat language = %q, want ru", got)
	}
}
