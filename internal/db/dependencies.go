package db

import "context"

// Client is the persistence collaborator. Implementations own all SQL; the
// moderation engine sees only these shapes.
type Client interface {
	Close() error

	GetSettings(ctx context.Context, chatID int64) (*Settings, error)
	SetSettings(ctx context.Context, settings *Settings) error

	GetContentRules(ctx context.Context) ([]*ContentRule, error)
	AddContentRule(ctx context.Context, rule *ContentRule) (*ContentRule, error)
	DeleteContentRule(ctx context.Context, id int64) error

	WriteInfraction(ctx context.Context, infraction *Infraction) (*Infraction, error)
	GetUserInfractions(ctx context.Context, userID int64) ([]*Infraction, error)
	MarkInfractionProcessed(ctx context.Context, id int64) error
	GetExpiredRestrictions(ctx context.Context, nowMs int64) ([]*Infraction, error)
	GetRestrictedChats(ctx context.Context, userID int64, kind InfractionKind) ([]int64, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
