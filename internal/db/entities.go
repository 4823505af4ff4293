package db

import "time"

// InfractionKind is the closed set of moderation event kinds. It doubles as
// the persistence tag, so values never change once written.
type InfractionKind string

const (
	InfractionWarn   InfractionKind = "warn"
	InfractionMute   InfractionKind = "mute"
	InfractionBan    InfractionKind = "ban"
	InfractionUnmute InfractionKind = "unmute"
	InfractionUnban  InfractionKind = "unban"
)

func (k InfractionKind) Valid() bool {
	switch k {
	case InfractionWarn, InfractionMute, InfractionBan, InfractionUnmute, InfractionUnban:
		return true
	}
	return false
}

// RuleKind selects the matching strategy of a content rule.
type RuleKind string

const (
	RuleWord   RuleKind = "word"
	RulePhrase RuleKind = "phrase"
	RuleRegex  RuleKind = "regex"
	RuleLink   RuleKind = "link"
)

func (k RuleKind) Valid() bool {
	switch k {
	case RuleWord, RulePhrase, RuleRegex, RuleLink:
		return true
	}
	return false
}

type (
	// Settings is the per-chat moderation configuration, created lazily
	// with defaults on first read.
	Settings struct {
		ID                  int64  `db:"id"`
		Enabled             bool   `db:"enabled"`
		Language            string `db:"language"`
		SpamSensitivity     int    `db:"spam_sensitivity"`
		MaxWarnings         int    `db:"max_warnings"`
		MuteDurationMinutes int64  `db:"mute_duration_minutes"`
		BanDurationMinutes  int64  `db:"ban_duration_minutes"`
		WelcomeMessage      string `db:"welcome_message"`
		Rules               string `db:"rules_text"`
	}

	// Infraction is an append-only moderation event. Corrections are new
	// rows; the only mutable column is processed, flipped by the sweeper.
	// A nil DurationMinutes means indefinite, a nil ExpiresAtMs never
	// expires on its own.
	Infraction struct {
		ID              int64          `db:"id"`
		UserID          int64          `db:"user_id"`
		ChatID          int64          `db:"chat_id"`
		Kind            InfractionKind `db:"kind"`
		Reason          string         `db:"reason"`
		ActionTaken     string         `db:"action_taken"`
		DurationMinutes *int64         `db:"duration_minutes"`
		IssuedBy        *int64         `db:"issued_by"`
		IssuedAtMs      int64          `db:"issued_at_ms"`
		ExpiresAtMs     *int64         `db:"expires_at_ms"`
		Processed       bool           `db:"processed"`
	}

	// ContentRule is a banned-content pattern with a 1..5 severity.
	ContentRule struct {
		ID       int64    `db:"id"`
		Pattern  string   `db:"pattern"`
		Kind     RuleKind `db:"kind"`
		Severity int      `db:"severity"`
	}
)

// Active reports whether the infraction still holds at nowMs.
func (i *Infraction) Active(nowMs int64) bool {
	if i == nil {
		return false
	}
	return i.ExpiresAtMs == nil || *i.ExpiresAtMs > nowMs
}

func NowMs() int64 {
	return time.Now().UnixMilli()
}

func ToMs(t time.Time) int64 {
	return t.UnixMilli()
}

func FromMs(ms int64) time.Time {
	return time.UnixMilli(ms)
}
