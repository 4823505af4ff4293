package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/config"
	"github.com/groupwarden/gwbot/internal/db"
	"github.com/groupwarden/gwbot/internal/i18n"
	"github.com/groupwarden/gwbot/internal/observability"
)

// Platform abstracts the chat platform side effects, so the decision logic
// stays testable without a live bot API.
type Platform interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error
	UnrestrictUser(ctx context.Context, chatID, userID int64) error
	BanUser(ctx context.Context, chatID, userID int64, until time.Time) error
	UnbanUser(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type coordinatorStore interface {
	WriteInfraction(ctx context.Context, infraction *db.Infraction) (*db.Infraction, error)
	GetUserInfractions(ctx context.Context, userID int64) ([]*db.Infraction, error)
}

// AppliedAction reports what a violation resulted in.
type AppliedAction struct {
	Infraction   *db.Infraction
	WarningCount int
	MaxWarnings  int
	Escalated    bool
	Enforced     bool
}

// Coordinator turns violations into recorded infractions and platform
// restrictions, escalating through the warn/mute/ban ladder.
type Coordinator struct {
	store    coordinatorStore
	platform Platform
	cfg      config.Moderation
	nowMs    func() int64
	logger   *log.Entry
}

func NewCoordinator(store coordinatorStore, platform Platform, cfg config.Moderation) *Coordinator {
	return &Coordinator{
		store:    store,
		platform: platform,
		cfg:      cfg,
		nowMs:    db.NowMs,
		logger:   log.WithField("object", "Coordinator"),
	}
}

type actionDecision struct {
	kind      db.InfractionKind
	duration  *time.Duration
	escalated bool
}

// decideAction maps a violation class and the user's infraction count for
// that class onto the action to enforce. classCount includes the
// just-recorded light infraction. Pure.
func decideAction(kind ViolationKind, classCount int, settings *db.Settings, fallbackMute time.Duration) actionDecision {
	switch kind {
	case ViolationSpam:
		if classCount >= settings.MaxWarnings {
			return actionDecision{kind: db.InfractionMute, duration: &fallbackMute, escalated: true}
		}
		d := time.Duration(settings.MuteDurationMinutes) * time.Minute
		return actionDecision{kind: db.InfractionMute, duration: &d}
	case ViolationBannedContent:
		if classCount >= settings.MaxWarnings {
			d := time.Duration(settings.BanDurationMinutes) * time.Minute
			return actionDecision{kind: db.InfractionBan, duration: &d, escalated: true}
		}
		return actionDecision{kind: db.InfractionWarn}
	}
	return actionDecision{kind: db.InfractionWarn}
}

// lightKind is the infraction kind recorded immediately for a violation
// class, before any escalation.
func lightKind(kind ViolationKind) db.InfractionKind {
	if kind == ViolationSpam {
		return db.InfractionMute
	}
	return db.InfractionWarn
}

// HandleViolation deletes the offending message, records the infraction,
// escalates when the per-class count reaches the warning threshold, applies
// the platform restriction and notifies the chat. Platform failures are
// logged and leave the record standing; persistence failures are returned.
func (c *Coordinator) HandleViolation(ctx context.Context, v *Violation, settings *db.Settings) (*AppliedAction, error) {
	entry := c.logger.WithFields(log.Fields{
		"method":  "HandleViolation",
		"chat_id": v.ChatID,
		"user_id": v.UserID,
		"kind":    string(v.Kind),
	})

	if v.MessageID != 0 {
		if err := c.platform.DeleteMessage(ctx, v.ChatID, v.MessageID); err != nil {
			entry.WithField("error", err.Error()).Error("failed to delete message")
		}
	}

	now := c.nowMs()
	light := c.buildInfraction(v, lightKind(v.Kind), lightDuration(v.Kind, settings), now)
	if _, err := c.store.WriteInfraction(ctx, light); err != nil {
		entry.WithField("error", err.Error()).Error("failed to record infraction")
		return nil, fmt.Errorf("record infraction: %w", err)
	}

	history, err := c.store.GetUserInfractions(ctx, v.UserID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to read infraction history")
		return nil, fmt.Errorf("read infraction history: %w", err)
	}
	classCount := 0
	for _, infraction := range history {
		if infraction.Kind == light.Kind {
			classCount++
		}
	}

	decision := decideAction(v.Kind, classCount, settings, c.cfg.FallbackMuteDuration)
	applied := light
	if decision.escalated {
		escalation := c.buildInfraction(v, decision.kind, decision.duration, c.nowMs())
		escalation.Reason = "escalation: " + v.Detail
		if _, err := c.store.WriteInfraction(ctx, escalation); err != nil {
			entry.WithField("error", err.Error()).Error("failed to record escalation")
			return nil, fmt.Errorf("record escalation: %w", err)
		}
		applied = escalation
	}

	action := &AppliedAction{
		Infraction:   applied,
		WarningCount: classCount,
		MaxWarnings:  settings.MaxWarnings,
		Escalated:    decision.escalated,
	}

	if err := c.enforce(ctx, applied); err != nil {
		// The record stands; the restriction is "recorded but not
		// enforced" and the sweeper will not retry application.
		entry.WithField("error", err.Error()).Error("failed to enforce restriction")
	} else {
		action.Enforced = true
	}
	observability.RecordAction(string(applied.Kind))

	c.notify(ctx, v, action, settings)
	return action, nil
}

func lightDuration(kind ViolationKind, settings *db.Settings) *time.Duration {
	if kind != ViolationSpam {
		return nil
	}
	d := time.Duration(settings.MuteDurationMinutes) * time.Minute
	return &d
}

func (c *Coordinator) buildInfraction(v *Violation, kind db.InfractionKind, duration *time.Duration, nowMs int64) *db.Infraction {
	infraction := &db.Infraction{
		UserID:      v.UserID,
		ChatID:      v.ChatID,
		Kind:        kind,
		Reason:      v.Detail,
		ActionTaken: string(kind),
		IssuedAtMs:  nowMs,
	}
	if duration != nil {
		minutes := int64(duration.Minutes())
		expires := nowMs + duration.Milliseconds()
		infraction.DurationMinutes = &minutes
		infraction.ExpiresAtMs = &expires
	}
	return infraction
}

// enforce issues the platform side effect for an infraction, matching the
// kind exhaustively.
func (c *Coordinator) enforce(ctx context.Context, infraction *db.Infraction) error {
	until := time.Time{}
	if infraction.ExpiresAtMs != nil {
		until = db.FromMs(*infraction.ExpiresAtMs)
	}
	switch infraction.Kind {
	case db.InfractionWarn:
		return nil
	case db.InfractionMute:
		return c.platform.RestrictUser(ctx, infraction.ChatID, infraction.UserID, until)
	case db.InfractionBan:
		return c.platform.BanUser(ctx, infraction.ChatID, infraction.UserID, until)
	case db.InfractionUnmute:
		return c.platform.UnrestrictUser(ctx, infraction.ChatID, infraction.UserID)
	case db.InfractionUnban:
		return c.platform.UnbanUser(ctx, infraction.ChatID, infraction.UserID)
	}
	return fmt.Errorf("unknown infraction kind %q", infraction.Kind)
}

func (c *Coordinator) notify(ctx context.Context, v *Violation, action *AppliedAction, settings *db.Settings) {
	lang := settings.Language
	who := v.UserName
	if who == "" {
		who = fmt.Sprintf("user %d", v.UserID)
	}

	var text string
	switch action.Infraction.Kind {
	case db.InfractionWarn:
		text = fmt.Sprintf(i18n.Get("%s has been warned (%d/%d)", lang), who, action.WarningCount, action.MaxWarnings)
	case db.InfractionMute:
		text = fmt.Sprintf(i18n.Get("%s has been muted for %s (%d/%d)", lang), who, durationLabel(action.Infraction), action.WarningCount, action.MaxWarnings)
	case db.InfractionBan:
		text = fmt.Sprintf(i18n.Get("%s has been banned for %s", lang), who, durationLabel(action.Infraction))
	default:
		return
	}

	if err := c.platform.SendMessage(ctx, v.ChatID, text); err != nil {
		c.logger.WithField("error", err.Error()).Error("failed to send notification")
	}

	if c.cfg.Verbose {
		debugMsg := tool.ExecTemplate(`Moderated {{ .kind }} from {{ .user }} ({{ .user_id }}): {{ .action }}`, map[string]any{
			"kind":    string(v.Kind),
			"user":    who,
			"user_id": v.UserID,
			"action":  string(action.Infraction.Kind),
		})
		c.logger.Debug(debugMsg)
	}
}

func durationLabel(infraction *db.Infraction) string {
	if infraction.DurationMinutes == nil {
		return "indefinitely"
	}
	return (time.Duration(*infraction.DurationMinutes) * time.Minute).String()
}

// ApplyManual records and enforces an administrator-issued action. Unlike
// automatic handling, a platform failure aborts before anything is
// recorded, so the admin gets immediate feedback.
func (c *Coordinator) ApplyManual(ctx context.Context, kind db.InfractionKind, chatID, userID, issuedBy int64, duration *time.Duration, reason string) (*db.Infraction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid infraction kind %q", kind)
	}

	now := c.nowMs()
	infraction := &db.Infraction{
		UserID:      userID,
		ChatID:      chatID,
		Kind:        kind,
		Reason:      reason,
		ActionTaken: string(kind),
		IssuedBy:    &issuedBy,
		IssuedAtMs:  now,
		// Lift records need no expiry sweep.
		Processed: kind == db.InfractionUnmute || kind == db.InfractionUnban,
	}
	if duration != nil {
		minutes := int64(duration.Minutes())
		expires := now + duration.Milliseconds()
		infraction.DurationMinutes = &minutes
		infraction.ExpiresAtMs = &expires
	}

	if err := c.enforce(ctx, infraction); err != nil {
		return nil, err
	}
	written, err := c.store.WriteInfraction(ctx, infraction)
	if err != nil {
		return nil, fmt.Errorf("record infraction: %w", err)
	}
	observability.RecordAction(string(kind))
	return written, nil
}
