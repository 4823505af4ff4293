package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/bot"
	"github.com/groupwarden/gwbot/internal/db"
	"github.com/groupwarden/gwbot/internal/i18n"
	"github.com/groupwarden/gwbot/internal/moderation"
	"github.com/groupwarden/gwbot/internal/policy/permissions"
)

const (
	minSensitivity = 1
	maxSensitivity = 10
	minSeverity    = 1
	maxSeverity    = 5
)

// Admin routes moderation commands issued by privileged chat members.
type Admin struct {
	s           bot.Service
	coordinator *moderation.Coordinator
}

func NewAdmin(s bot.Service, coordinator *moderation.Coordinator) *Admin {
	a := &Admin{
		s:           s,
		coordinator: coordinator,
	}
	a.getLogEntry().Debug("created new admin handler")
	return a
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u == nil {
		return false, errors.New("nil update")
	}
	msg := u.Message
	if msg == nil || chat == nil || user == nil || !msg.IsCommand() {
		return true, nil
	}
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}

	command := msg.Command()
	if !isModerationCommand(command) {
		return true, nil
	}

	lang := a.s.GetLanguage(ctx, chat.ID, user)
	if !a.isPrivileged(chat.ID, user.ID) {
		a.reply(msg, i18n.Get("You are not allowed to do that", lang))
		return false, nil
	}

	entry := a.getLogEntry().WithFields(log.Fields{
		"method":  "Handle",
		"chat_id": chat.ID,
		"command": command,
	})

	var err error
	switch command {
	case "mute":
		err = a.restrictCommand(ctx, msg, chat, user, db.InfractionMute, lang)
	case "ban":
		err = a.restrictCommand(ctx, msg, chat, user, db.InfractionBan, lang)
	case "unmute":
		err = a.liftCommand(ctx, msg, chat, user, db.InfractionUnmute, lang)
	case "unban":
		err = a.liftCommand(ctx, msg, chat, user, db.InfractionUnban, lang)
	case "warnings":
		err = a.warningsCommand(ctx, msg, chat, lang)
	case "addrule":
		err = a.addRuleCommand(ctx, msg, chat, lang)
	case "delrule":
		err = a.deleteRuleCommand(ctx, msg, chat, lang)
	case "rules":
		err = a.listRulesCommand(ctx, msg, chat, lang)
	case "setsensitivity":
		err = a.setSensitivityCommand(ctx, msg, chat, lang)
	case "setmaxwarnings":
		err = a.setMaxWarningsCommand(ctx, msg, chat, lang)
	case "setmute":
		err = a.setDurationCommand(ctx, msg, chat, db.InfractionMute, lang)
	case "setban":
		err = a.setDurationCommand(ctx, msg, chat, db.InfractionBan, lang)
	case "setwelcome":
		err = a.setWelcomeCommand(ctx, msg, chat, lang)
	}
	if err != nil {
		entry.WithField("error", err.Error()).Error("command failed")
		a.reply(msg, i18n.Get("Something went wrong, try again later", lang))
	}
	return false, nil
}

func isModerationCommand(command string) bool {
	switch command {
	case "mute", "unmute", "ban", "unban", "warnings",
		"addrule", "delrule", "rules",
		"setsensitivity", "setmaxwarnings", "setmute", "setban", "setwelcome":
		return true
	}
	return false
}

func (a *Admin) restrictCommand(ctx context.Context, msg *api.Message, chat *api.Chat, issuer *api.User, kind db.InfractionKind, lang string) error {
	target := commandTarget(msg)
	if target == nil {
		a.reply(msg, i18n.Get("Reply to a message of the user you want to act on", lang))
		return nil
	}

	settings, err := a.s.GetSettings(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get settings")
	}
	duration, err := parseDurationArg(msg.CommandArguments(), defaultDuration(kind, settings))
	if err != nil {
		a.reply(msg, i18n.Get("Cant parse duration, use forms like 30m, 2h or 7d", lang))
		return nil
	}

	reason := fmt.Sprintf("manual %s by %s", kind, bot.GetUN(issuer))
	infraction, err := a.coordinator.ApplyManual(ctx, kind, chat.ID, target.ID, issuer.ID, &duration, reason)
	if err != nil {
		return errors.WithMessage(err, "cant apply action")
	}

	a.getLogEntry().WithFields(log.Fields{
		"infraction_id": infraction.ID,
		"target_id":     target.ID,
	}).Info("manual restriction applied")
	a.reply(msg, fmt.Sprintf(i18n.Get("Done: %s for %s", lang), kind, duration.String()))
	return nil
}

func (a *Admin) liftCommand(ctx context.Context, msg *api.Message, chat *api.Chat, issuer *api.User, kind db.InfractionKind, lang string) error {
	target := commandTarget(msg)
	if target == nil {
		a.reply(msg, i18n.Get("Reply to a message of the user you want to act on", lang))
		return nil
	}

	reason := fmt.Sprintf("manual %s by %s", kind, bot.GetUN(issuer))
	if _, err := a.coordinator.ApplyManual(ctx, kind, chat.ID, target.ID, issuer.ID, nil, reason); err != nil {
		return errors.WithMessage(err, "cant lift restriction")
	}
	a.reply(msg, i18n.Get("Restriction lifted", lang))
	return nil
}

func (a *Admin) warningsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, lang string) error {
	target := commandTarget(msg)
	if target == nil {
		a.reply(msg, i18n.Get("Reply to a message of the user you want to act on", lang))
		return nil
	}

	history, err := a.s.GetDB().GetUserInfractions(ctx, target.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get infractions")
	}
	var warns, mutes, bans int
	for _, infraction := range history {
		if infraction.ChatID != chat.ID {
			continue
		}
		switch infraction.Kind {
		case db.InfractionWarn:
			warns++
		case db.InfractionMute:
			mutes++
		case db.InfractionBan:
			bans++
		}
	}
	a.reply(msg, fmt.Sprintf(i18n.Get("%s: %d warnings, %d mutes, %d bans", lang), bot.GetUN(target), warns, mutes, bans))
	return nil
}

func (a *Admin) addRuleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, lang string) error {
	rule, err := parseRuleArgs(msg.CommandArguments())
	if err != nil {
		a.reply(msg, i18n.Get("Usage: /addrule <word|phrase|regex|link> <severity> <pattern>", lang))
		return nil
	}

	added, err := a.s.GetDB().AddContentRule(ctx, rule)
	if err != nil {
		return errors.WithMessage(err, "cant add rule")
	}
	a.getLogEntry().WithFields(log.Fields{
		"chat_id": chat.ID,
		"rule_id": added.ID,
	}).Info("content rule added")
	a.reply(msg, fmt.Sprintf(i18n.Get("Rule #%d added", lang), added.ID))
	return nil
}

func (a *Admin) deleteRuleCommand(ctx context.Context, msg *api.Message, _ *api.Chat, lang string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		a.reply(msg, i18n.Get("Usage: /delrule <id>", lang))
		return nil
	}
	if err := a.s.GetDB().DeleteContentRule(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			a.reply(msg, i18n.Get("No such rule", lang))
			return nil
		}
		return errors.WithMessage(err, "cant delete rule")
	}
	a.reply(msg, fmt.Sprintf(i18n.Get("Rule #%d deleted", lang), id))
	return nil
}

func (a *Admin) listRulesCommand(ctx context.Context, msg *api.Message, _ *api.Chat, lang string) error {
	rules, err := a.s.GetDB().GetContentRules(ctx)
	if err != nil {
		return errors.WithMessage(err, "cant list rules")
	}
	if len(rules) == 0 {
		a.reply(msg, i18n.Get("No content rules configured", lang))
		return nil
	}

	var b strings.Builder
	b.WriteString(i18n.Get("Content rules:", lang))
	for _, rule := range rules {
		b.WriteString(fmt.Sprintf("\n#%d [%s, %d] %s", rule.ID, rule.Kind, rule.Severity, rule.Pattern))
	}
	a.reply(msg, b.String())
	return nil
}

func (a *Admin) setSensitivityCommand(ctx context.Context, msg *api.Message, chat *api.Chat, lang string) error {
	value, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || value < minSensitivity || value > maxSensitivity {
		a.reply(msg, i18n.Get("Usage: /setsensitivity <1-10>", lang))
		return nil
	}
	return a.updateSettings(ctx, msg, chat, lang, func(settings *db.Settings) {
		settings.SpamSensitivity = value
	})
}

func (a *Admin) setMaxWarningsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, lang string) error {
	value, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || value < 1 {
		a.reply(msg, i18n.Get("Usage: /setmaxwarnings <n>", lang))
		return nil
	}
	return a.updateSettings(ctx, msg, chat, lang, func(settings *db.Settings) {
		settings.MaxWarnings = value
	})
}

func (a *Admin) setDurationCommand(ctx context.Context, msg *api.Message, chat *api.Chat, kind db.InfractionKind, lang string) error {
	duration, err := parseDurationArg(msg.CommandArguments(), 0)
	if err != nil || duration <= 0 {
		a.reply(msg, i18n.Get("Cant parse duration, use forms like 30m, 2h or 7d", lang))
		return nil
	}
	return a.updateSettings(ctx, msg, chat, lang, func(settings *db.Settings) {
		minutes := int64(duration.Minutes())
		if kind == db.InfractionBan {
			settings.BanDurationMinutes = minutes
		} else {
			settings.MuteDurationMinutes = minutes
		}
	})
}

func (a *Admin) setWelcomeCommand(ctx context.Context, msg *api.Message, chat *api.Chat, lang string) error {
	return a.updateSettings(ctx, msg, chat, lang, func(settings *db.Settings) {
		settings.WelcomeMessage = strings.TrimSpace(msg.CommandArguments())
	})
}

func (a *Admin) updateSettings(ctx context.Context, msg *api.Message, chat *api.Chat, lang string, mutate func(*db.Settings)) error {
	settings, err := a.s.GetSettings(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get settings")
	}
	mutate(settings)
	if err := a.s.SetSettings(ctx, settings); err != nil {
		return errors.WithMessage(err, "cant save settings")
	}
	a.reply(msg, i18n.Get("Settings updated", lang))
	return nil
}

func (a *Admin) isPrivileged(chatID, userID int64) bool {
	member, err := a.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			UserID: userID,
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		},
	})
	if err != nil {
		a.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("cant get chat member")
		return false
	}
	return permissions.IsPrivilegedModerator(&member)
}

func (a *Admin) reply(msg *api.Message, text string) {
	responseMsg := api.NewMessage(msg.Chat.ID, text)
	responseMsg.ReplyParameters.AllowSendingWithoutReply = true
	responseMsg.ReplyParameters.MessageID = msg.MessageID
	responseMsg.ReplyParameters.ChatID = msg.Chat.ID
	responseMsg.MessageThreadID = msg.MessageThreadID
	if _, err := a.s.GetBot().Send(responseMsg); err != nil {
		a.getLogEntry().WithField("error", err.Error()).Error("cant send reply")
	}
}

// commandTarget resolves the user a command acts on, currently the author
// of the replied-to message.
func commandTarget(msg *api.Message) *api.User {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return nil
	}
	return msg.ReplyToMessage.From
}

func defaultDuration(kind db.InfractionKind, settings *db.Settings) time.Duration {
	if kind == db.InfractionBan {
		return time.Duration(settings.BanDurationMinutes) * time.Minute
	}
	return time.Duration(settings.MuteDurationMinutes) * time.Minute
}

// parseDurationArg accepts Go duration forms plus a day suffix. An empty
// argument yields the fallback.
func parseDurationArg(arg string, fallback time.Duration) (time.Duration, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return fallback, nil
	}
	if strings.HasSuffix(arg, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(arg, "d"))
		if err != nil {
			return 0, errors.WithMessage(err, "cant parse days")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	duration, err := time.ParseDuration(arg)
	if err != nil {
		return 0, errors.WithMessage(err, "cant parse duration")
	}
	return duration, nil
}

// parseRuleArgs parses "<kind> <severity> <pattern>" into a content rule.
func parseRuleArgs(args string) (*db.ContentRule, error) {
	parts := strings.Fields(args)
	if len(parts) < 3 {
		return nil, errors.New("expected kind, severity and pattern")
	}
	kind := db.RuleKind(strings.ToLower(parts[0]))
	if !kind.Valid() {
		return nil, errors.Errorf("unknown rule kind %q", parts[0])
	}
	severity, err := strconv.Atoi(parts[1])
	if err != nil || severity < minSeverity || severity > maxSeverity {
		return nil, errors.New("severity must be a number between 1 and 5")
	}
	pattern := strings.TrimSpace(strings.Join(parts[2:], " "))
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	return &db.ContentRule{
		Pattern:  pattern,
		Kind:     kind,
		Severity: severity,
	}, nil
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("object", "Admin")
}
