package moderation

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/groupwarden/gwbot/internal/db"
	"github.com/groupwarden/gwbot/internal/observability"
)

// ViolationKind tags what kind of violation was detected.
type ViolationKind string

const (
	ViolationSpam          ViolationKind = "spam"
	ViolationBannedContent ViolationKind = "banned_content"
)

// Violation is a detection verdict, prior to any action being taken.
type Violation struct {
	Kind      ViolationKind
	UserID    int64
	UserName  string
	ChatID    int64
	MessageID int
	Text      string
	Detail    string
	Rule      *db.ContentRule
}

// IsSpam evaluates text against a sender's recent messages with the given
// sensitivity (1..10). Higher sensitivity lowers every threshold. The
// function is pure and fails open: any internal panic is swallowed and
// reported as "not spam".
func IsSpam(text string, recent []Message, sensitivity int) (verdict bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("recovered", r).Error("spam evaluation panicked, failing open")
			verdict = false
		}
	}()

	if sensitivity < 1 {
		sensitivity = 1
	}
	if sensitivity > 10 {
		sensitivity = 10
	}
	f := float64(sensitivity) / 10

	signals := 0
	if capsRatioSignal(text, f) {
		signals++
	}
	if charRepetitionSignal(text, f) {
		signals++
	}
	if urlBurstSignal(text, f) {
		signals++
	}
	if repeatedWordsSignal(text, f) {
		signals++
	}
	if lengthSignal(text, f) {
		signals++
	}
	if nearDuplicateSignal(text, recent, f) {
		signals++
	}

	// At f=0 three signals are required, at f=1 a single one suffices.
	threshold := int(3 - 2*f)
	if threshold < 1 {
		threshold = 1
	}
	return signals >= threshold
}

func capsRatioSignal(text string, f float64) bool {
	var caps, alpha int
	for _, r := range text {
		if unicode.IsLetter(r) {
			alpha++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	if alpha == 0 {
		return false
	}
	return float64(caps)/float64(alpha) > 0.7-0.2*f
}

func charRepetitionSignal(text string, f float64) bool {
	const minRun = 5
	runs := 0
	var prev rune
	runLen := 0
	for _, r := range text {
		if r == prev {
			runLen++
			if runLen == minRun {
				runs++
			}
		} else {
			prev = r
			runLen = 1
		}
	}
	return runs > 2-int(2*f)
}

func urlBurstSignal(text string, f float64) bool {
	lower := strings.ToLower(text)
	count := strings.Count(lower, "http://") + strings.Count(lower, "https://")
	return count > 2-int(2*f)
}

func repeatedWordsSignal(text string, f float64) bool {
	limit := 3 - int(2*f)
	counts := make(map[string]int)
	for _, word := range tokenize(text) {
		counts[word]++
		if counts[word] > limit {
			return true
		}
	}
	return false
}

func lengthSignal(text string, f float64) bool {
	return float64(utf8.RuneCountInString(text)) > 500-200*f
}

func nearDuplicateSignal(text string, recent []Message, f float64) bool {
	for _, msg := range recent {
		if Similarity(text, msg.Text) > 0.8-0.2*f {
			return true
		}
	}
	return false
}

// rulesStore is the slice of persistence the engine needs.
type rulesStore interface {
	GetContentRules(ctx context.Context) ([]*db.ContentRule, error)
}

// Engine runs the spam heuristics and the banned-content matcher over
// inbound messages. It owns no side effects beyond its message window.
type Engine struct {
	window *RecentMessages
	store  rulesStore
	logger *log.Entry
}

func NewEngine(window *RecentMessages, store rulesStore) *Engine {
	return &Engine{
		window: window,
		store:  store,
		logger: log.WithField("object", "Engine"),
	}
}

// EvaluateMessage returns the violation a message triggers, or nil. Spam is
// checked first, banned content second; the first verdict wins. Evaluation
// errors fail open.
func (e *Engine) EvaluateMessage(ctx context.Context, msg Message, settings *db.Settings) *Violation {
	ctx, span := otel.Tracer("moderation-engine").Start(ctx, "evaluate-message")
	defer span.End()

	done := observability.StartEvaluation()
	status := "clean"
	defer func() { done(status) }()

	recent := e.window.Snapshot(msg.ChatID, msg.SenderID)
	e.window.Observe(msg)

	if IsSpam(msg.Text, recent, settings.SpamSensitivity) {
		status = string(ViolationSpam)
		observability.RecordViolation(status)
		observability.Logger.Warn("spam message detected",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int64("user_id", msg.SenderID),
		)
		return &Violation{
			Kind:   ViolationSpam,
			UserID: msg.SenderID,
			ChatID: msg.ChatID,
			Text:   msg.Text,
			Detail: "heuristic spam score over threshold",
		}
	}

	rules, err := e.store.GetContentRules(ctx)
	if err != nil {
		e.logger.WithField("error", err.Error()).Error("failed to load content rules, failing open")
		return nil
	}
	if rule := MatchContentRules(msg.Text, rules); rule != nil {
		status = string(ViolationBannedContent)
		observability.RecordViolation(status)
		observability.Logger.Warn("banned content detected",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int64("user_id", msg.SenderID),
			zap.Int64("rule_id", rule.ID),
		)
		return &Violation{
			Kind:   ViolationBannedContent,
			UserID: msg.SenderID,
			ChatID: msg.ChatID,
			Text:   msg.Text,
			Detail: "matched content rule: " + rule.Pattern,
			Rule:   rule,
		}
	}

	return nil
}
