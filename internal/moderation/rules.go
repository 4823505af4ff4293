package moderation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/db"
)

// urlPattern is deliberately broad: anything URL-shaped is worth checking
// against link rules.
var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+|\bwww\.[^\s<>"']+`)

// MatchContentRules scans text against the rule set and returns the
// highest-severity matching rule, or nil. Malformed regex rules are logged
// and skipped without aborting the scan.
func MatchContentRules(text string, rules []*db.ContentRule) *db.ContentRule {
	if text == "" || len(rules) == 0 {
		return nil
	}

	ordered := make([]*db.ContentRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity > ordered[j].Severity
	})

	lower := strings.ToLower(text)
	var tokens []string
	var urls []string

	for _, rule := range ordered {
		if rule == nil || rule.Pattern == "" {
			continue
		}
		switch rule.Kind {
		case db.RuleWord:
			if tokens == nil {
				tokens = tokenize(text)
			}
			if containsToken(tokens, rule.Pattern) {
				return rule
			}
		case db.RulePhrase:
			if strings.Contains(lower, strings.ToLower(rule.Pattern)) {
				return rule
			}
		case db.RuleRegex:
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				log.WithFields(log.Fields{
					"rule_id": rule.ID,
					"error":   err.Error(),
				}).Warn("skipping content rule with invalid regex")
				continue
			}
			if re.MatchString(text) {
				return rule
			}
		case db.RuleLink:
			if urls == nil {
				urls = urlPattern.FindAllString(text, -1)
			}
			needle := strings.ToLower(rule.Pattern)
			for _, url := range urls {
				if strings.Contains(strings.ToLower(url), needle) {
					return rule
				}
			}
		default:
			log.WithFields(log.Fields{
				"rule_id": rule.ID,
				"kind":    string(rule.Kind),
			}).Warn("skipping content rule with unknown kind")
		}
	}
	return nil
}

// tokenize splits text on non-word runes and lowercases the result.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func containsToken(tokens []string, word string) bool {
	needle := strings.ToLower(word)
	for _, token := range tokens {
		if token == needle {
			return true
		}
	}
	return false
}
