package admin

import (
	"testing"
	"time"

	"github.com/groupwarden/gwbot/internal/db"
)

func TestParseDurationArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg      string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{"", 30 * time.Minute, 30 * time.Minute, false},
		{"30m", 0, 30 * time.Minute, false},
		{"2h", 0, 2 * time.Hour, false},
		{"7d", 0, 7 * 24 * time.Hour, false},
		{" 45m ", 0, 45 * time.Minute, false},
		{"soon", 0, 0, true},
		{"xd", 0, 0, true},
	}
	for _, tt := range tests {
		got, err := parseDurationArg(tt.arg, tt.fallback)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseDurationArg(%q) expected error", tt.arg)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parseDurationArg(%q) = %v, %v; want %v", tt.arg, got, err, tt.want)
		}
	}
}

func TestParseRuleArgs(t *testing.T) {
	t.Parallel()

	rule, err := parseRuleArgs("phrase 4 free money now")
	if err != nil {
		t.Fatalf("parseRuleArgs: %v", err)
	}
	if rule.Kind != db.RulePhrase || rule.Severity != 4 || rule.Pattern != "free money now" {
		t.Fatalf("unexpected rule: %+v", rule)
	}

	if _, err := parseRuleArgs("word 3"); err == nil {
		t.Fatal("missing pattern must fail")
	}
	if _, err := parseRuleArgs("emoji 3 x"); err == nil {
		t.Fatal("unknown kind must fail")
	}
	if _, err := parseRuleArgs("word 9 x"); err == nil {
		t.Fatal("out-of-range severity must fail")
	}
	if _, err := parseRuleArgs("word nope x"); err == nil {
		t.Fatal("non-numeric severity must fail")
	}

	upper, err := parseRuleArgs("REGEX 5 (?i)spam+")
	if err != nil {
		t.Fatalf("uppercase kind: %v", err)
	}
	if upper.Kind != db.RuleRegex {
		t.Fatalf("kind must be lowercased, got %q", upper.Kind)
	}
}

func TestIsModerationCommand(t *testing.T) {
	t.Parallel()

	for _, command := range []string{"mute", "unban", "addrule", "setwelcome"} {
		if !isModerationCommand(command) {
			t.Fatalf("%q must be recognized", command)
		}
	}
	for _, command := range []string{"start", "help", "testspam"} {
		if isModerationCommand(command) {
			t.Fatalf("%q must not be claimed by the admin handler", command)
		}
	}
}
