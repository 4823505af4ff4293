package bot

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
)

func TestGetUN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user *api.User
		want string
	}{
		{"nil user", nil, ""},
		{"username preferred", &api.User{UserName: "spamfighter", FirstName: "Sam"}, "spamfighter"},
		{"falls back to names", &api.User{FirstName: "Sam", LastName: "Doe"}, "Sam Doe"},
		{"first name only", &api.User{FirstName: "Sam"}, "Sam"},
	}
	for _, tt := range tests {
		if got := GetUN(tt.user); got != tt.want {
			t.Fatalf("%s: GetUN = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGetFullName(t *testing.T) {
	t.Parallel()

	if got := GetFullName(&api.User{FirstName: "Sam", LastName: "Doe", UserName: "spamfighter"}); got != "Sam Doe" {
		t.Fatalf("GetFullName = %q", got)
	}
	if got := GetFullName(&api.User{UserName: "spamfighter"}); got != "spamfighter" {
		t.Fatalf("GetFullName fallback = %q", got)
	}
}

func TestExtractContentFromMessage(t *testing.T) {
	t.Parallel()

	msg := &api.Message{
		Text: "check this out",
		ReplyMarkup: &api.InlineKeyboardMarkup{
			InlineKeyboard: [][]api.InlineKeyboardButton{
				{{Text: "JOIN NOW"}},
			},
		},
	}
	got := ExtractContentFromMessage(msg)
	want := "check this out JOIN NOW"
	if got != want {
		t.Fatalf("ExtractContentFromMessage = %q, want %q", got, want)
	}

	photo := &api.Message{Caption: "cheap meds", Photo: []api.PhotoSize{{}}}
	if got := ExtractContentFromMessage(photo); got != "cheap meds" {
		t.Fatalf("caption extraction = %q", got)
	}
}

func TestGetMessageType(t *testing.T) {
	t.Parallel()

	if got := GetMessageType(&api.Message{Text: "plain"}); got != MessageTypeText {
		t.Fatalf("plain text type = %q", got)
	}
	if got := GetMessageType(&api.Message{Voice: &api.Voice{}}); got != MessageTypeVoice {
		t.Fatalf("voice type = %q", got)
	}
}
