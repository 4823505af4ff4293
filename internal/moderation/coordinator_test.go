package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/groupwarden/gwbot/internal/config"
	"github.com/groupwarden/gwbot/internal/db"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	infractions []*db.Infraction
	writeErr    error
	readErr     error
	chatsErr    error
	markErr     error
	markedIDs   []int64
	kv          map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: map[string]string{}}
}

func (s *fakeStore) WriteInfraction(_ context.Context, infraction *db.Infraction) (*db.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.nextID++
	stored := *infraction
	stored.ID = s.nextID
	s.infractions = append(s.infractions, &stored)
	return &stored, nil
}

func (s *fakeStore) GetUserInfractions(_ context.Context, userID int64) ([]*db.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []*db.Infraction
	for _, infraction := range s.infractions {
		if infraction.UserID == userID {
			out = append(out, infraction)
		}
	}
	return out, nil
}

func (s *fakeStore) GetExpiredRestrictions(_ context.Context, nowMs int64) ([]*db.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Infraction
	for _, infraction := range s.infractions {
		if infraction.Processed {
			continue
		}
		if infraction.Kind != db.InfractionMute && infraction.Kind != db.InfractionBan {
			continue
		}
		if infraction.ExpiresAtMs != nil && *infraction.ExpiresAtMs <= nowMs {
			out = append(out, infraction)
		}
	}
	return out, nil
}

func (s *fakeStore) GetRestrictedChats(_ context.Context, userID int64, kind db.InfractionKind) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatsErr != nil {
		return nil, s.chatsErr
	}
	seen := map[int64]bool{}
	var out []int64
	for _, infraction := range s.infractions {
		if infraction.UserID == userID && infraction.Kind == kind && !seen[infraction.ChatID] {
			seen[infraction.ChatID] = true
			out = append(out, infraction.ChatID)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkInfractionProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.markedIDs = append(s.markedIDs, id)
	for _, infraction := range s.infractions {
		if infraction.ID == id {
			infraction.Processed = true
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) GetSettings(_ context.Context, chatID int64) (*db.Settings, error) {
	return db.DefaultSettings(chatID), nil
}

func (s *fakeStore) SetKV(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

type platformCall struct {
	method string
	chatID int64
	userID int64
}

type fakePlatform struct {
	mu    sync.Mutex
	calls []platformCall
	errs  map[string]error
	// failChats makes lift-style calls fail for specific chats only.
	failChats map[int64]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{errs: map[string]error{}, failChats: map[int64]error{}}
}

func (p *fakePlatform) record(method string, chatID, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failChats[chatID]; err != nil {
		return err
	}
	if err := p.errs[method]; err != nil {
		return err
	}
	p.calls = append(p.calls, platformCall{method: method, chatID: chatID, userID: userID})
	return nil
}

func (p *fakePlatform) callsTo(method string) []platformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []platformCall
	for _, call := range p.calls {
		if call.method == method {
			out = append(out, call)
		}
	}
	return out
}

func (p *fakePlatform) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return p.record("delete", chatID, 0)
}

func (p *fakePlatform) RestrictUser(_ context.Context, chatID, userID int64, _ time.Time) error {
	return p.record("restrict", chatID, userID)
}

func (p *fakePlatform) UnrestrictUser(_ context.Context, chatID, userID int64) error {
	return p.record("unrestrict", chatID, userID)
}

func (p *fakePlatform) BanUser(_ context.Context, chatID, userID int64, _ time.Time) error {
	return p.record("ban", chatID, userID)
}

func (p *fakePlatform) UnbanUser(_ context.Context, chatID, userID int64) error {
	return p.record("unban", chatID, userID)
}

func (p *fakePlatform) SendMessage(_ context.Context, chatID int64, _ string) error {
	return p.record("send", chatID, 0)
}

func testModerationConfig() config.Moderation {
	return config.Moderation{
		SpamSensitivity:      5,
		MaxWarnings:          3,
		MuteDuration:         30 * time.Minute,
		BanDuration:          24 * time.Hour,
		FallbackMuteDuration: 24 * time.Hour,
		SweepInterval:        time.Minute,
	}
}

func TestDecideAction(t *testing.T) {
	t.Parallel()

	settings := db.DefaultSettings(-1) // maxWarnings 3, mute 30m, ban 24h
	fallback := 24 * time.Hour

	tests := []struct {
		name      string
		kind      ViolationKind
		count     int
		wantKind  db.InfractionKind
		wantDur   time.Duration
		escalated bool
	}{
		{"spam below threshold", ViolationSpam, 1, db.InfractionMute, 30 * time.Minute, false},
		{"spam at threshold", ViolationSpam, 3, db.InfractionMute, 24 * time.Hour, true},
		{"content below threshold", ViolationBannedContent, 2, db.InfractionWarn, 0, false},
		{"content at threshold", ViolationBannedContent, 3, db.InfractionBan, 24 * time.Hour, true},
		{"content above threshold", ViolationBannedContent, 5, db.InfractionBan, 24 * time.Hour, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decision := decideAction(tt.kind, tt.count, settings, fallback)
			if decision.kind != tt.wantKind || decision.escalated != tt.escalated {
				t.Fatalf("decideAction(%v, %d) = {%v escalated=%v}, want {%v escalated=%v}",
					tt.kind, tt.count, decision.kind, decision.escalated, tt.wantKind, tt.escalated)
			}
			if tt.wantDur == 0 && decision.duration != nil {
				t.Fatalf("expected no duration, got %v", *decision.duration)
			}
			if tt.wantDur != 0 && (decision.duration == nil || *decision.duration != tt.wantDur) {
				t.Fatalf("expected duration %v, got %v", tt.wantDur, decision.duration)
			}
		})
	}
}

func TestHandleViolationRecordsWarnForContent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	coordinator := NewCoordinator(store, platform, testModerationConfig())

	violation := &Violation{
		Kind:      ViolationBannedContent,
		UserID:    7,
		ChatID:    -100,
		MessageID: 42,
		Detail:    "matched content rule: casino",
	}
	action, err := coordinator.HandleViolation(context.Background(), violation, db.DefaultSettings(-100))
	if err != nil {
		t.Fatalf("HandleViolation: %v", err)
	}
	if action.Escalated || action.Infraction.Kind != db.InfractionWarn {
		t.Fatalf("first content violation must be a plain warn, got %+v", action)
	}
	if action.WarningCount != 1 {
		t.Fatalf("expected warning count 1, got %d", action.WarningCount)
	}
	if got := platform.callsTo("delete"); len(got) != 1 {
		t.Fatalf("expected the offending message deleted, calls: %+v", platform.calls)
	}
	if got := platform.callsTo("ban"); len(got) != 0 {
		t.Fatalf("warn must not ban, calls: %+v", platform.calls)
	}
}

func TestHandleViolationEscalatesContentToBan(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	coordinator := NewCoordinator(store, platform, testModerationConfig())

	// Two standing warns: the next content violation reaches maxWarnings=3.
	for i := 0; i < 2; i++ {
		if _, err := store.WriteInfraction(context.Background(), &db.Infraction{
			UserID: 7, ChatID: -100, Kind: db.InfractionWarn, IssuedAtMs: db.NowMs(),
		}); err != nil {
			t.Fatalf("seed warn: %v", err)
		}
	}

	violation := &Violation{Kind: ViolationBannedContent, UserID: 7, ChatID: -100, Detail: "matched content rule: casino"}
	action, err := coordinator.HandleViolation(context.Background(), violation, db.DefaultSettings(-100))
	if err != nil {
		t.Fatalf("HandleViolation: %v", err)
	}
	if !action.Escalated || action.Infraction.Kind != db.InfractionBan {
		t.Fatalf("expected escalation to ban at the warning threshold, got %+v", action)
	}
	if !action.Enforced {
		t.Fatal("ban should have been enforced")
	}
	if action.Infraction.ExpiresAtMs == nil || action.Infraction.DurationMinutes == nil {
		t.Fatalf("escalation ban must carry a duration, got %+v", action.Infraction)
	}
	if got := platform.callsTo("ban"); len(got) != 1 || got[0].userID != 7 {
		t.Fatalf("expected one ban for user 7, calls: %+v", platform.calls)
	}

	// Both the warn row and the ban row must be on record.
	history, err := store.GetUserInfractions(context.Background(), 7)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 2 seeded + warn + ban rows, got %d", len(history))
	}
}

func TestHandleViolationSpamEscalationUsesFallbackMute(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	cfg := testModerationConfig()
	coordinator := NewCoordinator(store, platform, cfg)

	for i := 0; i < 2; i++ {
		if _, err := store.WriteInfraction(context.Background(), &db.Infraction{
			UserID: 7, ChatID: -100, Kind: db.InfractionMute, IssuedAtMs: db.NowMs(),
		}); err != nil {
			t.Fatalf("seed mute: %v", err)
		}
	}

	violation := &Violation{Kind: ViolationSpam, UserID: 7, ChatID: -100, Detail: "heuristic spam score over threshold"}
	action, err := coordinator.HandleViolation(context.Background(), violation, db.DefaultSettings(-100))
	if err != nil {
		t.Fatalf("HandleViolation: %v", err)
	}
	if !action.Escalated || action.Infraction.Kind != db.InfractionMute {
		t.Fatalf("spam escalation stays a mute, got %+v", action)
	}
	wantMinutes := int64(cfg.FallbackMuteDuration.Minutes())
	if action.Infraction.DurationMinutes == nil || *action.Infraction.DurationMinutes != wantMinutes {
		t.Fatalf("expected fallback mute of %d minutes, got %+v", wantMinutes, action.Infraction.DurationMinutes)
	}
	if got := platform.callsTo("restrict"); len(got) != 1 {
		t.Fatalf("expected exactly one restrict for the escalation, calls: %+v", platform.calls)
	}
}

func TestHandleViolationPlatformFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	platform.errs["restrict"] = errors.New("telegram: not enough rights")
	coordinator := NewCoordinator(store, platform, testModerationConfig())

	violation := &Violation{Kind: ViolationSpam, UserID: 7, ChatID: -100, Detail: "heuristic spam score over threshold"}
	action, err := coordinator.HandleViolation(context.Background(), violation, db.DefaultSettings(-100))
	if err != nil {
		t.Fatalf("platform failures must not surface as errors, got %v", err)
	}
	if action.Enforced {
		t.Fatal("restriction was not applied, Enforced must be false")
	}
	history, err := store.GetUserInfractions(context.Background(), 7)
	if err != nil || len(history) != 1 {
		t.Fatalf("the infraction record must stand, got %d rows, err %v", len(history), err)
	}
}

func TestHandleViolationPersistenceFailureReturns(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.writeErr = fmt.Errorf("disk full")
	coordinator := NewCoordinator(store, newFakePlatform(), testModerationConfig())

	violation := &Violation{Kind: ViolationSpam, UserID: 7, ChatID: -100}
	if _, err := coordinator.HandleViolation(context.Background(), violation, db.DefaultSettings(-100)); err == nil {
		t.Fatal("persistence failure must be returned")
	}
}

func TestApplyManualEnforcesBeforeRecording(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	platform.errs["ban"] = errors.New("telegram: user is an administrator")
	coordinator := NewCoordinator(store, platform, testModerationConfig())

	duration := time.Hour
	if _, err := coordinator.ApplyManual(context.Background(), db.InfractionBan, -100, 7, 1, &duration, "admin ban"); err == nil {
		t.Fatal("platform failure on a manual action must abort")
	}
	if history, _ := store.GetUserInfractions(context.Background(), 7); len(history) != 0 {
		t.Fatalf("aborted manual action must not be recorded, got %d rows", len(history))
	}
}

func TestApplyManualUnbanIsPreProcessed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	platform := newFakePlatform()
	coordinator := NewCoordinator(store, platform, testModerationConfig())

	infraction, err := coordinator.ApplyManual(context.Background(), db.InfractionUnban, -100, 7, 1, nil, "appeal accepted")
	if err != nil {
		t.Fatalf("ApplyManual: %v", err)
	}
	if !infraction.Processed {
		t.Fatal("lift records must never become sweep candidates")
	}
	if got := platform.callsTo("unban"); len(got) != 1 {
		t.Fatalf("expected one unban, calls: %+v", platform.calls)
	}
}

func TestApplyManualRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	coordinator := NewCoordinator(newFakeStore(), newFakePlatform(), testModerationConfig())
	if _, err := coordinator.ApplyManual(context.Background(), db.InfractionKind("shadowban"), -100, 7, 1, nil, ""); err == nil {
		t.Fatal("unknown kinds must be rejected")
	}
}
