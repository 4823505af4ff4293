package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/groupwarden/gwbot/internal/db"
	"github.com/groupwarden/gwbot/internal/i18n"
	"github.com/groupwarden/gwbot/internal/observability"
)

const kvKeyLastSweepMs = "last_sweep_ms"

type sweeperStore interface {
	GetExpiredRestrictions(ctx context.Context, nowMs int64) ([]*db.Infraction, error)
	GetRestrictedChats(ctx context.Context, userID int64, kind db.InfractionKind) ([]int64, error)
	MarkInfractionProcessed(ctx context.Context, id int64) error
	GetSettings(ctx context.Context, chatID int64) (*db.Settings, error)
	SetKV(ctx context.Context, key string, value string) error
}

// ResolvedRestriction describes one expired restriction the sweeper lifted.
type ResolvedRestriction struct {
	Infraction *db.Infraction
	Chats      []int64
	Failed     []int64
}

// Sweeper periodically lifts expired mutes and bans. Expiry candidates are
// selected with supersession applied at the query level, lifted per chat,
// then marked processed exactly once. Lift attempts are at-least-once
// across crashes, so an already-lifted restriction must be tolerated.
type Sweeper struct {
	store    sweeperStore
	platform Platform
	interval time.Duration
	notify   bool
	nowMs    func() int64

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewSweeper(store sweeperStore, platform Platform, interval time.Duration, notify bool) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		platform: platform,
		interval: interval,
		notify:   notify,
		nowMs:    db.NowMs,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.workersWg.Add(1)
	go func() {
		defer s.workersWg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepExpired(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					s.getLogEntry().WithField("error", err.Error()).Error("sweep failed")
				}
			}
		}
	}()

	s.started = true
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	cancel := s.runCancel
	s.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// SweepExpired runs one pass and returns what it resolved. A platform
// failure for one chat never blocks the other chats or users; persistence
// failures for a candidate leave it unprocessed for the next pass.
func (s *Sweeper) SweepExpired(ctx context.Context) ([]*ResolvedRestriction, error) {
	now := s.nowMs()
	entry := s.getLogEntry().WithFields(log.Fields{
		"method":   "SweepExpired",
		"sweep_id": uuid.NewRandom().String(),
	})

	candidates, err := s.store.GetExpiredRestrictions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("get expired restrictions: %w", err)
	}
	if len(candidates) > 0 {
		entry.WithField("count", len(candidates)).Debug("processing expired restrictions")
	}

	var resolved []*ResolvedRestriction
	var sweepErr error
	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return resolved, ctx.Err()
		default:
		}

		chats, err := s.store.GetRestrictedChats(ctx, candidate.UserID, candidate.Kind)
		if err != nil {
			entry.WithFields(log.Fields{
				"user_id": candidate.UserID,
				"error":   err.Error(),
			}).Error("failed to resolve restricted chats, retrying next sweep")
			sweepErr = errors.Join(sweepErr, err)
			continue
		}
		if len(chats) == 0 {
			chats = []int64{candidate.ChatID}
		}

		resolution := &ResolvedRestriction{Infraction: candidate, Chats: chats}
		for _, chatID := range chats {
			if err := s.lift(ctx, chatID, candidate); err != nil {
				entry.WithFields(log.Fields{
					"user_id": candidate.UserID,
					"chat_id": chatID,
					"error":   err.Error(),
				}).Warn("failed to lift restriction in chat")
				resolution.Failed = append(resolution.Failed, chatID)
				continue
			}
			if s.notify {
				s.sendLiftNotification(ctx, chatID)
			}
		}

		if err := s.store.MarkInfractionProcessed(ctx, candidate.ID); err != nil {
			entry.WithFields(log.Fields{
				"infraction_id": candidate.ID,
				"error":         err.Error(),
			}).Error("failed to mark infraction processed")
			sweepErr = errors.Join(sweepErr, err)
			continue
		}
		observability.RecordLiftedRestriction()
		resolved = append(resolved, resolution)
	}

	if err := s.store.SetKV(ctx, kvKeyLastSweepMs, strconv.FormatInt(now, 10)); err != nil {
		entry.WithField("error", err.Error()).Debug("failed to record sweep timestamp")
	}

	return resolved, sweepErr
}

// lift reverses the platform effect of an expired restriction. The kinds
// are matched exhaustively; anything else in the candidate set is a query
// bug.
func (s *Sweeper) lift(ctx context.Context, chatID int64, infraction *db.Infraction) error {
	switch infraction.Kind {
	case db.InfractionMute:
		return s.platform.UnrestrictUser(ctx, chatID, infraction.UserID)
	case db.InfractionBan:
		return s.platform.UnbanUser(ctx, chatID, infraction.UserID)
	case db.InfractionWarn, db.InfractionUnmute, db.InfractionUnban:
		return fmt.Errorf("kind %q is not liftable", infraction.Kind)
	}
	return fmt.Errorf("unknown infraction kind %q", infraction.Kind)
}

func (s *Sweeper) sendLiftNotification(ctx context.Context, chatID int64) {
	lang := "en"
	if settings, err := s.store.GetSettings(ctx, chatID); err == nil && settings != nil {
		lang = settings.Language
	}
	text := i18n.Get("Your restriction in this chat has expired", lang)
	if err := s.platform.SendMessage(ctx, chatID, text); err != nil {
		s.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		}).Debug("failed to send lift notification")
	}
}

func (s *Sweeper) getLogEntry() *log.Entry {
	return log.WithField("object", "Sweeper")
}
