package sqlite

import (
	"context"

	"github.com/groupwarden/gwbot/internal/db"
)

func (s *sqliteClient) WriteInfraction(ctx context.Context, infraction *db.Infraction) (*db.Infraction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO infractions (user_id, chat_id, kind, reason, action_taken,
			duration_minutes, issued_by, issued_at_ms, expires_at_ms, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		infraction.UserID,
		infraction.ChatID,
		infraction.Kind,
		infraction.Reason,
		infraction.ActionTaken,
		infraction.DurationMinutes,
		infraction.IssuedBy,
		infraction.IssuedAtMs,
		infraction.ExpiresAtMs,
		infraction.Processed,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	infraction.ID = id
	return infraction, nil
}

func (s *sqliteClient) GetUserInfractions(ctx context.Context, userID int64) ([]*db.Infraction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var infractions []*db.Infraction
	err := s.db.SelectContext(ctx, &infractions, `
		SELECT * FROM infractions
		WHERE user_id = ?
		ORDER BY issued_at_ms ASC, id ASC
	`, userID)
	return infractions, err
}

func (s *sqliteClient) MarkInfractionProcessed(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE infractions SET processed = TRUE WHERE id = ?`, id)
	return err
}

// GetExpiredRestrictions selects unprocessed mutes and bans whose expiry has
// passed, skipping any (user, kind) that was superseded by a strictly newer
// still-active infraction of the same kind.
func (s *sqliteClient) GetExpiredRestrictions(ctx context.Context, nowMs int64) ([]*db.Infraction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var infractions []*db.Infraction
	err := s.db.SelectContext(ctx, &infractions, `
		SELECT * FROM infractions i
		WHERE i.kind IN (?, ?)
		AND i.processed = FALSE
		AND i.expires_at_ms IS NOT NULL
		AND i.expires_at_ms <= ?
		AND NOT EXISTS (
			SELECT 1 FROM infractions n
			WHERE n.user_id = i.user_id
			AND n.kind = i.kind
			AND n.id != i.id
			AND (n.issued_at_ms > i.issued_at_ms OR (n.issued_at_ms = i.issued_at_ms AND n.id > i.id))
			AND (n.expires_at_ms IS NULL OR n.expires_at_ms > ?)
		)
		ORDER BY i.expires_at_ms ASC, i.id ASC
	`, db.InfractionMute, db.InfractionBan, nowMs, nowMs)
	return infractions, err
}

func (s *sqliteClient) GetRestrictedChats(ctx context.Context, userID int64, kind db.InfractionKind) ([]int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var chatIDs []int64
	err := s.db.SelectContext(ctx, &chatIDs, `
		SELECT DISTINCT chat_id FROM infractions
		WHERE user_id = ? AND kind = ?
		ORDER BY chat_id ASC
	`, userID, kind)
	return chatIDs, err
}
