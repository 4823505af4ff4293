package sqlite

import (
	"context"

	"github.com/groupwarden/gwbot/internal/db"
)

func (s *sqliteClient) GetContentRules(ctx context.Context) ([]*db.ContentRule, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var rules []*db.ContentRule
	err := s.db.SelectContext(ctx, &rules, `
		SELECT * FROM content_rules
		ORDER BY severity DESC, id ASC
	`)
	return rules, err
}

func (s *sqliteClient) AddContentRule(ctx context.Context, rule *db.ContentRule) (*db.ContentRule, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO content_rules (pattern, kind, severity)
		VALUES (?, ?, ?)
	`, rule.Pattern, rule.Kind, rule.Severity)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	rule.ID = id
	return rule, nil
}

func (s *sqliteClient) DeleteContentRule(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM content_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}
