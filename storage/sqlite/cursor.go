package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/paycache-syncer/syncer"
)

func cursorKey(accountID string) string {
	return "cursor:" + accountID
}

func (s *Storage) GetCursor(ctx context.Context, accountID string) (string, bool, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return "", false, err
	}

	query, args, err := sq.Select("value").
		From("meta").
		Where(sq.Eq{"key": cursorKey(accountID)}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("%w: build cursor query: %w", syncer.ErrStoreRead, err)
	}

	var token string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&token)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%w: select cursor: %w", syncer.ErrStoreRead, err)
	}

	return token, true, nil
}

func (s *Storage) SetCursor(ctx context.Context, accountID, token string) error {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: blank cursor", syncer.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, cursorKey(accountID), token)
	if err != nil {
		return fmt.Errorf("%w: save cursor: %w", syncer.ErrStoreWrite, err)
	}

	return nil
}

func (s *Storage) ClearCursor(ctx context.Context, accountID string) error {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return err
	}

	query, args, err := sq.Delete("meta").Where(sq.Eq{"key": cursorKey(accountID)}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build clear cursor query: %w", syncer.ErrStoreWrite, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: delete cursor: %w", syncer.ErrStoreWrite, err)
	}

	return nil
}
