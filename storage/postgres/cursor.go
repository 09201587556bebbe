package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/paycache-syncer/pkg/db"
	"github.com/eqtlab/paycache-syncer/syncer"
)

func cursorKey(accountID string) string {
	return "cursor:" + accountID
}

func (s *Storage) GetCursor(ctx context.Context, accountID string) (string, bool, error) {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return "", false, err
	}

	query := sq.
		Select("value").
		From("meta").
		Where(sq.Eq{"key": cursorKey(accountID)})

	var token string
	err := s.db.Select(ctx, query, db.ScanOnce(&token))
	if db.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
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

	query := sq.
		Insert("meta").
		Columns("key", "value").
		Values(cursorKey(accountID), token).
		Suffix("on conflict (key) do update set value = excluded.value")

	if err := s.db.Insert(ctx, query, nil); err != nil {
		return fmt.Errorf("%w: save cursor: %w", syncer.ErrStoreWrite, err)
	}

	return nil
}

func (s *Storage) ClearCursor(ctx context.Context, accountID string) error {
	if err := syncer.ValidateAccountID(accountID); err != nil {
		return err
	}

	query := sq.
		Delete("meta").
		Where(sq.Eq{"key": cursorKey(accountID)})

	if err := s.db.Delete(ctx, query, nil); err != nil {
		return fmt.Errorf("%w: delete cursor: %w", syncer.ErrStoreWrite, err)
	}

	return nil
}
