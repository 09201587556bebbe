package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eqtlab/paycache-syncer/pkg/db"
	"github.com/eqtlab/paycache-syncer/syncer"
)

// Storage implements syncer.Store interface via PostgreSQL
type Storage struct {
	db *db.DB
}

func New(db *db.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// Wipe removes every cached payment and every cursor.
func (s *Storage) Wipe(ctx context.Context) error {
	err := s.db.RunInTransaction(ctx, func(ctx context.Context, txDB *db.DB) error {
		if _, err := txDB.Exec(ctx, `delete from payments`); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if _, err := txDB.Exec(ctx, `delete from meta`); err != nil {
			return fmt.Errorf("delete meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: wipe: %w", syncer.ErrStoreWrite, err)
	}
	return nil
}

// RepairMemoNormalized computes the normalized memo of rows that have none and returns how many were fixed.
func (s *Storage) RepairMemoNormalized(ctx context.Context) (int, error) {
	type pending struct{ accountID, token, memo string }
	var todo []pending

	err := s.db.RawQuery(ctx, func(rows pgx.Rows) error {
		var p pending
		if err := rows.Scan(&p.accountID, &p.token, &p.memo); err != nil {
			return err
		}
		todo = append(todo, p)
		return nil
	}, `select account_id, paging_token, memo from payments where memo_normalized is null`)
	if err != nil && !db.IsNoRows(err) {
		return 0, fmt.Errorf("%w: select unnormalized memos: %w", syncer.ErrStoreRead, err)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	err = s.db.RunInTransaction(ctx, func(ctx context.Context, txDB *db.DB) error {
		for _, p := range todo {
			_, err := txDB.Exec(ctx,
				`update payments set memo_normalized = $1 where account_id = $2 and paging_token = $3`,
				syncer.NormalizeMemo(p.memo), p.accountID, p.token,
			)
			if err != nil {
				return fmt.Errorf("repair %s: %w", p.token, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: repair normalized memos: %w", syncer.ErrStoreWrite, err)
	}

	return len(todo), nil
}
