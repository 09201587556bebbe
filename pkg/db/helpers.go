package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// maxParams is the PostgreSQL limit of bind parameters in one statement.
const maxParams = 65535

type rowScanner func(rows pgx.Rows) error

// ScanOnce scans the single expected row into dest. Combined with the query helpers a missing
// row surfaces as pgx.ErrNoRows.
func ScanOnce(dest ...any) rowScanner {
	var scanner rowScanner

	if len(dest) > 0 {
		scanner = func(rows pgx.Rows) error {
			return rows.Scan(dest...)
		}
	}

	return scanner
}

type ScanArgs []any

// ScanAll appends every row to objs, getArgs returns the scan destinations of a fresh value.
func ScanAll[T any](objs *[]T, getArgs func(obj *T) ScanArgs) rowScanner {
	return func(rows pgx.Rows) error {
		var obj T

		if err := rows.Scan(getArgs(&obj)...); err != nil {
			return err
		}

		*objs = append(*objs, obj)

		return nil
	}
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Chunks splits items so that a multi-row statement with columns bind parameters per item stays under
// the parameter limit.
func Chunks[T any](items []T, columns int) [][]T {
	if columns < 1 {
		columns = 1
	}
	size := maxParams / columns

	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
