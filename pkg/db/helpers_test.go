package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestChunks(t *testing.T) {
	items := make([]int, 7000)
	chunks := Chunks(items, 19)

	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], maxParams/19)
	assert.Len(t, chunks[2], 7000-2*(maxParams/19))

	assert.Empty(t, Chunks([]int{}, 19))
	assert.Len(t, Chunks([]int{1, 2}, 0), 1)
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("exec select query: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("exec select query")))
}
