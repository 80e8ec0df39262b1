package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithReadOnlyTransaction(t *testing.T) {
	t.Parallel()
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "ana", false)

	var count int
	err := pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	errStop := errors.New("stop")
	err = pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	// The rolled back transaction must not hold the connection.
	require.NoError(t, pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET display_name = 'Ana' WHERE id = 'ana'`)
		return err
	}))
}
