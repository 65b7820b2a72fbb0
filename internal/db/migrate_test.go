package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ganger/internal/db"
	"ganger/internal/db/dbtest"
)

func TestMigrateUpDownStatus(t *testing.T) {
	td := dbtest.Setup(t)

	st, err := db.Status(td.URL)
	require.NoError(t, err)
	assert.True(t, st.Applied)
	assert.Equal(t, uint(1), st.Version)
	assert.False(t, st.Dirty)

	ran, err := db.MigrateUp(td.URL)
	require.NoError(t, err)
	assert.False(t, ran, "second up should be a no-op")

	var wealth int64
	err = td.Pool.QueryRow(context.Background(), `
		INSERT INTO gang.gangs (id, owner_user_id, name, credits, rating, stash_value)
		VALUES ('00000000-0000-0000-0000-000000000001', 'u', 'Test', 100, 50, 25)
		RETURNING wealth
	`).Scan(&wealth)
	require.NoError(t, err)
	assert.Equal(t, int64(175), wealth)

	_, err = td.Pool.Exec(context.Background(), `UPDATE gang.gangs SET credits = -1`)
	assert.Error(t, err, "credits check constraint")

	td.Pool.Close()
	td.Pool = nil
	require.NoError(t, db.MigrateDown(td.URL, 1))
	st, err = db.Status(td.URL)
	require.NoError(t, err)
	assert.False(t, st.Applied)
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	assert.Error(t, db.MigrateDown("postgres://unused", 0))
}
