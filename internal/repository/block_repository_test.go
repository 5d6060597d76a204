package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBlocksByEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBlockRepository(db)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"event_id", "person_id", "day", "anonymous"}).
		AddRow(uint64(77), uint64(5), day, false).
		AddRow(uint64(77), uint64(6), day, true)
	mock.ExpectQuery(`SELECT .+ FROM day_blocks`).
		WithArgs(uint64(77)).
		WillReturnRows(rows)

	blocks, err := repo.ListByEvent(context.Background(), 77)

	assert.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.False(t, blocks[0].Anonymous)
	assert.True(t, blocks[1].Anonymous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForPerson(t *testing.T) {
	day1 := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)

	t.Run("delete then insert in one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewBlockRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM day_blocks`).
			WithArgs(uint64(77), uint64(5)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`INSERT INTO day_blocks`).
			WithArgs(uint64(77), uint64(5), day1, true).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO day_blocks`).
			WithArgs(uint64(77), uint64(5), day2, true).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err = repo.ReplaceForPerson(context.Background(), 77, 5, []time.Time{day1, day2}, true)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set clears all blocks", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewBlockRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM day_blocks`).
			WithArgs(uint64(77), uint64(5)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = repo.ReplaceForPerson(context.Background(), 77, 5, nil, false)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewBlockRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM day_blocks`).
			WithArgs(uint64(77), uint64(5)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO day_blocks`).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err = repo.ReplaceForPerson(context.Background(), 77, 5, []time.Time{day1}, false)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
