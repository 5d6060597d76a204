package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

var eventRows = []string{
	"id", "token", "title", "start_date", "end_date", "vote_deadline", "quorum", "phase",
	"final_date", "results_visible", "host_user_id", "host_person_id", "host_name",
	"created_at", "updated_at",
}

func TestGetByToken(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		token       string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
		expectNil   bool
	}{
		{
			name:  "found",
			token: "abc123",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(eventRows).AddRow(
					uint64(1), "abc123", "Game night",
					now, now.AddDate(0, 0, 10), now.Add(48*time.Hour), 3, models.PhaseVote,
					nil, true, nil, uint64(7), "Sam", now, now,
				)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE token = `).
					WithArgs("abc123").
					WillReturnRows(rows)
			},
		},
		{
			name:  "missing yields nil without error",
			token: "nope",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE token = `).
					WithArgs("nope").
					WillReturnError(sql.ErrNoRows)
			},
			expectNil: true,
		},
		{
			name:  "database error",
			token: "abc123",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE token = `).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			repo := NewEventRepository(db)

			tt.setupMock(mock)

			event, err := repo.GetByToken(context.Background(), tt.token)

			if tt.expectError {
				assert.Error(t, err)
			} else if tt.expectNil {
				assert.NoError(t, err)
				assert.Nil(t, event)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, event)
				assert.Equal(t, "abc123", event.Token)
				assert.Equal(t, models.PhaseVote, event.Phase)
				require.NotNil(t, event.HostPersonID)
				assert.Equal(t, uint64(7), *event.HostPersonID)
				assert.Nil(t, event.HostUserID)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdatePhase(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		moved     bool
	}{
		{
			name: "guard matches",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events SET phase = `).
					WithArgs(models.PhasePickDays, uint64(1), models.PhaseVote).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			moved: true,
		},
		{
			name: "lost the race",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events SET phase = `).
					WithArgs(models.PhasePickDays, uint64(1), models.PhaseVote).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			moved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			repo := NewEventRepository(db)

			tt.setupMock(mock)

			moved, err := repo.UpdatePhase(context.Background(), 1, models.PhaseVote, models.PhasePickDays)

			assert.NoError(t, err)
			assert.Equal(t, tt.moved, moved)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSetFinalDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewEventRepository(db)

	day := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE events`).
		WithArgs(day, models.PhaseFinalized, uint64(1), models.PhaseResults, models.PhaseFinalized).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.SetFinalDate(context.Background(), 1, day)

	assert.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearFinalDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewEventRepository(db)

	mock.ExpectExec(`UPDATE events SET final_date = NULL`).
		WithArgs(uint64(1), models.PhaseFinalized).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cleared, err := repo.ClearFinalDate(context.Background(), 1)

	assert.NoError(t, err)
	assert.True(t, cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueVote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewEventRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(eventRows).
		AddRow(uint64(1), "aaa", "One", now, now, now.Add(-time.Hour), 3, models.PhaseVote,
			nil, true, nil, nil, "Sam", now, now).
		AddRow(uint64(2), "bbb", "Two", now, now, now.Add(-time.Minute), 2, models.PhaseVote,
			nil, true, nil, nil, "Ada", now, now)
	mock.ExpectQuery(`SELECT .+ FROM events`).
		WithArgs(models.PhaseVote, now, 100).
		WillReturnRows(rows)

	events, err := repo.ListDueVote(context.Background(), now, 100)

	assert.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "aaa", events[0].Token)
	assert.Equal(t, "bbb", events[1].Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}
