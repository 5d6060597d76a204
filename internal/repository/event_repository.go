package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

type EventRepository interface {
	GetByToken(ctx context.Context, token string) (*models.Event, error)
	GetByID(ctx context.Context, id uint64) (*models.Event, error)
	// UpdatePhase moves the event from one phase to another and reports
	// whether the row actually changed. The phase guard in the WHERE clause
	// makes concurrent transition attempts lose cleanly.
	UpdatePhase(ctx context.Context, id uint64, from, to string) (bool, error)
	SetFinalDate(ctx context.Context, id uint64, day time.Time) (bool, error)
	ClearFinalDate(ctx context.Context, id uint64) (bool, error)
	SetResultsVisible(ctx context.Context, id uint64, visible bool) error
	// ListDueVote returns events still in VOTE whose deadline has passed.
	ListDueVote(ctx context.Context, now time.Time, limit int) ([]*models.Event, error)
}

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `id, token, title, start_date, end_date, vote_deadline, quorum, phase,
	       final_date, results_visible, host_user_id, host_person_id, host_name, created_at, updated_at`

func scanEvent(row interface{ Scan(...interface{}) error }) (*models.Event, error) {
	event := &models.Event{}
	err := row.Scan(
		&event.ID, &event.Token, &event.Title, &event.StartDate, &event.EndDate,
		&event.VoteDeadline, &event.Quorum, &event.Phase, &event.FinalDate,
		&event.ResultsVisible, &event.HostUserID, &event.HostPersonID,
		&event.HostName, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *eventRepository) GetByToken(ctx context.Context, token string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE token = ?`, eventColumns)

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by token: %w", err)
	}
	return event, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id uint64) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = ?`, eventColumns)

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by id: %w", err)
	}
	return event, nil
}

func (r *eventRepository) UpdatePhase(ctx context.Context, id uint64, from, to string) (bool, error) {
	query := `UPDATE events SET phase = ?, updated_at = NOW() WHERE id = ? AND phase = ?`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update event phase: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

func (r *eventRepository) SetFinalDate(ctx context.Context, id uint64, day time.Time) (bool, error) {
	query := `
		UPDATE events
		SET final_date = ?, phase = ?, updated_at = NOW()
		WHERE id = ? AND phase IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		day, models.PhaseFinalized, id, models.PhaseResults, models.PhaseFinalized)
	if err != nil {
		return false, fmt.Errorf("failed to set final date: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

func (r *eventRepository) ClearFinalDate(ctx context.Context, id uint64) (bool, error) {
	query := `UPDATE events SET final_date = NULL, updated_at = NOW() WHERE id = ? AND phase = ?`

	result, err := r.db.ExecContext(ctx, query, id, models.PhaseFinalized)
	if err != nil {
		return false, fmt.Errorf("failed to clear final date: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

func (r *eventRepository) SetResultsVisible(ctx context.Context, id uint64, visible bool) error {
	query := `UPDATE events SET results_visible = ?, updated_at = NOW() WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, visible, id); err != nil {
		return fmt.Errorf("failed to set results visibility: %w", err)
	}
	return nil
}

func (r *eventRepository) ListDueVote(ctx context.Context, now time.Time, limit int) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE phase = ? AND vote_deadline < ?
		ORDER BY vote_deadline ASC
		LIMIT ?
	`, eventColumns)

	rows, err := r.db.QueryContext(ctx, query, models.PhaseVote, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
