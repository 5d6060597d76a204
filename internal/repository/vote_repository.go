package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

type VoteRepository interface {
	// Upsert records one attendance decision per (event, person); a repeat
	// vote overwrites the previous one.
	Upsert(ctx context.Context, eventID, personID uint64, in bool) error
	ListByEvent(ctx context.Context, eventID uint64) ([]*models.Vote, error)
	CountIn(ctx context.Context, eventID uint64) (int, error)
}

type voteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Upsert(ctx context.Context, eventID, personID uint64, in bool) error {
	query := `
		INSERT INTO votes (event_id, person_id, in_vote, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE in_vote = ?, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, eventID, personID, in, in); err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

func (r *voteRepository) ListByEvent(ctx context.Context, eventID uint64) ([]*models.Vote, error) {
	query := `
		SELECT event_id, person_id, in_vote, updated_at
		FROM votes
		WHERE event_id = ?
		ORDER BY person_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		vote := &models.Vote{}
		if err := rows.Scan(&vote.EventID, &vote.PersonID, &vote.In, &vote.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}
	return votes, nil
}

func (r *voteRepository) CountIn(ctx context.Context, eventID uint64) (int, error) {
	query := `SELECT COUNT(*) FROM votes WHERE event_id = ? AND in_vote = 1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count in votes: %w", err)
	}
	return count, nil
}
