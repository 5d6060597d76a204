package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

type BlockRepository interface {
	ListByEvent(ctx context.Context, eventID uint64) ([]*models.DayBlock, error)
	// ReplaceForPerson swaps the person's full block set in one transaction
	// so concurrent saves can never interleave into a mixed set.
	ReplaceForPerson(ctx context.Context, eventID, personID uint64, days []time.Time, anonymous bool) error
}

type blockRepository struct {
	db *sql.DB
}

func NewBlockRepository(db *sql.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) ListByEvent(ctx context.Context, eventID uint64) ([]*models.DayBlock, error) {
	query := `
		SELECT event_id, person_id, day, anonymous
		FROM day_blocks
		WHERE event_id = ?
		ORDER BY person_id ASC, day ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list day blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.DayBlock
	for rows.Next() {
		block := &models.DayBlock{}
		if err := rows.Scan(&block.EventID, &block.PersonID, &block.Day, &block.Anonymous); err != nil {
			return nil, fmt.Errorf("failed to scan day block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day blocks: %w", err)
	}
	return blocks, nil
}

func (r *blockRepository) ReplaceForPerson(ctx context.Context, eventID, personID uint64, days []time.Time, anonymous bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := `DELETE FROM day_blocks WHERE event_id = ? AND person_id = ?`
	if _, err := tx.ExecContext(ctx, deleteQuery, eventID, personID); err != nil {
		return fmt.Errorf("failed to clear day blocks: %w", err)
	}

	insertQuery := `
		INSERT INTO day_blocks (event_id, person_id, day, anonymous, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	for _, day := range days {
		if _, err := tx.ExecContext(ctx, insertQuery, eventID, personID, day, anonymous); err != nil {
			return fmt.Errorf("failed to insert day block: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day blocks: %w", err)
	}
	return nil
}
