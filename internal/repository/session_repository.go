package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

// ClaimParams describes one slot claim. ReplaceSessionID, when set, is the
// claimant's previous session in the same event; it goes inactive in the
// same transaction so an attendee can never hold two slots at once.
type ClaimParams struct {
	EventID          uint64
	PersonID         uint64
	UserID           *uint64
	TokenHash        string
	ReplaceSessionID *uint64
}

type SessionRepository interface {
	GetActiveByUser(ctx context.Context, eventID, userID uint64) (*models.Session, error)
	GetActiveByTokenHash(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error)
	GetActiveByPerson(ctx context.Context, eventID, personID uint64) (*models.Session, error)
	ListActivePersonIDs(ctx context.Context, eventID uint64) ([]uint64, error)
	// Claim deactivates every active session on the slot plus the claimant's
	// replaced session, then inserts the new active one, all in a single
	// transaction.
	Claim(ctx context.Context, params ClaimParams) (*models.Session, error)
	Deactivate(ctx context.Context, sessionID uint64) error
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `id, event_id, person_id, user_id, token_hash, active, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.Session, error) {
	session := &models.Session{}
	err := row.Scan(
		&session.ID, &session.EventID, &session.PersonID, &session.UserID,
		&session.TokenHash, &session.Active, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepository) GetActiveByUser(ctx context.Context, eventID, userID uint64) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE event_id = ? AND user_id = ? AND active = 1
		ORDER BY id DESC
		LIMIT 1
	`, sessionColumns)

	session, err := scanSession(r.db.QueryRowContext(ctx, query, eventID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by user: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) GetActiveByTokenHash(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE event_id = ? AND token_hash = ? AND active = 1
		LIMIT 1
	`, sessionColumns)

	session, err := scanSession(r.db.QueryRowContext(ctx, query, eventID, tokenHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) GetActiveByPerson(ctx context.Context, eventID, personID uint64) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE event_id = ? AND person_id = ? AND active = 1
		ORDER BY id DESC
		LIMIT 1
	`, sessionColumns)

	session, err := scanSession(r.db.QueryRowContext(ctx, query, eventID, personID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by person: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) ListActivePersonIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	query := `SELECT DISTINCT person_id FROM sessions WHERE event_id = ? AND active = 1`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan person id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active sessions: %w", err)
	}
	return ids, nil
}

func (r *sessionRepository) Claim(ctx context.Context, params ClaimParams) (*models.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slotQuery := `UPDATE sessions SET active = 0, updated_at = NOW() WHERE event_id = ? AND person_id = ? AND active = 1`
	if _, err := tx.ExecContext(ctx, slotQuery, params.EventID, params.PersonID); err != nil {
		return nil, fmt.Errorf("failed to release slot sessions: %w", err)
	}

	if params.ReplaceSessionID != nil {
		replaceQuery := `UPDATE sessions SET active = 0, updated_at = NOW() WHERE id = ?`
		if _, err := tx.ExecContext(ctx, replaceQuery, *params.ReplaceSessionID); err != nil {
			return nil, fmt.Errorf("failed to release previous session: %w", err)
		}
	}

	insertQuery := `
		INSERT INTO sessions (event_id, person_id, user_id, token_hash, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, NOW(), NOW())
	`
	result, err := tx.ExecContext(ctx, insertQuery,
		params.EventID, params.PersonID, params.UserID, params.TokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sessionID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get session id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return &models.Session{
		ID:        uint64(sessionID),
		EventID:   params.EventID,
		PersonID:  params.PersonID,
		UserID:    params.UserID,
		TokenHash: params.TokenHash,
		Active:    true,
	}, nil
}

func (r *sessionRepository) Deactivate(ctx context.Context, sessionID uint64) error {
	query := `UPDATE sessions SET active = 0, updated_at = NOW() WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}
