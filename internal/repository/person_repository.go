package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

type PersonRepository interface {
	ListByEvent(ctx context.Context, eventID uint64) ([]*models.Person, error)
	GetBySlug(ctx context.Context, eventID uint64, slug string) (*models.Person, error)
	GetByID(ctx context.Context, id uint64) (*models.Person, error)
}

type personRepository struct {
	db *sql.DB
}

func NewPersonRepository(db *sql.DB) PersonRepository {
	return &personRepository{db: db}
}

func (r *personRepository) ListByEvent(ctx context.Context, eventID uint64) ([]*models.Person, error) {
	query := `
		SELECT id, event_id, label, slug, created_at
		FROM people
		WHERE event_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	var people []*models.Person
	for rows.Next() {
		person := &models.Person{}
		if err := rows.Scan(&person.ID, &person.EventID, &person.Label, &person.Slug, &person.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate people: %w", err)
	}
	return people, nil
}

func (r *personRepository) GetBySlug(ctx context.Context, eventID uint64, slug string) (*models.Person, error) {
	query := `
		SELECT id, event_id, label, slug, created_at
		FROM people
		WHERE event_id = ? AND slug = ?
	`

	person := &models.Person{}
	err := r.db.QueryRowContext(ctx, query, eventID, slug).Scan(
		&person.ID, &person.EventID, &person.Label, &person.Slug, &person.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person by slug: %w", err)
	}
	return person, nil
}

func (r *personRepository) GetByID(ctx context.Context, id uint64) (*models.Person, error) {
	query := `
		SELECT id, event_id, label, slug, created_at
		FROM people
		WHERE id = ?
	`

	person := &models.Person{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&person.ID, &person.EventID, &person.Label, &person.Slug, &person.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person by id: %w", err)
	}
	return person, nil
}
