package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/luckydraw/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	const q = `SELECT id, name, status, drawn_at, created_at, updated_at FROM events WHERE id = $1`

	var (
		e      domain.Event
		status string
	)
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&e.ID, &e.Name, &status, &e.DrawnAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by ID: %w", err)
	}
	e.Status = domain.EventStatus(status)
	return &e, nil
}

func (r *EventRepo) MarkDrawn(ctx context.Context, eventID uuid.UUID, drawnAt time.Time) error {
	return markEventDrawn(ctx, r.pool, eventID, drawnAt)
}

func markEventDrawn(ctx context.Context, q querier, eventID uuid.UUID, drawnAt time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE events SET status = $2, drawn_at = $3, updated_at = NOW() WHERE id = $1`,
		eventID, string(domain.EventStatusDrawn), drawnAt)
	if err != nil {
		return fmt.Errorf("failed to mark event drawn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
