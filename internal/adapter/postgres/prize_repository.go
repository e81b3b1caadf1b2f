package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/luckydraw/internal/domain"
)

type PrizeRepo struct {
	pool *pgxpool.Pool
}

func NewPrizeRepo(pool *pgxpool.Pool) *PrizeRepo {
	return &PrizeRepo{pool: pool}
}

// ListByEvent returns the event's prizes in draw order.
func (r *PrizeRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Prize, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, name, description, display_order, winning_entry_id
		FROM prizes WHERE event_id = $1
		ORDER BY display_order, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes: %w", err)
	}

	prizes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Prize, error) {
		var p domain.Prize
		err := row.Scan(&p.ID, &p.EventID, &p.Name, &p.Description, &p.Order, &p.WinningEntryID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes: %w", err)
	}
	return prizes, nil
}

func (r *PrizeRepo) SetWinner(ctx context.Context, prizeID, entryID uuid.UUID) error {
	return setWinner(ctx, r.pool, prizeID, entryID)
}

// AwardAll stores every award and marks the event drawn. Nothing is written if any prize already has a winner.
func (r *PrizeRepo) AwardAll(ctx context.Context, eventID uuid.UUID, awards []domain.Award, drawnAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range awards {
		if err := setWinner(ctx, tx, a.PrizeID, a.EntryID); err != nil {
			return err
		}
	}
	if err := markEventDrawn(ctx, tx, eventID, drawnAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit awards: %w", err)
	}
	return nil
}

// ResetDraw clears all winners of the event and reopens it.
func (r *PrizeRepo) ResetDraw(ctx context.Context, eventID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE prizes SET winning_entry_id = NULL WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to clear winners: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE events SET status = $2, drawn_at = NULL, updated_at = NOW() WHERE id = $1`,
		eventID, string(domain.EventStatusOpen))
	if err != nil {
		return fmt.Errorf("failed to reopen event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func setWinner(ctx context.Context, q querier, prizeID, entryID uuid.UUID) error {
	tag, err := q.Exec(ctx,
		`UPDATE prizes SET winning_entry_id = $2 WHERE id = $1 AND winning_entry_id IS NULL`,
		prizeID, entryID)
	if isForeignKeyViolation(err) {
		return domain.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set winner: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM prizes WHERE id = $1)`, prizeID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check prize: %w", err)
	}
	if !exists {
		return domain.ErrPrizeNotFound
	}
	return domain.ErrPrizeAlreadyDrawn
}
