package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/luckydraw/internal/domain"
)

const entryDetailColumns = `e.id, e.event_id, e.entrant_id, e.created_at, en.id, en.first_name, en.last_name, en.email`

type EntryRepo struct {
	pool *pgxpool.Pool
}

func NewEntryRepo(pool *pgxpool.Pool) *EntryRepo {
	return &EntryRepo{pool: pool}
}

// Create upserts the entrant by e-mail and inserts quantity entries for it in one transaction.
// An existing entrant keeps its stored name. The returned entries are in (created_at, id) order.
func (r *EntryRepo) Create(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error) {
	if quantity < 1 {
		quantity = 1
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stored domain.Entrant
	err = tx.QueryRow(ctx, `
		INSERT INTO entrants (first_name, last_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, first_name, last_name, email`,
		strings.TrimSpace(entrant.FirstName), strings.TrimSpace(entrant.LastName), normalizeEmail(entrant.Email),
	).Scan(&stored.ID, &stored.FirstName, &stored.LastName, &stored.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert entrant: %w", err)
	}

	rows, err := tx.Query(ctx, `
		INSERT INTO entries (event_id, entrant_id, created_at)
		SELECT $1, $2, clock_timestamp() FROM generate_series(1, $3)
		RETURNING id, event_id, entrant_id, created_at`,
		eventID, stored.ID, quantity)
	if isForeignKeyViolation(err) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert entries: %w", err)
	}
	created, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EntryDetail, error) {
		d := domain.EntryDetail{Entrant: stored}
		err := row.Scan(&d.ID, &d.EventID, &d.EntrantID, &d.CreatedAt)
		return d, err
	})
	if isForeignKeyViolation(err) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit entries: %w", err)
	}

	slices.SortFunc(created, func(a, b domain.EntryDetail) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return created, nil
}

func (r *EntryRepo) GetDetail(ctx context.Context, entryID uuid.UUID) (*domain.EntryDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryDetailColumns+`
		FROM entries e JOIN entrants en ON en.id = e.entrant_id
		WHERE e.id = $1`, entryID)

	d, err := scanEntryDetail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &d, nil
}

// Tally groups the event's entries by entrant, ordered by each entrant's first entry.
func (r *EntryRepo) Tally(ctx context.Context, eventID uuid.UUID) ([]domain.EntrantTally, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT en.id, en.first_name, en.last_name, en.email,
		       COUNT(*),
		       (ARRAY_AGG(e.id ORDER BY e.created_at, e.id))[1]
		FROM entries e JOIN entrants en ON en.id = e.entrant_id
		WHERE e.event_id = $1
		GROUP BY en.id
		ORDER BY MIN(e.created_at), en.id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally entries: %w", err)
	}

	tallies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EntrantTally, error) {
		var t domain.EntrantTally
		err := row.Scan(&t.Entrant.ID, &t.Entrant.FirstName, &t.Entrant.LastName, &t.Entrant.Email,
			&t.EntryCount, &t.FirstEntryID)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tally entries: %w", err)
	}
	return tallies, nil
}

// ListAfter returns up to limit entries sorting strictly after the cursor.
func (r *EntryRepo) ListAfter(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor, limit int) ([]domain.EntryDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryDetailColumns+`
		FROM entries e JOIN entrants en ON en.id = e.entrant_id
		WHERE e.event_id = $1 AND (e.created_at, e.id) > ($2, $3)
		ORDER BY e.created_at, e.id
		LIMIT $4`, eventID, cursor.CreatedAt, cursor.EntryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EntryDetail, error) {
		return scanEntryDetail(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

func (r *EntryRepo) Count(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (r *EntryRepo) CountThrough(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM entries WHERE event_id = $1 AND (created_at, id) <= ($2, $3)`,
		eventID, cursor.CreatedAt, cursor.EntryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (r *EntryRepo) Checkpoint(ctx context.Context, eventID uuid.UUID) (domain.EntryCursor, error) {
	var c domain.EntryCursor
	err := r.pool.QueryRow(ctx, `
		SELECT created_at, id FROM entries
		WHERE event_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, eventID).Scan(&c.CreatedAt, &c.EntryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntryCursor{}, nil
	}
	if err != nil {
		return domain.EntryCursor{}, fmt.Errorf("failed to read entry checkpoint: %w", err)
	}
	return c, nil
}

func scanEntryDetail(row pgx.Row) (domain.EntryDetail, error) {
	var d domain.EntryDetail
	err := row.Scan(&d.ID, &d.EventID, &d.EntrantID, &d.CreatedAt,
		&d.Entrant.ID, &d.Entrant.FirstName, &d.Entrant.LastName, &d.Entrant.Email)
	return d, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
