package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no timeline row exists for the identifier.
	ErrNotFound = errors.New("timeline: not found")
	// ErrVersionConflict signals the aggregate changed since it was read and
	// the conditional replace lost the race. Callers re-read and retry.
	ErrVersionConflict = errors.New("timeline: version conflict")
	// ErrTimelineExists signals a live timeline already exists for the pair.
	ErrTimelineExists = errors.New("timeline: live timeline already exists for pair")
)

// Repository handles data access for timeline aggregates, their event feed,
// and the transactional outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const timelineColumns = `id, startup_id, agency_id, proposed_by, acceptance, stages, version, created_at, updated_at`

// Create inserts a new timeline aggregate inside the caller's transaction.
// The partial unique index on the live pair surfaces as ErrTimelineExists.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, t Timeline) (Timeline, error) {
	stages, err := json.Marshal(t.Stages)
	if err != nil {
		return Timeline{}, fmt.Errorf("timeline: marshal stages: %w", err)
	}

	const insertSQL = `
		INSERT INTO timelines (startup_id, agency_id, proposed_by, acceptance, stages)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + timelineColumns

	rec, err := scanTimeline(tx.QueryRow(ctx, insertSQL, t.StartupID, t.AgencyID, t.ProposedBy, t.Acceptance, stages))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Timeline{}, ErrTimelineExists
		}
		return Timeline{}, fmt.Errorf("timeline: insert: %w", err)
	}

	return rec, nil
}

// Get loads a timeline aggregate by id.
func (r *Repository) Get(ctx context.Context, id string) (Timeline, error) {
	const query = `SELECT ` + timelineColumns + ` FROM timelines WHERE id = $1`

	rec, err := scanTimeline(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Timeline{}, ErrNotFound
		}
		return Timeline{}, fmt.Errorf("timeline: get: %w", err)
	}
	return rec, nil
}

// GetTx loads a timeline aggregate inside the caller's transaction.
func (r *Repository) GetTx(ctx context.Context, tx pgx.Tx, id string) (Timeline, error) {
	const query = `SELECT ` + timelineColumns + ` FROM timelines WHERE id = $1`

	rec, err := scanTimeline(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Timeline{}, ErrNotFound
		}
		return Timeline{}, fmt.Errorf("timeline: get: %w", err)
	}
	return rec, nil
}

// FindCurrentForUser returns the newest timeline where the user is either
// side of the pairing, preferring live (pending or accepted) records.
func (r *Repository) FindCurrentForUser(ctx context.Context, userID string) (Timeline, error) {
	const query = `
		SELECT ` + timelineColumns + `
		FROM timelines
		WHERE startup_id = $1 OR agency_id = $1
		ORDER BY (acceptance IN ('pending','accepted')) DESC, created_at DESC
		LIMIT 1
	`

	rec, err := scanTimeline(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Timeline{}, ErrNotFound
		}
		return Timeline{}, fmt.Errorf("timeline: find for user: %w", err)
	}
	return rec, nil
}

// Replace persists the whole aggregate conditioned on the version the caller
// read. Zero rows affected means either the row vanished or another writer
// won the race; the follow-up existence check disambiguates.
func (r *Repository) Replace(ctx context.Context, tx pgx.Tx, t Timeline) (Timeline, error) {
	stages, err := json.Marshal(t.Stages)
	if err != nil {
		return Timeline{}, fmt.Errorf("timeline: marshal stages: %w", err)
	}

	const updateSQL = `
		UPDATE timelines
		SET acceptance = $1,
		    stages = $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $3 AND version = $4
		RETURNING ` + timelineColumns

	rec, err := scanTimeline(tx.QueryRow(ctx, updateSQL, t.Acceptance, stages, t.ID, t.Version))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Timeline{}, fmt.Errorf("timeline: replace: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM timelines WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return Timeline{}, fmt.Errorf("timeline: replace check: %w", err)
	}
	if !exists {
		return Timeline{}, ErrNotFound
	}
	return Timeline{}, ErrVersionConflict
}

// AppendEvent appends an immutable event row for the timeline. Seq is
// assigned monotonically per timeline inside the transaction.
func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, timelineID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("timeline: marshal event payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const insertSQL = `
		INSERT INTO timeline_events (timeline_id, seq, type, actor_id, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		FROM timeline_events
		WHERE timeline_id = $1
	`
	if _, err := tx.Exec(ctx, insertSQL, timelineID, eventType, actor, body); err != nil {
		return fmt.Errorf("timeline: insert event: %w", err)
	}
	return nil
}

// EnqueueOutbox records a message for downstream delivery in the same
// transaction as the state change it announces.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("timeline: marshal outbox payload: %w", err)
	}

	const insertSQL = `INSERT INTO outbox (topic, payload) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, insertSQL, topic, body); err != nil {
		return fmt.Errorf("timeline: enqueue outbox: %w", err)
	}
	return nil
}

// ListEvents returns the append-only event feed for a timeline in order.
func (r *Repository) ListEvents(ctx context.Context, timelineID string) ([]Event, error) {
	const query = `
		SELECT id, timeline_id, seq, type, actor_id, payload, created_at
		FROM timeline_events
		WHERE timeline_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, timelineID)
	if err != nil {
		return nil, fmt.Errorf("timeline: list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.TimelineID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("timeline: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline: iterate events: %w", err)
	}
	return events, nil
}

func scanTimeline(row pgx.Row) (Timeline, error) {
	var (
		rec    Timeline
		stages []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.StartupID,
		&rec.AgencyID,
		&rec.ProposedBy,
		&rec.Acceptance,
		&stages,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Timeline{}, err
	}
	if err := json.Unmarshal(stages, &rec.Stages); err != nil {
		return Timeline{}, fmt.Errorf("timeline: unmarshal stages: %w", err)
	}
	return rec, nil
}
