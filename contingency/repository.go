package contingency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundflow/timeline"
)

var (
	// ErrNotFound signals the referenced form or timeline does not exist.
	ErrNotFound = errors.New("contingency: not found")
	// ErrForbidden signals the actor is not the party allowed to act.
	ErrForbidden = errors.New("contingency: forbidden")
	// ErrNotEligible signals the parent timeline's gate is not accepted.
	ErrNotEligible = errors.New("contingency: timeline not accepted")
	// ErrAlreadyDecided signals the form is already in a terminal state.
	ErrAlreadyDecided = errors.New("contingency: already decided")
	// ErrStageNotFound signals the form references an unknown stage key.
	ErrStageNotFound = errors.New("contingency: stage not found")
)

// Repository handles data access for contingency forms and their invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FileParams carries one startup-authored funding request.
type FileParams struct {
	TimelineID  string
	ActorID     string
	Stage       timeline.StageKey
	Description string
	Amount      int64
	Invoices    []Invoice
}

// File appends a pending form to the timeline's queue. The eligibility check
// (gate accepted, actor is the startup) and the inserts share one
// transaction so a concurrent gate decision cannot slip a form through.
func (r *Repository) File(ctx context.Context, params FileParams) (Form, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Form{}, fmt.Errorf("contingency: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		startupID  string
		acceptance string
	)
	// FOR UPDATE serializes filing against gate decisions and payments so
	// event seq assignment cannot collide.
	const parentSQL = `SELECT startup_id, acceptance FROM timelines WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, parentSQL, params.TimelineID).Scan(&startupID, &acceptance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Form{}, ErrNotFound
		}
		return Form{}, fmt.Errorf("contingency: load timeline: %w", err)
	}
	if startupID != params.ActorID {
		return Form{}, ErrForbidden
	}
	if acceptance != string(timeline.AcceptanceAccepted) {
		return Form{}, ErrNotEligible
	}

	const insertSQL = `
		INSERT INTO contingency_forms (timeline_id, stage_key, description, amount, status, created_by)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING id, timeline_id, stage_key, description, amount, status, created_by, decided_by, created_at, decided_at
	`
	form, err := scanForm(tx.QueryRow(ctx, insertSQL, params.TimelineID, params.Stage, params.Description, params.Amount, params.ActorID))
	if err != nil {
		return Form{}, fmt.Errorf("contingency: insert form: %w", err)
	}

	for _, inv := range params.Invoices {
		const invoiceSQL = `
			INSERT INTO contingency_invoices (form_id, identifier, url)
			VALUES ($1, $2, $3)
			RETURNING id, form_id, identifier, url
		`
		var rec Invoice
		if err := tx.QueryRow(ctx, invoiceSQL, form.ID, inv.Identifier, inv.URL).
			Scan(&rec.ID, &rec.FormID, &rec.Identifier, &rec.URL); err != nil {
			return Form{}, fmt.Errorf("contingency: insert invoice: %w", err)
		}
		form.Invoices = append(form.Invoices, rec)
	}

	payload := map[string]any{
		"form_id": form.ID,
		"stage":   form.Stage,
		"amount":  form.Amount,
	}
	if err := insertEvent(ctx, tx, params.TimelineID, timeline.EventFormFiled, params.ActorID, payload); err != nil {
		return Form{}, err
	}
	if err := enqueueOutbox(ctx, tx, "contingency.filed", payload); err != nil {
		return Form{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Form{}, fmt.Errorf("contingency: commit: %w", err)
	}

	return form, nil
}

// Decide moves a pending form to accepted or rejected. The conditional
// update only matches when the form is still pending and the actor is the
// timeline's funding agency; a miss is classified with a follow-up read.
func (r *Repository) Decide(ctx context.Context, actorID, formID string, next Status) (Form, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Form{}, fmt.Errorf("contingency: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the parent timeline before touching the form so event seq
	// assignment is serialized with the other writers.
	const lockSQL = `
		SELECT t.id FROM timelines t
		JOIN contingency_forms f ON f.timeline_id = t.id
		WHERE f.id = $1
		FOR UPDATE OF t
	`
	var timelineID string
	if err := tx.QueryRow(ctx, lockSQL, formID).Scan(&timelineID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Form{}, ErrNotFound
		}
		return Form{}, fmt.Errorf("contingency: lock timeline: %w", err)
	}

	const updateSQL = `
		UPDATE contingency_forms f
		SET status = $1,
		    decided_by = $2,
		    decided_at = now()
		FROM timelines t
		WHERE f.id = $3
		  AND t.id = f.timeline_id
		  AND t.agency_id = $2
		  AND f.status = 'pending'
		RETURNING f.id, f.timeline_id, f.stage_key, f.description, f.amount, f.status, f.created_by, f.decided_by, f.created_at, f.decided_at
	`

	form, err := scanForm(tx.QueryRow(ctx, updateSQL, next, actorID, formID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Form{}, fmt.Errorf("contingency: decide: %w", err)
		}

		const check = `
			SELECT f.status, t.agency_id
			FROM contingency_forms f
			JOIN timelines t ON t.id = f.timeline_id
			WHERE f.id = $1
		`
		var (
			status   Status
			agencyID string
		)
		if err := tx.QueryRow(ctx, check, formID).Scan(&status, &agencyID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Form{}, ErrNotFound
			}
			return Form{}, fmt.Errorf("contingency: decide fetch: %w", err)
		}
		if agencyID != actorID {
			return Form{}, ErrForbidden
		}
		if status != StatusPending {
			return Form{}, ErrAlreadyDecided
		}
		return Form{}, ErrForbidden
	}

	form.Invoices, err = listInvoicesTx(ctx, tx, form.ID)
	if err != nil {
		return Form{}, err
	}

	payload := map[string]any{
		"form_id":  form.ID,
		"stage":    form.Stage,
		"amount":   form.Amount,
		"decision": form.Status,
	}
	if err := insertEvent(ctx, tx, form.TimelineID, timeline.EventFormDecided, actorID, payload); err != nil {
		return Form{}, err
	}
	if err := enqueueOutbox(ctx, tx, "contingency.decided", payload); err != nil {
		return Form{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Form{}, fmt.Errorf("contingency: commit: %w", err)
	}

	return form, nil
}

// ListForTimeline returns every form filed against a timeline, oldest first,
// with invoices attached.
func (r *Repository) ListForTimeline(ctx context.Context, timelineID string) ([]Form, error) {
	const query = `
		SELECT id, timeline_id, stage_key, description, amount, status, created_by, decided_by, created_at, decided_at
		FROM contingency_forms
		WHERE timeline_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, timelineID)
	if err != nil {
		return nil, fmt.Errorf("contingency: list: %w", err)
	}
	defer rows.Close()

	forms := []Form{}
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("contingency: scan form: %w", err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contingency: iterate: %w", err)
	}

	for i := range forms {
		invoices, err := r.listInvoices(ctx, forms[i].ID)
		if err != nil {
			return nil, err
		}
		forms[i].Invoices = invoices
	}

	return forms, nil
}

func (r *Repository) listInvoices(ctx context.Context, formID string) ([]Invoice, error) {
	const query = `SELECT id, form_id, identifier, url FROM contingency_invoices WHERE form_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("contingency: list invoices: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

func listInvoicesTx(ctx context.Context, tx pgx.Tx, formID string) ([]Invoice, error) {
	const query = `SELECT id, form_id, identifier, url FROM contingency_invoices WHERE form_id = $1 ORDER BY id`

	rows, err := tx.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("contingency: list invoices: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	invoices := []Invoice{}
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.FormID, &inv.Identifier, &inv.URL); err != nil {
			return nil, fmt.Errorf("contingency: scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contingency: iterate invoices: %w", err)
	}
	return invoices, nil
}

func scanForm(row pgx.Row) (Form, error) {
	var form Form
	err := row.Scan(
		&form.ID,
		&form.TimelineID,
		&form.Stage,
		&form.Description,
		&form.Amount,
		&form.Status,
		&form.CreatedBy,
		&form.DecidedBy,
		&form.CreatedAt,
		&form.DecidedAt,
	)
	if err != nil {
		return Form{}, err
	}
	return form, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, timelineID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("contingency: marshal event payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
		INSERT INTO timeline_events (timeline_id, seq, type, actor_id, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		FROM timeline_events
		WHERE timeline_id = $1
	`
	if _, err := tx.Exec(ctx, q, timelineID, eventType, actor, body); err != nil {
		return fmt.Errorf("contingency: insert event: %w", err)
	}
	return nil
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("contingency: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("contingency: enqueue outbox: %w", err)
	}
	return nil
}
