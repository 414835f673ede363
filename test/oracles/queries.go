package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_live_timeline_per_pair",
			SQL: `SELECT startup_id, agency_id, COUNT(*) FROM timelines
                  WHERE acceptance IN ('pending','accepted')
                  GROUP BY startup_id, agency_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_at_most_one_active_stage",
			SQL: `SELECT t.id FROM timelines t
                  WHERE (SELECT COUNT(*) FROM jsonb_array_elements(t.stages) s
                         WHERE s->>'status' = 'active') > 1`,
		},
		{
			Name: "O3_active_stage_requires_accepted_gate",
			SQL: `SELECT t.id, t.acceptance FROM timelines t
                  WHERE t.acceptance <> 'accepted'
                    AND EXISTS (SELECT 1 FROM jsonb_array_elements(t.stages) s
                                WHERE s->>'status' IN ('active','completed'))`,
		},
		{
			Name: "O4_nonnegative_balances",
			SQL:  `SELECT user_id, balance FROM wallets WHERE balance < 0`,
		},
		{
			Name: "O5_event_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT timeline_id, seq,
                             LAG(seq) OVER (PARTITION BY timeline_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O6_completed_stage_backed_by_receipt",
			SQL: `SELECT t.id, s->>'key' AS stage FROM timelines t,
                  jsonb_array_elements(t.stages) s
                  WHERE s->>'status' = 'completed'
                    AND NOT EXISTS (
                        SELECT 1 FROM receipts r
                        WHERE r.sender_id = t.agency_id
                          AND r.receiver_id = t.startup_id
                          AND r.reference = 'stage_payment:' || (s->>'key'))`,
		},
		{
			Name: "O7_decided_forms_carry_decider",
			SQL: `SELECT id, status FROM contingency_forms
                  WHERE status <> 'pending' AND (decided_by IS NULL OR decided_at IS NULL)`,
		},
		{
			Name: "O8_forms_only_on_accepted_timelines",
			SQL: `SELECT f.id FROM contingency_forms f
                  JOIN timelines t ON t.id = f.timeline_id
                  WHERE t.acceptance = 'pending'`,
		},
		{
			Name: "O9_outbox_not_stuck",
			SQL: `SELECT id, topic FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
