package timeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundflow/wallet"
)

// TestFundingWorkflow_Integration connects to a real PostgreSQL via
// DATABASE_URL and drives the full workflow end to end: propose, accept the
// gate, pay the first stage, and verify balances, the ledger, the event feed
// and the outbox.
func TestFundingWorkflow_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "wallets", "timelines", "timeline_events", "receipts", "outbox"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skipf("table %s missing; apply migrations/ to $DATABASE_URL first", table)
		}
	}

	var startupID, agencyID string
	suffix := time.Now().UnixNano()
	const insertUser = `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, $2, 'x', $3) RETURNING id`
	if err := pool.QueryRow(ctx, insertUser, fmt.Sprintf("startup+%d@example.com", suffix), "Ion Drive Labs", "startup").Scan(&startupID); err != nil {
		t.Fatalf("seed startup: %v", err)
	}
	if err := pool.QueryRow(ctx, insertUser, fmt.Sprintf("agency+%d@example.com", suffix), "Horizon Fund", "funding_agency").Scan(&agencyID); err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, 10000), ($2, 0)`, agencyID, startupID); err != nil {
		t.Fatalf("seed wallets: %v", err)
	}

	var timelineID string
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		if timelineID != "" {
			pool.Exec(ctx2, `DELETE FROM timeline_events WHERE timeline_id = $1`, timelineID)
			pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'timeline_id' = $1`, timelineID)
			pool.Exec(ctx2, `DELETE FROM timelines WHERE id = $1`, timelineID)
		}
		pool.Exec(ctx2, `DELETE FROM receipts WHERE sender_id = $1 OR receiver_id = $1`, agencyID)
		pool.Exec(ctx2, `DELETE FROM wallets WHERE user_id IN ($1, $2)`, startupID, agencyID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, startupID, agencyID)
	})

	walletRepo := wallet.NewRepository(pool)
	svc := NewService(pool, NewRepository(pool), walletRepo)

	// propose
	rec, err := svc.Propose(ctx, ProposeParams{
		ActorID:   agencyID,
		StartupID: startupID,
		Amounts: map[StageKey]int64{
			StagePreSeed: 1000,
			StageSeed:    1500,
			StageSeriesA: 2000,
			StageSeriesB: 2000,
			StageSeriesC: 2000,
			StageIPO:     1500,
		},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	timelineID = rec.ID

	if rec.Acceptance != AcceptancePending {
		t.Fatalf("expected pending gate, got %s", rec.Acceptance)
	}

	// a second live proposal for the same pair must be refused
	_, err = svc.Propose(ctx, ProposeParams{
		ActorID:   agencyID,
		StartupID: startupID,
		Amounts: map[StageKey]int64{
			StagePreSeed: 1, StageSeed: 1, StageSeriesA: 1,
			StageSeriesB: 1, StageSeriesC: 1, StageIPO: 1,
		},
	})
	if !errors.Is(err, ErrTimelineExists) {
		t.Fatalf("expected ErrTimelineExists, got %v", err)
	}

	// the proposing agency cannot decide its own gate
	if _, err := svc.Accept(ctx, DecideParams{TimelineID: rec.ID, ActorID: agencyID}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for proposer, got %v", err)
	}

	// paying before acceptance must fail
	if _, err := svc.ProcessPayment(ctx, PayParams{TimelineID: rec.ID, ActorID: agencyID}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before acceptance, got %v", err)
	}

	// accept
	accepted, err := svc.Accept(ctx, DecideParams{TimelineID: rec.ID, ActorID: startupID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Stages[0].Status != StageActive {
		t.Fatalf("expected pre_seed active, got %s", accepted.Stages[0].Status)
	}
	if accepted.Version != rec.Version+1 {
		t.Fatalf("expected version bump %d -> %d, got %d", rec.Version, rec.Version+1, accepted.Version)
	}

	// re-deciding is refused
	if _, err := svc.Reject(ctx, DecideParams{TimelineID: rec.ID, ActorID: startupID}); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}

	// pay the first stage
	result, err := svc.ProcessPayment(ctx, PayParams{TimelineID: rec.ID, ActorID: agencyID})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if result.Stage.Key != StagePreSeed {
		t.Fatalf("expected pre_seed paid, got %s", result.Stage.Key)
	}
	if result.Timeline.Stages[0].Status != StageCompleted || result.Timeline.Stages[1].Status != StageActive {
		t.Fatalf("unexpected ledger: %+v", result.Timeline.Stages)
	}

	// balances moved atomically with the advance
	var agencyBalance, startupBalance int64
	if err := pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, agencyID).Scan(&agencyBalance); err != nil {
		t.Fatalf("agency balance: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, startupID).Scan(&startupBalance); err != nil {
		t.Fatalf("startup balance: %v", err)
	}
	if agencyBalance != 9000 || startupBalance != 1000 {
		t.Fatalf("unexpected balances: agency=%d startup=%d", agencyBalance, startupBalance)
	}

	// receipt carries the stage reference
	var reference string
	if err := pool.QueryRow(ctx, `SELECT reference FROM receipts WHERE id = $1`, result.Receipt.ID).Scan(&reference); err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if reference != "stage_payment:pre_seed" {
		t.Fatalf("unexpected receipt reference %s", reference)
	}

	// event feed is ordered and complete
	events, err := svc.Events(ctx, rec.ID, startupID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	wantTypes := []string{EventProposed, EventAccepted, EventStagePaid}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Errorf("event %d: expected seq %d, got %d", i, i+1, ev.Seq)
		}
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d: expected type %s, got %s", i, wantTypes[i], ev.Type)
		}
	}

	// each state change left an outbox message
	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE payload->>'timeline_id' = $1`, rec.ID).Scan(&outCount); err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if outCount != 3 {
		t.Fatalf("expected 3 outbox messages, got %d", outCount)
	}

	// strangers cannot read the feed
	if _, err := svc.Events(ctx, rec.ID, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
