package timeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fundflow/pkg/validate"
	"fundflow/wallet"
)

func TestPropose_MissingStageAmount(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	svc := NewService(pool, repo, &fakeFunds{})

	amounts := testAmounts()
	delete(amounts, StageSeriesB)

	_, err := svc.Propose(context.Background(), ProposeParams{
		ActorID:   "agency-1",
		StartupID: "startup-1",
		Amounts:   amounts,
	})

	var vErr *validate.Error
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if vErr.Field != "amounts" {
		t.Errorf("expected field amounts, got %s", vErr.Field)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction on validation failure")
	}
}

func TestPropose_SelfPairRejected(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{}, &fakeFunds{})

	_, err := svc.Propose(context.Background(), ProposeParams{
		ActorID:   "agency-1",
		StartupID: "agency-1",
		Amounts:   testAmounts(),
	})

	var vErr *validate.Error
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPropose_Success(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	svc := NewService(pool, repo, &fakeFunds{})

	rec, err := svc.Propose(context.Background(), ProposeParams{
		ActorID:   "agency-1",
		StartupID: "startup-1",
		Amounts:   testAmounts(),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if rec.Acceptance != AcceptancePending {
		t.Errorf("expected pending gate, got %s", rec.Acceptance)
	}
	if rec.ProposedBy != "agency-1" {
		t.Errorf("expected proposer recorded, got %s", rec.ProposedBy)
	}
	if len(repo.events) != 1 || repo.events[0] != EventProposed {
		t.Errorf("expected one %s event, got %v", EventProposed, repo.events)
	}
	if len(repo.topics) != 1 || repo.topics[0] != "timeline.proposed" {
		t.Errorf("expected outbox topic timeline.proposed, got %v", repo.topics)
	}
}

func TestAccept_ProposerCannotDecide(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{current: pendingTimeline()}
	svc := NewService(pool, repo, &fakeFunds{})

	_, err := svc.Accept(context.Background(), DecideParams{
		TimelineID: "tl-1",
		ActorID:    "agency-1", // proposed it
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestAccept_StrangerForbidden(t *testing.T) {
	repo := &fakeRepo{current: pendingTimeline()}
	svc := NewService(&fakePool{}, repo, &fakeFunds{})

	_, err := svc.Accept(context.Background(), DecideParams{
		TimelineID: "tl-1",
		ActorID:    "stranger",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAccept_Success(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{current: pendingTimeline()}
	svc := NewService(pool, repo, &fakeFunds{})

	got, err := svc.Accept(context.Background(), DecideParams{
		TimelineID: "tl-1",
		ActorID:    "startup-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if got.Acceptance != AcceptanceAccepted {
		t.Fatalf("expected accepted, got %s", got.Acceptance)
	}
	if got.Stages[0].Status != StageActive {
		t.Errorf("expected first stage active, got %s", got.Stages[0].Status)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if len(repo.events) != 1 || repo.events[0] != EventAccepted {
		t.Errorf("expected one %s event, got %v", EventAccepted, repo.events)
	}
}

func TestReject_AlreadyDecided(t *testing.T) {
	rec := pendingTimeline()
	rec, _ = rec.AcceptGate()
	repo := &fakeRepo{current: rec}
	svc := NewService(&fakePool{}, repo, &fakeFunds{})

	_, err := svc.Reject(context.Background(), DecideParams{
		TimelineID: "tl-1",
		ActorID:    "startup-1",
	})
	if !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestProcessPayment_OnlyAgencyMayPay(t *testing.T) {
	rec, _ := pendingTimeline().AcceptGate()
	repo := &fakeRepo{current: rec}
	svc := NewService(&fakePool{}, repo, &fakeFunds{})

	_, err := svc.ProcessPayment(context.Background(), PayParams{
		TimelineID: "tl-1",
		ActorID:    "startup-1",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestProcessPayment_GateNotAccepted(t *testing.T) {
	repo := &fakeRepo{current: pendingTimeline()}
	svc := NewService(&fakePool{}, repo, &fakeFunds{})

	_, err := svc.ProcessPayment(context.Background(), PayParams{
		TimelineID: "tl-1",
		ActorID:    "agency-1",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestProcessPayment_TransferFailureDoesNotAdvance(t *testing.T) {
	rec, _ := pendingTimeline().AcceptGate()
	pool := &fakePool{}
	repo := &fakeRepo{current: rec}
	funds := &fakeFunds{err: wallet.ErrInsufficientFunds}
	svc := NewService(pool, repo, funds)

	_, err := svc.ProcessPayment(context.Background(), PayParams{
		TimelineID: "tl-1",
		ActorID:    "agency-1",
	})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback to be called")
	}
	if repo.replaced {
		t.Errorf("expected stage ledger untouched when the transfer fails")
	}
}

func TestProcessPayment_Success(t *testing.T) {
	rec, _ := pendingTimeline().AcceptGate()
	pool := &fakePool{}
	repo := &fakeRepo{current: rec}
	funds := &fakeFunds{}
	svc := NewService(pool, repo, funds)

	result, err := svc.ProcessPayment(context.Background(), PayParams{
		TimelineID: "tl-1",
		ActorID:    "agency-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if result.Stage.Key != StagePreSeed {
		t.Errorf("expected pre_seed paid, got %s", result.Stage.Key)
	}
	if funds.last.Amount != 100 {
		t.Errorf("expected transfer of 100, got %d", funds.last.Amount)
	}
	if funds.last.SenderID != "agency-1" || funds.last.ReceiverID != "startup-1" {
		t.Errorf("expected agency->startup transfer, got %s->%s", funds.last.SenderID, funds.last.ReceiverID)
	}
	if funds.last.Reference != "stage_payment:pre_seed" {
		t.Errorf("unexpected reference %s", funds.last.Reference)
	}

	if result.Timeline.Stages[0].Status != StageCompleted {
		t.Errorf("expected pre_seed completed, got %s", result.Timeline.Stages[0].Status)
	}
	if result.Timeline.Stages[1].Status != StageActive {
		t.Errorf("expected seed active, got %s", result.Timeline.Stages[1].Status)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if len(repo.events) != 1 || repo.events[0] != EventStagePaid {
		t.Errorf("expected one %s event, got %v", EventStagePaid, repo.events)
	}
}

func TestGet_NonParticipantForbidden(t *testing.T) {
	repo := &fakeRepo{current: pendingTimeline()}
	svc := NewService(&fakePool{}, repo, &fakeFunds{})

	if _, err := svc.Get(context.Background(), "tl-1", "stranger"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

type fakeRepo struct {
	current  Timeline
	replaced bool
	events   []string
	topics   []string
}

func (f *fakeRepo) Create(ctx context.Context, tx pgx.Tx, rec Timeline) (Timeline, error) {
	rec.ID = "tl-1"
	rec.Version = 1
	f.current = rec
	return rec, nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (Timeline, error) {
	if f.current.ID == "" {
		return Timeline{}, ErrNotFound
	}
	return f.current, nil
}

func (f *fakeRepo) GetTx(ctx context.Context, tx pgx.Tx, id string) (Timeline, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepo) FindCurrentForUser(ctx context.Context, userID string) (Timeline, error) {
	return f.Get(ctx, f.current.ID)
}

func (f *fakeRepo) Replace(ctx context.Context, tx pgx.Tx, rec Timeline) (Timeline, error) {
	f.replaced = true
	rec.Version++
	f.current = rec
	return rec, nil
}

func (f *fakeRepo) AppendEvent(ctx context.Context, tx pgx.Tx, timelineID, eventType, actorID string, payload map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeRepo) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeRepo) ListEvents(ctx context.Context, timelineID string) ([]Event, error) {
	return []Event{}, nil
}

type fakeFunds struct {
	err  error
	last wallet.MoveParams
}

func (f *fakeFunds) MoveFunds(ctx context.Context, tx pgx.Tx, params wallet.MoveParams) (wallet.Receipt, error) {
	if f.err != nil {
		return wallet.Receipt{}, f.err
	}
	f.last = params
	return wallet.Receipt{
		ID:         "receipt-1",
		SenderID:   params.SenderID,
		ReceiverID: params.ReceiverID,
		Amount:     params.Amount,
		Reference:  params.Reference,
	}, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
