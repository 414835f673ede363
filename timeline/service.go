package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundflow/pkg/validate"
	"fundflow/wallet"
)

// ErrForbidden signals the actor is not allowed to perform the operation on
// this timeline.
var ErrForbidden = errors.New("timeline: forbidden")

// Event types appended to the feed.
const (
	EventProposed    = "TIMELINE_PROPOSED"
	EventAccepted    = "TIMELINE_ACCEPTED"
	EventRejected    = "TIMELINE_REJECTED"
	EventStagePaid   = "STAGE_PAYMENT_PROCESSED"
	EventFormFiled   = "CONTINGENCY_FORM_FILED"
	EventFormDecided = "CONTINGENCY_FORM_DECIDED"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AggregateRepository defines the data access required by the service.
type AggregateRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t Timeline) (Timeline, error)
	Get(ctx context.Context, id string) (Timeline, error)
	GetTx(ctx context.Context, tx pgx.Tx, id string) (Timeline, error)
	FindCurrentForUser(ctx context.Context, userID string) (Timeline, error)
	Replace(ctx context.Context, tx pgx.Tx, t Timeline) (Timeline, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, timelineID, eventType, actorID string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
	ListEvents(ctx context.Context, timelineID string) ([]Event, error)
}

// FundsMover moves money inside the caller's transaction. The payment
// trigger composes it with the stage advance so both commit or neither does.
type FundsMover interface {
	MoveFunds(ctx context.Context, tx pgx.Tx, params wallet.MoveParams) (wallet.Receipt, error)
}

// Service drives the funding timeline workflow: proposal, the acceptance
// gate, and the per-stage payment trigger.
type Service struct {
	pool  TxBeginner
	repo  AggregateRepository
	funds FundsMover
}

// NewService builds a Service from its collaborators.
func NewService(pool TxBeginner, repo AggregateRepository, funds FundsMover) *Service {
	return &Service{pool: pool, repo: repo, funds: funds}
}

// ProposeParams carries a funding agency's proposed timeline. Amounts must
// cover all six stages.
type ProposeParams struct {
	ActorID   string
	StartupID string
	Amounts   map[StageKey]int64
}

// Propose creates a new pending timeline for the startup-agency pair. The
// proposing agency cannot accept its own proposal.
func (s *Service) Propose(ctx context.Context, params ProposeParams) (Timeline, error) {
	if params.ActorID == "" {
		return Timeline{}, validate.Errorf("actor_id", "is required")
	}
	if params.StartupID == "" {
		return Timeline{}, validate.Errorf("startup_id", "is required")
	}
	if params.StartupID == params.ActorID {
		return Timeline{}, validate.Errorf("startup_id", "must differ from the proposing agency")
	}
	for _, key := range StageOrder {
		amount, ok := params.Amounts[key]
		if !ok {
			return Timeline{}, validate.Errorf("amounts", "missing stage %s", key)
		}
		if amount <= 0 {
			return Timeline{}, validate.Errorf("amounts", "stage %s must be greater than zero", key)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Timeline{}, fmt.Errorf("timeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Timeline{
		StartupID:  params.StartupID,
		AgencyID:   params.ActorID,
		ProposedBy: params.ActorID,
		Acceptance: AcceptancePending,
		Stages:     NewStages(params.Amounts),
	})
	if err != nil {
		return Timeline{}, err
	}

	payload := map[string]any{
		"timeline_id": created.ID,
		"startup_id":  created.StartupID,
		"agency_id":   created.AgencyID,
	}
	if err := s.repo.AppendEvent(ctx, tx, created.ID, EventProposed, params.ActorID, payload); err != nil {
		return Timeline{}, err
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, "timeline.proposed", payload); err != nil {
		return Timeline{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Timeline{}, fmt.Errorf("timeline: commit: %w", err)
	}

	return created, nil
}

// Get returns the timeline projection for a participant.
func (s *Service) Get(ctx context.Context, timelineID, actorID string) (Timeline, error) {
	rec, err := s.repo.Get(ctx, timelineID)
	if err != nil {
		return Timeline{}, err
	}
	if !rec.Participant(actorID) {
		return Timeline{}, ErrForbidden
	}
	return rec, nil
}

// CurrentForUser returns the caller's current timeline, preferring live ones.
func (s *Service) CurrentForUser(ctx context.Context, userID string) (Timeline, error) {
	return s.repo.FindCurrentForUser(ctx, userID)
}

// DecideParams identifies a gate decision.
type DecideParams struct {
	TimelineID string
	ActorID    string
}

// Accept transitions the gate to accepted and activates the first stage.
// Only the party that did not propose the timeline may decide it.
func (s *Service) Accept(ctx context.Context, params DecideParams) (Timeline, error) {
	return s.decideGate(ctx, params, true)
}

// Reject transitions the gate to rejected. Terminal.
func (s *Service) Reject(ctx context.Context, params DecideParams) (Timeline, error) {
	return s.decideGate(ctx, params, false)
}

func (s *Service) decideGate(ctx context.Context, params DecideParams, accept bool) (Timeline, error) {
	if params.TimelineID == "" {
		return Timeline{}, validate.Errorf("timeline_id", "is required")
	}
	if params.ActorID == "" {
		return Timeline{}, validate.Errorf("actor_id", "is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Timeline{}, fmt.Errorf("timeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetTx(ctx, tx, params.TimelineID)
	if err != nil {
		return Timeline{}, err
	}
	if !rec.Participant(params.ActorID) || params.ActorID == rec.ProposedBy {
		return Timeline{}, ErrForbidden
	}

	var (
		next      Timeline
		eventType string
		topic     string
	)
	if accept {
		next, err = rec.AcceptGate()
		eventType, topic = EventAccepted, "timeline.accepted"
	} else {
		next, err = rec.RejectGate()
		eventType, topic = EventRejected, "timeline.rejected"
	}
	if err != nil {
		return Timeline{}, err
	}

	updated, err := s.repo.Replace(ctx, tx, next)
	if err != nil {
		return Timeline{}, err
	}

	payload := map[string]any{
		"timeline_id": updated.ID,
		"acceptance":  updated.Acceptance,
	}
	if err := s.repo.AppendEvent(ctx, tx, updated.ID, eventType, params.ActorID, payload); err != nil {
		return Timeline{}, err
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, topic, payload); err != nil {
		return Timeline{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Timeline{}, fmt.Errorf("timeline: commit: %w", err)
	}

	return updated, nil
}

// PayParams identifies a payment trigger invocation.
type PayParams struct {
	TimelineID string
	ActorID    string
}

// PaymentResult bundles the advanced timeline with the transfer receipt.
type PaymentResult struct {
	Timeline Timeline
	Receipt  wallet.Receipt
	Stage    Stage
}

// ProcessPayment releases the active stage's funds from the agency to the
// startup and advances the ledger. The transfer and the advance share one
// transaction: if the transfer fails the stage does not move.
func (s *Service) ProcessPayment(ctx context.Context, params PayParams) (PaymentResult, error) {
	if params.TimelineID == "" {
		return PaymentResult{}, validate.Errorf("timeline_id", "is required")
	}
	if params.ActorID == "" {
		return PaymentResult{}, validate.Errorf("actor_id", "is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("timeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetTx(ctx, tx, params.TimelineID)
	if err != nil {
		return PaymentResult{}, err
	}
	if params.ActorID != rec.AgencyID {
		return PaymentResult{}, ErrForbidden
	}
	if rec.Acceptance != AcceptanceAccepted {
		return PaymentResult{}, ErrInvalidState
	}

	stage, ok := rec.ActiveStage()
	if !ok {
		return PaymentResult{}, ErrInvalidState
	}

	receipt, err := s.funds.MoveFunds(ctx, tx, wallet.MoveParams{
		SenderID:   rec.AgencyID,
		ReceiverID: rec.StartupID,
		Amount:     stage.Amount,
		Reference:  fmt.Sprintf("%s:%s", wallet.ReferenceStagePayment, stage.Key),
	})
	if err != nil {
		return PaymentResult{}, err
	}

	advanced, err := rec.Advance()
	if err != nil {
		return PaymentResult{}, err
	}

	updated, err := s.repo.Replace(ctx, tx, advanced)
	if err != nil {
		return PaymentResult{}, err
	}

	payload := map[string]any{
		"timeline_id": updated.ID,
		"stage":       stage.Key,
		"amount":      stage.Amount,
		"receipt_id":  receipt.ID,
	}
	if err := s.repo.AppendEvent(ctx, tx, updated.ID, EventStagePaid, params.ActorID, payload); err != nil {
		return PaymentResult{}, err
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, "timeline.stage_paid", payload); err != nil {
		return PaymentResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PaymentResult{}, fmt.Errorf("timeline: commit: %w", err)
	}

	return PaymentResult{Timeline: updated, Receipt: receipt, Stage: stage}, nil
}

// Events returns the event feed for a participant.
func (s *Service) Events(ctx context.Context, timelineID, actorID string) ([]Event, error) {
	rec, err := s.repo.Get(ctx, timelineID)
	if err != nil {
		return nil, err
	}
	if !rec.Participant(actorID) {
		return nil, ErrForbidden
	}
	return s.repo.ListEvents(ctx, timelineID)
}
