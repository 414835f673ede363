package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundflow/contingency"
	"fundflow/timeline"
	"fundflow/wallet"
)

// Proposer races to create competing timelines for the same startup/agency
// pair. The partial unique index on the live pair means only one proposal
// can win at a time.
func Proposer(ctx context.Context, svc *timeline.Service, agencyID, startupID string, stop <-chan struct{}) error {
	amounts := map[timeline.StageKey]int64{}
	for _, key := range timeline.StageOrder {
		amounts[key] = int64(100 + rand.Intn(900))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := svc.Propose(ctx, timeline.ProposeParams{
			ActorID:   agencyID,
			StartupID: startupID,
			Amounts:   amounts,
		})
		if err != nil && !errors.Is(err, timeline.ErrTimelineExists) && !contextDone(err) && !connectionLost(err) {
			return fmt.Errorf("proposer: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// GateDecider plays the startup accepting whatever live proposal it finds.
// Losing the version race or hitting an already-decided gate is expected.
func GateDecider(ctx context.Context, svc *timeline.Service, startupID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		current, err := svc.CurrentForUser(ctx, startupID)
		if err == nil && current.Acceptance == timeline.AcceptancePending {
			_, err = svc.Accept(ctx, timeline.DecideParams{
				TimelineID: current.ID,
				ActorID:    startupID,
			})
		}
		if err != nil && !benignTimelineErr(err) && !contextDone(err) && !connectionLost(err) {
			return fmt.Errorf("gate decider: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Payer spams the payment trigger for the agency. Concurrent payers contend
// on the aggregate version; only one advance per stage can land.
func Payer(ctx context.Context, svc *timeline.Service, agencyID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		current, err := svc.CurrentForUser(ctx, agencyID)
		if err == nil {
			_, err = svc.ProcessPayment(ctx, timeline.PayParams{
				TimelineID: current.ID,
				ActorID:    agencyID,
			})
		}
		if err != nil && !benignTimelineErr(err) && !errors.Is(err, wallet.ErrInsufficientFunds) && !contextDone(err) && !connectionLost(err) {
			return fmt.Errorf("payer: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Transferrer shuffles small amounts between the two wallets in both
// directions. Insufficient funds is expected under contention.
func Transferrer(ctx context.Context, svc *wallet.Service, aID, bID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		sender, receiver := aID, bID
		if rand.Intn(2) == 0 {
			sender, receiver = bID, aID
		}
		_, err := svc.Transfer(ctx, wallet.TransferParams{
			SenderID:   sender,
			ReceiverID: receiver,
			Amount:     int64(1 + rand.Intn(50)),
		})
		if err != nil && !errors.Is(err, wallet.ErrInsufficientFunds) && !contextDone(err) && !connectionLost(err) {
			return fmt.Errorf("transferrer: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// FormFiler plays the startup filing contingency requests against its
// current timeline. Filing before the gate is accepted is expected to fail.
func FormFiler(ctx context.Context, timelines *timeline.Service, forms *contingency.Service, startupID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		current, err := timelines.CurrentForUser(ctx, startupID)
		if err == nil {
			stage := timeline.StageOrder[rand.Intn(len(timeline.StageOrder))]
			_, err = forms.File(ctx, contingency.FileParams{
				TimelineID:  current.ID,
				ActorID:     startupID,
				Stage:       stage,
				Description: fmt.Sprintf("unexpected costs in %s", stage),
				Amount:      int64(10 + rand.Intn(200)),
			})
		}
		if err != nil && !benignContingencyErr(err) && !errors.Is(err, timeline.ErrNotFound) && !contextDone(err) && !connectionLost(err) {
			return fmt.Errorf("form filer: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// FormDecider plays the agency racing to decide pending forms. Two deciders
// hitting the same form must leave exactly one decision behind.
func FormDecider(ctx context.Context, pool *pgxpool.Pool, forms *contingency.Service, agencyID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var formID string
		err := pool.QueryRow(ctx, `SELECT id FROM contingency_forms WHERE status = 'pending' LIMIT 1`).Scan(&formID)
		if err == nil {
			if rand.Intn(2) == 0 {
				_, err = forms.Accept(ctx, agencyID, formID)
			} else {
				_, err = forms.Reject(ctx, agencyID, formID)
			}
			if err != nil && !benignContingencyErr(err) && !contextDone(err) && !connectionLost(err) {
				return fmt.Errorf("form decider: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(80)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED, randomly
// failing some to exercise the attempts counter.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status = 'pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'processed' WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

func benignTimelineErr(err error) bool {
	return errors.Is(err, timeline.ErrNotFound) ||
		errors.Is(err, timeline.ErrVersionConflict) ||
		errors.Is(err, timeline.ErrTimelineExists) ||
		errors.Is(err, timeline.ErrAlreadyDecided) ||
		errors.Is(err, timeline.ErrInvalidState) ||
		errors.Is(err, timeline.ErrForbidden)
}

func benignContingencyErr(err error) bool {
	return errors.Is(err, contingency.ErrNotFound) ||
		errors.Is(err, contingency.ErrNotEligible) ||
		errors.Is(err, contingency.ErrAlreadyDecided) ||
		errors.Is(err, contingency.ErrForbidden)
}

func contextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// connectionLost matches errors caused by the chaos actor terminating a
// backend mid-operation.
func connectionLost(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57P01", "08006", "08003":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}
