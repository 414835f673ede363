package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"fundflow/pkg/validate"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FundsRepository defines the data access required by the service.
type FundsRepository interface {
	Balance(ctx context.Context, userID string) (int64, error)
	BalanceTx(ctx context.Context, tx pgx.Tx, userID string) (int64, error)
	MoveFunds(ctx context.Context, tx pgx.Tx, params MoveParams) (Receipt, error)
	ListReceipts(ctx context.Context, userID string, page, pageSize int) ([]Receipt, int, error)
}

// Service exposes business-level wallet operations.
type Service struct {
	pool TxBeginner
	repo FundsRepository
}

// NewService builds a Service using the provided repository.
func NewService(pool TxBeginner, repo FundsRepository) *Service {
	return &Service{pool: pool, repo: repo}
}

// TransferParams describes one caller-initiated transfer.
type TransferParams struct {
	SenderID   string
	ReceiverID string
	Amount     int64
	Reference  string
}

// TransferResult bundles the receipt with the sender's post-transfer balance.
type TransferResult struct {
	Receipt       Receipt
	SenderBalance int64
}

// Transfer atomically moves funds between two wallets. Both the debit and
// the credit happen in one transaction; a failed credit rolls the debit back.
func (s *Service) Transfer(ctx context.Context, params TransferParams) (TransferResult, error) {
	if params.SenderID == "" {
		return TransferResult{}, validate.Errorf("sender_id", "is required")
	}
	if params.ReceiverID == "" {
		return TransferResult{}, validate.Errorf("receiver_id", "is required")
	}
	if params.SenderID == params.ReceiverID {
		return TransferResult{}, validate.Errorf("receiver_id", "must differ from sender")
	}
	if params.Amount <= 0 {
		return TransferResult{}, validate.Errorf("amount", "must be greater than zero")
	}

	reference := strings.TrimSpace(params.Reference)
	if reference == "" {
		reference = ReferenceDirectTransfer
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return TransferResult{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.MoveFunds(ctx, tx, MoveParams{
		SenderID:   params.SenderID,
		ReceiverID: params.ReceiverID,
		Amount:     params.Amount,
		Reference:  reference,
	})
	if err != nil {
		return TransferResult{}, err
	}

	balance, err := s.repo.BalanceTx(ctx, tx, params.SenderID)
	if err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, fmt.Errorf("wallet: commit tx: %w", err)
	}

	return TransferResult{Receipt: rec, SenderBalance: balance}, nil
}

// Balance returns the caller's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.repo.Balance(ctx, userID)
}

// Receipts returns the caller's receipt history, newest first.
func (s *Service) Receipts(ctx context.Context, userID string, page, pageSize int) ([]Receipt, int, error) {
	return s.repo.ListReceipts(ctx, userID, page, pageSize)
}
