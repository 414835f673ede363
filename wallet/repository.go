package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrWalletNotFound signals that no wallet row exists for the user.
	ErrWalletNotFound = errors.New("wallet: not found")
	// ErrInsufficientFunds signals the sender balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
)

// Repository provides data access for wallets and receipts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MoveParams describes one debit/credit pair executed atomically.
type MoveParams struct {
	SenderID   string
	ReceiverID string
	Amount     int64
	Reference  string
}

// Balance returns the current balance for the user's wallet.
func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("wallet: query balance: %w", err)
	}
	return balance, nil
}

// BalanceTx returns the balance inside the caller's transaction.
func (r *Repository) BalanceTx(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("wallet: query balance: %w", err)
	}
	return balance, nil
}

// MoveFunds debits the sender, credits the receiver, and appends a receipt
// inside the caller's transaction. Both wallet rows are locked up front in
// user_id order so that two concurrent transfers in opposite directions
// queue on the same row instead of deadlocking on each other's second
// UPDATE. The debit stays a conditional update so a losing concurrent
// request fails its precondition instead of overdrawing.
func (r *Repository) MoveFunds(ctx context.Context, tx pgx.Tx, params MoveParams) (Receipt, error) {
	if params.SenderID == "" || params.ReceiverID == "" {
		return Receipt{}, fmt.Errorf("wallet: sender and receiver required")
	}
	if params.Amount <= 0 {
		return Receipt{}, fmt.Errorf("wallet: amount must be positive")
	}

	const lockSQL = `
		SELECT user_id
		FROM wallets
		WHERE user_id IN ($1, $2)
		ORDER BY user_id
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, lockSQL, params.SenderID, params.ReceiverID)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet: lock wallets: %w", err)
	}
	locked := make(map[string]bool, 2)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Receipt{}, fmt.Errorf("wallet: scan locked wallet: %w", err)
		}
		locked[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Receipt{}, fmt.Errorf("wallet: lock wallets: %w", err)
	}
	if !locked[params.SenderID] || !locked[params.ReceiverID] {
		return Receipt{}, ErrWalletNotFound
	}

	const debitSQL = `
		UPDATE wallets
		SET balance = balance - $1,
		    updated_at = now()
		WHERE user_id = $2 AND balance >= $1
	`
	tag, err := tx.Exec(ctx, debitSQL, params.Amount, params.SenderID)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet: debit sender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// sender existence was settled by the lock read, so zero rows
		// affected can only mean a short balance
		return Receipt{}, ErrInsufficientFunds
	}

	const creditSQL = `
		UPDATE wallets
		SET balance = balance + $1,
		    updated_at = now()
		WHERE user_id = $2
	`
	tag, err = tx.Exec(ctx, creditSQL, params.Amount, params.ReceiverID)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet: credit receiver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Receipt{}, ErrWalletNotFound
	}

	const receiptSQL = `
		INSERT INTO receipts (sender_id, receiver_id, amount, reference)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sender_id, receiver_id, amount, reference, created_at
	`
	var rec Receipt
	if err := tx.QueryRow(ctx, receiptSQL, params.SenderID, params.ReceiverID, params.Amount, params.Reference).
		Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Amount, &rec.Reference, &rec.CreatedAt); err != nil {
		return Receipt{}, fmt.Errorf("wallet: insert receipt: %w", err)
	}

	return rec, nil
}

// ListReceipts returns receipts where the user is sender or receiver, newest
// first, along with the total count for pagination.
func (r *Repository) ListReceipts(ctx context.Context, userID string, page, pageSize int) ([]Receipt, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	const query = `
		SELECT id, sender_id, receiver_id, amount, reference, created_at
		FROM receipts
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("wallet: list receipts: %w", err)
	}
	defer rows.Close()

	receipts := []Receipt{}
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Amount, &rec.Reference, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("wallet: scan receipt: %w", err)
		}
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("wallet: iterate receipts: %w", err)
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM receipts WHERE sender_id = $1 OR receiver_id = $1`
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return receipts, total, nil
}
