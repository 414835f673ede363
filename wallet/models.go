package wallet

import "time"

// Wallet mirrors the wallets table. Balance is an integer amount in the
// platform currency's smallest unit.
type Wallet struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// Receipt records one completed transfer. Rows are append-only.
type Receipt struct {
	ID         string
	SenderID   string
	ReceiverID string
	Amount     int64
	Reference  string
	CreatedAt  time.Time
}

// Reference values recorded on receipts by the built-in flows. Callers may
// also supply free-form references (e.g. a research paper id).
const (
	ReferenceDirectTransfer = "direct_transfer"
	ReferenceStagePayment   = "stage_payment"
)
