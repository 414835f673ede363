package contingency

import (
	"time"

	"fundflow/timeline"
)

// Status is the independent accept/reject lifecycle of one form.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Invoice is an opaque attachment reference. The binary lives in object
// storage; only the identifier and URL are recorded here.
type Invoice struct {
	ID         string
	FormID     string
	Identifier string
	URL        string
}

// Form is one ad-hoc funding request scoped to a single stage of its parent
// timeline. Forms are never deleted, only terminal-stated.
type Form struct {
	ID          string
	TimelineID  string
	Stage       timeline.StageKey
	Description string
	Amount      int64
	Status      Status
	CreatedBy   string
	DecidedBy   *string
	CreatedAt   time.Time
	DecidedAt   *time.Time
	Invoices    []Invoice
}
