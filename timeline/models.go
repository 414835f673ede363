package timeline

import "time"

// StageKey names one of the six fixed funding rounds.
type StageKey string

const (
	StagePreSeed StageKey = "pre_seed"
	StageSeed    StageKey = "seed"
	StageSeriesA StageKey = "series_a"
	StageSeriesB StageKey = "series_b"
	StageSeriesC StageKey = "series_c"
	StageIPO     StageKey = "ipo"
)

// StageOrder is the fixed funding progression. Stage scans and advancement
// always walk this order.
var StageOrder = []StageKey{StagePreSeed, StageSeed, StageSeriesA, StageSeriesB, StageSeriesC, StageIPO}

// ValidStageKey reports whether k names one of the six stages.
func ValidStageKey(k StageKey) bool {
	for _, key := range StageOrder {
		if key == k {
			return true
		}
	}
	return false
}

// StageStatus is the per-stage lifecycle state.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
	StageRejected  StageStatus = "rejected"
)

// Stage is one entry in the ledger. The slice of six is persisted as a
// single jsonb document and always replaced as a whole.
type Stage struct {
	Key    StageKey    `json:"key"`
	Amount int64       `json:"amount"`
	Status StageStatus `json:"status"`
}

// Acceptance is the tri-state gate controlling the whole timeline.
type Acceptance string

const (
	AcceptancePending  Acceptance = "pending"
	AcceptanceAccepted Acceptance = "accepted"
	AcceptanceRejected Acceptance = "rejected"
)

// Timeline is the funding aggregate for one startup-agency pairing. Version
// is the unchanged-since-read token used for optimistic concurrency: every
// aggregate replace is conditioned on it.
type Timeline struct {
	ID         string
	StartupID  string
	AgencyID   string
	ProposedBy string
	Acceptance Acceptance
	Stages     []Stage
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Participant reports whether the user is one side of the pairing.
func (t *Timeline) Participant(userID string) bool {
	return userID != "" && (userID == t.StartupID || userID == t.AgencyID)
}

// Counterparty returns the other side of the pairing for a participant.
func (t *Timeline) Counterparty(userID string) string {
	switch userID {
	case t.StartupID:
		return t.AgencyID
	case t.AgencyID:
		return t.StartupID
	default:
		return ""
	}
}

// Event captures an immutable business event for a timeline.
type Event struct {
	ID         int64
	TimelineID string
	Seq        int
	Type       string
	ActorID    *string
	Payload    []byte
	CreatedAt  time.Time
}

// OutboxMessage represents a transactional outbox entry.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}
