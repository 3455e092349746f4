package limits

import (
	"time"

	"github.com/google/uuid"
)

// TimeFrame is the window a spending limit applies to. Frames are evaluated
// independently: a workspace can carry a daily and a monthly limit at once.
type TimeFrame string

const (
	TimeFrameDaily   TimeFrame = "daily"
	TimeFrameWeekly  TimeFrame = "weekly"
	TimeFrameMonthly TimeFrame = "monthly"
)

// Valid reports whether f is a known time frame.
func (f TimeFrame) Valid() bool {
	switch f {
	case TimeFrameDaily, TimeFrameWeekly, TimeFrameMonthly:
		return true
	}
	return false
}

// Limit caps spend within a time frame. AgentID nil means the limit applies
// to the whole workspace; agent limits are evaluated in addition to
// workspace limits, never instead of them.
type Limit struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	WorkspaceID uuid.UUID  `db:"workspace_id" json:"workspace_id"`
	AgentID     *uuid.UUID `db:"agent_id" json:"agent_id,omitempty"`
	TimeFrame   TimeFrame  `db:"time_frame" json:"time_frame"`
	AmountUSD   float64    `db:"amount_usd" json:"amount_usd"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Result is the evaluator's decision. A breach is a decision, not an error:
// Passed false with the limits that would be exceeded.
type Result struct {
	Passed       bool    `json:"passed"`
	FailedLimits []Limit `json:"failed_limits"`
}
