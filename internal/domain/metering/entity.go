package metering

import (
	"time"

	"github.com/google/uuid"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
)

// Reservation is a hold placed against a workspace balance before the true
// cost of an operation is known. It is closed by exactly one of settlement,
// refund, or TTL purge.
type Reservation struct {
	ID                    uuid.UUID     `db:"id" json:"id"`
	WorkspaceID           uuid.UUID     `db:"workspace_id" json:"workspace_id"`
	AgentID               *uuid.UUID    `db:"agent_id" json:"agent_id,omitempty"`
	ConversationID        *uuid.UUID    `db:"conversation_id" json:"conversation_id,omitempty"`
	ReservedAmountNanoUSD int64         `db:"reserved_amount_nano_usd" json:"reserved_amount_nano_usd"`
	UsesByok              bool          `db:"uses_byok" json:"uses_byok"`
	Source                ledger.Source `db:"source" json:"source"`
	Supplier              string        `db:"supplier" json:"supplier"`
	Model                 *string       `db:"model" json:"model,omitempty"`
	ProviderGenerationID  *string       `db:"provider_generation_id" json:"provider_generation_id,omitempty"`
	VerifyAttempts        int           `db:"verify_attempts" json:"verify_attempts"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	ExpiresAt             time.Time     `db:"expires_at" json:"expires_at"`
}

// Usage is what the caller learned about the operation's true consumption.
type Usage struct {
	CostNanoUSD      *int64 `json:"cost_nano_usd,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Model            string `json:"model"`
}

// HasCost reports whether the supplier returned a raw cost directly.
func (u Usage) HasCost() bool {
	return u.CostNanoUSD != nil
}

// HasTokens reports whether token counts are available for the pricing oracle.
func (u Usage) HasTokens() bool {
	return u.PromptTokens > 0 || u.CompletionTokens > 0
}

// ReserveParams describes the hold to place.
type ReserveParams struct {
	WorkspaceID          uuid.UUID
	EstimatedCostNanoUSD int64
	MaxRetries           int
	UsesByok             bool
	AgentID              *uuid.UUID
	ConversationID       *uuid.UUID
	Source               ledger.Source
	Supplier             string
	Model                *string
	ToolCall             *string
	RequestID            string
	Description          string
}

// ReserveResult reports the placed hold and the post-debit balance.
type ReserveResult struct {
	ReservationID         uuid.UUID `json:"reservation_id"`
	ReservedAmountNanoUSD int64     `json:"reserved_amount_nano_usd"`
	BalanceNanoUSD        int64     `json:"balance_nano_usd"`
}

// SettleParams reconciles a reservation against actual usage.
type SettleParams struct {
	ReservationID  uuid.UUID
	WorkspaceID    uuid.UUID
	Usage          Usage
	GenerationID   string
	AgentID        *uuid.UUID
	ConversationID *uuid.UUID
	Source         ledger.Source
	Supplier       string
	Model          *string
	ToolCall       *string
	RequestID      string
	Description    string
}

// SettleResult reports the settlement outcome. Deferred means the cost is
// only retrievable asynchronously; the reservation stays open and a
// verification task has been enqueued.
type SettleResult struct {
	Deferred          bool  `json:"deferred"`
	ActualCostNanoUSD int64 `json:"actual_cost_nano_usd"`
	AmountNanoUSD     int64 `json:"amount_nano_usd"`
	BalanceNanoUSD    int64 `json:"balance_nano_usd"`
}

// RefundParams releases a full hold after the metered operation failed.
type RefundParams struct {
	ReservationID  uuid.UUID
	WorkspaceID    uuid.UUID
	AgentID        *uuid.UUID
	ConversationID *uuid.UUID
	Source         ledger.Source
	Supplier       string
	RequestID      string
	Description    string
}

// RefundResult reports the released amount and the post-credit balance.
type RefundResult struct {
	RefundedAmountNanoUSD int64 `json:"refunded_amount_nano_usd"`
	BalanceNanoUSD        int64 `json:"balance_nano_usd"`
}

// VerificationTask is the durable work item handed to the out-of-band cost
// verification consumer.
type VerificationTask struct {
	GenerationID   string     `json:"generation_id"`
	WorkspaceID    uuid.UUID  `json:"workspace_id"`
	ReservationID  uuid.UUID  `json:"reservation_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	AgentID        *uuid.UUID `json:"agent_id,omitempty"`
}
