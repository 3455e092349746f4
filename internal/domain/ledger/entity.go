package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source classifies what kind of metered operation a transaction bills.
// It is a closed set: every switch over Source must handle all three values.
type Source string

const (
	SourceTextGeneration      Source = "text-generation"
	SourceEmbeddingGeneration Source = "embedding-generation"
	SourceToolExecution       Source = "tool-execution"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceTextGeneration, SourceEmbeddingGeneration, SourceToolExecution:
		return true
	}
	return false
}

// Transaction is an immutable, per-workspace-ordered ledger row. The chain
// invariant holds for consecutive rows of a workspace ordered by SK:
// CreditsAfter[n] == CreditsBefore[n] + Amount[n] and
// CreditsBefore[n+1] == CreditsAfter[n].
type Transaction struct {
	WorkspaceID           uuid.UUID  `db:"workspace_id" json:"workspace_id"`
	SK                    string     `db:"sk" json:"sk"`
	RequestID             string     `db:"request_id" json:"request_id"`
	AgentID               *uuid.UUID `db:"agent_id" json:"agent_id,omitempty"`
	ConversationID        *uuid.UUID `db:"conversation_id" json:"conversation_id,omitempty"`
	Source                Source     `db:"source" json:"source"`
	Supplier              string     `db:"supplier" json:"supplier"`
	Model                 *string    `db:"model" json:"model,omitempty"`
	ToolCall              *string    `db:"tool_call" json:"tool_call,omitempty"`
	Description           string     `db:"description" json:"description"`
	AmountNanoUSD         int64      `db:"amount_nano_usd" json:"amount_nano_usd"`
	CreditsBeforeNanoUSD  int64      `db:"credits_before_nano_usd" json:"credits_before_nano_usd"`
	CreditsAfterNanoUSD   int64      `db:"credits_after_nano_usd" json:"credits_after_nano_usd"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt             time.Time  `db:"expires_at" json:"expires_at"`
}

// Entry is the input to the ledger writer. Amount is signed: negative debits
// the workspace, positive credits it.
type Entry struct {
	WorkspaceID    uuid.UUID
	RequestID      string
	AgentID        *uuid.UUID
	ConversationID *uuid.UUID
	Source         Source
	Supplier       string
	Model          *string
	ToolCall       *string
	Description    string
	AmountNanoUSD  int64
}

// NewSortKey builds a monotonic unique sort key. Keys are generated while the
// workspace balance row is locked, so within a workspace they are strictly
// ordered by append time.
func NewSortKey(t time.Time) string {
	return fmt.Sprintf("%020d#%s", t.UnixNano(), uuid.NewString()[:8])
}
