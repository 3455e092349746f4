package workspace

import (
	"time"

	"github.com/google/uuid"
)

// Workspace carries the billing fields the ledger engine needs: the running
// credit balance (nano-USD, mutated only through the ledger writer), the
// operating timezone used for spending-limit windows, and the BYOK flag.
type Workspace struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Timezone             string    `db:"timezone" json:"timezone"`
	CreditBalanceNanoUSD int64     `db:"credit_balance_nano_usd" json:"credit_balance_nano_usd"`
	UsesByok             bool      `db:"uses_byok" json:"uses_byok"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Agent is a workspace-owned actor whose spend can be limited independently.
type Agent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`
	Name        string    `db:"name" json:"name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
