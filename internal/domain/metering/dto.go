package metering

// reserveRequest places a hold against a workspace balance.
type reserveRequest struct {
	EstimatedCostNanoUSD int64   `json:"estimated_cost_nano_usd" validate:"required,gt=0"`
	Source               string  `json:"source" validate:"required,tx_source"`
	Supplier             string  `json:"supplier" validate:"required"`
	UsesByok             bool    `json:"uses_byok"`
	MaxRetries           int     `json:"max_retries" validate:"omitempty,min=0,max=10"`
	AgentID              *string `json:"agent_id" validate:"omitempty,uuid"`
	ConversationID       *string `json:"conversation_id" validate:"omitempty,uuid"`
	Model                *string `json:"model"`
	ToolCall             *string `json:"tool_call"`
	Description          string  `json:"description"`
}

// settleRequest closes a hold against actual usage. At least one of cost,
// token counts, or a generation id must be usable.
type settleRequest struct {
	ReservationID  string  `json:"reservation_id" validate:"required,uuid"`
	CostNanoUSD    *int64  `json:"cost_nano_usd" validate:"omitempty,min=0"`
	PromptTokens   int     `json:"prompt_tokens" validate:"omitempty,min=0"`
	OutputTokens   int     `json:"completion_tokens" validate:"omitempty,min=0"`
	Model          string  `json:"model"`
	GenerationID   string  `json:"generation_id"`
	Source         string  `json:"source" validate:"omitempty,tx_source"`
	Supplier       string  `json:"supplier"`
	AgentID        *string `json:"agent_id" validate:"omitempty,uuid"`
	ConversationID *string `json:"conversation_id" validate:"omitempty,uuid"`
	ToolCall       *string `json:"tool_call"`
	Description    string  `json:"description"`
}

// refundRequest releases a hold in full.
type refundRequest struct {
	ReservationID  string  `json:"reservation_id" validate:"required,uuid"`
	Source         string  `json:"source" validate:"omitempty,tx_source"`
	Supplier       string  `json:"supplier"`
	AgentID        *string `json:"agent_id" validate:"omitempty,uuid"`
	ConversationID *string `json:"conversation_id" validate:"omitempty,uuid"`
	Description    string  `json:"description"`
}
