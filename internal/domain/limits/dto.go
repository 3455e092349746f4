package limits

type createLimitRequest struct {
	TimeFrame string  `json:"time_frame" validate:"required,time_frame"`
	AmountUSD float64 `json:"amount_usd" validate:"required,gt=0"`
	AgentID   *string `json:"agent_id,omitempty" validate:"omitempty,uuid"`
}
