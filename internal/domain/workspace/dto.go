package workspace

type createWorkspaceRequest struct {
	Name     string `json:"name" validate:"required"`
	Timezone string `json:"timezone" validate:"timezone"`
	UsesByok bool   `json:"uses_byok"`
}

type createAgentRequest struct {
	Name string `json:"name" validate:"required"`
}

type setByokKeyRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

type balanceResponse struct {
	WorkspaceID          string `json:"workspace_id"`
	CreditBalanceNanoUSD int64  `json:"credit_balance_nano_usd"`
}
