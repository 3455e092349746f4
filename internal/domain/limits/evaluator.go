package limits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/workspace"
)

// SpendReader is the slice of the ledger the evaluator needs: actual debits
// recorded within a window. Satisfied by *ledger.Repository.
type SpendReader interface {
	SumDebitsNanoUSD(ctx context.Context, workspaceID uuid.UUID, agentID *uuid.UUID, from, to time.Time) (int64, error)
}

// Evaluator decides whether a projected additional cost would push a
// workspace (or agent) past any configured spending limit. It is read-only:
// it never mutates balances or limits.
type Evaluator struct {
	repo   *Repository
	spend  SpendReader
	policy WindowPolicy
	now    func() time.Time
}

func NewEvaluator(repo *Repository, spend SpendReader, policy WindowPolicy) *Evaluator {
	if policy != WindowRolling {
		policy = WindowCalendar
	}
	return &Evaluator{repo: repo, spend: spend, policy: policy, now: time.Now}
}

// Evaluate checks every configured limit against spend already recorded in
// the ledger plus projectedCostUSD. Workspace limits and, when an agent is
// given, agent limits are all checked independently across their time
// frames. A breach yields Passed false, never an error.
func (e *Evaluator) Evaluate(ctx context.Context, ws *workspace.Workspace, agent *workspace.Agent, projectedCostUSD float64) (*Result, error) {
	loc, err := time.LoadLocation(ws.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := e.now()

	configured, err := e.repo.ListWorkspaceLimits(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if agent != nil {
		agentLimits, err := e.repo.ListAgentLimits(ctx, ws.ID, agent.ID)
		if err != nil {
			return nil, err
		}
		configured = append(configured, agentLimits...)
	}

	failed := make([]Limit, 0)
	for _, limit := range configured {
		from := WindowStart(e.policy, limit.TimeFrame, now, loc)

		spentNano, err := e.spend.SumDebitsNanoUSD(ctx, ws.ID, limit.AgentID, from, now)
		if err != nil {
			return nil, err
		}

		spentUSD := ledger.NanoToUSD(spentNano)
		if spentUSD+projectedCostUSD > limit.AmountUSD {
			log.Info().
				Str("workspace_id", ws.ID.String()).
				Str("time_frame", string(limit.TimeFrame)).
				Float64("spent_usd", spentUSD).
				Float64("projected_usd", projectedCostUSD).
				Float64("limit_usd", limit.AmountUSD).
				Msg("spending limit would be exceeded")
			failed = append(failed, limit)
		}
	}

	return &Result{Passed: len(failed) == 0, FailedLimits: failed}, nil
}
