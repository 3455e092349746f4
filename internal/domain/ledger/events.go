package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const eventChannelPrefix = "ledger:events:"

// EventChannel returns the Redis pub/sub channel for a workspace's ledger feed.
func EventChannel(workspaceID uuid.UUID) string {
	return eventChannelPrefix + workspaceID.String()
}

// EventChannelPattern matches every workspace's ledger feed channel.
const EventChannelPattern = eventChannelPrefix + "*"

// Publisher fans appended transactions out to the live usage feed.
// Publishing is best-effort: a Redis outage never fails a ledger write.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish sends the transaction to the workspace's feed channel.
func (p *Publisher) Publish(ctx context.Context, txn *Transaction) {
	if p == nil || p.redis == nil || txn == nil {
		return
	}

	payload, err := json.Marshal(txn)
	if err != nil {
		log.Error().Err(err).Msg("marshal ledger event")
		return
	}

	if err := p.redis.Publish(ctx, EventChannel(txn.WorkspaceID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("workspace_id", txn.WorkspaceID.String()).Msg("publish ledger event failed")
	}
}
