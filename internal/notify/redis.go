// README: Redis pub/sub Notifier; each agent's client subscribes to its own
// channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const agentChannelPrefix = "dispatch:agent:%s:offers"

// RedisNotifier publishes offer events as JSON on per-agent channels.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func (n *RedisNotifier) Offer(ctx context.Context, ev OfferEvent) error {
	return n.publish(ctx, ev.AgentID, envelope{Kind: "offer", Offer: &ev})
}

func (n *RedisNotifier) Withdraw(ctx context.Context, ev WithdrawEvent) error {
	return n.publish(ctx, ev.AgentID, envelope{Kind: "withdraw", Withdraw: &ev})
}

type envelope struct {
	Kind     string         `json:"kind"`
	Offer    *OfferEvent    `json:"offer,omitempty"`
	Withdraw *WithdrawEvent `json:"withdraw,omitempty"`
}

func (n *RedisNotifier) publish(ctx context.Context, agentID types.ID, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, agentChannel(agentID), payload).Err()
}

func agentChannel(agentID types.ID) string {
	return fmt.Sprintf(agentChannelPrefix, string(agentID))
}
