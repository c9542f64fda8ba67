// AngelaMos | 2026
// redis.go

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamNotifier appends messages to a Redis stream consumed by the mail
// worker.
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

func NewRedisStreamNotifier(
	client *redis.Client,
	stream string,
	maxLen int64,
) *RedisStreamNotifier {
	return &RedisStreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    time.Now,
	}
}

func (n *RedisStreamNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("send %s: empty recipient", msg.Template)
	}

	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msg.Template, err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"to":        msg.To,
			"template":  msg.Template,
			"subject":   msg.Subject,
			"data":      string(data),
			"queued_at": n.now().UTC().Format(time.RFC3339),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.Template, err)
	}

	return nil
}
