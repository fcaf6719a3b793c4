package redis

import (
	"context"
	"fmt"
	"time"

	"follow-go/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const leaseKeyPrefix = "follow-go:lease:"

// 只有持有者才能释放租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease 基于 SET NX PX 的分布式互斥租约，保证同一对账步骤在多实例间同时只跑一个
type Lease struct {
	client redis.UniversalClient
}

func NewLease(client redis.UniversalClient) *Lease {
	return &Lease{client: client}
}

// Acquire 尝试获取租约；已被占用时 ok=false。ttl 到期后租约自动失效
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	key := leaseKeyPrefix + name
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			logger.Warn("Failed to release lease", zap.String("lease", name), zap.Error(err))
		}
	}
	return release, true, nil
}
