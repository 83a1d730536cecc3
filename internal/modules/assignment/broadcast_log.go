// README: Broadcast log: which providers were notified of an order.
package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"medbid/internal/types"
)

type BroadcastLog interface {
	Record(ctx context.Context, orderID types.ID, providerIDs []types.ID) error
	Notified(ctx context.Context, orderID types.ID) ([]types.ID, error)
}

type MemoryBroadcastLog struct {
	mu       sync.RWMutex
	notified map[types.ID]map[types.ID]struct{}
}

func NewMemoryBroadcastLog() *MemoryBroadcastLog {
	return &MemoryBroadcastLog{notified: make(map[types.ID]map[types.ID]struct{})}
}

func (m *MemoryBroadcastLog) Record(_ context.Context, orderID types.ID, providerIDs []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.notified[orderID]
	if !ok {
		set = make(map[types.ID]struct{})
		m.notified[orderID] = set
	}
	for _, id := range providerIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (m *MemoryBroadcastLog) Notified(_ context.Context, orderID types.ID) ([]types.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ID, 0, len(m.notified[orderID]))
	for id := range m.notified[orderID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

const (
	notifiedKeyPrefix = "medbid:order:%s:notified"
	// Orders resolve well within a week.
	notifiedKeyTTL = 7 * 24 * time.Hour
)

type RedisBroadcastLog struct {
	redis *redis.Client
}

func NewRedisBroadcastLog(client *redis.Client) *RedisBroadcastLog {
	return &RedisBroadcastLog{redis: client}
}

// Record adds the notified providers to the order's set and refreshes its TTL.
func (r *RedisBroadcastLog) Record(ctx context.Context, orderID types.ID, providerIDs []types.ID) error {
	if len(providerIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(providerIDs))
	for i, id := range providerIDs {
		members[i] = string(id)
	}
	key := fmt.Sprintf(notifiedKeyPrefix, string(orderID))
	pipe := r.redis.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, notifiedKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}
	return nil
}

func (r *RedisBroadcastLog) Notified(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	members, err := r.redis.SMembers(ctx, fmt.Sprintf(notifiedKeyPrefix, string(orderID))).Result()
	if err != nil {
		return nil, fmt.Errorf("read notified providers: %w", err)
	}
	sort.Strings(members)
	out := make([]types.ID, len(members))
	for i, m := range members {
		out[i] = types.ID(m)
	}
	return out, nil
}
