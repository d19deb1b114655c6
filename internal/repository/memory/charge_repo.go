package memory

import (
	"context"
	"sync"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/service"
)

const chargeShardCount = 32

type chargeShard struct {
	mu     sync.Mutex
	states map[uint64]model.ChargeState
}

// ChargeRepository 同一用户的读改写都落在同一个分片锁里，保证线性一致
type ChargeRepository struct {
	shards [chargeShardCount]chargeShard
}

func NewChargeRepository() *ChargeRepository {
	r := &ChargeRepository{}
	for i := range r.shards {
		r.shards[i].states = make(map[uint64]model.ChargeState)
	}
	return r
}

func (r *ChargeRepository) shard(userID uint64) *chargeShard {
	return &r.shards[userID%chargeShardCount]
}

func (r *ChargeRepository) Load(ctx context.Context, userID uint64) (model.ChargeState, bool, error) {
	sh := r.shard(userID)
	sh.mu.Lock()
	s, ok := sh.states[userID]
	sh.mu.Unlock()
	return s, ok, nil
}

func (r *ChargeRepository) Update(ctx context.Context, userID uint64, fn service.ChargeMutator) (model.ChargeState, error) {
	if err := ctx.Err(); err != nil {
		return model.ChargeState{}, err
	}
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, found := sh.states[userID]
	next, err := fn(cur, found)
	if err != nil {
		return cur, err
	}
	next.UserID = userID
	sh.states[userID] = next
	return next, nil
}

// Put 测试和数据导入用
func (r *ChargeRepository) Put(s model.ChargeState) {
	sh := r.shard(s.UserID)
	sh.mu.Lock()
	sh.states[s.UserID] = s
	sh.mu.Unlock()
}
