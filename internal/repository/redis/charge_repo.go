package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/service"
)

const (
	ChargeKeyPrefix = "charge:user"
	chargeMaxRetry  = 16
)

// ChargeRepository 每个用户一个 hash：available / updated_at(unix 纳秒)
type ChargeRepository struct {
	RDB *redis.Client
	// ttl>0 时 key 在恢复满之后自动过期，过期等价于新用户
	ttl      time.Duration
	maxRetry int
}

func NewChargeRepository(rdb *redis.Client, policy model.ChargePolicy) *ChargeRepository {
	r := &ChargeRepository{RDB: rdb, maxRetry: chargeMaxRetry}
	if policy.InitialCharges == policy.Capacity {
		r.ttl = time.Duration(policy.Capacity) * policy.RegenInterval
	}
	return r
}

func (r *ChargeRepository) key(userID uint64) string {
	return fmt.Sprintf("%s:%d", ChargeKeyPrefix, userID)
}

func (r *ChargeRepository) Load(ctx context.Context, userID uint64) (model.ChargeState, bool, error) {
	vals, err := r.RDB.HMGet(ctx, r.key(userID), "available", "updated_at").Result()
	if err != nil {
		return model.ChargeState{}, false, err
	}
	return decodeCharge(userID, vals)
}

// Update WATCH 乐观锁，被并发修改时重试；fn 的错误原样返回
func (r *ChargeRepository) Update(ctx context.Context, userID uint64, fn service.ChargeMutator) (model.ChargeState, error) {
	k := r.key(userID)
	var next model.ChargeState
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, k, "available", "updated_at").Result()
		if err != nil {
			return err
		}
		cur, found, err := decodeCharge(userID, vals)
		if err != nil {
			return err
		}
		next, err = fn(cur, found)
		if err != nil {
			return err
		}
		next.UserID = userID
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, "available", next.AvailableCharges, "updated_at", next.ChargesUpdatedAt.UnixNano())
			if r.ttl > 0 {
				p.Expire(ctx, k, r.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetry; attempt++ {
		err := r.RDB.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return model.ChargeState{}, err
		}
		return next, nil
	}
	return model.ChargeState{}, service.ErrContention
}

func decodeCharge(userID uint64, vals []any) (model.ChargeState, bool, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return model.ChargeState{}, false, nil
	}
	availStr, _ := vals[0].(string)
	tsStr, _ := vals[1].(string)
	avail, err := strconv.Atoi(availStr)
	if err != nil {
		return model.ChargeState{}, false, fmt.Errorf("decode available: %w", err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return model.ChargeState{}, false, fmt.Errorf("decode updated_at: %w", err)
	}
	return model.ChargeState{
		UserID:           userID,
		AvailableCharges: avail,
		ChargesUpdatedAt: time.Unix(0, ts),
	}, true, nil
}
