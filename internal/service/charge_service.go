package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"Pixel_Canvas/internal/model"
)

// ChargeService 令牌桶账本：惰性恢复，预留/提交/回滚
type ChargeService struct {
	store  ChargeStore
	policy model.ChargePolicy
	log    zerolog.Logger
}

// Reservation 预留凭证，记录扣减前后的状态用于回滚
type Reservation struct {
	UserID uint64
	// Count 本次预留扣掉的 charge 数，单次落子为 1
	Count  int
	Before model.ChargeState
	After  model.ChargeState
	// 0=pending 1=committed 2=rolled back
	done atomic.Int32
}

func NewChargeService(store ChargeStore, policy model.ChargePolicy, log zerolog.Logger) *ChargeService {
	return &ChargeService{
		store:  store,
		policy: policy,
		log:    log.With().Str("component", "charge_ledger").Logger(),
	}
}

func (s *ChargeService) Policy() model.ChargePolicy {
	return s.policy
}

// Peek 只读，不修改存储
func (s *ChargeService) Peek(ctx context.Context, userID uint64, now time.Time) (int, *time.Time, error) {
	cur, found, err := s.store.Load(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: load charges: %v", ErrStorageUnavailable, err)
	}
	if !found {
		cur = s.policy.Fresh(userID, now)
	}
	avail, next := cur.Peek(now, s.policy)
	return avail, next, nil
}

// Reserve 原子地对账并扣减一次，扣减在此刻就已落库
func (s *ChargeService) Reserve(ctx context.Context, userID uint64, now time.Time) (*Reservation, error) {
	return s.ReserveN(ctx, userID, 1, now)
}

// ReserveN 一次预留 n 个，不够就一个都不扣
func (s *ChargeService) ReserveN(ctx context.Context, userID uint64, n int, now time.Time) (*Reservation, error) {
	if n < 1 {
		return nil, fmt.Errorf("reserve %d charges: count must be positive", n)
	}
	var before model.ChargeState
	after, err := s.store.Update(ctx, userID, func(cur model.ChargeState, found bool) (model.ChargeState, error) {
		if !found {
			cur = s.policy.Fresh(userID, now)
		}
		before = cur
		next, ok := cur.SpendN(now, s.policy, n)
		if !ok {
			_, nextAt := cur.Peek(now, s.policy)
			return cur, &InsufficientChargeError{Available: next.AvailableCharges, NextRegenAt: nextAt}
		}
		return next, nil
	})
	if err != nil {
		var ice *InsufficientChargeError
		if errors.As(err, &ice) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reserve charge: %v", ErrStorageUnavailable, err)
	}
	return &Reservation{UserID: userID, Count: n, Before: before, After: after}, nil
}

// Commit 扣减已经在 Reserve 时落库，这里只做状态标记
func (s *ChargeService) Commit(r *Reservation) {
	if r == nil {
		return
	}
	r.done.CompareAndSwap(0, 1)
}

// Rollback 撤销预留：状态没被别的预留改过就精确恢复，否则只退还预留的个数
func (s *ChargeService) Rollback(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	return s.Refund(ctx, r, r.Count)
}

// Refund 批量写到一半失败时只退还没写成的 n 个；n 等于 Count 时就是 Rollback
func (s *ChargeService) Refund(ctx context.Context, r *Reservation, n int) error {
	if r == nil || n < 1 || !r.done.CompareAndSwap(0, 2) {
		return nil
	}
	n = min(n, r.Count)
	_, err := s.store.Update(ctx, r.UserID, func(cur model.ChargeState, found bool) (model.ChargeState, error) {
		untouched := !found || cur.Equal(r.After)
		switch {
		case untouched && n == r.Count:
			return r.Before, nil
		case untouched:
			return r.After.Refund(n, s.policy), nil
		}
		return cur.Refund(n, s.policy), nil
	})
	if err != nil {
		// 允许调用方重试
		r.done.Store(0)
		s.log.Error().Err(err).Uint64("user_id", r.UserID).Msg("charge rollback failed")
		return fmt.Errorf("%w: rollback charge: %v", ErrStorageUnavailable, err)
	}
	return nil
}
