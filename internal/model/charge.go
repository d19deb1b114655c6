package model

import "time"

const (
	DefaultChargeCapacity      = 30
	DefaultChargeRegenInterval = 60 * time.Second
)

// ChargePolicy 令牌桶参数
type ChargePolicy struct {
	Capacity       int
	RegenInterval  time.Duration
	InitialCharges int
}

func DefaultChargePolicy() ChargePolicy {
	return ChargePolicy{
		Capacity:       DefaultChargeCapacity,
		RegenInterval:  DefaultChargeRegenInterval,
		InitialCharges: DefaultChargeCapacity,
	}
}

// ChargeState 每个用户的 charge 存量，按需惰性对账
type ChargeState struct {
	UserID           uint64    `gorm:"primaryKey;autoIncrement:false"`
	AvailableCharges int       `gorm:"not null"`
	ChargesUpdatedAt time.Time `gorm:"not null"`
}

func (ChargeState) TableName() string {
	return "charge_states"
}

// Fresh 没有记录的用户视为刚创建
func (p ChargePolicy) Fresh(userID uint64, now time.Time) ChargeState {
	return ChargeState{
		UserID:           userID,
		AvailableCharges: p.InitialCharges,
		ChargesUpdatedAt: now,
	}
}

// Equal 时间用 Equal 比较，忽略单调时钟读数
func (s ChargeState) Equal(o ChargeState) bool {
	return s.UserID == o.UserID &&
		s.AvailableCharges == o.AvailableCharges &&
		s.ChargesUpdatedAt.Equal(o.ChargesUpdatedAt)
}

// ticks 自上次对账以来完整经过的周期数；时钟回拨按 0 处理
func (s ChargeState) ticks(now time.Time, p ChargePolicy) int64 {
	elapsed := now.Sub(s.ChargesUpdatedAt)
	if elapsed <= 0 || p.RegenInterval <= 0 {
		return 0
	}
	return int64(elapsed / p.RegenInterval)
}

// Reconcile 纯函数：返回当前可用数和本次对账后的存储状态。
// 未满时时间戳只前进消耗掉的整周期，保留不足一个周期的进度；满了则从 now 重新计时。
func (s ChargeState) Reconcile(now time.Time, p ChargePolicy) ChargeState {
	stored := clamp(s.AvailableCharges, 0, p.Capacity)
	ticks := s.ticks(now, p)
	if int64(p.Capacity-stored) <= ticks {
		return ChargeState{UserID: s.UserID, AvailableCharges: p.Capacity, ChargesUpdatedAt: now}
	}
	return ChargeState{
		UserID:           s.UserID,
		AvailableCharges: stored + int(ticks),
		ChargesUpdatedAt: s.ChargesUpdatedAt.Add(time.Duration(ticks) * p.RegenInterval),
	}
}

// Peek 只读计算，nextRegenAt 为 nil 表示已满
func (s ChargeState) Peek(now time.Time, p ChargePolicy) (int, *time.Time) {
	stored := clamp(s.AvailableCharges, 0, p.Capacity)
	ticks := s.ticks(now, p)
	if int64(p.Capacity-stored) <= ticks {
		return p.Capacity, nil
	}
	next := s.ChargesUpdatedAt.Add(time.Duration(ticks+1) * p.RegenInterval)
	return stored + int(ticks), &next
}

// Spend 对账后扣一次，不够时 ok=false 且返回对账结果
func (s ChargeState) Spend(now time.Time, p ChargePolicy) (ChargeState, bool) {
	return s.SpendN(now, p, 1)
}

// SpendN 一次扣 n 个，要么全扣要么不扣
func (s ChargeState) SpendN(now time.Time, p ChargePolicy, n int) (ChargeState, bool) {
	cur := s.Reconcile(now, p)
	if n < 1 || cur.AvailableCharges < n {
		return cur, false
	}
	cur.AvailableCharges -= n
	return cur, true
}

// Refund 退还 n 个，不超过上限；时间戳不动
func (s ChargeState) Refund(n int, p ChargePolicy) ChargeState {
	s.AvailableCharges = clamp(s.AvailableCharges+n, 0, p.Capacity)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
