package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBanned             = errors.New("user is banned")
	ErrWorldNotFound      = errors.New("world not found")
	ErrUnknownColor       = errors.New("unknown palette color")
	ErrInsufficientCharge = errors.New("insufficient charge")
	ErrNoDefaultWorld     = errors.New("no default world configured")
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrWorldExists      = errors.New("world already exists")
	ErrInvalidWorldName = errors.New("invalid world name")
	ErrEmptyPalette     = errors.New("palette has no colors")
	ErrAlreadyBanned    = errors.New("user is already banned")
	ErrBanNotFound      = errors.New("ban not found")
	ErrCannotBanAdmin   = errors.New("cannot ban admin user")
	ErrForbidden        = errors.New("admin role required")
	ErrInvalidDuration  = errors.New("ban expiry must be in the future")
	ErrLastWorld        = errors.New("cannot delete the last world")
	ErrInvalidBatch     = errors.New("batch must hold between 1 and 1000 pixels")
	ErrContention       = errors.New("too much contention on charge state")
)

// BannedError 带上 ban 的原因和到期时间，方便调用方展示
type BannedError struct {
	Reason    string
	ExpiresAt *time.Time
}

func (e *BannedError) Error() string {
	if e.ExpiresAt == nil {
		return fmt.Sprintf("user is banned permanently: %s", e.Reason)
	}
	return fmt.Sprintf("user is banned until %s: %s", e.ExpiresAt.UTC().Format(time.RFC3339), e.Reason)
}

func (e *BannedError) Unwrap() error { return ErrBanned }

// InsufficientChargeError NextRegenAt 告诉用户下一次恢复的时间
type InsufficientChargeError struct {
	Available   int
	NextRegenAt *time.Time
}

func (e *InsufficientChargeError) Error() string {
	if e.NextRegenAt == nil {
		return fmt.Sprintf("insufficient charge: %d available", e.Available)
	}
	return fmt.Sprintf("insufficient charge: %d available, next at %s",
		e.Available, e.NextRegenAt.UTC().Format(time.RFC3339))
}

func (e *InsufficientChargeError) Unwrap() error { return ErrInsufficientCharge }

// Gate 标识落子流程中失败的环节
type Gate string

const (
	GateBan     Gate = "ban"
	GateWorld   Gate = "world"
	GateColor   Gate = "color"
	GateCharge  Gate = "charge"
	GateStorage Gate = "storage"
	GateCancel  Gate = "cancel"
	GateBatch   Gate = "batch"
)

// PlacementError 落子失败，State 为 Rejected 或 RolledBack
type PlacementError struct {
	State PlacementState
	Gate  Gate
	Err   error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement %s at %s gate: %v", e.State, e.Gate, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// Retryable 只有基础设施故障值得整体重试
func (e *PlacementError) Retryable() bool {
	return errors.Is(e.Err, ErrStorageUnavailable)
}
