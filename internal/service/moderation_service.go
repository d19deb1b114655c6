package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"Pixel_Canvas/internal/model"
)

// ModerationService ban 判定和角色查询；管理员豁免由调用方决定
type ModerationService struct {
	bans  BanStore
	roles RoleStore
	log   zerolog.Logger
}

func NewModerationService(bans BanStore, roles RoleStore, log zerolog.Logger) *ModerationService {
	return &ModerationService{
		bans:  bans,
		roles: roles,
		log:   log.With().Str("component", "moderation").Logger(),
	}
}

// Check 纯判定：存在未过期（或永久）的 ban 即拒绝
func (s *ModerationService) Check(ctx context.Context, userID uint64, now time.Time) error {
	ban, err := s.bans.FindByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: find ban: %v", ErrStorageUnavailable, err)
	}
	if !ban.ActiveAt(now) {
		return nil
	}
	return &BannedError{Reason: ban.Reason, ExpiresAt: ban.ExpiresAt}
}

func (s *ModerationService) HasRole(ctx context.Context, userID uint64, role string) (bool, error) {
	ok, err := s.roles.HasRole(ctx, userID, role)
	if err != nil {
		return false, fmt.Errorf("%w: role lookup: %v", ErrStorageUnavailable, err)
	}
	return ok, nil
}

func (s *ModerationService) IsAdmin(ctx context.Context, userID uint64) (bool, error) {
	return s.HasRole(ctx, userID, model.RoleAdmin)
}

// Ban 只有管理员能封禁，管理员不能被封禁
func (s *ModerationService) Ban(ctx context.Context, target, by uint64, reason string, expiresAt *time.Time, now time.Time) (*model.Ban, error) {
	if err := s.requireAdmin(ctx, by); err != nil {
		return nil, err
	}
	targetAdmin, err := s.IsAdmin(ctx, target)
	if err != nil {
		return nil, err
	}
	if targetAdmin {
		return nil, ErrCannotBanAdmin
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, ErrInvalidDuration
	}

	existing, err := s.bans.FindByUser(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: find ban: %v", ErrStorageUnavailable, err)
	}
	if existing.ActiveAt(now) {
		return nil, ErrAlreadyBanned
	}

	ban := &model.Ban{
		UserID:    target,
		BannedBy:  by,
		Reason:    reason,
		BannedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err = s.bans.Upsert(ctx, ban); err != nil {
		return nil, fmt.Errorf("%w: save ban: %v", ErrStorageUnavailable, err)
	}
	s.log.Info().Uint64("user_id", target).Uint64("banned_by", by).Bool("permanent", ban.Permanent()).Msg("user banned")
	return ban, nil
}

func (s *ModerationService) Unban(ctx context.Context, target, by uint64, now time.Time) error {
	if err := s.requireAdmin(ctx, by); err != nil {
		return err
	}
	existing, err := s.bans.FindByUser(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: find ban: %v", ErrStorageUnavailable, err)
	}
	if !existing.ActiveAt(now) {
		return ErrBanNotFound
	}
	if _, err = s.bans.Delete(ctx, target); err != nil {
		return fmt.Errorf("%w: delete ban: %v", ErrStorageUnavailable, err)
	}
	s.log.Info().Uint64("user_id", target).Uint64("unbanned_by", by).Msg("user unbanned")
	return nil
}

func (s *ModerationService) ActiveBans(ctx context.Context, by uint64, now time.Time) ([]model.Ban, error) {
	if err := s.requireAdmin(ctx, by); err != nil {
		return nil, err
	}
	list, err := s.bans.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: list bans: %v", ErrStorageUnavailable, err)
	}
	return list, nil
}

// AssignRole 管理端初始化用，不在落子路径上
func (s *ModerationService) AssignRole(ctx context.Context, userID uint64, role string, by uint64) error {
	if err := s.roles.Assign(ctx, userID, role, by); err != nil {
		return fmt.Errorf("%w: assign role: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *ModerationService) requireAdmin(ctx context.Context, userID uint64) error {
	ok, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
