package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Pixel_Canvas/internal/model"
)

type BanRepository struct {
	DB *gorm.DB
}

func (r *BanRepository) FindByUser(ctx context.Context, userID uint64) (*model.Ban, error) {
	var b model.Ban
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error
	return notFoundAsNil(&b, err)
}

// Upsert user_id 唯一，已有的失效 ban 行直接覆盖
func (r *BanRepository) Upsert(ctx context.Context, ban *model.Ban) error {
	ban.BannedAt = ban.BannedAt.UTC()
	if ban.ExpiresAt != nil {
		exp := ban.ExpiresAt.UTC()
		ban.ExpiresAt = &exp
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"banned_by", "reason", "banned_at", "expires_at"}),
	}).Create(ban).Error
}

func (r *BanRepository) Delete(ctx context.Context, userID uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Ban{})
	return tx.RowsAffected > 0, tx.Error
}

func (r *BanRepository) ListActive(ctx context.Context, now time.Time) ([]model.Ban, error) {
	var list []model.Ban
	err := r.DB.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		Order("banned_at asc").
		Find(&list).Error
	return list, err
}

type RoleRepository struct {
	DB *gorm.DB
}

func (r *RoleRepository) HasRole(ctx context.Context, userID uint64, role string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&model.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, role).
		Count(&n).Error
	return n > 0, err
}

// Assign 角色不存在时先创建；重复分配幂等
func (r *RoleRepository) Assign(ctx context.Context, userID uint64, role string, assignedBy uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rl model.Role
		if err := tx.Where("name = ?", role).First(&rl).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rl = model.Role{Name: role}
			if err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rl).Error; err != nil {
				return err
			}
			if err = tx.Where("name = ?", role).First(&rl).Error; err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserRole{
			UserID:     userID,
			RoleID:     rl.ID,
			AssignedBy: assignedBy,
		}).Error
	})
}

func (r *RoleRepository) RolesOf(ctx context.Context, userID uint64) ([]string, error) {
	var names []string
	err := r.DB.WithContext(ctx).
		Model(&model.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name asc").
		Pluck("roles.name", &names).Error
	return names, err
}
