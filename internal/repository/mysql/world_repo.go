package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Pixel_Canvas/internal/model"
)

type WorldRepository struct {
	DB *gorm.DB
}

// CreateWorld 世界和调色板同一事务写入；锁住现有默认世界保证最多一个默认
func (r *WorldRepository) CreateWorld(ctx context.Context, w *model.World, palette []model.PaletteColor) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var defaults []model.World
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("is_default = ?", true).Find(&defaults).Error; err != nil {
			return err
		}
		var total int64
		if err := tx.Model(&model.World{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			w.IsDefault = true
		}
		if w.IsDefault && len(defaults) > 0 {
			if err := tx.Model(&model.World{}).Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(w).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return model.ErrDuplicateWorld
			}
			return err
		}
		if len(palette) == 0 {
			return nil
		}
		colors := make([]model.PaletteColor, len(palette))
		for i, c := range palette {
			c.ID = 0
			c.WorldID = w.ID
			colors[i] = c
		}
		return tx.CreateInBatches(colors, 64).Error
	})
}

func (r *WorldRepository) FindByName(ctx context.Context, name string) (*model.World, error) {
	var w model.World
	err := r.DB.WithContext(ctx).Where("name = ?", name).First(&w).Error
	return notFoundAsNil(&w, err)
}

func (r *WorldRepository) FindByID(ctx context.Context, id uint64) (*model.World, error) {
	var w model.World
	err := r.DB.WithContext(ctx).First(&w, id).Error
	return notFoundAsNil(&w, err)
}

func (r *WorldRepository) FindDefault(ctx context.Context) (*model.World, error) {
	var w model.World
	err := r.DB.WithContext(ctx).Where("is_default = ?", true).Order("id asc").First(&w).Error
	return notFoundAsNil(&w, err)
}

func (r *WorldRepository) List(ctx context.Context) ([]model.World, error) {
	var list []model.World
	err := r.DB.WithContext(ctx).Order("id asc").Find(&list).Error
	return list, err
}

func (r *WorldRepository) ListPalette(ctx context.Context, worldID uint64) ([]model.PaletteColor, error) {
	var colors []model.PaletteColor
	err := r.DB.WithContext(ctx).Where("world_id = ?", worldID).
		Order("palette_index asc").Find(&colors).Error
	return colors, err
}

// DeleteWorld 幂等；删除默认世界时把最早创建的剩余世界设为默认。
// 锁住全部世界行，两个并发删除不会把最后两个世界都删掉
func (r *WorldRepository) DeleteWorld(ctx context.Context, worldID uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var all []model.World
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Order("id asc").Find(&all).Error; err != nil {
			return err
		}
		var w *model.World
		for i := range all {
			if all[i].ID == worldID {
				w = &all[i]
			}
		}
		if w == nil {
			return nil
		}
		if len(all) == 1 {
			return model.ErrLastWorld
		}
		var err error
		if err = tx.Where("world_id = ?", worldID).Delete(&model.PaletteColor{}).Error; err != nil {
			return err
		}
		if err = tx.Delete(&model.World{}, worldID).Error; err != nil {
			return err
		}
		if !w.IsDefault {
			return nil
		}
		var oldest model.World
		err = tx.Order("created_at asc, id asc").First(&oldest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&oldest).Update("is_default", true).Error
	})
}

// notFoundAsNil 查不到返回 (nil, nil)
func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
