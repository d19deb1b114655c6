package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Pixel_Canvas/internal/model"
)

// 首次写同一坐标并发插入时，输掉的一方重试走更新分支
const maxInsertRetry = 3

type CellRepository struct {
	DB *gorm.DB
}

func (r *CellRepository) Get(ctx context.Context, worldID uint64, x, y int64) (*model.Cell, error) {
	var c model.Cell
	err := r.DB.WithContext(ctx).
		Where("world_id = ? AND x = ? AND y = ?", worldID, x, y).
		First(&c).Error
	return notFoundAsNil(&c, err)
}

// Swap select for update 锁住该坐标，读出旧值后覆盖；写入的版本为旧版本加一
func (r *CellRepository) Swap(ctx context.Context, cell model.Cell) (*model.Cell, error) {
	var prev *model.Cell
	var err error
	for attempt := 0; attempt < maxInsertRetry; attempt++ {
		prev, err = r.swapOnce(ctx, cell)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	return prev, err
}

func (r *CellRepository) swapOnce(ctx context.Context, cell model.Cell) (*model.Cell, error) {
	var prev *model.Cell
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.Cell
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("world_id = ? AND x = ? AND y = ?", cell.WorldID, cell.X, cell.Y).
			First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prev = nil
			cell.Version = model.NextVersion(nil)
			return tx.Create(&cell).Error
		}
		if err != nil {
			return err
		}
		prev = &cur
		return tx.Model(&model.Cell{}).
			Where("world_id = ? AND x = ? AND y = ?", cell.WorldID, cell.X, cell.Y).
			Updates(map[string]any{
				"palette_index": cell.PaletteIndex,
				"author_id":     cell.AuthorID,
				"placed_at":     cell.PlacedAt,
				"version":       model.NextVersion(prev),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (r *CellRepository) Snapshot(ctx context.Context, worldID uint64, rect model.Rect) ([]model.Cell, error) {
	var cells []model.Cell
	err := r.DB.WithContext(ctx).
		Where("world_id = ? AND x BETWEEN ? AND ? AND y BETWEEN ? AND ?",
			worldID, rect.MinX, rect.MaxX, rect.MinY, rect.MaxY).
		Order("y asc, x asc").
		Find(&cells).Error
	return cells, err
}

func (r *CellRepository) DeleteWorld(ctx context.Context, worldID uint64) (int64, error) {
	tx := r.DB.WithContext(ctx).Where("world_id = ?", worldID).Delete(&model.Cell{})
	return tx.RowsAffected, tx.Error
}
