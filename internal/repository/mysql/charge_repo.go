package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/service"
)

type ChargeRepository struct {
	DB *gorm.DB
}

func (r *ChargeRepository) Load(ctx context.Context, userID uint64) (model.ChargeState, bool, error) {
	var s model.ChargeState
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ChargeState{}, false, nil
	}
	if err != nil {
		return model.ChargeState{}, false, err
	}
	return s, true, nil
}

// Update 事务内 select for update，fn 的错误原样返回且不落库
func (r *ChargeRepository) Update(ctx context.Context, userID uint64, fn service.ChargeMutator) (model.ChargeState, error) {
	var next model.ChargeState
	var err error
	for attempt := 0; attempt < maxInsertRetry; attempt++ {
		next, err = r.updateOnce(ctx, userID, fn)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	return next, err
}

func (r *ChargeRepository) updateOnce(ctx context.Context, userID uint64, fn service.ChargeMutator) (model.ChargeState, error) {
	var next model.ChargeState
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.ChargeState
		found := true
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			cur = model.ChargeState{}
		} else if err != nil {
			return err
		}

		next, err = fn(cur, found)
		if err != nil {
			return err
		}
		next.UserID = userID
		// 和列精度对齐，回读的值与返回值相等
		next.ChargesUpdatedAt = next.ChargesUpdatedAt.Truncate(time.Microsecond)
		if !found {
			return tx.Create(&next).Error
		}
		return tx.Model(&model.ChargeState{}).Where("user_id = ?", userID).
			Updates(map[string]any{
				"available_charges":  next.AvailableCharges,
				"charges_updated_at": next.ChargesUpdatedAt,
			}).Error
	})
	if err != nil {
		return model.ChargeState{}, err
	}
	return next, nil
}
