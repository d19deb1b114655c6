package service

import (
	"context"
	"time"

	"Pixel_Canvas/internal/model"
)

// 各存储实现（memory / mysql / redis）都满足下面的接口。
// 查不到记录时返回 (nil, nil)，error 只表示基础设施故障。

// ChargeMutator 在存储的临界区内执行，found=false 表示还没有记录
type ChargeMutator func(cur model.ChargeState, found bool) (model.ChargeState, error)

type ChargeStore interface {
	Load(ctx context.Context, userID uint64) (model.ChargeState, bool, error)
	// Update 对单个用户原子地读-改-写，fn 返回错误时不落库
	Update(ctx context.Context, userID uint64, fn ChargeMutator) (model.ChargeState, error)
}

type CellStore interface {
	Get(ctx context.Context, worldID uint64, x, y int64) (*model.Cell, error)
	// Swap 原子替换并返回被覆盖的旧值
	Swap(ctx context.Context, cell model.Cell) (*model.Cell, error)
	Snapshot(ctx context.Context, worldID uint64, rect model.Rect) ([]model.Cell, error)
	DeleteWorld(ctx context.Context, worldID uint64) (int64, error)
}

type WorldStore interface {
	// CreateWorld 同一事务内写入世界和调色板，并维护唯一默认世界
	CreateWorld(ctx context.Context, w *model.World, palette []model.PaletteColor) error
	FindByName(ctx context.Context, name string) (*model.World, error)
	FindByID(ctx context.Context, id uint64) (*model.World, error)
	FindDefault(ctx context.Context) (*model.World, error)
	List(ctx context.Context) ([]model.World, error)
	ListPalette(ctx context.Context, worldID uint64) ([]model.PaletteColor, error)
	// DeleteWorld 删除世界和调色板；删掉的是默认世界时提升最早的剩余世界
	DeleteWorld(ctx context.Context, worldID uint64) error
}

type BanStore interface {
	FindByUser(ctx context.Context, userID uint64) (*model.Ban, error)
	// Upsert 覆盖该用户已有的（失效）ban 行
	Upsert(ctx context.Context, ban *model.Ban) error
	Delete(ctx context.Context, userID uint64) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]model.Ban, error)
}

type RoleStore interface {
	HasRole(ctx context.Context, userID uint64, role string) (bool, error)
	Assign(ctx context.Context, userID uint64, role string, assignedBy uint64) error
	RolesOf(ctx context.Context, userID uint64) ([]string, error)
}

// Clock 便于测试注入时间
type Clock func() time.Time
