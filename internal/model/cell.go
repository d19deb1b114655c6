package model

import "time"

// Cell 画布上某个坐标的当前状态，只保留最新一次写入
type Cell struct {
	WorldID      uint64    `gorm:"primaryKey;autoIncrement:false"`
	X            int64     `gorm:"primaryKey;autoIncrement:false"`
	Y            int64     `gorm:"primaryKey;autoIncrement:false"`
	PaletteIndex uint8     `gorm:"not null"`
	AuthorID     uint64    `gorm:"not null;index"`
	PlacedAt     time.Time `gorm:"not null"`
	// Version 同一坐标每次写入加一，首次写入为 1
	Version uint64 `gorm:"not null"`
}

func (Cell) TableName() string {
	return "cells"
}

// NextVersion 覆盖 prev 的写入应带的版本号
func NextVersion(prev *Cell) uint64 {
	if prev == nil {
		return 1
	}
	return prev.Version + 1
}

// Rect 闭区间矩形，用于快照读取
type Rect struct {
	MinX, MinY int64
	MaxX, MaxY int64
}

// Unbounded 不限制范围
var Unbounded = Rect{MinX: minInt64, MinY: minInt64, MaxX: maxInt64, MaxY: maxInt64}

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)

func (r Rect) Contains(x, y int64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}
