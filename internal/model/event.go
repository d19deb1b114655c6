package model

import "time"

// PlacementEvent 成功落子后对外广播的事件
type PlacementEvent struct {
	ID            string    `json:"id"`
	WorldID       uint64    `json:"world_id"`
	World         string    `json:"world"`
	X             int64     `json:"x"`
	Y             int64     `json:"y"`
	PaletteIndex  uint8     `json:"palette_index"`
	Color         string    `json:"color"`
	PreviousIndex *uint8    `json:"previous_index,omitempty"`
	PreviousColor string    `json:"previous_color,omitempty"`
	AuthorID      uint64    `json:"author_id"`
	PlacedAt      time.Time `json:"placed_at"`
	// Version 同一坐标的写入序号，消费方按它而不是到达顺序重放
	Version uint64 `json:"version"`
}
