package service

import (
	"context"
	"fmt"
	"time"

	"Pixel_Canvas/internal/model"
)

// CanvasService 画布读写；坐标不做边界检查
type CanvasService struct {
	cells  CellStore
	worlds *WorldService
}

// Pixel 渲染用的像素视图，颜色已解析为 hex
type Pixel struct {
	X            int64     `json:"x"`
	Y            int64     `json:"y"`
	PaletteIndex uint8     `json:"palette_index"`
	Color        string    `json:"color"`
	AuthorID     uint64    `json:"author_id"`
	PlacedAt     time.Time `json:"placed_at"`
	Version      uint64    `json:"version"`
}

func NewCanvasService(cells CellStore, worlds *WorldService) *CanvasService {
	return &CanvasService{cells: cells, worlds: worlds}
}

// Set 原子替换，返回被覆盖的旧值（首次写入为 nil）
func (s *CanvasService) Set(ctx context.Context, worldID uint64, x, y int64, index uint8, author uint64, now time.Time) (*model.Cell, error) {
	prev, err := s.cells.Swap(ctx, model.Cell{
		WorldID:      worldID,
		X:            x,
		Y:            y,
		PaletteIndex: index,
		AuthorID:     author,
		PlacedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: write cell: %v", ErrStorageUnavailable, err)
	}
	return prev, nil
}

func (s *CanvasService) Get(ctx context.Context, worldName string, x, y int64) (*Pixel, error) {
	w, err := s.worlds.FindWorld(ctx, worldName)
	if err != nil {
		return nil, err
	}
	cell, err := s.cells.Get(ctx, w.ID, x, y)
	if err != nil {
		return nil, fmt.Errorf("%w: read cell: %v", ErrStorageUnavailable, err)
	}
	if cell == nil {
		return nil, nil
	}
	p, err := s.worlds.Palette(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	px := toPixel(*cell, p)
	return &px, nil
}

// Snapshot 初次加载画布用，简单遍历
func (s *CanvasService) Snapshot(ctx context.Context, worldName string, rect model.Rect) (*model.World, []Pixel, error) {
	w, err := s.worlds.FindWorld(ctx, worldName)
	if err != nil {
		return nil, nil, err
	}
	cells, err := s.cells.Snapshot(ctx, w.ID, rect)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: snapshot: %v", ErrStorageUnavailable, err)
	}
	p, err := s.worlds.Palette(ctx, w.ID)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Pixel, 0, len(cells))
	for _, c := range cells {
		out = append(out, toPixel(c, p))
	}
	return w, out, nil
}

func toPixel(c model.Cell, p *model.Palette) Pixel {
	px := Pixel{
		X:            c.X,
		Y:            c.Y,
		PaletteIndex: c.PaletteIndex,
		AuthorID:     c.AuthorID,
		PlacedAt:     c.PlacedAt,
		Version:      c.Version,
	}
	if pc, ok := p.Lookup(int(c.PaletteIndex)); ok {
		px.Color = pc.Hex
	}
	return px
}
