package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidHex          = errors.New("invalid rgba hex color")
	ErrPaletteIndexRange   = errors.New("palette index out of range")
	ErrPaletteIndexRepeats = errors.New("palette index repeats")
	ErrDuplicateWorld      = errors.New("duplicate world name")
	// ErrLastWorld 至少保留一个世界，否则默认世界无从提升
	ErrLastWorld = errors.New("cannot delete the last world")
)

const MaxPaletteSize = 256

type World struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:64;not null"`
	IsDefault bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaletteColor 世界调色板中的一个颜色，(world_id, palette_index) 唯一
type PaletteColor struct {
	ID           uint64 `gorm:"primaryKey"`
	WorldID      uint64 `gorm:"not null;uniqueIndex:uk_world_index"`
	PaletteIndex uint8  `gorm:"not null;uniqueIndex:uk_world_index"`
	Hex          string `gorm:"size:9;not null"` // #RRGGBBAA
	CreatedAt    time.Time
}

func (PaletteColor) TableName() string {
	return "palette_colors"
}

// NormalizeHex 校验并规范化为 #RRGGBBAA，允许省略 #
func NormalizeHex(s string) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return "", fmt.Errorf("%w: %q", ErrInvalidHex, s)
		}
	}
	return "#" + strings.ToUpper(h), nil
}

// Palette 某个世界的只读调色板，索引和颜色都是 O(1) 查找
type Palette struct {
	WorldID uint64
	byIndex map[uint8]PaletteColor
	byHex   map[string]uint8
	ordered []PaletteColor
}

// NewPalette 构建调色板，同时做结构校验（范围、唯一、格式）
func NewPalette(worldID uint64, colors []PaletteColor) (*Palette, error) {
	p := &Palette{
		WorldID: worldID,
		byIndex: make(map[uint8]PaletteColor, len(colors)),
		byHex:   make(map[string]uint8, len(colors)),
		ordered: make([]PaletteColor, 0, len(colors)),
	}
	for _, c := range colors {
		hex, err := NormalizeHex(c.Hex)
		if err != nil {
			return nil, err
		}
		if _, dup := p.byIndex[c.PaletteIndex]; dup {
			return nil, fmt.Errorf("%w: %d", ErrPaletteIndexRepeats, c.PaletteIndex)
		}
		c.WorldID = worldID
		c.Hex = hex
		p.byIndex[c.PaletteIndex] = c
		// 同色多个索引时保留最小的那个
		if prev, ok := p.byHex[hex]; !ok || c.PaletteIndex < prev {
			p.byHex[hex] = c.PaletteIndex
		}
		p.ordered = append(p.ordered, c)
	}
	slices.SortFunc(p.ordered, func(a, b PaletteColor) int {
		return int(a.PaletteIndex) - int(b.PaletteIndex)
	})
	return p, nil
}

// PaletteFromHex 按位置生成索引
func PaletteFromHex(worldID uint64, hexes []string) (*Palette, error) {
	if len(hexes) > MaxPaletteSize {
		return nil, fmt.Errorf("%w: %d colors", ErrPaletteIndexRange, len(hexes))
	}
	colors := make([]PaletteColor, len(hexes))
	for i, h := range hexes {
		colors[i] = PaletteColor{PaletteIndex: uint8(i), Hex: h}
	}
	return NewPalette(worldID, colors)
}

// Lookup 索引可能来自请求，先做范围判断
func (p *Palette) Lookup(index int) (PaletteColor, bool) {
	if p == nil || index < 0 || index >= MaxPaletteSize {
		return PaletteColor{}, false
	}
	c, ok := p.byIndex[uint8(index)]
	return c, ok
}

func (p *Palette) IndexOf(hex string) (uint8, bool) {
	if p == nil {
		return 0, false
	}
	norm, err := NormalizeHex(hex)
	if err != nil {
		return 0, false
	}
	idx, ok := p.byHex[norm]
	return idx, ok
}

func (p *Palette) Colors() []PaletteColor {
	if p == nil {
		return nil
	}
	out := make([]PaletteColor, len(p.ordered))
	copy(out, p.ordered)
	return out
}

func (p *Palette) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ordered)
}
