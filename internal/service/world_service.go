package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"Pixel_Canvas/internal/model"
)

const DefaultWorldAlias = "default"

// WorldService 世界注册表和调色板
type WorldService struct {
	store WorldStore
	cells CellStore
	log   zerolog.Logger

	// 只缓存调色板：世界 ID 不复用，调色板建好后不可变
	mu       sync.RWMutex
	palettes map[uint64]*model.Palette
	group    singleflight.Group
}

func NewWorldService(store WorldStore, cells CellStore, log zerolog.Logger) *WorldService {
	return &WorldService{
		store:    store,
		cells:    cells,
		log:      log.With().Str("component", "world_registry").Logger(),
		palettes: make(map[uint64]*model.Palette),
	}
}

// DefaultWorld 没有默认世界属于配置错误
func (s *WorldService) DefaultWorld(ctx context.Context) (*model.World, error) {
	w, err := s.store.FindDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: find default world: %v", ErrStorageUnavailable, err)
	}
	if w == nil {
		return nil, ErrNoDefaultWorld
	}
	return w, nil
}

// FindWorld 空名字指向默认世界；"default" 先按名字查，查不到再退回默认世界。
// 每次都查存储，别的实例删掉或重建的世界立即可见
func (s *WorldService) FindWorld(ctx context.Context, name string) (*model.World, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.DefaultWorld(ctx)
	}

	w, err := s.store.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: find world: %v", ErrStorageUnavailable, err)
	}
	if w == nil {
		if name == DefaultWorldAlias {
			return s.DefaultWorld(ctx)
		}
		return nil, fmt.Errorf("%w: %q", ErrWorldNotFound, name)
	}
	return w, nil
}

func (s *WorldService) ListWorlds(ctx context.Context) ([]model.World, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list worlds: %v", ErrStorageUnavailable, err)
	}
	return list, nil
}

// Palette 首次读取从存储加载，并发加载合并为一次
func (s *WorldService) Palette(ctx context.Context, worldID uint64) (*model.Palette, error) {
	s.mu.RLock()
	p, ok := s.palettes[worldID]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	// 合并后的加载不能因为第一个调用方取消而让其他等待者一起失败
	lctx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(strconv.FormatUint(worldID, 10), func() (any, error) {
		colors, err := s.store.ListPalette(lctx, worldID)
		if err != nil {
			return nil, fmt.Errorf("%w: load palette: %v", ErrStorageUnavailable, err)
		}
		p, err := model.NewPalette(worldID, colors)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.palettes[worldID] = p
		s.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Palette), nil
}

// ResolveColor 落子时唯一的调色板检查：索引是否已注册
func (s *WorldService) ResolveColor(ctx context.Context, world *model.World, index int) (model.PaletteColor, error) {
	p, err := s.Palette(ctx, world.ID)
	if err != nil {
		return model.PaletteColor{}, err
	}
	c, ok := p.Lookup(index)
	if !ok {
		// 缓存可能早于存储里的调色板，丢掉后重读一次
		s.forgetPalette(world.ID)
		if p, err = s.Palette(ctx, world.ID); err != nil {
			return model.PaletteColor{}, err
		}
		if c, ok = p.Lookup(index); !ok {
			return model.PaletteColor{}, fmt.Errorf("%w: index %d in world %q", ErrUnknownColor, index, world.Name)
		}
	}
	return c, nil
}

func (s *WorldService) forgetPalette(worldID uint64) {
	s.mu.Lock()
	delete(s.palettes, worldID)
	s.mu.Unlock()
}

// IndexOfHex 按颜色值反查索引
func (s *WorldService) IndexOfHex(ctx context.Context, world *model.World, hex string) (uint8, error) {
	p, err := s.Palette(ctx, world.ID)
	if err != nil {
		return 0, err
	}
	idx, ok := p.IndexOf(hex)
	if !ok {
		return 0, fmt.Errorf("%w: color %q in world %q", ErrUnknownColor, hex, world.Name)
	}
	return idx, nil
}

// CreateWorld 建世界时一次性校验调色板（索引范围、唯一性、RGBA 格式）
func (s *WorldService) CreateWorld(ctx context.Context, name string, isDefault bool, hexes []string) (*model.World, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorldName, name)
	}
	if len(hexes) == 0 {
		return nil, ErrEmptyPalette
	}
	palette, err := model.PaletteFromHex(0, hexes)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: find world: %v", ErrStorageUnavailable, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrWorldExists, name)
	}

	w := &model.World{Name: name, IsDefault: isDefault}
	if err = s.store.CreateWorld(ctx, w, palette.Colors()); err != nil {
		if errors.Is(err, model.ErrDuplicateWorld) {
			return nil, fmt.Errorf("%w: %q", ErrWorldExists, name)
		}
		return nil, fmt.Errorf("%w: create world %q: %v", ErrStorageUnavailable, name, err)
	}
	s.log.Info().Str("world", w.Name).Uint64("world_id", w.ID).Bool("default", w.IsDefault).
		Int("colors", palette.Len()).Msg("world created")
	return w, nil
}

// DeleteWorld 级联删除画布和调色板；最后一个世界不能删。
// 先删世界再删格子，世界删不掉时画布原样保留
func (s *WorldService) DeleteWorld(ctx context.Context, name string) error {
	w, err := s.FindWorld(ctx, name)
	if err != nil {
		return err
	}
	if err = s.store.DeleteWorld(ctx, w.ID); err != nil {
		if errors.Is(err, model.ErrLastWorld) {
			return fmt.Errorf("%w: %q", ErrLastWorld, w.Name)
		}
		return fmt.Errorf("%w: delete world: %v", ErrStorageUnavailable, err)
	}
	s.forgetPalette(w.ID)
	removed, err := s.cells.DeleteWorld(ctx, w.ID)
	if err != nil {
		// 世界已经不在了，残留格子不会再被读到
		s.log.Warn().Err(err).Str("world", w.Name).Uint64("world_id", w.ID).Msg("delete cells of removed world")
		return fmt.Errorf("%w: delete cells: %v", ErrStorageUnavailable, err)
	}
	s.log.Info().Str("world", w.Name).Int64("cells_removed", removed).Msg("world deleted")
	return nil
}

// WorldSeed 启动时的世界定义
type WorldSeed struct {
	Name    string
	Default bool
	Palette []string
}

// SeedWorlds 幂等：已存在的世界跳过
func (s *WorldService) SeedWorlds(ctx context.Context, seeds []WorldSeed) error {
	for _, seed := range seeds {
		_, err := s.CreateWorld(ctx, seed.Name, seed.Default, seed.Palette)
		if errors.Is(err, ErrWorldExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed world %q: %w", seed.Name, err)
		}
	}
	return nil
}
