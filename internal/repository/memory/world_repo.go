package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"Pixel_Canvas/internal/model"
)

// WorldRepository 单机模式下的世界注册表
type WorldRepository struct {
	mu       sync.RWMutex
	nextID   uint64
	worlds   map[uint64]*model.World
	palettes map[uint64][]model.PaletteColor
}

func NewWorldRepository() *WorldRepository {
	return &WorldRepository{
		worlds:   make(map[uint64]*model.World),
		palettes: make(map[uint64][]model.PaletteColor),
	}
}

func (r *WorldRepository) CreateWorld(ctx context.Context, w *model.World, palette []model.PaletteColor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.worlds {
		if existing.Name == w.Name {
			return model.ErrDuplicateWorld
		}
	}
	if len(r.worlds) == 0 {
		w.IsDefault = true
	}
	if w.IsDefault {
		for _, existing := range r.worlds {
			existing.IsDefault = false
		}
	}
	r.nextID++
	now := time.Now()
	w.ID = r.nextID
	w.CreatedAt = now
	w.UpdatedAt = now
	stored := *w
	r.worlds[w.ID] = &stored

	colors := make([]model.PaletteColor, len(palette))
	for i, c := range palette {
		c.ID = uint64(i + 1)
		c.WorldID = w.ID
		c.CreatedAt = now
		colors[i] = c
	}
	r.palettes[w.ID] = colors
	return nil
}

func (r *WorldRepository) FindByName(ctx context.Context, name string) (*model.World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.worlds {
		if w.Name == name {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *WorldRepository) FindByID(ctx context.Context, id uint64) (*model.World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *WorldRepository) FindDefault(ctx context.Context) (*model.World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.worlds {
		if w.IsDefault {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

// List 按 ID 升序
func (r *WorldRepository) List(ctx context.Context) ([]model.World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.World, 0, len(r.worlds))
	for _, w := range r.worlds {
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b model.World) int { return cmpUint64(a.ID, b.ID) })
	return out, nil
}

func (r *WorldRepository) ListPalette(ctx context.Context, worldID uint64) ([]model.PaletteColor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.palettes[worldID]), nil
}

func (r *WorldRepository) DeleteWorld(ctx context.Context, worldID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.worlds[worldID]
	if !ok {
		return nil
	}
	if len(r.worlds) == 1 {
		return model.ErrLastWorld
	}
	delete(r.worlds, worldID)
	delete(r.palettes, worldID)
	if !w.IsDefault {
		return nil
	}
	// ID 最小的就是最早创建的
	var oldest *model.World
	for _, rest := range r.worlds {
		if oldest == nil || rest.ID < oldest.ID {
			oldest = rest
		}
	}
	if oldest != nil {
		oldest.IsDefault = true
		oldest.UpdatedAt = time.Now()
	}
	return nil
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
