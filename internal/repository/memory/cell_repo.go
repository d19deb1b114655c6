package memory

import (
	"context"
	"encoding/binary"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"Pixel_Canvas/internal/model"
)

const cellShardCount = 64

type cellKey struct {
	worldID uint64
	x, y    int64
}

type cellShard struct {
	mu    sync.Mutex
	cells map[cellKey]model.Cell
}

// CellRepository 按坐标哈希分片加锁，不同分片的写互不阻塞，没有整个世界级别的锁
type CellRepository struct {
	shards [cellShardCount]cellShard
}

func NewCellRepository() *CellRepository {
	r := &CellRepository{}
	for i := range r.shards {
		r.shards[i].cells = make(map[cellKey]model.Cell)
	}
	return r
}

func (r *CellRepository) shard(k cellKey) *cellShard {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], k.worldID)
	binary.LittleEndian.PutUint64(buf[8:], uint64(k.x))
	binary.LittleEndian.PutUint64(buf[16:], uint64(k.y))
	return &r.shards[xxhash.Sum64(buf[:])%cellShardCount]
}

func (r *CellRepository) Get(ctx context.Context, worldID uint64, x, y int64) (*model.Cell, error) {
	k := cellKey{worldID, x, y}
	sh := r.shard(k)
	sh.mu.Lock()
	c, ok := sh.cells[k]
	sh.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Swap 同一坐标的写在分片锁内串行，返回的旧值就是上一次串行写入的结果
func (r *CellRepository) Swap(ctx context.Context, cell model.Cell) (*model.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := cellKey{cell.WorldID, cell.X, cell.Y}
	sh := r.shard(k)
	sh.mu.Lock()
	prev, ok := sh.cells[k]
	var old *model.Cell
	if ok {
		old = &prev
	}
	cell.Version = model.NextVersion(old)
	sh.cells[k] = cell
	sh.mu.Unlock()
	return old, nil
}

// Snapshot 逐个分片遍历，结果按 (y, x) 排序
func (r *CellRepository) Snapshot(ctx context.Context, worldID uint64, rect model.Rect) ([]model.Cell, error) {
	var out []model.Cell
	for i := range r.shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sh := &r.shards[i]
		sh.mu.Lock()
		for k, c := range sh.cells {
			if k.worldID == worldID && rect.Contains(k.x, k.y) {
				out = append(out, c)
			}
		}
		sh.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b model.Cell) int {
		if a.Y != b.Y {
			return cmpInt64(a.Y, b.Y)
		}
		return cmpInt64(a.X, b.X)
	})
	return out, nil
}

func (r *CellRepository) DeleteWorld(ctx context.Context, worldID uint64) (int64, error) {
	var n int64
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for k := range sh.cells {
			if k.worldID == worldID {
				delete(sh.cells, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
