package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"Pixel_Canvas/internal/model"
)

type BanRepository struct {
	mu     sync.RWMutex
	nextID uint64
	bans   map[uint64]model.Ban
}

func NewBanRepository() *BanRepository {
	return &BanRepository{bans: make(map[uint64]model.Ban)}
}

func (r *BanRepository) FindByUser(ctx context.Context, userID uint64) (*model.Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bans[userID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *BanRepository) Upsert(ctx context.Context, ban *model.Ban) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.bans[ban.UserID]; ok {
		ban.ID = old.ID
		ban.CreatedAt = old.CreatedAt
	} else {
		r.nextID++
		ban.ID = r.nextID
		ban.CreatedAt = time.Now()
	}
	r.bans[ban.UserID] = *ban
	return nil
}

func (r *BanRepository) Delete(ctx context.Context, userID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bans[userID]
	delete(r.bans, userID)
	return ok, nil
}

func (r *BanRepository) ListActive(ctx context.Context, now time.Time) ([]model.Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Ban
	for _, b := range r.bans {
		if b.ActiveAt(now) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Ban) int { return a.BannedAt.Compare(b.BannedAt) })
	return out, nil
}

type RoleRepository struct {
	mu    sync.RWMutex
	roles map[uint64]map[string]uint64
}

func NewRoleRepository() *RoleRepository {
	return &RoleRepository{roles: make(map[uint64]map[string]uint64)}
}

func (r *RoleRepository) HasRole(ctx context.Context, userID uint64, role string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[userID][role]
	return ok, nil
}

// Assign 重复分配不报错
func (r *RoleRepository) Assign(ctx context.Context, userID uint64, role string, assignedBy uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.roles[userID]
	if !ok {
		m = make(map[string]uint64)
		r.roles[userID] = m
	}
	if _, ok = m[role]; !ok {
		m[role] = assignedBy
	}
	return nil
}

func (r *RoleRepository) RolesOf(ctx context.Context, userID uint64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.roles[userID]))
	for name := range r.roles[userID] {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}
