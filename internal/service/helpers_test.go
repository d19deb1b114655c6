package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/repository/memory"
	"Pixel_Canvas/internal/service"
)

var (
	t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	testPalette = []string{
		"#FFFFFFFF", "#000000FF", "#FF0000FF", "#00FF00FF",
		"#0000FFFF", "#FFFF00FF", "#FF00FFFF", "#00FFFFFF",
	}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.PlacementEvent
}

func (p *recordingPublisher) Publish(ev model.PlacementEvent) bool {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return true
}

func (p *recordingPublisher) Events() []model.PlacementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.PlacementEvent(nil), p.events...)
}

type testEnv struct {
	clock       *fakeClock
	policy      model.ChargePolicy
	chargeStore *memory.ChargeRepository
	cellStore   *memory.CellRepository
	bans        *memory.BanRepository
	roles       *memory.RoleRepository
	worlds      *service.WorldService
	charges     *service.ChargeService
	moderation  *service.ModerationService
	canvas      *service.CanvasService
	placement   *service.PlacementService
	events      *recordingPublisher
	main        *model.World
}

type envOption func(*envConfig)

type envConfig struct {
	policy model.ChargePolicy
	opts   service.PlacementOptions
	cells  func(inner *memory.CellRepository) service.CellStore
}

func withPolicy(p model.ChargePolicy) envOption {
	return func(c *envConfig) { c.policy = p }
}

func withOptions(o service.PlacementOptions) envOption {
	return func(c *envConfig) { c.opts = o }
}

func withCells(wrap func(inner *memory.CellRepository) service.CellStore) envOption {
	return func(c *envConfig) { c.cells = wrap }
}

// newTestEnv 内存存储 + 固定时钟；默认世界 main 带 8 色调色板
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{
		policy: model.ChargePolicy{Capacity: 30, RegenInterval: time.Minute, InitialCharges: 30},
		opts:   service.PlacementOptions{StorageTimeout: time.Second},
	}
	for _, o := range opts {
		o(&cfg)
	}

	log := zerolog.Nop()
	e := &testEnv{
		clock:       &fakeClock{now: t0},
		policy:      cfg.policy,
		chargeStore: memory.NewChargeRepository(),
		cellStore:   memory.NewCellRepository(),
		bans:        memory.NewBanRepository(),
		roles:       memory.NewRoleRepository(),
		events:      &recordingPublisher{},
	}
	var cells service.CellStore = e.cellStore
	if cfg.cells != nil {
		cells = cfg.cells(e.cellStore)
	}

	e.worlds = service.NewWorldService(memory.NewWorldRepository(), cells, log)
	e.charges = service.NewChargeService(e.chargeStore, cfg.policy, log)
	e.moderation = service.NewModerationService(e.bans, e.roles, log)
	e.canvas = service.NewCanvasService(cells, e.worlds)
	e.placement = service.NewPlacementService(e.moderation, e.worlds, e.charges, e.canvas, e.events,
		cfg.opts, e.clock.Now, log)

	w, err := e.worlds.CreateWorld(context.Background(), "main", true, testPalette)
	require.NoError(t, err)
	e.main = w
	return e
}

func (e *testEnv) place(ctx context.Context, user uint64, world string, x, y int64, index int) (*service.PlacementResult, error) {
	return e.placement.Place(ctx, service.PlacementRequest{
		World:        world,
		X:            x,
		Y:            y,
		PaletteIndex: index,
		UserID:       user,
	})
}

func (e *testEnv) available(t *testing.T, user uint64) int {
	t.Helper()
	n, _, err := e.charges.Peek(context.Background(), user, e.clock.Now())
	require.NoError(t, err)
	return n
}
