package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/repository/memory"
	"Pixel_Canvas/internal/service"
)

// flakyCells 前 ok 次写入成功，之后全部失败
type flakyCells struct {
	*memory.CellRepository
	ok     int32
	writes atomic.Int32
}

func (f *flakyCells) Swap(ctx context.Context, cell model.Cell) (*model.Cell, error) {
	if f.writes.Add(1) > f.ok {
		return nil, errors.New("replica lost")
	}
	return f.CellRepository.Swap(ctx, cell)
}

func (e *testEnv) placeBatch(ctx context.Context, user uint64, world string, pixels ...service.PixelWrite) (*service.BatchResult, error) {
	return e.placement.PlaceBatch(ctx, service.BatchRequest{World: world, UserID: user, Pixels: pixels})
}

func TestPlaceBatch_SpendsOnePerPixel(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	res, err := e.placeBatch(ctx, 1, "main",
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 1, Y: 0, PaletteIndex: 2},
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 3},
	)
	require.NoError(t, err)
	require.Len(t, res.Placed, 3)
	assert.Equal(t, 27, res.ChargesLeft)
	assert.Equal(t, 27, e.available(t, 1))

	// 同一批里重复的坐标按顺序覆盖
	last := res.Placed[2]
	require.NotNil(t, last.Previous)
	assert.Equal(t, uint8(1), last.Previous.PaletteIndex)
	assert.Equal(t, uint64(2), last.Version)

	px, err := e.canvas.Get(ctx, "main", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, px)
	assert.Equal(t, uint8(3), px.PaletteIndex)

	events := e.events.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "#FF0000FF", events[1].Color)
}

func TestPlaceBatch_RejectionsSpendNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	t.Run("UnknownColorAnywhere", func(t *testing.T) {
		_, err := e.placeBatch(ctx, 1, "main",
			service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
			service.PixelWrite{X: 1, Y: 0, PaletteIndex: 8},
		)
		assert.ErrorIs(t, err, service.ErrUnknownColor)
		requirePlacementError(t, err, service.StateRejected, service.GateColor)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := e.placeBatch(ctx, 1, "main")
		assert.ErrorIs(t, err, service.ErrInvalidBatch)
		requirePlacementError(t, err, service.StateRejected, service.GateBatch)
	})

	t.Run("TooLarge", func(t *testing.T) {
		pixels := make([]service.PixelWrite, service.MaxBatchPixels+1)
		_, err := e.placeBatch(ctx, 1, "main", pixels...)
		assert.ErrorIs(t, err, service.ErrInvalidBatch)
	})

	t.Run("UnknownWorld", func(t *testing.T) {
		_, err := e.placeBatch(ctx, 1, "nowhere", service.PixelWrite{PaletteIndex: 1})
		assert.ErrorIs(t, err, service.ErrWorldNotFound)
	})

	_, found, err := e.chargeStore.Load(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
	px, err := e.canvas.Get(ctx, "main", 0, 0)
	require.NoError(t, err)
	assert.Nil(t, px)
	assert.Empty(t, e.events.Events())
}

func TestPlaceBatch_NotEnoughChargesForAll(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.chargeStore.Put(model.ChargeState{UserID: 1, AvailableCharges: 2, ChargesUpdatedAt: t0})

	_, err := e.placeBatch(ctx, 1, "main",
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 1, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 2, Y: 0, PaletteIndex: 1},
	)
	assert.ErrorIs(t, err, service.ErrInsufficientCharge)
	requirePlacementError(t, err, service.StateRejected, service.GateCharge)
	assert.Equal(t, 2, e.available(t, 1))

	px, err := e.canvas.Get(ctx, "main", 0, 0)
	require.NoError(t, err)
	assert.Nil(t, px, "no pixel is written when the batch cannot be paid for")
}

func TestPlaceBatch_WriteFailureRefundsUnwritten(t *testing.T) {
	e := newTestEnv(t, withCells(func(inner *memory.CellRepository) service.CellStore {
		return &flakyCells{CellRepository: inner, ok: 2}
	}))
	ctx := context.Background()

	res, err := e.placeBatch(ctx, 1, "main",
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 1, Y: 0, PaletteIndex: 2},
		service.PixelWrite{X: 2, Y: 0, PaletteIndex: 3},
		service.PixelWrite{X: 3, Y: 0, PaletteIndex: 4},
	)
	assert.ErrorIs(t, err, service.ErrStorageUnavailable)
	pe := requirePlacementError(t, err, service.StateRolledBack, service.GateStorage)
	assert.True(t, pe.Retryable())

	require.NotNil(t, res)
	require.Len(t, res.Placed, 2)
	assert.Equal(t, 28, res.ChargesLeft)
	assert.Equal(t, 28, e.available(t, 1), "only the two written pixels are paid for")
	assert.Len(t, e.events.Events(), 2)

	px, err := e.canvas.Get(ctx, "main", 1, 0)
	require.NoError(t, err)
	assert.NotNil(t, px)
	px, err = e.canvas.Get(ctx, "main", 2, 0)
	require.NoError(t, err)
	assert.Nil(t, px)
}

func TestPlaceBatch_FirstWriteFailureRestoresState(t *testing.T) {
	e := newTestEnv(t, withCells(func(inner *memory.CellRepository) service.CellStore {
		return failingCells{inner}
	}))
	ctx := context.Background()
	e.chargeStore.Put(model.ChargeState{UserID: 1, AvailableCharges: 6, ChargesUpdatedAt: t0.Add(-90 * time.Second)})
	before, _, err := e.chargeStore.Load(ctx, 1)
	require.NoError(t, err)

	res, err := e.placeBatch(ctx, 1, "main",
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 1, Y: 0, PaletteIndex: 1},
	)
	assert.Nil(t, res)
	requirePlacementError(t, err, service.StateRolledBack, service.GateStorage)

	after, _, err := e.chargeStore.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
	assert.Empty(t, e.events.Events())
}

func TestPlaceBatch_AdminBypass(t *testing.T) {
	e := newTestEnv(t, withOptions(service.PlacementOptions{StorageTimeout: time.Second, AdminBypassCharges: true}))
	ctx := context.Background()
	require.NoError(t, e.roles.Assign(ctx, 9, model.RoleAdmin, 0))

	res, err := e.placeBatch(ctx, 9, "main",
		service.PixelWrite{X: 0, Y: 0, PaletteIndex: 1},
		service.PixelWrite{X: 1, Y: 0, PaletteIndex: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, -1, res.ChargesLeft)
	assert.Equal(t, 30, e.available(t, 9))
}
