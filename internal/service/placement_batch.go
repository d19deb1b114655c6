package service

import (
	"context"
	"fmt"
	"time"

	"Pixel_Canvas/internal/model"
)

// MaxBatchPixels 单次批量落子的像素上限
const MaxBatchPixels = 1000

type PixelWrite struct {
	X            int64
	Y            int64
	PaletteIndex int
}

type BatchRequest struct {
	World  string
	UserID uint64
	Pixels []PixelWrite
}

type BatchResult struct {
	World    *model.World
	Placed   []PlacementResult
	AuthorID uint64
	PlacedAt time.Time
	// ChargesLeft 为 -1 表示未扣 charge（管理员豁免）
	ChargesLeft int
}

// PlaceBatch 全部像素校验通过后一次性预留 N 个 charge，再逐个写入。
// 画布只保证单坐标原子：第 k 个写入失败时前 k 个保留并照常广播，
// 没写成的 N-k 个 charge 退还，返回的结果里只有已写入的像素
func (s *PlacementService) PlaceBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	now := s.now()
	lg := s.log.With().Uint64("user_id", req.UserID).Str("world", req.World).
		Int("pixels", len(req.Pixels)).Logger()

	if len(req.Pixels) == 0 || len(req.Pixels) > MaxBatchPixels {
		return nil, s.reject(lg, GateBatch, fmt.Errorf("%w: got %d", ErrInvalidBatch, len(req.Pixels)))
	}

	admin, err := s.authorize(ctx, req.UserID, now)
	if err != nil {
		return nil, s.reject(lg, GateBan, err)
	}
	world, err := s.worlds.FindWorld(ctx, req.World)
	if err != nil {
		return nil, s.reject(lg, GateWorld, err)
	}
	colors := make([]model.PaletteColor, len(req.Pixels))
	for i, px := range req.Pixels {
		if colors[i], err = s.worlds.ResolveColor(ctx, world, px.PaletteIndex); err != nil {
			return nil, s.reject(lg, GateColor, fmt.Errorf("pixel %d: %w", i, err))
		}
	}
	if err = ctx.Err(); err != nil {
		return nil, s.reject(lg, GateCancel, err)
	}

	var res *Reservation
	chargesLeft := -1
	if !(admin && s.opts.AdminBypassCharges) {
		res, err = s.charges.ReserveN(ctx, req.UserID, len(req.Pixels), now)
		if err != nil {
			return nil, s.reject(lg, GateCharge, err)
		}
		chargesLeft = res.After.AvailableCharges
	}

	out := &BatchResult{
		World:       world,
		Placed:      make([]PlacementResult, 0, len(req.Pixels)),
		AuthorID:    req.UserID,
		PlacedAt:    now,
		ChargesLeft: chargesLeft,
	}
	for i, px := range req.Pixels {
		placed, werr := s.write(ctx, world, px.X, px.Y, colors[i], req.UserID, now)
		if werr != nil {
			unwritten := len(req.Pixels) - i
			werr = s.refund(ctx, res, unwritten, werr)
			if chargesLeft >= 0 {
				out.ChargesLeft = min(chargesLeft+unwritten, s.charges.Policy().Capacity)
			}
			lg.Warn().Err(werr).Int("written", i).Str("state", StateRolledBack.String()).Msg("batch placement stopped")
			perr := &PlacementError{State: StateRolledBack, Gate: GateStorage, Err: werr}
			if i == 0 {
				return nil, perr
			}
			return out, perr
		}
		placed.ChargesLeft = chargesLeft
		out.Placed = append(out.Placed, *placed)
		s.emit(placed)
	}

	s.charges.Commit(res)
	lg.Debug().Str("state", StateCommitted.String()).Int("charges_left", chargesLeft).Msg("batch placed")
	return out, nil
}
