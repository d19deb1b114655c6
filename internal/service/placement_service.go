package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"Pixel_Canvas/internal/model"
)

// PlacementState 落子流程的状态机
type PlacementState int

const (
	StateReceived PlacementState = iota
	StateAuthorized
	StateValidated
	StateReserved
	StateWritten
	StateCommitted
	StateRejected
	StateRolledBack
)

var stateNames = [...]string{
	StateReceived:   "received",
	StateAuthorized: "authorized",
	StateValidated:  "validated",
	StateReserved:   "reserved",
	StateWritten:    "written",
	StateCommitted:  "committed",
	StateRejected:   "rejected",
	StateRolledBack: "rolled_back",
}

func (s PlacementState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PlacementRequest 由传输层组装，UserID 来自已认证的身份
type PlacementRequest struct {
	World        string
	X            int64
	Y            int64
	PaletteIndex int
	UserID       uint64
}

type PlacementResult struct {
	World         *model.World
	X             int64
	Y             int64
	Color         model.PaletteColor
	Previous      *model.Cell
	PreviousColor *model.PaletteColor
	AuthorID      uint64
	PlacedAt      time.Time
	// Version 该坐标本次写入的序号
	Version uint64
	// ChargesLeft 为 -1 表示本次未扣 charge（管理员豁免）
	ChargesLeft int
}

type EventPublisher interface {
	Publish(ev model.PlacementEvent) bool
}

type PlacementOptions struct {
	// StorageTimeout 预留之后写画布的超时，超时即回滚
	StorageTimeout     time.Duration
	AdminBypassCharges bool
}

// PlacementService 把 ban 检查、世界/颜色解析、charge 预留、画布写入组合成一次原子落子
type PlacementService struct {
	gate    *ModerationService
	worlds  *WorldService
	charges *ChargeService
	canvas  *CanvasService
	events  EventPublisher
	opts    PlacementOptions
	now     Clock
	log     zerolog.Logger
}

func NewPlacementService(
	gate *ModerationService,
	worlds *WorldService,
	charges *ChargeService,
	canvas *CanvasService,
	events EventPublisher,
	opts PlacementOptions,
	now Clock,
	log zerolog.Logger,
) *PlacementService {
	if now == nil {
		now = time.Now
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 2 * time.Second
	}
	return &PlacementService{
		gate:    gate,
		worlds:  worlds,
		charges: charges,
		canvas:  canvas,
		events:  events,
		opts:    opts,
		now:     now,
		log:     log.With().Str("component", "placement").Logger(),
	}
}

// PeekCharges 对外暴露的只读 charge 查询
func (s *PlacementService) PeekCharges(ctx context.Context, userID uint64) (int, *time.Time, error) {
	return s.charges.Peek(ctx, userID, s.now())
}

// Place 便宜的检查先做，稀缺的 charge 最后花；预留之后必须走到提交或回滚
func (s *PlacementService) Place(ctx context.Context, req PlacementRequest) (*PlacementResult, error) {
	now := s.now()
	lg := s.log.With().Uint64("user_id", req.UserID).Str("world", req.World).
		Int64("x", req.X).Int64("y", req.Y).Int("palette_index", req.PaletteIndex).Logger()

	// Received -> Authorized
	admin, err := s.authorize(ctx, req.UserID, now)
	if err != nil {
		return nil, s.reject(lg, GateBan, err)
	}

	// Authorized -> Validated
	world, err := s.worlds.FindWorld(ctx, req.World)
	if err != nil {
		return nil, s.reject(lg, GateWorld, err)
	}
	color, err := s.worlds.ResolveColor(ctx, world, req.PaletteIndex)
	if err != nil {
		return nil, s.reject(lg, GateColor, err)
	}

	// 预留之前允许调用方取消，没有任何副作用
	if err = ctx.Err(); err != nil {
		return nil, s.reject(lg, GateCancel, err)
	}

	// Validated -> Reserved
	var res *Reservation
	chargesLeft := -1
	if !(admin && s.opts.AdminBypassCharges) {
		res, err = s.charges.Reserve(ctx, req.UserID, now)
		if err != nil {
			return nil, s.reject(lg, GateCharge, err)
		}
		chargesLeft = res.After.AvailableCharges
	}

	// Reserved -> Written
	result, err := s.write(ctx, world, req.X, req.Y, color, req.UserID, now)
	if err != nil {
		err = s.refund(ctx, res, 1, err)
		lg.Warn().Err(err).Str("state", StateRolledBack.String()).Msg("placement rolled back")
		return nil, &PlacementError{State: StateRolledBack, Gate: GateStorage, Err: err}
	}

	// Written -> Committed
	s.charges.Commit(res)
	result.ChargesLeft = chargesLeft
	s.emit(result)
	lg.Debug().Str("state", StateCommitted.String()).Int("charges_left", chargesLeft).Msg("pixel placed")
	return result, nil
}

// write 预留之后的写入：不再响应调用方取消，只受存储超时约束
func (s *PlacementService) write(ctx context.Context, world *model.World, x, y int64, color model.PaletteColor, author uint64, now time.Time) (*PlacementResult, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StorageTimeout)
	defer cancel()
	prev, err := s.canvas.Set(wctx, world.ID, x, y, color.PaletteIndex, author, now)
	if err != nil {
		return nil, err
	}
	result := &PlacementResult{
		World:    world,
		X:        x,
		Y:        y,
		Color:    color,
		Previous: prev,
		AuthorID: author,
		PlacedAt: now,
		Version:  model.NextVersion(prev),
	}
	if prev != nil {
		if pc, perr := s.worlds.ResolveColor(wctx, world, int(prev.PaletteIndex)); perr == nil {
			result.PreviousColor = &pc
		}
	}
	return result, nil
}

// refund 写入失败后退还 n 个 charge；写入超时后原 ctx 可能已失效，用新的超时
func (s *PlacementService) refund(ctx context.Context, res *Reservation, n int, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StorageTimeout)
	defer cancel()
	if err := s.charges.Refund(rctx, res, n); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// authorize 被 ban 的管理员照样放行
func (s *PlacementService) authorize(ctx context.Context, userID uint64, now time.Time) (bool, error) {
	banErr := s.gate.Check(ctx, userID, now)
	if banErr != nil && !errors.Is(banErr, ErrBanned) {
		return false, banErr
	}
	if banErr == nil && !s.opts.AdminBypassCharges {
		return false, nil
	}
	admin, err := s.gate.IsAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	if banErr != nil && !admin {
		return false, banErr
	}
	return admin, nil
}

func (s *PlacementService) reject(lg zerolog.Logger, gate Gate, err error) error {
	ev := lg.Debug()
	if errors.Is(err, ErrStorageUnavailable) {
		ev = lg.Warn()
	}
	ev.Err(err).Str("gate", string(gate)).Str("state", StateRejected.String()).Msg("placement rejected")
	return &PlacementError{State: StateRejected, Gate: gate, Err: err}
}

func (s *PlacementService) emit(r *PlacementResult) {
	if s.events == nil {
		return
	}
	ev := model.PlacementEvent{
		ID:           uuid.NewString(),
		WorldID:      r.World.ID,
		World:        r.World.Name,
		X:            r.X,
		Y:            r.Y,
		PaletteIndex: r.Color.PaletteIndex,
		Color:        r.Color.Hex,
		AuthorID:     r.AuthorID,
		PlacedAt:     r.PlacedAt,
		Version:      r.Version,
	}
	if r.Previous != nil {
		idx := r.Previous.PaletteIndex
		ev.PreviousIndex = &idx
		if r.PreviousColor != nil {
			ev.PreviousColor = r.PreviousColor.Hex
		}
	}
	s.events.Publish(ev)
}
