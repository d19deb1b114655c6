package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/pkg"
)

type Sender func(ctx context.Context, ev *model.PlacementEvent) error

// EventRelayer 落子事件异步投递，不阻塞落子路径
type EventRelayer struct {
	queue     chan model.PlacementEvent
	batchSize int
	interval  time.Duration
	maxRetry  int
	sender    Sender
	log       zerolog.Logger

	dropped atomic.Int64
	sent    atomic.Int64
}

func NewEventRelayer(sender Sender, buffer int, log zerolog.Logger) *EventRelayer {
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventRelayer{
		queue:     make(chan model.PlacementEvent, buffer),
		batchSize: 200,
		interval:  100 * time.Millisecond,
		maxRetry:  3,
		sender:    sender,
		log:       log.With().Str("component", "event_relayer").Logger(),
	}
}

// Publish 队列满时丢弃并计数
func (r *EventRelayer) Publish(ev model.PlacementEvent) bool {
	select {
	case r.queue <- ev:
		return true
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			r.log.Warn().Int64("dropped", n).Msg("placement event queue full")
		}
		return false
	}
}

func (r *EventRelayer) Dropped() int64 { return r.dropped.Load() }

func (r *EventRelayer) Sent() int64 { return r.sent.Load() }

// Run 启动器，ctx 结束时把队列里剩下的事件尽量发完
func (r *EventRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			for r.drainOnce(flushCtx) > 0 {
			}
			cancel()
			return
		case <-t.C:
			r.drainOnce(ctx)
		}
	}
}

// 一次最多投递 batchSize 条
func (r *EventRelayer) drainOnce(ctx context.Context) int {
	n := 0
	for n < r.batchSize {
		select {
		case ev := <-r.queue:
			n++
			r.deliver(ctx, &ev)
		default:
			return n
		}
	}
	return n
}

func (r *EventRelayer) deliver(ctx context.Context, ev *model.PlacementEvent) {
	var err error
	for attempt := 0; attempt < r.maxRetry; attempt++ {
		if err = r.sender(ctx, ev); err == nil {
			r.sent.Add(1)
			return
		}
		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	r.dropped.Add(1)
	r.log.Error().Err(err).Str("event_id", ev.ID).Msg("placement event delivery failed")
}

// KafkaSender 以世界 ID 作为分区键，保证同一世界内事件有序
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ev *model.PlacementEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return p.Send(ctx, pkg.MakeKeyFromID(ev.WorldID), payload)
	}
}

// LogSender 没有配置 Kafka 时使用
func LogSender(log zerolog.Logger) Sender {
	return func(ctx context.Context, ev *model.PlacementEvent) error {
		log.Debug().Str("event_id", ev.ID).Str("world", ev.World).
			Int64("x", ev.X).Int64("y", ev.Y).Str("color", ev.Color).
			Uint64("author_id", ev.AuthorID).Msg("placement event")
		return nil
	}
}
