package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"Pixel_Canvas/internal/config"
	"Pixel_Canvas/internal/model"
	"Pixel_Canvas/internal/pkg"
	"Pixel_Canvas/internal/repository/memory"
	"Pixel_Canvas/internal/repository/mysql"
	"Pixel_Canvas/internal/repository/redis"
	"Pixel_Canvas/internal/router"
	"Pixel_Canvas/internal/service"
)

type stores struct {
	worlds  service.WorldStore
	cells   service.CellStore
	charges service.ChargeStore
	bans    service.BanStore
	roles   service.RoleStore
}

func main() {
	issueToken := flag.Uint64("issue-token", 0, "print an access token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", pkg.AccessTTL, "ttl of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := pkg.NewLogger(cfg.LogLevel, cfg.LogPretty)
	pkg.SetAccessSecret(cfg.JWTSecret)

	if *issueToken != 0 {
		tok, err := pkg.GenerateAccess(*issueToken, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	policy := cfg.ChargePolicy()
	st, cleanup, err := openStores(ctx, cfg, policy, log)
	if err != nil {
		return err
	}
	defer cleanup()

	worlds := service.NewWorldService(st.worlds, st.cells, log)
	seeds, err := config.LoadWorlds(cfg.WorldsFile)
	if err != nil {
		return fmt.Errorf("load worlds: %w", err)
	}
	if err = worlds.SeedWorlds(ctx, seeds); err != nil {
		return err
	}
	// 没有默认世界无法处理不带世界名的请求，启动即失败
	def, err := worlds.DefaultWorld(ctx)
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	log.Info().Str("world", def.Name).Msg("default world ready")

	moderation := service.NewModerationService(st.bans, st.roles, log)
	if cfg.AdminUserID != 0 {
		if err = moderation.AssignRole(ctx, cfg.AdminUserID, model.RoleAdmin, 0); err != nil {
			return err
		}
	}

	sender := service.LogSender(log)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return err
		}
		defer producer.Close()
		sender = service.KafkaSender(producer)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", producer.Topic()).Msg("placement events go to kafka")
	}
	relayer := service.NewEventRelayer(sender, cfg.EventBuffer, log)

	charges := service.NewChargeService(st.charges, policy, log)
	canvas := service.NewCanvasService(st.cells, worlds)
	placement := service.NewPlacementService(moderation, worlds, charges, canvas, relayer,
		service.PlacementOptions{
			StorageTimeout:     cfg.StorageTimeout,
			AdminBypassCharges: cfg.AdminBypassCharges,
		}, time.Now, log)

	gin.SetMode(gin.ReleaseMode)
	r := router.InitRouter(router.Services{
		Worlds:     worlds,
		Canvas:     canvas,
		Placement:  placement,
		Moderation: moderation,
		Clock:      time.Now,
	}, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		relayer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).
			Int("charge_capacity", policy.Capacity).
			Dur("charge_regen_interval", policy.RegenInterval).
			Str("storage", cfg.Storage).Str("charge_backend", cfg.ChargeBackend).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	log.Info().Int64("events_sent", relayer.Sent()).Int64("events_dropped", relayer.Dropped()).Msg("shutdown complete")
	return err
}

func openStores(ctx context.Context, cfg *config.Config, policy model.ChargePolicy, log zerolog.Logger) (*stores, func(), error) {
	st := &stores{}
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("close store")
			}
		}
	}

	switch cfg.Storage {
	case "sql":
		if err := mysql.InitDB(cfg.DBDriver, cfg.DBDSN); err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		closers = append(closers, mysql.Close)
		// 自动建表（开发阶段 OK）
		if err := mysql.AutoMigrate(mysql.DB); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		st.worlds = &mysql.WorldRepository{DB: mysql.DB}
		st.cells = &mysql.CellRepository{DB: mysql.DB}
		st.bans = &mysql.BanRepository{DB: mysql.DB}
		st.roles = &mysql.RoleRepository{DB: mysql.DB}
	default:
		st.worlds = memory.NewWorldRepository()
		st.cells = memory.NewCellRepository()
		st.bans = memory.NewBanRepository()
		st.roles = memory.NewRoleRepository()
	}

	switch cfg.ChargeBackend {
	case "redis":
		// 连接redis
		if err := redis.Init(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		}); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, redis.Close)
		st.charges = redis.NewChargeRepository(redis.Client, policy)
	case "sql":
		st.charges = &mysql.ChargeRepository{DB: mysql.DB}
	default:
		st.charges = memory.NewChargeRepository()
	}
	return st, cleanup, nil
}
