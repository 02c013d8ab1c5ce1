package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LiveChess/internal/admin"
	"github.com/park285/Cheese-LiveChess/internal/archive"
	appcfg "github.com/park285/Cheese-LiveChess/internal/config"
	"github.com/park285/Cheese-LiveChess/internal/events"
	"github.com/park285/Cheese-LiveChess/internal/msgcat"
	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/internal/room"
	"github.com/park285/Cheese-LiveChess/internal/rules"
	"github.com/park285/Cheese-LiveChess/internal/session"
	"github.com/park285/Cheese-LiveChess/internal/wsserver"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	lg := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		lg.Fatal("session_store_init_failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		lg.Fatal("messages_init_failed", zap.Error(err))
	}

	opts, closeHooks, err := roomOptions(ctx, cfg, msgs)
	if err != nil {
		lg.Fatal("room_hooks_init_failed", zap.Error(err))
	}
	defer closeHooks()

	coord := room.New(store, rules.NewChessOracle(), opts...)
	go coord.Run(ctx, cfg.RoomSweepInterval)

	ws := wsserver.New(coord, wsserver.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowRoom:      cfg.RoomAllowed,
		QueueSize:      cfg.OutboundQueue,
		PingInterval:   cfg.WSPingInterval,
		Messages:       msgs,
	})
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("ws_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("ws_listen_failed", zap.Error(err))
			stop()
		}
	}()

	var adminSrv interface{ Shutdown() error }
	if cfg.AdminAddr != "" {
		srv := admin.NewServer(admin.NewHandler(coord, ws.Connections))
		adminSrv = srv
		go func() {
			lg.Info("admin_listen", zap.String("addr", cfg.AdminAddr))
			if err := srv.ListenAndServe(cfg.AdminAddr); err != nil {
				lg.Error("admin_listen_failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	lg.Info("shutdown_begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	ws.CloseAll()
	if adminSrv != nil {
		_ = adminSrv.Shutdown()
	}
	coord.Wait()
	lg.Info("shutdown_complete")
}

// roomOptions builds coordinator options from cfg. The archive and the event
// publisher are enabled only when configured; closeAll releases both.
func roomOptions(ctx context.Context, cfg *appcfg.AppConfig, msgs *msgcat.Catalog) (opts []room.Option, closeAll func(), err error) {
	var closers []func() error
	closeAll = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	opts = []room.Option{room.WithMessages(msgs), room.WithIdleTTL(cfg.RoomIdleTTL)}
	if cfg.DatabaseURL != "" {
		repo, err := archive.Open(ctx, cfg.ArchiveDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, closeAll, fmt.Errorf("archive (%s): %w", cfg.ArchiveDriver, err)
		}
		closers = append(closers, repo.Close)
		opts = append(opts, room.WithArchiver(repo))
		obslog.L().Info("archive_enabled", zap.String("driver", cfg.ArchiveDriver))
	}
	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("events: %w", err)
		}
		closers = append(closers, pub.Close)
		opts = append(opts, room.WithPublisher(pub))
		obslog.L().Info("events_enabled", zap.String("queue", cfg.AMQPQueue))
	}
	return opts, closeAll, nil
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig) (session.Store, error) {
	if cfg.RedisURL == "" {
		obslog.L().Info("session_store", zap.String("backend", "memory"))
		return session.NewMemoryStore(), nil
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := session.NewRedisStore(rctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_store", zap.String("backend", "redis"), zap.Duration("ttl", cfg.SessionTTL))
	return st, nil
}
