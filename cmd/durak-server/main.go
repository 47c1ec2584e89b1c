// Command durak-server runs the card game backend: HTTP auth and
// matchmaking endpoints plus the WebSocket room transport.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ke2zo/durak6/internal/auth"
	"github.com/ke2zo/durak6/internal/cache"
	"github.com/ke2zo/durak6/internal/config"
	"github.com/ke2zo/durak6/internal/database"
	"github.com/ke2zo/durak6/internal/game"
	"github.com/ke2zo/durak6/internal/matchmaking"
	"github.com/ke2zo/durak6/internal/server"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("app", "durak-server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Fatal("redis")
	}
	defer rdb.Close()

	users, err := openUserStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("user store")
	}
	defer users.Close()

	rooms := game.NewManager(cache.NewRoomStore(rdb), log)
	mm := matchmaking.New(rooms, log)
	srv := server.New(cfg.BotToken, auth.NewSessions(cfg.AppSecret), users, rooms, mm, log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := rooms.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
		// Persist every live room before the process exits.
		rooms.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("bye")
}

func openUserStore(ctx context.Context, cfg *config.Config) (database.UserStore, error) {
	if cfg.DatabaseURL != "" {
		return database.NewPostgres(ctx, cfg.DatabaseURL)
	}
	return database.NewSQLite(cfg.SQLitePath)
}
