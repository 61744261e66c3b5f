package main

import (
	"context"
	"errors"
	"github.com/jaam8/voting_registry/internal/api/bot"
	"github.com/jaam8/voting_registry/internal/api/rest"
	"github.com/jaam8/voting_registry/internal/config"
	"github.com/jaam8/voting_registry/internal/registry"
	"github.com/jaam8/voting_registry/internal/repository"
	srv "github.com/jaam8/voting_registry/internal/service"
	"github.com/jaam8/voting_registry/pkg/clock"
	"github.com/jaam8/voting_registry/pkg/logger"
	"github.com/jaam8/voting_registry/pkg/server"
	"github.com/jaam8/voting_registry/pkg/tarantool"
	"github.com/mattermost/mattermost-server/v6/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	logg "log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logg.Fatalf("failed to initalize logger: %s", err)
	}
	defer func() { _ = log.Sync() }()

	var store srv.Store
	switch cfg.Storage {
	case config.StorageTarantool:
		conn, err := tarantool.New(cfg.Tarantool)
		if err != nil {
			log.Fatal("failed to connect to Tarantool", zap.Error(err))
		}
		defer conn.CloseGraceful()
		if err = tarantool.Bootstrap(conn); err != nil {
			log.Fatal("failed to bootstrap Tarantool schema", zap.Error(err))
		}
		store = repository.New(conn, log)
	default:
		store = registry.New(log)
	}
	log.Info("storage ready", zap.String("storage", cfg.Storage))

	service := srv.New(store, clock.Real{}, cfg.MaxDuration, log)

	app := server.NewFiber(log, server.Options{RateLimit: cfg.RateLimit})
	rest.SetupRoutes(app, service, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("port", cfg.RestPort))
		return app.Listen(":" + cfg.RestPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		return app.Shutdown()
	})
	if cfg.Bot.Enabled {
		g.Go(func() error {
			return runBot(ctx, cfg.Bot, service, log)
		})
	}

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", zap.Error(err))
		return
	}
	log.Info("server graceful stopped")
}

func runBot(ctx context.Context, cfg config.Bot, service *srv.ElectionService, log *zap.Logger) error {
	client := model.NewAPIv4Client(cfg.MmURL)
	client.SetToken(cfg.Token)
	webSocketClient, err := model.NewWebSocketClient4(cfg.MmWsURL, cfg.Token)
	if err != nil {
		return err
	}
	defer webSocketClient.Close()

	user, _, err := client.GetUser("me", "")
	if err != nil {
		return err
	}
	botID := user.Id

	handler := bot.New(service, log, client, cfg.ChannelID)
	webSocketClient.Listen()
	log.Info("bot connected", zap.String("bot_id", botID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-webSocketClient.EventChannel:
			if !ok {
				return errors.New("mattermost websocket closed")
			}
			if event.EventType() == model.WebsocketEventPosted {
				log.Debug("new message", zap.String("event", event.EventType()))
				bot.HandleMessage(handler, event, botID)
			}
		}
	}
}
