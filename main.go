package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/groupwarden/gwbot/internal/bot"
	"github.com/groupwarden/gwbot/internal/config"
	"github.com/groupwarden/gwbot/internal/db/sqlite"
	"github.com/groupwarden/gwbot/internal/handlers/admin"
	"github.com/groupwarden/gwbot/internal/handlers/chat"
	"github.com/groupwarden/gwbot/internal/infra"
	"github.com/groupwarden/gwbot/internal/infrastructure/telegram"
	"github.com/groupwarden/gwbot/internal/lifecycle"
	"github.com/groupwarden/gwbot/internal/moderation"
	"github.com/groupwarden/gwbot/internal/observability"
)

const (
	maxTrackedSenders = 4096
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.GwFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := observability.Init(cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatalln("bot stopped")
	}
	log.Infoln("bye")
}

func run(ctx context.Context, cfg config.Config) error {
	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return errors.WithMessage(err, "cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "gwbot.db")
	if err != nil {
		return errors.WithMessage(err, "cant initialize db")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close db")
		}
	}()

	service := bot.NewService(botAPI, dbClient, cfg)

	window, err := moderation.NewRecentMessages(maxTrackedSenders)
	if err != nil {
		return errors.WithMessage(err, "cant create message window")
	}
	operations := telegram.NewOperations(botAPI)
	engine := moderation.NewEngine(window, dbClient)
	coordinator := moderation.NewCoordinator(dbClient, operations, cfg.Moderation)
	sweeper := moderation.NewSweeper(dbClient, operations, cfg.Moderation.SweepInterval, true)

	runtime := lifecycle.NewRuntime(sweeper)
	if err := runtime.Start(ctx); err != nil {
		return errors.WithMessage(err, "cant start components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop components")
		}
	}()

	bot.RegisterUpdateHandler("admin", admin.NewAdmin(service, coordinator))
	bot.RegisterUpdateHandler("moderator", chat.NewModerator(service, engine, coordinator))
	updateProcessor := bot.NewUpdateProcessor(service)

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case err := <-errorChan:
				return errors.WithMessage(err, "bot api get updates error")
			case update := <-updateChan:
				// A panicking handler must not take down the update loop.
				infra.GoRecoverable(1, "process_update", func() {
					if err := updateProcessor.Process(gctx, &update); err != nil {
						log.WithError(err).Errorln("cant process update")
					}
				})
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		select {
		case <-infra.MonitorExecutable(gctx):
			return errors.New("executable file was modified")
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	return g.Wait()
}
