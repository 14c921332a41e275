package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/bundling"
	"github.com/mkthub/edi/internal/codec"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/notify"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/outmsg"
	"github.com/mkthub/edi/internal/retention"
	"github.com/mkthub/edi/internal/storage"
)

type Services struct {
	Messages   *outmsg.App
	Bundler    *bundling.App
	Schedulers []*outbox.Scheduler
	Sweeper    *retention.Sweeper
	Dispatcher *notify.Dispatcher
	Publisher  *notify.JetStreamPublisher
}

func setupServices(pool *pgxpool.Pool, config *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	// Codec registry is built up front so an unsupported (type, format)
	// combination fails at startup, before any message is produced.
	registry, err := codec.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build codec registry: %w", err)
	}
	format, err := config.documentFormat()
	if err != nil {
		return nil, err
	}
	for _, docType := range []models.DocumentType{
		models.DocNotifyEnergyResult,
		models.DocRejectRequestEnergyResult,
		models.DocNotifyWholesaleResult,
	} {
		if _, err := registry.Resolve(docType, format); err != nil {
			return nil, fmt.Errorf("configured format cannot render %s: %w", docType, err)
		}
	}

	// Database layer -> Repository layer -> App layer
	commandRepo := outbox.NewRepository(pool)
	messageRepo := outmsg.NewRepository(pool, commandRepo)
	bundleRepo := bundling.NewRepository(pool)
	retentionRepo := retention.NewRepository(pool)

	files := storage.NewDiskStore(config.Storage.Root)

	messagesApp := outmsg.NewApp(messageRepo, clock)

	sender := models.Actor{
		Number: config.Hub.SenderNumber,
		Role:   models.RoleMeteredDataAdministrator,
	}
	bundlerCfg := bundling.DefaultConfig(sender)
	bundlerCfg.Format = format
	bundlerApp := bundling.NewApp(bundleRepo, messageRepo, registry, files, clock, bundlerCfg)

	// Notification transport
	jsCfg := notify.DefaultJetStreamConfig()
	jsCfg.URL = config.Notify.URL
	publisher, err := notify.NewJetStreamPublisher(jsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification publisher: %w", err)
	}

	dispatcherCfg := notify.DefaultConfig()
	dispatcherCfg.PollInterval = config.notifyPollInterval()
	dispatcher := notify.NewDispatcher(messageRepo, publisher, clock, dispatcherCfg)

	// Command handlers, wired explicitly; a duplicate registration is a
	// startup failure.
	handlers := outbox.NewRegistry()
	if err := handlers.Register(models.CommandBundleMessages, bundling.NewBundleMessagesHandler(bundlerApp)); err != nil {
		return nil, err
	}
	if err := handlers.Register(models.CommandNotifyHub, notify.NewNotifyHubHandler(dispatcher)); err != nil {
		return nil, err
	}
	if err := handlers.Register(models.CommandCreateOutgoingMessages, outmsg.NewCreateMessagesHandler(messagesApp)); err != nil {
		return nil, err
	}

	schedulerCfg := outbox.Config{
		PollInterval: config.schedulerPollInterval(),
		BatchSize:    config.Scheduler.BatchSize,
	}
	schedulers := make([]*outbox.Scheduler, config.Scheduler.Workers)
	for i := range schedulers {
		schedulers[i] = outbox.NewScheduler(commandRepo, handlers, clock, schedulerCfg)
	}

	sweeper := retention.NewSweeper(retentionRepo, clock, retention.Config{
		Interval:      config.retentionInterval(),
		CommandMaxAge: config.commandMaxAge(),
	})

	return &Services{
		Messages:   messagesApp,
		Bundler:    bundlerApp,
		Schedulers: schedulers,
		Sweeper:    sweeper,
		Dispatcher: dispatcher,
		Publisher:  publisher,
	}, nil
}
