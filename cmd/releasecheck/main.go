package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vascofialho-nl/releasecheck/clock"
	"github.com/vascofialho-nl/releasecheck/config"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/manifest"
	"github.com/vascofialho-nl/releasecheck/notify"
	"github.com/vascofialho-nl/releasecheck/poller"
	"github.com/vascofialho-nl/releasecheck/registry"
	"github.com/vascofialho-nl/releasecheck/server"
	"github.com/vascofialho-nl/releasecheck/store"
	"github.com/vascofialho-nl/releasecheck/updater"
)

var defaultConfigFiles = []string{"config/config.yaml", "config/secrets.yaml"}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func build(files []string) (runParams, error) {
	cfg, err := config.LoadWithDefaults(files...)
	if err != nil {
		return runParams{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return runParams{}, err
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return runParams{}, fmt.Errorf("initialize logger: %w", err)
	}

	ntpClock, clk := clock.FromConfig(cfg.Clock, appLogger)

	st := store.NewSQLiteStore(store.Params{
		Config: store.Config{Path: cfg.Cache.Path, FlushDebounce: cfg.Cache.FlushDebounce},
		Logger: appLogger,
		Clock:  clk,
	})

	identity := cfg.Release.Identity()
	reg := registry.New(registry.Params{
		Config:     cfg.Release.Registry(),
		Owner:      identity.Owner,
		Repository: identity.Repository,
		UserAgent:  registry.UserAgent(cfg.Host.Name, cfg.Host.Version),
	})

	checker := updater.New(updater.Params{
		Identity:        identity,
		Registry:        reg,
		Manifest:        manifest.New(manifest.Params{Config: cfg.Manifest, PluginID: identity.PluginID()}),
		Store:           st,
		Clock:           clk,
		Logger:          appLogger,
		AvailabilityTTL: cfg.Cache.AvailabilityTTL,
		ReleaseTTL:      cfg.Cache.ReleaseTTL,
		Author:          cfg.Release.Author,
		Description:     cfg.Release.Description,
	})

	var (
		discordClient *notify.Discord
		announcer     notify.Notifier = notify.NewLogNotifier(appLogger)
	)
	if cfg.Discord.Enabled() {
		discordClient, err = notify.NewDiscord(notify.Params{
			Config:    cfg.Discord,
			Slug:      identity.Repository,
			Describer: checker,
			Logger:    appLogger,
		})
		if err != nil {
			return runParams{}, err
		}
		announcer = discordClient
	}

	updatePoller := poller.New(poller.Params{
		Config:   cfg.Poller,
		Checker:  checker,
		PluginID: identity.PluginID(),
		Store:    st,
		Notifier: notify.NewDeduplicator(announcer, st),
		Clock:    clk,
		Logger:   appLogger,
	})

	return runParams{
		Config:  cfg,
		Logger:  appLogger,
		NTP:     ntpClock,
		Store:   st,
		Checker: checker,
		Discord: discordClient,
		Poller:  updatePoller,
		Server: server.New(server.Params{
			Config:    cfg.Server,
			Cycle:     updatePoller,
			Describer: checker,
			Logger:    appLogger,
		}),
	}, nil
}

type runParams struct {
	Config  *config.AppConfig
	Logger  logger.Logger
	NTP     *clock.NTPClock
	Store   *store.SQLiteStore
	Checker *updater.DefaultChecker
	Discord *notify.Discord
	Poller  *poller.DefaultPoller
	Server  *server.Server
}

// open prepares the transient store shared by every command.
func (p runParams) open(ctx context.Context) error {
	if p.NTP != nil {
		if err := p.NTP.Start(ctx); err != nil {
			p.Logger.WarnW("start ntp clock", "error", err)
		}
	}
	if err := p.Store.Open(ctx); err != nil {
		return fmt.Errorf("open transient store: %w", err)
	}
	if err := p.Store.RestoreFromDisk(ctx, p.Config.Cache.Path); err != nil {
		p.Logger.WarnW("restore from disk", "error", err)
	}
	return nil
}

func (p runParams) close() error {
	defer p.Logger.Sync()
	if p.NTP != nil {
		p.NTP.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.Store.Shutdown(ctx)
}

// serve starts all components and runs until shutdown.
func serve(ctx context.Context, p runParams) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.open(ctx); err != nil {
		return err
	}

	if p.Discord != nil {
		if err := p.Discord.Start(ctx); err != nil {
			return fmt.Errorf("start discord client: %w", err)
		}
		defer p.Discord.Stop()
	}

	if err := p.Poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	if err := p.Server.Start(ctx); err != nil {
		return fmt.Errorf("start http adapter: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := p.Server.Stop(shutdownCtx); err != nil {
		p.Logger.ErrorW("stop http adapter", "error", err)
	}
	p.Poller.Stop()
	cancel()

	return p.close()
}
