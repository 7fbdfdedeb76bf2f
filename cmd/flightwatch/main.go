package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"flightwatch/internal/config"
	"flightwatch/internal/feed"
	"flightwatch/internal/notify"
	"flightwatch/internal/pipeline"
	"flightwatch/internal/runtime/supervisor"
	"flightwatch/internal/storage"
	"flightwatch/internal/transport/telegram"
	"flightwatch/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	durs, err := cfg.Durations()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: durs.StorageBusyTimeout}, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	bot, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		AdminUserIDs: cfg.Telegram.AdminUserIDs,
		PollTimeout:  durs.TelegramPollTimeout,
	}, store, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: durs.DispatchSendTimeout,
	}, bot, log)

	pipe := pipeline.New(pipeline.Config{DedupCapacity: cfg.Dispatch.DedupCapacity}, store, dispatcher, log)
	addAdapters(pipe, cfg, durs, log)

	sup := supervisor.New(ctx, supervisor.WithLogger(log), supervisor.WithCancelOnError(true))
	sup.Go("pipeline", pipe.Run)
	sup.Go("config.watch", func(c context.Context) error { return mgr.Watch(c) })

	// Hot-apply logging changes without restart; everything else picks up
	// naturally (tenants per pass) or requires a restart (upstream wiring).
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	sup.Go("config.apply", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				logSvc.Apply(logx.Config{
					Level:   next.Logging.Level,
					Console: next.Logging.Console,
					File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
				})
			}
		}
	})

	maint, err := startMaintenance(cfg.Storage.MaintenanceCron, durs.AuditRetention, store, log)
	if err != nil {
		return err
	}
	defer maint.Stop()

	bot.Start(ctx)
	log.Info("flightwatch started", logx.String("config", cfgPath))
	notifySystemd(sup, log)

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = bot.Stop(stopCtx)
	return ignoreCanceled(sup.Wait(stopCtx))
}

func addAdapters(pipe *pipeline.Pipeline, cfg *config.Config, durs config.Durations, log logx.Logger) {
	if cfg.Upstream.Poll.Enabled {
		pipe.AddAdapter(feed.NewPollAdapter(feed.PollConfig{
			Feeds:          cfg.Upstream.Poll.Feeds,
			Interval:       durs.PollInterval,
			RetryMax:       cfg.Upstream.Poll.RetryMax,
			RetryBase:      durs.PollRetryBase,
			RequestTimeout: durs.PollRequestTimeout,
		}, pipe.Differ(), log))
	}
	if cfg.Upstream.Stream.Enabled {
		pipe.AddAdapter(feed.NewStreamAdapter(feed.StreamConfig{
			URL:           cfg.Upstream.Stream.URL,
			PingInterval:  durs.StreamPingInterval,
			PongTimeout:   durs.StreamPongTimeout,
			ReconnectWait: durs.StreamReconnectWait,
		}, log))
	}
}

// startMaintenance schedules the nightly audit prune.
func startMaintenance(spec string, retention time.Duration, store storage.Store, log logx.Logger) (*cron.Cron, error) {
	if spec == "" {
		spec = "0 4 * * *"
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		pctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := store.PruneAudit(pctx, retention)
		if err != nil {
			log.Warn("audit prune failed", logx.Err(err))
			return
		}
		log.Info("audit pruned", logx.Int64("rows", n))
	})
	if err != nil {
		return nil, fmt.Errorf("storage.maintenance_cron: %w", err)
	}
	c.Start()
	return c, nil
}

// notifySystemd reports readiness and services the watchdog when running
// under systemd; outside systemd both are no-ops.
func notifySystemd(sup *supervisor.Supervisor, log logx.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go("systemd.watchdog", func(c context.Context) error {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return nil
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func ignoreCanceled(err error) error {
	if err == nil || err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}
