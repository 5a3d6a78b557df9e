// Command taskd runs the periodic task scheduler as a daemon: it loads the
// YAML config, registers the configured tasks, and dispatches them until
// SIGINT or SIGTERM.
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
	"github.com/rs/zerolog"

	"taskd/internal/config"
	"taskd/internal/history"
	"taskd/internal/notify"
	"taskd/internal/scheduler"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./taskd.yaml", "path to config yaml")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var recorders []scheduler.RunRecorder

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		recorders = append(recorders, historyRecorder(store, log))
		log.Info().Str("path", cfg.History.Path).Msg("run history enabled")
	}
	if cfg.Notify.Enabled {
		n, err := notify.New(cfg.Notify.Token, cfg.Notify.ChatID, log)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		recorders = append(recorders, n)
		log.Info().Int64("chat_id", cfg.Notify.ChatID).Msg("failure notifications enabled")
	}

	mode, _ := scheduler.ParseMode(cfg.Scheduler.Mode)
	tick, _ := config.ParseDurationField("scheduler.check_interval", cfg.Scheduler.CheckInterval)
	stopTimeout, _ := config.ParseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout)

	sched := scheduler.New(scheduler.Config{
		Mode:          mode,
		CheckInterval: tick,
		StopTimeout:   stopTimeout,
		Recorder:      fanOut(recorders),
	}, log)

	reg := &registry{sched: sched, log: log}
	if err := reg.apply(cfg); err != nil {
		return err
	}

	go func() {
		_ = config.Watch(ctx, cfgPath, log, func(next *config.Config) {
			if err := reg.apply(next); err != nil {
				log.Warn().Err(err).Msg("reloaded task set rejected")
			}
		})
	}()

	notifyReady(ctx, log)

	log.Info().Stringer("mode", mode).Int("tasks", len(cfg.Tasks)).Msg("taskd starting")
	switch mode {
	case scheduler.Foreground:
		go func() {
			<-ctx.Done()
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			sched.Stop()
		}()
		if err := sched.Start(); err != nil {
			return err
		}
	default:
		if err := sched.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		sched.Stop()
	}

	log.Info().Msg("taskd stopped")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = consoleTimeFormat
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

// notifyReady tells systemd the daemon is up and feeds the watchdog when one
// is configured. Both are no-ops outside a systemd unit.
func notifyReady(ctx context.Context, log zerolog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn().Err(err).Msg("sd_notify failed")
		return
	}
	if !sent {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// historyRecorder persists each cycle to the run journal.
func historyRecorder(store *history.Store, log zerolog.Logger) scheduler.RunRecorder {
	return scheduler.RecorderFunc(func(r scheduler.RunRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e := history.Entry{
			At:       r.Started,
			TaskID:   r.TaskID,
			TaskName: r.TaskName,
			Outcome:  string(r.Outcome),
			Took:     r.Duration,
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		if err := store.Append(ctx, e); err != nil {
			log.Warn().Err(err).Str("task", r.TaskName).Msg("run history append failed")
		}
	})
}

// fanOut delivers each record to every recorder. Returns nil when there are
// none so the scheduler skips recording entirely.
func fanOut(recs []scheduler.RunRecorder) scheduler.RunRecorder {
	if len(recs) == 0 {
		return nil
	}
	if len(recs) == 1 {
		return recs[0]
	}
	return scheduler.RecorderFunc(func(r scheduler.RunRecord) {
		for _, rec := range recs {
			rec.Record(r)
		}
	})
}
