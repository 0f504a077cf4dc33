package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"timeblocker/internal/bot"
	"timeblocker/internal/config"
	"timeblocker/internal/httpapi"
	"timeblocker/internal/logger"
	"timeblocker/internal/notify"
	"timeblocker/internal/repository"
	"timeblocker/internal/service"
)

const shutdownTimeout = 15 * time.Second

// app carries what every subcommand needs.
type app struct {
	cfg    config.Config
	logger *log.Logger
	closer io.Closer
	db     *gorm.DB
	repos  repository.Repos
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "timeblocker: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "timeblocker",
		Short:         "Time-blocking planner API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.seedDemoCmd(), a.remindCmd())
	return root
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	l, closer, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.JSONLogs()})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	db, err := repository.NewDB(cfg.DatabaseURL, l)
	if err != nil {
		_ = closer.Close()
		return err
	}

	a.cfg, a.logger, a.closer, a.db = cfg, l, closer, db
	a.repos = repository.NewRepos(db)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
	}
	return errors.Join(errs...)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date and exit",
		RunE: func(*cobra.Command, []string) error {
			// Opening the database already migrated it.
			a.logger.Info("schema up to date")
			return nil
		},
	}
}

func (a *app) seedDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Reset the demo account to its sample data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			demo := service.NewDemoService(a.repos, nil, a.logger)
			user, err := demo.Seed(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("demo account seeded", "email", user.Email)
			return nil
		},
	}
}

func (a *app) remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send the daily planning reminder now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			notifier, _, err := a.notifier()
			if err != nil {
				return err
			}
			reminders := service.NewReminderService(a.repos.Users, a.repos.Tasks, a.repos.Blocks, notifier, a.logger)
			sent, err := reminders.SendDailyPlanning(cmd.Context(), time.Now())
			a.logger.Info("planning reminder run finished", "sent", sent)
			return err
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// notifier assembles the configured delivery channels. The Telegram client is
// returned so the companion bot can share it.
func (a *app) notifier() (notify.Notifier, *tgbotapi.BotAPI, error) {
	var (
		channels notify.Multi
		tg       *tgbotapi.BotAPI
	)
	if a.cfg.PushEnabled() {
		channels = append(channels, notify.NewWebPush(notify.VAPIDConfig{
			PublicKey:  a.cfg.VAPIDPublicKey,
			PrivateKey: a.cfg.VAPIDPrivateKey,
			Subscriber: a.cfg.VAPIDEmail,
		}, a.repos.Users, a.logger))
	}
	if a.cfg.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(a.cfg.TelegramToken)
		if err != nil {
			return nil, nil, fmt.Errorf("create telegram client: %w", err)
		}
		tg = api
		channels = append(channels, notify.NewTelegram(api))
	}
	if len(channels) == 0 {
		a.logger.Warn("no notification transport configured, reminders are only logged")
		return notify.Log{Logger: a.logger}, nil, nil
	}
	return channels, tg, nil
}

func (a *app) serve(ctx context.Context) error {
	notifier, tg, err := a.notifier()
	if err != nil {
		return err
	}

	notifications := service.NewNotificationService(a.repos.Users, a.repos.Blocks, notifier, a.logger)
	defer notifications.StopAll()
	if armed, err := notifications.RearmPending(ctx); err != nil {
		a.logger.Error("re-arm reminders", "err", err)
	} else {
		a.logger.Info("reminders re-armed", "count", armed)
	}

	auth := service.NewAuthService(a.repos.Users, a.cfg.JWTSecret, a.cfg.TokenTTL)
	tasks := service.NewTaskService(a.repos.Tasks, a.repos.Blocks)
	blocks := service.NewTimeBlockService(a.repos.Blocks, a.repos.Tasks, a.repos.Users, notifications)
	svc := httpapi.Services{
		Auth:       auth,
		Tasks:      tasks,
		Blocks:     blocks,
		Categories: service.NewCategoryService(repository.NewCategoryRepository(a.db)),
		Demo:       service.NewDemoService(a.repos, notifications, a.logger),
	}

	loc, err := time.LoadLocation(a.cfg.ReminderTimezone)
	if err != nil {
		return fmt.Errorf("reminder timezone: %w", err)
	}
	scheduler := service.NewSchedulerService(loc, a.logger)
	reminders := service.NewReminderService(a.repos.Users, a.repos.Tasks, a.repos.Blocks, notifier, a.logger)
	if _, err := scheduler.ScheduleDaily(a.cfg.PlanningReminderAt, func(jobCtx context.Context) error {
		_, err := reminders.SendDailyPlanning(jobCtx, time.Now())
		return err
	}); err != nil {
		return fmt.Errorf("schedule planning reminder: %w", err)
	}
	var sweep cron.EntryID
	if a.cfg.ReminderSweep > 0 {
		sweep, err = scheduler.ScheduleInterval(a.cfg.ReminderSweep, func(jobCtx context.Context) error {
			armed, err := notifications.RearmPending(jobCtx)
			a.logger.Debug("reminder sweep", "armed", armed)
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule reminder sweep: %w", err)
		}
	}
	scheduler.Start()
	if sweep != 0 {
		a.logger.Info("reminder sweep scheduled", "every", a.cfg.ReminderSweep, "next", scheduler.Next(sweep))
	}
	defer scheduler.Stop()

	if a.cfg.IsProduction() && a.cfg.WildcardCORS() {
		a.logger.Warn("CORS allows any origin in production, set CORS_ORIGINS")
	}

	if tg != nil {
		companion := bot.New(tg, auth, tasks, blocks, a.logger)
		go func() {
			if err := companion.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("telegram bot stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           httpapi.New(svc, a.logger, a.cfg.CORSOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr, "env", a.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}
