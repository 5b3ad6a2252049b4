package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/goliatone/go-notifications-client/pkg/config"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/notifier"
	"github.com/goliatone/go-notifications-client/pkg/storage"
)

var version = "dev"

// Flags are shared by every subcommand.
type Flags struct {
	BaseURL     string
	RealtimeURL string
	Token       string
	Org         string
	User        string
	LogLevel    string
	LogFile     string
	CacheDSN    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		flags     = &Flags{}
		logCloser func()
		module    *notifier.Module
	)

	app := &cli.Command{
		Name:      "notifications-tail",
		Usage:     "Follow and acknowledge notifications from the command line",
		UsageText: "notifications-tail [global options] command [command options]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "base-url",
				Usage:       "notification service base URL",
				Sources:     cli.EnvVars("NOTIFICATIONS_BASE_URL"),
				Value:       "http://127.0.0.1:8080",
				Destination: &flags.BaseURL,
			},
			&cli.StringFlag{
				Name:        "realtime-url",
				Usage:       "socket URL override (derived from base-url when empty)",
				Sources:     cli.EnvVars("NOTIFICATIONS_REALTIME_URL"),
				Destination: &flags.RealtimeURL,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "bearer token",
				Sources:     cli.EnvVars("NOTIFICATIONS_TOKEN"),
				Destination: &flags.Token,
			},
			&cli.StringFlag{
				Name:        "org",
				Usage:       "organization id",
				Sources:     cli.EnvVars("NOTIFICATIONS_ORG"),
				Destination: &flags.Org,
			},
			&cli.StringFlag{
				Name:        "user",
				Usage:       "user id",
				Sources:     cli.EnvVars("NOTIFICATIONS_USER"),
				Destination: &flags.User,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("NOTIFICATIONS_LOG_LEVEL"),
				Value:       "warn",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr)",
				Sources:     cli.EnvVars("NOTIFICATIONS_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "cache-dsn",
				Usage:       "sqlite DSN for the local snapshot cache (disabled when empty)",
				Sources:     cli.EnvVars("NOTIFICATIONS_CACHE_DSN"),
				Destination: &flags.CacheDSN,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			lgr, closer, err := logger.NewZerologWriter(flags.LogLevel, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			logCloser = closer

			cfg, err := loadConfig(flags)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			providers, err := storage.FromConfig(ctx, cfg.Cache)
			if err != nil {
				return ctx, fmt.Errorf("open cache: %w", err)
			}

			module, err = notifier.NewModule(notifier.ModuleOptions{
				Config:      cfg,
				Storage:     providers,
				Logger:      lgr,
				Credentials: credentials.Static(flags.Token),
			})
			if err != nil {
				_ = providers.Close()
				return ctx, fmt.Errorf("build client: %w", err)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if module != nil {
				_ = module.Close()
			}
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	tail := &TailCmd{flags: flags, module: func() *notifier.Module { return module }}
	app = tail.Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(flags *Flags) (config.Config, error) {
	input := map[string]any{
		"endpoint": map[string]any{
			"base_url":     flags.BaseURL,
			"realtime_url": flags.RealtimeURL,
		},
	}
	if dsn := strings.TrimSpace(flags.CacheDSN); dsn != "" {
		input["cache"] = map[string]any{
			"enabled": true,
			"driver":  config.CacheDriverSQLite,
			"dsn":     dsn,
		}
	}
	return config.Load(input)
}

func (f *Flags) identity() (domain.Identity, error) {
	id := domain.Identity{
		OrganizationID: strings.TrimSpace(f.Org),
		UserID:         strings.TrimSpace(f.User),
	}
	if !id.Valid() {
		return domain.Identity{}, errors.New("--org and --user are required")
	}
	return id, nil
}
