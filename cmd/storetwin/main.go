// Command storetwin runs the store digital twin event hub and its tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/storetwin/internal/config"
	"github.com/rickgao/storetwin/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:    "storetwin",
		Usage:   "store digital twin event hub",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (defaults apply when empty)",
				Sources: cli.EnvVars("STORETWIN_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the config is expanded",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			watchCommand(),
			tokenCommand(),
			statusCommand(),
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(version.String())
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the env file and config and builds the logger.
func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(cmd.String("env-file")); err != nil {
		return nil, nil, err
	}

	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.LoadAndValidate(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
