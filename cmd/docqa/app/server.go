// Package app provides the docqa server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kart-io/logger"
	"github.com/spf13/viper"

	"github.com/kart-io/docqa/cmd/docqa/app/options"
	"github.com/kart-io/docqa/pkg/infra/app"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
)

const (
	// Name is the name of the application.
	Name = "docqa"

	// commandDesc is the description of the command.
	commandDesc = `docqa - document question answering service

Users upload PDF, DOCX, TXT and Markdown documents which are split into
overlapping chunks, embedded and stored per owner. Questions are answered
from the most similar chunks by a chat model, with the source documents cited.

This server provides:
  - Asynchronous document ingestion with status tracking and retry
  - Semantic search over the caller's completed documents
  - Grounded chat answers with source citations`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Document question answering service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
		app.WithConfigChange(reloadLogLevel(opts.LogOptions)),
	)

	return application
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// reloadLogLevel 在配置文件的 log.level 变化时重建全局 logger。其它配置项需重启生效。
func reloadLogLevel(opts *logopts.Options) app.ConfigChangeHandler {
	return func(v *viper.Viper) error {
		level := v.GetString("log.level")
		if level == "" || strings.EqualFold(level, opts.Level) {
			return nil
		}

		next := *opts.LogOption
		next.Level = level
		if err := next.Validate(); err != nil {
			return fmt.Errorf("invalid log.level %q: %w", level, err)
		}
		log, err := logger.New(&next)
		if err != nil {
			return fmt.Errorf("failed to rebuild logger: %w", err)
		}

		logger.SetGlobal(log)
		opts.LogOption = &next
		logger.Infow("Log level reloaded", "level", level)
		return nil
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
