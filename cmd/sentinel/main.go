package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/newsdesk/sentinel/pkg/cleaner"
	"github.com/newsdesk/sentinel/pkg/config"
	"github.com/newsdesk/sentinel/pkg/fetcher"
	"github.com/newsdesk/sentinel/pkg/formatter"
	"github.com/newsdesk/sentinel/pkg/llm"
	"github.com/newsdesk/sentinel/pkg/repository"
	"github.com/newsdesk/sentinel/pkg/sentinel"
	"github.com/newsdesk/sentinel/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"sentinel.yml" description:"config file path"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address override"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)

	log.Printf("[INFO] starting sentinel version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] sentinel failed: %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	repos, err := repository.New(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	// AI collaborator is optional, nil disables the AI stage and translation
	var enhancer formatter.TextEnhancer
	var translator sentinel.Translator
	if cfg.AI.Enabled {
		client := llm.NewClient(cfg.GetAIConfig())
		enhancer = client
		if cfg.Translation.Enabled {
			translator = client
		}
		log.Printf("[INFO] ai collaborator enabled, model %s", cfg.AI.Model)
	}

	targetLang := ""
	if cfg.Translation.Enabled {
		targetLang = cfg.Translation.TargetLang
	}

	svc, err := sentinel.New(
		fetcher.New(cfg.Sources, cfg.Fetch),
		cleaner.New(),
		formatter.New(enhancer),
		translator,
		repos.Draft,
		sentinel.Config{
			UpdateInterval: time.Duration(cfg.Schedule.UpdateInterval) * time.Minute,
			MaxWorkers:     cfg.Schedule.MaxWorkers,
			ItemTimeout:    cfg.Schedule.ItemTimeout,
			ActiveHours:    cfg.Schedule.ActiveHours,
			Stages:         cfg.GetFormatterConfig(),
			TargetLang:     targetLang,
		},
	)
	if err != nil {
		return fmt.Errorf("init sentinel: %w", err)
	}

	svc.Start(ctx)
	defer svc.Stop()

	srv := server.New(cfg, svc, repos.Draft, revision, opts.Debug)
	return srv.Run(ctx)
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
