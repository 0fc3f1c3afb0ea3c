// Command churn runs the churn prediction pipeline.
//
// Usage:
//
//	churn [--config file] prepare [--last-date 31/03/2024]
//	churn [--config file] train
//	churn [--config file] predict
//	churn [--config file] report
//	churn [--config file] run [--last-date 31/03/2024]
//	churn [--config file] serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/churn"
	"github.com/Taha-Alami/Chrun-prediction/pkg/config"
	"github.com/Taha-Alami/Chrun-prediction/pkg/events"
	"github.com/Taha-Alami/Chrun-prediction/pkg/logging"
	"github.com/Taha-Alami/Chrun-prediction/pkg/metrics"
	"github.com/Taha-Alami/Chrun-prediction/pkg/period"
	"github.com/Taha-Alami/Chrun-prediction/pkg/postgres"
	"github.com/Taha-Alami/Chrun-prediction/pkg/server"
	"github.com/Taha-Alami/Chrun-prediction/pkg/source"
	"github.com/Taha-Alami/Chrun-prediction/pkg/tracking"
)

const usage = `usage: churn [--config file] <command> [flags]

commands:
  prepare   build the train, test and predict tables
  train     train, evaluate and register the model
  predict   score the predict table with the latest model
  report    build the churn report from the predictions
  run       prepare, train, predict and report
  serve     serve the latest model over HTTP
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "churn: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("churn", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	configPath := global.String("config", "", "path to a YAML config file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}
	command, rest := global.Arg(0), global.Args()[1:]

	cmd := flag.NewFlagSet(command, flag.ContinueOnError)
	lastDate := cmd.String("last-date", "", "last month of data (DD/MM/YYYY or YYYY-MM-DD), defaults to the latest in the source")
	if err := cmd.Parse(rest); err != nil {
		return err
	}
	var last time.Time
	if *lastDate != "" {
		var err error
		if last, err = period.ParseLastDate(*lastDate); err != nil {
			return err
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting churn pipeline",
		zap.String("command", command),
		zap.String("env", cfg.Env),
		zap.String("tracking_uri", cfg.Tracking.URI),
	)

	tracker, err := tracking.Open(ctx, cfg.Tracking.URI,
		tracking.WithLogger(logger),
		tracking.WithTimeout(cfg.Tracking.Timeout),
	)
	if err != nil {
		return err
	}
	defer tracker.Close()

	publisher := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
	defer publisher.Close()

	m := metrics.NewMetrics(command == "serve")
	opts := []churn.Option{churn.WithPublisher(publisher), churn.WithMetrics(m)}
	if command == "prepare" || command == "run" {
		src, closeSource, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSource()
		opts = append(opts, churn.WithSource(src))
	}
	runner := churn.NewRunner(cfg, tracker, logger, opts...)

	switch command {
	case "prepare":
		_, err = runner.Prepare(ctx, last)
	case "train":
		_, err = runner.Train(ctx)
	case "predict":
		_, err = runner.Predict(ctx)
	case "report":
		_, err = runner.Report(ctx)
	case "run":
		err = runAll(ctx, runner, last)
	case "serve":
		return serve(ctx, cfg, runner, m, logger)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		logger.Error("stage failed", zap.String("command", command), zap.Error(err))
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if pushErr := m.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
			logger.Warn("failed to push metrics", zap.Error(pushErr))
		}
	}
	return err
}

func runAll(ctx context.Context, runner *churn.Runner, last time.Time) error {
	if _, err := runner.Prepare(ctx, last); err != nil {
		return err
	}
	if _, err := runner.Train(ctx); err != nil {
		return err
	}
	if _, err := runner.Predict(ctx); err != nil {
		return err
	}
	_, err := runner.Report(ctx)
	return err
}

func openSource(ctx context.Context, cfg *config.Config) (source.Source, func(), error) {
	switch cfg.Source.Kind {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		return source.NewPostgresSource(pool, cfg.Source.Table), pool.Close, nil
	default:
		return source.NewCSVSource(cfg.Source.Path), func() {}, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, runner *churn.Runner, m *metrics.Metrics, logger *zap.Logger) error {
	srv := server.New(cfg.Server, runner.LoadScorer, m, logger)
	if _, err := srv.Reload(ctx); err != nil {
		logger.Warn("no model to serve yet, POST /v1/model/reload once one is registered", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
