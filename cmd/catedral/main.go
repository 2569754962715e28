package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/api"
	"github.com/catedral-dev/catedral/integrations/otel"
	"github.com/catedral-dev/catedral/integrations/prometheus"
	"github.com/catedral-dev/catedral/internal/config"
	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"golang.org/x/sync/errgroup"
)

var (
	confPath = flag.String("config", "./config.toml", "Config path")
	flagPath = flag.String("flags", "./flags.json", "Flag configuration path")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	config.SetConfigPath(*confPath)
	config.SetConfigV2Path(*flagPath)
	if err := config.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "Couldn't load config", slog.Any("err", err))
		os.Exit(1)
	}
	if err := config.LoadConfigV2(ctx, false); err != nil {
		slog.ErrorContext(ctx, "Could not load flags", slog.Any("err", err))
		os.Exit(1)
	}

	if err := Catedral(ctx); err != nil {
		slog.ErrorContext(ctx, "Server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func Catedral(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var extraHandlers []slog.Handler
	if flags.OtelEnabled.Value() {
		providers, err := otel.Setup(ctx)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(ctx); err != nil {
				slog.WarnContext(ctx, "Couldn't flush telemetry", slog.Any("err", err))
			}
		}()
		extraHandlers = append(extraHandlers, providers.LogHandler())
	}
	slog.SetDefault(catedral.NewLogger(config.Common.Debug, os.Stdout, config.Common.LogDir, extraHandlers...))
	catedral.SetDefaultLanguage(config.Common.DefaultLang)

	slog.InfoContext(ctx, "Starting Catedral", slog.String("version", catedral.Version))
	if config.Common.Debug {
		slog.WarnContext(ctx, "Debug mode activated")
	}

	base, err := sudoapi.InitializeBaseAPI(ctx)
	if err != nil {
		return err
	}
	defer base.Close()
	base.Start(ctx)

	prometheus.InitMetrics(ctx)

	server := &http.Server{
		Addr:              net.JoinHostPort(flags.ListenHost.Value(), strconv.Itoa(flags.ListenPort.Value())),
		Handler:           api.New(base).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down")
		// In-flight charges get the full gateway timeout to finish and be recorded.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 35*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	slog.InfoContext(ctx, "Successfully started", slog.String("addr", server.Addr))

	return eg.Wait()
}
