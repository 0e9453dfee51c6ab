package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/uselocalchat/localchat/internal/profile"
	"github.com/uselocalchat/localchat/plugin/engine"
	"github.com/uselocalchat/localchat/plugin/gpu"
	"github.com/uselocalchat/localchat/server"
	"github.com/uselocalchat/localchat/store"
	"github.com/uselocalchat/localchat/store/db"
	"github.com/uselocalchat/localchat/worker"
	"github.com/uselocalchat/localchat/worker/apiclient"
)

const greetingBanner = `
localchat: local-first chat, no cloud required.
`

var rootCmd = &cobra.Command{
	Use:   "localchat",
	Short: "A chat gateway that runs inference on the machine it serves from",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func run() error {
	p, err := profile.New()
	if err != nil {
		return errors.WithMessage(err, "resolve profile")
	}
	if p.IsDev() {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := db.NewDriver(p)
	if err != nil {
		return errors.WithMessage(err, "open store driver")
	}
	st := store.New(driver)
	if err := st.EnsureSchema(ctx); err != nil {
		return errors.WithMessage(err, "ensure schema")
	}

	backend := server.NewServer(p, st)
	go func() {
		if err := backend.Start(); err != nil {
			slog.Error("backend server stopped", "err", err)
			cancel()
		}
	}()

	mgr := engine.NewManager(p.EngineURL, gpu.Probe)
	w := worker.New(worker.Options{
		Probe:        gpu.Probe,
		Engines:      worker.ProvideEngine(mgr),
		Sync:         apiclient.New(p.BackendURL),
		Tools:        engine.DefaultTools(),
		DefaultModel: p.DefaultModel,
	})
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker loop stopped", "err", err)
		}
	}()
	if err := w.Install(ctx); err != nil {
		return errors.WithMessage(err, "install worker")
	}
	if err := w.Activate(ctx); err != nil {
		return errors.WithMessage(err, "activate worker")
	}

	gateway, err := worker.NewGateway(w, p.BackendURL, p.Upstream)
	if err != nil {
		return errors.WithMessage(err, "build gateway")
	}
	gatewayServer := &http.Server{
		Addr:    p.Addr,
		Handler: gateway.Echo(),
	}
	go func() {
		if err := gatewayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server stopped", "err", err)
			cancel()
		}
	}()

	println(greetingBanner)
	slog.Info("localchat started",
		"gateway", p.Addr,
		"backend", p.BackendAddr,
		"upstream", p.Upstream,
		"engine", p.EngineURL,
		"driver", p.Driver,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown failed", "err", err)
	}
	if err := backend.Shutdown(shutdownCtx); err != nil {
		slog.Error("backend shutdown failed", "err", err)
	}
	return nil
}

func main() {
	// A missing .env is not an error; the environment may carry everything.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
}
