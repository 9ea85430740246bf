// Command agentgate runs the agent gateway: it brokers conversation turns
// with the agent runtime and serves them over HTTP as single-shot JSON or a
// live protocol-event stream.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "go.uber.org/automaxprocs"

	"github.com/agentgate-dev/agentgate/internal/httpapi"
	"github.com/agentgate-dev/agentgate/pkg/gateway/auth"
	"github.com/agentgate-dev/agentgate/pkg/gateway/config"
	"github.com/agentgate-dev/agentgate/pkg/gateway/query"
	"github.com/agentgate-dev/agentgate/pkg/gateway/runtime"
	"github.com/agentgate-dev/agentgate/pkg/gateway/transcript"
	"github.com/agentgate-dev/agentgate/pkg/gateway/workspace"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "agentgate",
		Short:        "Agent gateway service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, sync, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token service feeds the remote strategy's outbound calls; it is only
	// started when that strategy is selected.
	var tokenProvider func() string
	if cfg.Workspace.Strategy == workspace.StrategyRemote {
		tokens := auth.NewTokenService(cfg.Workspace.TokenPath, log)
		if err := tokens.Start(ctx); err != nil {
			return err
		}
		defer tokens.Stop()
		tokenProvider = tokens.Token
	}

	workspaces, err := workspace.New(workspace.Config{
		Strategy:       cfg.Workspace.Strategy,
		BasePath:       cfg.Workspace.BasePath,
		ContainerImage: cfg.Workspace.ContainerImage,
		ServicePort:    cfg.Workspace.ServicePort,
		RemoteEndpoint: cfg.Workspace.RemoteEndpoint,
		TokenProvider:  tokenProvider,
	}, log)
	if err != nil {
		return err
	}

	store, err := transcript.NewStore(cfg.Store.Path, log)
	if err != nil {
		return err
	}
	writer := transcript.NewWriter(store, cfg.Store.QueueSize, log)

	orchestrator := query.NewOrchestrator(
		runtime.NewCLIClient(cfg.Runtime.Binary, log),
		workspaces,
		writer,
		query.Defaults{Model: cfg.Runtime.Model, MaxTurns: cfg.Runtime.MaxTurns, Env: cfg.Runtime.Env},
		log,
	)

	server := httpapi.NewServer(orchestrator, workspaces, store, log)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := httpapi.NewHTTPServer(addr, server.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr, "strategy", cfg.Workspace.Strategy)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		log.Error(err, "http server failed")
		writer.Close()
		return err
	}

	var result *multierror.Error

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}

	// Drain pending transcript writes before exit.
	writer.Close()

	log.Info("shutdown complete")
	return result.ErrorOrNil()
}

func newLogger(level int) (logr.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-level))
	zapLog, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, nil, err
	}
	return zapr.NewLogger(zapLog), func() { _ = zapLog.Sync() }, nil
}
