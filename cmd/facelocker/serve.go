package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facelocker/server/internal/grpcapi"
	"github.com/facelocker/server/internal/httpapi"
	"github.com/facelocker/server/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and gRPC health server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides FACELOCKER_HTTP_ADDR)")
	serveCmd.Flags().String("grpc-addr", "", "gRPC health listen address (overrides FACELOCKER_GRPC_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("http-addr"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("grpc-addr"); v != "" {
		cfg.GRPCAddr = v
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: logger,
		Addr:   cfg.HTTPAddr,
		Access: a.controller,
	})

	var health *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		health = grpcapi.NewServer(logger)
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
				stop()
			}
		}()
		health.SetReady(true)
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if health != nil {
		health.Shutdown(shutdownCtx)
	}
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
	return nil
}
