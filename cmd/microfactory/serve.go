package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/httpapi"
	"github.com/microfactory-run/microfactory/internal/streaming"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over HTTP (JSON + SSE)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("bind", "127.0.0.1", "address to listen on")
	flags.Int("port", 8088, "port to listen on")
	flags.Int("limit", 50, "how many sessions GET /sessions/stream polls each tick (GET /sessions lists up to 100)")
	flags.Int("poll-interval-ms", 2000, "GET /sessions/stream re-poll interval")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	bind, _ := cmd.Flags().GetString("bind")
	port, _ := cmd.Flags().GetInt("port")
	limit, _ := cmd.Flags().GetInt("limit")
	pollMs, _ := cmd.Flags().GetInt("poll-interval-ms")

	hub := streaming.NewMemoryHub()
	srv := httpapi.New(httpapi.Deps{
		Store:        app.store,
		Runner:       app.runner,
		Hub:          hub,
		Logger:       app.logger,
		PollInterval: time.Duration(pollMs) * time.Millisecond,
		ListLimit:    limit,
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bind, port),
		Handler: srv.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.Info("serving microfactory", "addr", httpSrv.Addr)
		serverErrors <- httpSrv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case sig := <-shutdown:
		app.logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			_ = httpSrv.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	}
}
