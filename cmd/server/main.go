// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// The server binary wires the engine together: configuration, logging, the
// badger store, the change-feed transport, the compactor, and the HTTP
// surface, all under one suture supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/eventledger/internal/api"
	"github.com/tomtom215/eventledger/internal/changefeed"
	"github.com/tomtom215/eventledger/internal/compactor"
	"github.com/tomtom215/eventledger/internal/config"
	"github.com/tomtom215/eventledger/internal/ledger"
	"github.com/tomtom215/eventledger/internal/logging"
	"github.com/tomtom215/eventledger/internal/store"
)

func main() {
	// Default logging until configuration says otherwise, so config errors
	// are reported in the structured format too.
	logging.Init(logging.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	// The table name is a path component, so two tables under one data
	// directory never share badger files.
	st, err := store.Open(store.Options{
		Path:     filepath.Join(cfg.Store.Path, cfg.Store.Table),
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	supervisor := suture.New("eventledger", suture.Spec{
		EventHook: func(ev suture.Event) {
			logging.Warn().Str("event", ev.String()).Msg("Supervisor event")
		},
	})

	var feed *changefeed.Publisher
	if cfg.Compactor.Enabled {
		wmLogger := logging.NewWatermillAdapter("changefeed")
		pub, sub, closeTransport, err := buildFeedTransport(cfg, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to build change-feed transport")
		}
		defer closeTransport()

		comp, err := compactor.New(st, sub, pub, cfg.Compactor, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to build compactor")
		}
		supervisor.Add(comp)

		feed = changefeed.NewPublisher(pub, cfg.Compactor.Topic)
		st.SetChangePublisher(feed)
		defer feed.Close()
	}

	svc := ledger.New(st, ledger.Config{
		MaxPollLimit:   cfg.Ledger.MaxPollLimit,
		DeletePageSize: cfg.Ledger.DeletePageSize,
	})
	router := api.NewRouter(svc, st, cfg.Server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	supervisor.Add(&httpService{
		server: &http.Server{
			Addr:         addr,
			Handler:      router.Setup(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", addr).
		Str("table", cfg.Store.Table).
		Bool("compactor", cfg.Compactor.Enabled).
		Msg("EventLedger starting")

	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor exited")
	}
	logging.Info().Msg("EventLedger stopped")
}

// httpService runs the HTTP server under suture with graceful shutdown.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return ctx.Err()
}

func (s *httpService) String() string {
	return "http-server"
}
