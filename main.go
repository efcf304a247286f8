// Copyright © 2019-2020 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultguard/mpc-coordinator/common"
	"github.com/vaultguard/mpc-coordinator/config"
	"github.com/vaultguard/mpc-coordinator/coordinator"
	"github.com/vaultguard/mpc-coordinator/httpapi"
	"github.com/vaultguard/mpc-coordinator/metrics"
	"github.com/vaultguard/mpc-coordinator/registry"
	"github.com/vaultguard/mpc-coordinator/repository"
	"github.com/vaultguard/mpc-coordinator/transport"
)

const sweepInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mpc-coordinator: %v\n", err)
		os.Exit(1)
	}

	if err := common.SetLogLevel("info"); err != nil {
		fmt.Fprintf(os.Stderr, "mpc-coordinator: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, disconnect, err := repository.Connect(ctx, cfg.MongoURL, cfg.DBName)
	if err != nil {
		common.Logger.Fatalf("connect mongo: %v", err)
	}
	defer disconnect(context.Background())

	repo := repository.NewMongoRepository(db)
	sessions := registry.New()

	promRegistry := prometheus.NewRegistry()
	metrics.MustRegister(promRegistry)

	coord := coordinator.New(repo, repo, sessions, cfg.TransactionTimeout())
	coord.StartSweeper(ctx, sweepInterval)
	defer coord.Stop()

	wsEndpoint := transport.New(coord, sessions, repo, repo)
	adminRouter := httpapi.New(repo, repo, cfg.TransactionTimeout(), cfg.CORSOrigins)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.Handle("/", adminRouter)

	addr := fmt.Sprintf("%s:%d", cfg.BindHost, cfg.BindPort)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		common.Logger.Infof("mpc-coordinator listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Logger.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	common.Logger.Infof("mpc-coordinator shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		common.Logger.Errorf("shutdown: %v", err)
	}
}
