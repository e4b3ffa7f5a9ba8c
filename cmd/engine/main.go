/**
 * Copyright 2025-present Tevra Labs
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tevra-automation-go/internal/api"
	"tevra-automation-go/internal/common"
	"tevra-automation-go/internal/config"
	"tevra-automation-go/internal/engine"
	"tevra-automation-go/internal/httpapi"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Tevra automation engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	services.EventBus.Start(ctx)

	dispatcher := engine.NewDispatcher(
		services.DbService,
		services.LedgerService,
		services.EventBus,
		cfg.Ledger.TreasuryAccount,
		cfg.Engine,
	)
	ruleEngine := engine.NewEngine(services.DbService, dispatcher, cfg.Engine)
	if err := ruleEngine.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start engine", zap.Error(err))
	}

	ruleService := api.NewRuleService(services.DbService, services.EventBus)
	server := httpapi.NewServer(ruleService, ruleEngine.Status, cfg.HTTP)
	go func() {
		if err := server.Start(); err != nil {
			zap.L().Error("HTTP server stopped with error", zap.Error(err))
			cancel()
		}
	}()

	zap.L().Info("Engine running", zap.String("api_addr", cfg.HTTP.ListenAddr))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		ruleEngine.Stop()
		services.EventBus.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Engine stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
