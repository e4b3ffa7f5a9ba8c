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

// Package httpapi exposes the rule management surface over HTTP: rule CRUD,
// pause/reactivate, execution history, engine health and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"

	"tevra-automation-go/internal/api"
	"tevra-automation-go/internal/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// StatusProvider reports the engine's sweep state for the health endpoint.
type StatusProvider func() models.EngineStatus

type Server struct {
	rules      *api.RuleService
	status     StatusProvider
	httpServer *http.Server
}

func NewServer(rules *api.RuleService, status StatusProvider, cfg models.HTTPConfig) *Server {
	s := &Server{
		rules:  rules,
		status: status,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/rules", s.handleCreateRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules", s.handleListRules).Methods(http.MethodGet)
	router.HandleFunc("/api/rules/{id}", s.handleGetRule).Methods(http.MethodGet)
	router.HandleFunc("/api/rules/{id}", s.handleUpdateRule).Methods(http.MethodPatch)
	router.HandleFunc("/api/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)
	router.HandleFunc("/api/rules/{id}/pause", s.handlePauseRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{id}/reactivate", s.handleReactivateRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{id}/executions", s.handleExecutionHistory).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	zap.L().Info("Starting HTTP API", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down HTTP API")
	return s.httpServer.Shutdown(ctx)
}
