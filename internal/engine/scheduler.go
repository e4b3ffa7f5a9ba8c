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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tevra-automation-go/internal/metrics"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"go.uber.org/zap"
)

// Engine is the sweep producer plus its bounded pool of execution workers.
// One sweep runs at a time on a fixed period independent of any rule's own
// schedule; due rules are claimed in the sweep and executed by workers.
type Engine struct {
	ruleStore  store.RuleStore
	dispatcher *Dispatcher

	sweepInterval time.Duration
	workers       chan struct{} // worker pool semaphore
	wg            sync.WaitGroup

	stopChan chan struct{}
	doneChan chan struct{}

	mu        sync.Mutex
	running   bool
	lastSweep time.Time
	evaluated int64
	due       int64
	inFlight  int
}

func NewEngine(ruleStore store.RuleStore, dispatcher *Dispatcher, cfg models.EngineConfig) *Engine {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 4
	}
	return &Engine{
		ruleStore:     ruleStore,
		dispatcher:    dispatcher,
		sweepInterval: cfg.SweepInterval,
		workers:       make(chan struct{}, workerCount),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start launches the sweep loop after releasing claims stranded by an
// unclean shutdown.
func (e *Engine) Start(ctx context.Context) error {
	zap.L().Info("Starting automation engine",
		zap.Duration("sweep_interval", e.sweepInterval),
		zap.Int("worker_count", cap(e.workers)))

	if err := e.recoverStrandedClaims(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	go e.sweepLoop(ctx)

	zap.L().Info("Automation engine started")
	return nil
}

// Stop halts the sweep loop and waits for in-flight executions to finish.
func (e *Engine) Stop() {
	zap.L().Info("Stopping automation engine")
	close(e.stopChan)
	<-e.doneChan
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	zap.L().Info("Automation engine stopped")
}

// Status reports a snapshot for the health endpoint.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.EngineStatus{
		Running:        e.running,
		LastSweep:      e.lastSweep,
		RulesEvaluated: e.evaluated,
		RulesDue:       e.due,
		InFlight:       e.inFlight,
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	e.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			e.sweep(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep claims every due rule it can hand to a free worker. A saturated pool
// defers the remainder to the next tick rather than queueing.
func (e *Engine) sweep(ctx context.Context) {
	started := time.Now()
	now := started.UTC()

	dueRules, err := e.ruleStore.ListDue(ctx, now)
	if err != nil {
		zap.L().Error("Sweep failed to list due rules", zap.Error(err))
		return
	}

	dispatched := 0
	deferred := 0
loop:
	for i := range dueRules {
		rule := &dueRules[i]

		select {
		case e.workers <- struct{}{}:
		default:
			deferred = len(dueRules) - i
			zap.L().Debug("Worker pool saturated, deferring remaining due rules",
				zap.Int("deferred", deferred))
			break loop
		}

		claim, err := e.ruleStore.ClaimRule(ctx, rule.Id, now)
		if err != nil {
			<-e.workers
			if errors.Is(err, store.ErrRuleNotClaimable) {
				// Lost to a concurrent claimant or an overlapping sweep.
				metrics.ClaimsLost.Inc()
				continue
			}
			zap.L().Error("Failed to claim due rule",
				zap.String("rule_id", rule.Id),
				zap.Error(err))
			continue
		}

		dispatched++
		e.trackClaim(1)
		e.wg.Add(1)
		go func(claim *store.Claim) {
			defer e.wg.Done()
			defer func() { <-e.workers }()
			defer e.trackClaim(-1)
			e.dispatcher.Execute(ctx, claim)
		}(claim)
	}

	e.mu.Lock()
	e.lastSweep = now
	e.evaluated += int64(len(dueRules))
	e.due += int64(len(dueRules))
	e.mu.Unlock()

	metrics.SweepsTotal.Inc()
	metrics.RulesEvaluated.Add(float64(len(dueRules)))
	metrics.RulesDue.Add(float64(len(dueRules)))
	metrics.SweepDuration.Observe(time.Since(started).Seconds())

	if len(dueRules) > 0 {
		zap.L().Info("Sweep completed",
			zap.Int("due", len(dueRules)),
			zap.Int("dispatched", dispatched),
			zap.Int("deferred", deferred),
			zap.Duration("elapsed", time.Since(started)))
	}
}

func (e *Engine) trackClaim(delta int) {
	e.mu.Lock()
	e.inFlight += delta
	e.mu.Unlock()
	metrics.InFlight.Add(float64(delta))
}

// recoverStrandedClaims releases rules left in_flight by a crash. Their
// outcome, if any, is resolved by the idempotency key on the next dispatch.
func (e *Engine) recoverStrandedClaims(ctx context.Context) error {
	recovered := 0
	// A stranded claim is invisible to ListDue, so walk the claim release
	// path for any rule still marked in flight.
	stranded, err := e.ruleStore.ListInFlight(ctx)
	if err != nil {
		return err
	}
	for _, rule := range stranded {
		if err := e.ruleStore.ReleaseClaim(ctx, rule.Id, models.StatusActive); err != nil {
			zap.L().Error("Failed to release stranded claim",
				zap.String("rule_id", rule.Id),
				zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		zap.L().Warn("Released claims stranded by unclean shutdown",
			zap.Int("count", recovered))
	}
	return nil
}
