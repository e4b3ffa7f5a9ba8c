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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.RuleStore.
var _ store.RuleStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		err := db.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		err := db.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Automation rules table (current state)
	CREATE TABLE IF NOT EXISTS automation_rules (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		direction TEXT NOT NULL,
		asset TEXT NOT NULL,
		recipient TEXT NOT NULL,
		amount TEXT NOT NULL,
		threshold TEXT NOT NULL,
		max_balance TEXT NOT NULL DEFAULT '0',
		schedule_interval INTEGER NOT NULL,
		price_min TEXT NOT NULL DEFAULT '0',
		price_max TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		last_executed TIMESTAMP,
		next_eligible TIMESTAMP NOT NULL,
		retry_attempt INTEGER NOT NULL DEFAULT 0,
		retry_at TIMESTAMP,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Create index for owner enumeration
	CREATE INDEX IF NOT EXISTS idx_rules_owner ON automation_rules(owner);
	-- Create index for the sweep query (status + due time)
	CREATE INDEX IF NOT EXISTS idx_rules_status_next_eligible ON automation_rules(status, next_eligible);
	CREATE INDEX IF NOT EXISTS idx_rules_status_retry_at ON automation_rules(status, retry_at);

	-- Execution journal table (append-mostly audit trail)
	CREATE TABLE IF NOT EXISTS rule_executions (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL REFERENCES automation_rules(id),
		owner TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		direction TEXT NOT NULL,
		asset TEXT NOT NULL,
		recipient TEXT NOT NULL,
		amount TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'submitted',
		tx_ref TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(idempotency_key, attempt)
	);

	-- Create index for idempotency lookups
	CREATE INDEX IF NOT EXISTS idx_executions_key ON rule_executions(idempotency_key);
	-- Create index for per-rule history
	CREATE INDEX IF NOT EXISTS idx_executions_rule_created ON rule_executions(rule_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// scanRule reads one automation_rules row. Decimals are stored as TEXT to
// avoid float rounding; schedule_interval is stored in seconds.
func scanRule(scan func(dest ...any) error) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	var amountStr, thresholdStr, maxBalanceStr, priceMinStr, priceMaxStr string
	var intervalSecs int64
	var lastExecuted, retryAt sql.NullTime
	var lastError string

	err := scan(&rule.Id, &rule.Owner, &rule.Direction, &rule.Asset, &rule.Recipient,
		&amountStr, &thresholdStr, &maxBalanceStr, &intervalSecs,
		&priceMinStr, &priceMaxStr, &rule.Status, &lastExecuted, &rule.NextEligible,
		&rule.Retry.Attempt, &retryAt, &lastError, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rule.Amount, amountStr},
		{&rule.Threshold, thresholdStr},
		{&rule.MaxBalance, maxBalanceStr},
		{&rule.PriceMin, priceMinStr},
		{&rule.PriceMax, priceMaxStr},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse decimal %q: %w", field.src, err)
		}
		*field.dst = d
	}

	rule.ScheduleInterval = time.Duration(intervalSecs) * time.Second
	if lastExecuted.Valid {
		rule.LastExecuted = lastExecuted.Time
	}
	if retryAt.Valid {
		rule.Retry.NextRetry = retryAt.Time
	}
	rule.Retry.LastErrorKind = lastError
	return &rule, nil
}
