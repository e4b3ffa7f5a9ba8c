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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tevra-automation-go/internal/models"
)

func Load() (*models.Config, error) {
	sweepInterval, err := getEnvDuration("ENGINE_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	retryBaseBackoff, err := getEnvDuration("ENGINE_RETRY_BASE_BACKOFF", time.Minute)
	if err != nil {
		return nil, err
	}

	retryMaxBackoff, err := getEnvDuration("ENGINE_RETRY_MAX_BACKOFF", time.Hour)
	if err != nil {
		return nil, err
	}

	confirmTimeout, err := getEnvDuration("ENGINE_CONFIRM_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	confirmPoll, err := getEnvDuration("ENGINE_CONFIRM_POLL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	priceCacheTTL, err := getEnvDuration("PRICE_FEED_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	priceTimeout, err := getEnvDuration("PRICE_FEED_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "rules.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Engine: models.EngineConfig{
			SweepInterval:    sweepInterval,
			WorkerCount:      getEnvInt("ENGINE_WORKER_COUNT", 4),
			MaxRetries:       getEnvInt("ENGINE_MAX_RETRIES", 5),
			RetryBaseBackoff: retryBaseBackoff,
			RetryMaxBackoff:  retryMaxBackoff,
			ConfirmTimeout:   confirmTimeout,
			ConfirmPoll:      confirmPoll,
		},
		HTTP: models.HTTPConfig{
			ListenAddr:      getEnvString("HTTP_LISTEN_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		PriceFeed: models.PriceFeedConfig{
			URL:      getEnvString("PRICE_FEED_URL", ""),
			CacheTTL: priceCacheTTL,
			Timeout:  priceTimeout,
		},
		Events: models.EventsConfig{
			WebhookURL:     getEnvString("WEBHOOK_URL", ""),
			WebhookTimeout: webhookTimeout,
			BufferSize:     getEnvInt("EVENT_BUFFER_SIZE", 256),
		},
		Ledger: models.LedgerConfig{
			AssetsFile:      getEnvString("ASSETS_FILE", "assets.yaml"),
			TreasuryAccount: getEnvString("TREASURY_ACCOUNT", "treasury:main"),
			PrimeWalletId:   getEnvString("PRIME_WALLET_ID", ""),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "tevra-automation"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
