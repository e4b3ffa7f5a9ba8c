package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Engine    EngineConfig
	HTTP      HTTPConfig
	PriceFeed PriceFeedConfig
	Events    EventsConfig
	Ledger    LedgerConfig
	Formance  FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// EngineConfig holds scheduler and dispatcher settings
type EngineConfig struct {
	SweepInterval    time.Duration
	WorkerCount      int
	MaxRetries       int
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration
	ConfirmTimeout   time.Duration
	ConfirmPoll      time.Duration
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// PriceFeedConfig holds price oracle settings
type PriceFeedConfig struct {
	URL      string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// EventsConfig holds event emission settings
type EventsConfig struct {
	WebhookURL     string
	WebhookTimeout time.Duration
	BufferSize     int
}

// LedgerConfig holds settings for the ledger backends
type LedgerConfig struct {
	AssetsFile      string
	TreasuryAccount string
	PrimeWalletId   string
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}
