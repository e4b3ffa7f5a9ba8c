package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"tevra-automation-go/internal/database"
	"tevra-automation-go/internal/events"
	"tevra-automation-go/internal/formance"
	"tevra-automation-go/internal/ledger"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/pricefeed"
	"tevra-automation-go/internal/prime"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		// Only log if the file exists but couldn't be read
		// (godotenv returns an error if .env doesn't exist)
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService     *database.Service
	LedgerService *ledger.Service
	EventBus      *events.Bus
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full engine stack: the SQLite rule store, the
// Formance ledger, the optional Prime custody route, the price feed and the
// event bus. Prime is enabled only when its credentials are configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	formanceService, err := formance.NewService(ctx, cfg.Formance)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	if _, err := os.Stat(cfg.Ledger.AssetsFile); err == nil {
		precisions, err := AssetPrecisions(cfg.Ledger.AssetsFile)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("unable to load asset config: %w", err)
		}
		formanceService.SetPrecisions(precisions)
		zap.L().Info("Loaded asset precisions",
			zap.String("file", cfg.Ledger.AssetsFile),
			zap.Int("assets", len(precisions)))
	} else {
		zap.L().Info("No assets file found, using default precision",
			zap.String("file", cfg.Ledger.AssetsFile))
	}

	// The price feed is only required by rules carrying a price band.
	var priceCache *pricefeed.Cache
	if cfg.PriceFeed.URL != "" {
		priceCache, err = pricefeed.NewCache(cfg.PriceFeed)
		if err != nil {
			dbService.Close()
			return nil, err
		}
	} else {
		zap.L().Info("Price feed not configured, price band rules will fail evaluation")
	}

	primeService, portfolioId, err := initializePrime(ctx)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	ledgerService := ledger.NewService(formanceService, primeService, priceCache, cfg.Ledger, portfolioId)

	sinks := []events.Sink{events.LogSink{}}
	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.WebhookTimeout))
		zap.L().Info("Webhook notifications enabled", zap.String("url", cfg.Events.WebhookURL))
	}
	eventBus := events.NewBus(cfg.Events.BufferSize, sinks...)

	return &Services{
		DbService:     dbService,
		LedgerService: ledgerService,
		EventBus:      eventBus,
	}, nil
}

// initializePrime returns (nil, "", nil) when no Prime credentials are set:
// the engine then serves internal transfers only and rejects external
// recipients as permanent failures.
func initializePrime(ctx context.Context) (*prime.Service, string, error) {
	creds, ok := loadPrimeCredentials()
	if !ok {
		zap.L().Info("Prime credentials not configured, external withdrawals disabled")
		return nil, "", nil
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		return nil, "", err
	}

	zap.L().Info("Finding default portfolio")
	defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, "", err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", defaultPortfolio.Name),
		zap.String("id", defaultPortfolio.Id))

	return primeService, defaultPortfolio.Id, nil
}

// InitializeDatabaseOnly initializes just the rule store without the ledger
// stack. Useful for the CLI tools that only read or mutate rules.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, bool) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, false
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, true
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
