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

package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tevra-automation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// priceResponse is the feed's wire format for a single symbol.
type priceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Cache serves reference prices from an HTTP JSON feed with a TTL cache in
// front. A cached price younger than the TTL is considered fresh enough for
// both the sweep evaluation and the pre-dispatch re-check.
type Cache struct {
	feedURL string
	ttl     time.Duration
	client  *http.Client

	mu      sync.RWMutex
	entries map[string]cachedPrice

	now func() time.Time
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewCache(cfg models.PriceFeedConfig) (*Cache, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("price feed URL cannot be empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid price feed URL: %w", err)
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: cfg.Timeout,
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure http2 transport: %w", err)
	}

	return &Cache{
		feedURL: cfg.URL,
		ttl:     cfg.CacheTTL,
		client: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
		},
		entries: make(map[string]cachedPrice),
		now:     time.Now,
	}, nil
}

// GetPrice returns the reference price for an asset, hitting the feed only
// when the cached value is older than the TTL.
func (c *Cache) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	c.mu.RLock()
	entry, ok := c.entries[asset]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	price, err := c.fetch(ctx, asset)
	if err != nil {
		// A stale price beats no price only within the TTL; beyond it the
		// evaluator must not act on it.
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[asset] = cachedPrice{price: price, fetchedAt: c.now()}
	c.mu.Unlock()

	return price, nil
}

func (c *Cache) fetch(ctx context.Context, asset string) (decimal.Decimal, error) {
	reqURL := fmt.Sprintf("%s?symbol=%s", c.feedURL, url.QueryEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to build price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price feed request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close price feed response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed returned status %d for %s", resp.StatusCode, asset)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("unable to decode price response: %w", err)
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q for %s: %w", body.Price, asset, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s for %s", price.String(), asset)
	}

	zap.L().Debug("Price fetched",
		zap.String("asset", asset),
		zap.String("price", price.String()))
	return price, nil
}
