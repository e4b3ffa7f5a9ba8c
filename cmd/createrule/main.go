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
	"flag"
	"fmt"
	"time"

	"tevra-automation-go/internal/api"
	"tevra-automation-go/internal/common"
	"tevra-automation-go/internal/config"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// schedulePresets are shorthand interval names accepted by --interval.
var schedulePresets = map[string]time.Duration{
	"hourly":  time.Hour,
	"daily":   24 * time.Hour,
	"weekly":  7 * 24 * time.Hour,
	"monthly": 30 * 24 * time.Hour,
}

func parseAndValidateFlags() (store.CreateRuleParams, error) {
	ownerFlag := flag.String("owner", "", "Rule owner account (required)")
	directionFlag := flag.String("direction", "", "Rule direction: topup or withdraw (required)")
	assetFlag := flag.String("asset", "", "Asset symbol (e.g., USDC, ETH) (required)")
	recipientFlag := flag.String("recipient", "", "Recipient account or 0x address (required)")
	amountFlag := flag.String("amount", "", "Amount per execution (required)")
	thresholdFlag := flag.String("threshold", "", "Balance threshold (required)")
	maxBalanceFlag := flag.String("max-balance", "", "Balance ceiling (topup) or floor (withdraw)")
	intervalFlag := flag.String("interval", "", "Schedule interval: Go duration or preset (hourly, daily, weekly, monthly) (required)")
	priceMinFlag := flag.String("price-min", "", "Lower price bound")
	priceMaxFlag := flag.String("price-max", "", "Upper price bound")
	flag.Parse()

	var params store.CreateRuleParams
	if *ownerFlag == "" || *directionFlag == "" || *assetFlag == "" ||
		*recipientFlag == "" || *amountFlag == "" || *thresholdFlag == "" || *intervalFlag == "" {
		return params, fmt.Errorf("required flags: --owner, --direction, --asset, --recipient, --amount, --threshold, --interval")
	}

	params.Owner = *ownerFlag
	params.Direction = models.Direction(*directionFlag)
	params.Asset = *assetFlag
	params.Recipient = *recipientFlag

	for _, field := range []struct {
		dst  *decimal.Decimal
		src  string
		name string
	}{
		{&params.Amount, *amountFlag, "amount"},
		{&params.Threshold, *thresholdFlag, "threshold"},
		{&params.MaxBalance, *maxBalanceFlag, "max-balance"},
		{&params.PriceMin, *priceMinFlag, "price-min"},
		{&params.PriceMax, *priceMaxFlag, "price-max"},
	} {
		if field.src == "" {
			continue
		}
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return params, fmt.Errorf("invalid --%s format: %w", field.name, err)
		}
		*field.dst = d
	}

	if preset, ok := schedulePresets[*intervalFlag]; ok {
		params.ScheduleInterval = preset
	} else {
		interval, err := time.ParseDuration(*intervalFlag)
		if err != nil {
			return params, fmt.Errorf("invalid --interval, use a Go duration or a preset: %w", err)
		}
		params.ScheduleInterval = interval
	}

	return params, nil
}

func main() {
	params, err := parseAndValidateFlags()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if symbols, symErr := common.KnownAssetSymbols(cfg.Ledger.AssetsFile); symErr == nil {
		known := false
		for _, symbol := range symbols {
			if symbol == params.Asset {
				known = true
				break
			}
		}
		if !known {
			fmt.Printf("Warning: asset %s is not in %s, transfers will use raw precision\n",
				params.Asset, cfg.Ledger.AssetsFile)
		}
	}

	ctx := context.Background()
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ruleService := api.NewRuleService(dbService, nil)
	result, err := ruleService.CreateRule(ctx, params)
	if err != nil {
		zap.L().Fatal("Rule creation failed", zap.Error(err))
	}
	if !result.Success {
		fmt.Printf("\n✗ Rule rejected: %s\n\n", result.Error)
		return
	}

	rule := result.Rule
	common.PrintHeader("AUTOMATION RULE CREATED", common.DefaultWidth)
	fmt.Printf("Rule ID:    %s\n", rule.Id)
	fmt.Printf("Owner:      %s\n", rule.Owner)
	fmt.Printf("Direction:  %s\n", rule.Direction)
	fmt.Printf("Asset:      %s\n", rule.Asset)
	fmt.Printf("Recipient:  %s\n", rule.Recipient)
	fmt.Printf("Amount:     %s\n", rule.Amount.String())
	fmt.Printf("Threshold:  %s\n", rule.Threshold.String())
	if rule.MaxBalance.IsPositive() {
		fmt.Printf("Max:        %s\n", rule.MaxBalance.String())
	}
	fmt.Printf("Interval:   %s\n", rule.ScheduleInterval)
	if rule.PriceMin.IsPositive() || rule.PriceMax.IsPositive() {
		fmt.Printf("Price band: [%s, %s]\n", rule.PriceMin.String(), rule.PriceMax.String())
	}
	common.PrintFooter("Rule is active and will be evaluated on the next sweep", common.DefaultWidth)
}
