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

	"tevra-automation-go/internal/api"
	"tevra-automation-go/internal/common"
	"tevra-automation-go/internal/config"
	"tevra-automation-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ownerFlag := flag.String("owner", "", "Owner account (required unless --rule is set)")
	ruleFlag := flag.String("rule", "", "Rule id for a single lookup or a transition")
	pauseFlag := flag.Bool("pause", false, "Pause the rule given by --rule")
	reactivateFlag := flag.Bool("reactivate", false, "Reactivate the rule given by --rule")
	deleteFlag := flag.Bool("delete", false, "Delete the rule given by --rule")
	flag.Parse()

	if *ownerFlag == "" && *ruleFlag == "" {
		fmt.Println("Error: --owner or --rule is required")
		flag.Usage()
		return
	}
	transitions := 0
	for _, set := range []bool{*pauseFlag, *reactivateFlag, *deleteFlag} {
		if set {
			transitions++
		}
	}
	if transitions > 1 {
		fmt.Println("Error: --pause, --reactivate and --delete are mutually exclusive")
		return
	}
	if transitions == 1 && *ruleFlag == "" {
		fmt.Println("Error: transitions require --rule")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ruleService := api.NewRuleService(dbService, nil)

	if transitions == 1 {
		applyTransition(ctx, ruleService, *ruleFlag, *pauseFlag, *reactivateFlag)
		return
	}

	rules, err := common.FetchRules(ctx, dbService, *ownerFlag, *ruleFlag, logger)
	if err != nil {
		zap.L().Fatal("Failed to fetch rules", zap.Error(err))
	}

	printRules(rules)
}

func applyTransition(ctx context.Context, ruleService *api.RuleService, ruleId string, pause, reactivate bool) {
	var result *models.RuleResult
	var err error
	var verb string

	switch {
	case pause:
		verb = "paused"
		result, err = ruleService.PauseRule(ctx, ruleId)
	case reactivate:
		verb = "reactivated"
		result, err = ruleService.ReactivateRule(ctx, ruleId)
	default:
		verb = "deleted"
		result, err = ruleService.DeleteRule(ctx, ruleId)
	}

	if err != nil {
		zap.L().Fatal("Rule transition failed", zap.Error(err))
	}
	if !result.Success {
		fmt.Printf("\n✗ Rule not %s: %s\n\n", verb, result.Error)
		return
	}
	fmt.Printf("\n✓ Rule %s %s\n\n", ruleId, verb)
}

func printRules(rules []models.AutomationRule) {
	common.PrintHeader("AUTOMATION RULES", common.DefaultWidth)

	if len(rules) == 0 {
		fmt.Println("No rules found")
		common.PrintFooter("Done", common.DefaultWidth)
		return
	}

	for i, rule := range rules {
		isLast := i == len(rules)-1
		fmt.Printf("%s%s  [%s]  %s %s %s -> %s\n",
			common.BoxPrefix(isLast), rule.Id, rule.Status,
			rule.Direction, rule.Amount.String(), rule.Asset, rule.Recipient)
		fmt.Printf("%s   threshold %s, every %s",
			common.BoxDetailPrefix(isLast), rule.Threshold.String(), rule.ScheduleInterval)
		if rule.MaxBalance.IsPositive() {
			fmt.Printf(", cap %s", rule.MaxBalance.String())
		}
		if rule.PriceMin.IsPositive() || rule.PriceMax.IsPositive() {
			fmt.Printf(", price [%s, %s]", rule.PriceMin.String(), rule.PriceMax.String())
		}
		fmt.Println()
		if rule.Status == models.StatusRetrying {
			fmt.Printf("%s   retry attempt %d at %s (%s)\n",
				common.BoxDetailPrefix(isLast), rule.Retry.Attempt,
				rule.Retry.NextRetry.Format("2006-01-02 15:04:05"), rule.Retry.LastErrorKind)
		}
		if rule.Status == models.StatusFailed {
			fmt.Printf("%s   failed: %s\n",
				common.BoxDetailPrefix(isLast), rule.Retry.LastErrorKind)
		}
		if !rule.LastExecuted.IsZero() {
			fmt.Printf("%s   last executed %s\n",
				common.BoxDetailPrefix(isLast), rule.LastExecuted.Format("2006-01-02 15:04:05"))
		}
	}

	common.PrintFooter(fmt.Sprintf("Total: %d rule(s)", len(rules)), common.DefaultWidth)
}
