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

	"go.uber.org/zap"
)

func main() {
	ruleFlag := flag.String("rule", "", "Rule id (required)")
	limitFlag := flag.Int("limit", 20, "Maximum number of executions to show")
	offsetFlag := flag.Int("offset", 0, "Number of executions to skip")
	flag.Parse()

	if *ruleFlag == "" {
		fmt.Println("Error: --rule is required")
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

	ctx := context.Background()
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ruleService := api.NewRuleService(dbService, nil)
	records, err := ruleService.GetExecutionHistory(ctx, *ruleFlag, *limitFlag, *offsetFlag)
	if err != nil {
		zap.L().Fatal("Failed to fetch execution history", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("EXECUTION HISTORY: %s", *ruleFlag), common.WideWidth)

	if len(records) == 0 {
		fmt.Println("No executions recorded")
		common.PrintFooter("Done", common.WideWidth)
		return
	}

	for i, record := range records {
		isLast := i == len(records)-1
		fmt.Printf("%s%s  [%s]  attempt %d  %s %s %s\n",
			common.BoxPrefix(isLast),
			record.ProcessedAt.Format("2006-01-02 15:04:05"),
			record.Status, record.Attempt,
			record.Direction, record.Amount.String(), record.Asset)
		if record.TxRef != "" {
			fmt.Printf("%s   tx: %s\n", common.BoxDetailPrefix(isLast), record.TxRef)
		}
		if record.Error != "" {
			fmt.Printf("%s   error: %s\n", common.BoxDetailPrefix(isLast), record.Error)
		}
	}

	common.PrintFooter(fmt.Sprintf("Total: %d execution(s)", len(records)), common.WideWidth)
}
