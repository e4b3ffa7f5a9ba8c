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

package common

import (
	"context"
	"fmt"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"go.uber.org/zap"
)

// FetchRules retrieves rules based on an optional rule id filter.
// If ruleId is provided, returns that single rule for the command-line
// utilities; otherwise all of the owner's rules.
func FetchRules(ctx context.Context, ruleStore store.RuleStore, owner, ruleId string, logger *zap.Logger) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule

	if ruleId != "" {
		logger.Info("Looking up rule by id", zap.String("rule_id", ruleId))
		rule, err := ruleStore.GetRule(ctx, ruleId)
		if err != nil {
			return nil, fmt.Errorf("rule not found: %w", err)
		}
		rules = append(rules, *rule)
	} else {
		ownerRules, err := ruleStore.GetRulesByOwner(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to get rules: %w", err)
		}
		rules = ownerRules
	}

	logger.Info("Retrieved rules", zap.Int("count", len(rules)))
	return rules, nil
}
