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

package api

import (
	"context"
	"fmt"

	"tevra-automation-go/internal/events"
	"tevra-automation-go/internal/store"
)

// RuleService is the rule management surface consumed by the HTTP layer and
// the CLI tools. Mutations emit lifecycle events; reads pass straight through.
type RuleService struct {
	ruleStore store.RuleStore
	emitter   events.Emitter
}

func NewRuleService(ruleStore store.RuleStore, emitter events.Emitter) *RuleService {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &RuleService{
		ruleStore: ruleStore,
		emitter:   emitter,
	}
}

func (s *RuleService) HealthCheck(ctx context.Context) error {
	if _, err := s.ruleStore.ListInFlight(ctx); err != nil {
		return fmt.Errorf("rule store health check failed: %w", err)
	}
	return nil
}
