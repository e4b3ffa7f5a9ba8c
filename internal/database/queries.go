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

const (
	ruleColumns = `id, owner, direction, asset, recipient, amount, threshold, max_balance,
	       schedule_interval, price_min, price_max, status, last_executed, next_eligible,
	       retry_attempt, retry_at, last_error, created_at, updated_at`

	// Rule queries
	queryInsertRule = `
		INSERT INTO automation_rules (
			id, owner, direction, asset, recipient, amount, threshold, max_balance,
			schedule_interval, price_min, price_max, status, next_eligible
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetRule = `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE id = ? AND status != 'deleted'`

	queryGetRulesByOwner = `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE owner = ? AND status != 'deleted'
		ORDER BY created_at`

	queryListDue = `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE (status = 'active' AND next_eligible <= ?)
		   OR (status = 'retrying' AND retry_at <= ?)
		ORDER BY next_eligible`

	queryListInFlight = `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE status = 'in_flight'
		ORDER BY updated_at`

	queryGetRuleStatus = `
		SELECT status FROM automation_rules WHERE id = ? AND status != 'deleted'`

	queryClaimRule = `
		UPDATE automation_rules
		SET status = 'in_flight', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	queryReleaseClaim = `
		UPDATE automation_rules
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'in_flight'`

	queryCompleteExecution = `
		UPDATE automation_rules
		SET status = 'active', last_executed = ?, next_eligible = ?,
		    retry_attempt = 0, retry_at = NULL, last_error = '',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'in_flight'`

	queryScheduleRetry = `
		UPDATE automation_rules
		SET status = 'retrying', retry_attempt = ?, retry_at = ?, last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'in_flight'`

	queryMarkFailed = `
		UPDATE automation_rules
		SET status = 'failed', retry_at = NULL, last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('in_flight', 'retrying')`

	queryPauseRule = `
		UPDATE automation_rules
		SET status = 'paused', retry_attempt = 0, retry_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('active', 'retrying')`

	queryReactivateRule = `
		UPDATE automation_rules
		SET status = 'active', next_eligible = ?, retry_attempt = 0, retry_at = NULL,
		    last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('paused', 'failed')`

	queryDeleteRule = `
		UPDATE automation_rules
		SET status = 'deleted', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status != 'deleted'`

	// Execution journal queries
	queryInsertExecution = `
		INSERT INTO rule_executions (
			id, rule_id, owner, idempotency_key, direction, asset, recipient,
			amount, attempt, status, tx_ref, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryCompleteExecutionRecord = `
		UPDATE rule_executions
		SET status = ?, tx_ref = ?, error = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	executionColumns = `id, rule_id, owner, idempotency_key, direction, asset, recipient,
	       amount, attempt, status, tx_ref, error, created_at, completed_at`

	queryGetExecutionById = `
		SELECT ` + executionColumns + `
		FROM rule_executions
		WHERE id = ?`

	queryGetExecutionByKey = `
		SELECT ` + executionColumns + `
		FROM rule_executions
		WHERE idempotency_key = ?
		ORDER BY attempt DESC
		LIMIT 1`

	queryGetExecutionHistory = `
		SELECT ` + executionColumns + `
		FROM rule_executions
		WHERE rule_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
)
