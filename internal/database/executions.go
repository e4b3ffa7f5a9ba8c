package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordExecution appends a journal row for one dispatch attempt. The
// (idempotency_key, attempt) pair is unique, so recording the same attempt
// twice surfaces ErrDuplicateExecution instead of a second row.
func (s *Service) RecordExecution(ctx context.Context, params store.ExecutionParams) (*models.RuleExecution, error) {
	executionId := uuid.New().String()
	status := params.Status
	if status == "" {
		status = models.ExecutionSubmitted
	}

	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		executionId, params.RuleId, params.Owner, params.IdempotencyKey,
		string(params.Direction), params.Asset, params.Recipient,
		params.Amount.String(), params.Attempt, status, params.TxRef, params.Error)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: key %s attempt %d", store.ErrDuplicateExecution, params.IdempotencyKey, params.Attempt)
		}
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	zap.L().Debug("Execution recorded",
		zap.String("execution_id", executionId),
		zap.String("rule_id", params.RuleId),
		zap.String("idempotency_key", params.IdempotencyKey),
		zap.Int("attempt", params.Attempt))

	row := s.db.QueryRowContext(ctx, queryGetExecutionById, executionId)
	return scanExecution(row.Scan)
}

// CompleteExecutionRecord stamps the terminal outcome of a journal row.
func (s *Service) CompleteExecutionRecord(ctx context.Context, executionId, status, txRef, errDetail string) error {
	result, err := s.db.ExecContext(ctx, queryCompleteExecutionRecord, status, txRef, errDetail, executionId)
	if err != nil {
		return fmt.Errorf("failed to complete execution record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("execution record %s not found", executionId)
	}
	return nil
}

// GetExecutionByKey returns the most recent journal row for an idempotency
// key, or nil when the key has never been submitted. The dispatcher uses it
// to close the original journal row when an outcome resolves on a later
// attempt.
func (s *Service) GetExecutionByKey(ctx context.Context, idempotencyKey string) (*models.RuleExecution, error) {
	row := s.db.QueryRowContext(ctx, queryGetExecutionByKey, idempotencyKey)
	exec, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution by key: %w", err)
	}
	return exec, nil
}

// GetExecutionHistory returns paginated execution history for a rule, newest
// first.
func (s *Service) GetExecutionHistory(ctx context.Context, ruleId string, limit, offset int) ([]models.RuleExecution, error) {
	rows, err := s.db.QueryContext(ctx, queryGetExecutionHistory, ruleId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var executions []models.RuleExecution
	for rows.Next() {
		exec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}
	return executions, nil
}

func scanExecution(scan func(dest ...any) error) (*models.RuleExecution, error) {
	var exec models.RuleExecution
	var amountStr string
	var completedAt sql.NullTime

	err := scan(&exec.Id, &exec.RuleId, &exec.Owner, &exec.IdempotencyKey,
		&exec.Direction, &exec.Asset, &exec.Recipient, &amountStr,
		&exec.Attempt, &exec.Status, &exec.TxRef, &exec.Error,
		&exec.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	exec.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amountStr, err)
	}
	if completedAt.Valid {
		exec.CompletedAt = completedAt.Time
	}
	return &exec, nil
}
