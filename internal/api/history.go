package api

import (
	"context"

	"tevra-automation-go/internal/models"
)

// GetExecutionHistory returns a rule's recent dispatch attempts, newest
// first.
func (s *RuleService) GetExecutionHistory(ctx context.Context, ruleId string, limit, offset int) ([]models.ExecutionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	executions, err := s.ruleStore.GetExecutionHistory(ctx, ruleId, limit, offset)
	if err != nil {
		return nil, err
	}

	records := make([]models.ExecutionRecord, len(executions))
	for i, execution := range executions {
		processedAt := execution.CompletedAt
		if processedAt.IsZero() {
			processedAt = execution.CreatedAt
		}
		records[i] = models.ExecutionRecord{
			Id:          execution.Id,
			RuleId:      execution.RuleId,
			Direction:   execution.Direction,
			Asset:       execution.Asset,
			Amount:      execution.Amount,
			Recipient:   execution.Recipient,
			Attempt:     execution.Attempt,
			Status:      execution.Status,
			TxRef:       execution.TxRef,
			Error:       execution.Error,
			ProcessedAt: processedAt,
		}
	}
	return records, nil
}
