package output

import (
	"context"
	"database/sql"
	"time"

	"loom/internal/stages"
)

// LogExecution appends one pipeline log entry for an output.
func (s *Store) LogExecution(ctx context.Context, outputID, step, status, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO executions (output_id, step, status, message, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		outputID, step, status, nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("log execution", err)
	}
	return nil
}

// Executions returns the pipeline log for an output, oldest first.
// A non-positive limit returns the full log.
func (s *Store) Executions(ctx context.Context, outputID string, limit int) ([]Execution, error) {
	query := `SELECT id, output_id, step, status, message, created_at
              FROM executions WHERE output_id = ? ORDER BY id`
	args := []any{outputID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list executions", err)
	}
	defer rows.Close()

	var entries []Execution
	for rows.Next() {
		var (
			entry      Execution
			message    sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.OutputID, &entry.Step, &entry.Status, &message, &createdRaw); err != nil {
			return nil, storageErr("scan execution", err)
		}
		entry.Message = message.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecordCost appends one spend entry for a generation call.
func (s *Store) RecordCost(ctx context.Context, outputID string, stage stages.Stage, provider string, amountUSD float64, detail string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO costs (output_id, stage, provider, amount_usd, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		outputID, stage, provider, amountUSD, nullableString(detail),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("record cost", err)
	}
	return nil
}

// Costs returns all cost entries for an output, oldest first.
func (s *Store) Costs(ctx context.Context, outputID string) ([]Cost, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, output_id, stage, provider, amount_usd, detail, created_at
         FROM costs WHERE output_id = ? ORDER BY id`,
		outputID,
	)
	if err != nil {
		return nil, storageErr("list costs", err)
	}
	defer rows.Close()

	var costs []Cost
	for rows.Next() {
		var (
			cost       Cost
			rawStage   string
			detail     sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&cost.ID, &cost.OutputID, &rawStage, &cost.Provider, &cost.AmountUSD, &detail, &createdRaw); err != nil {
			return nil, storageErr("scan cost", err)
		}
		if stage, ok := stages.Parse(rawStage); ok {
			cost.Stage = stage
		}
		cost.Detail = detail.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			cost.CreatedAt = created
		}
		costs = append(costs, cost)
	}
	return costs, rows.Err()
}

// CostTotal sums all spend recorded for an output.
func (s *Store) CostTotal(ctx context.Context, outputID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT SUM(amount_usd) FROM costs WHERE output_id = ?`,
		outputID,
	).Scan(&total)
	if err != nil {
		return 0, storageErr("sum costs", err)
	}
	return total.Float64, nil
}
