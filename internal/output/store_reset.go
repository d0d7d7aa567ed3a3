package output

import (
	"context"
	"errors"
	"time"
)

// ResetToPlan wipes all generated work of an output back to a clean
// DRAFT while preserving its base configuration, executions, and cost
// history. This is deliberately a separate path from stage reverts:
// reverts keep downstream artifacts, a plan reset does not.
func (s *Store) ResetToPlan(ctx context.Context, outputID string) error {
	ctx = ensureContext(ctx)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return storageErr("begin reset", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(
			ctx,
			`UPDATE outputs
             SET status = ?, bgm_path = NULL, render_path = NULL,
                 error_message = NULL, completed_at = NULL, updated_at = ?
             WHERE id = ?`,
			StatusDraft,
			time.Now().UTC().Format(time.RFC3339Nano),
			outputID,
		)
		if err != nil {
			return storageErr("reset output", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return storageErr("reset output", err)
		}
		if affected == 0 {
			return errors.New("output not found: " + outputID)
		}

		for _, stmt := range []string{
			`DELETE FROM stage_gates WHERE output_id = ?`,
			`DELETE FROM scenes WHERE output_id = ?`,
			`DELETE FROM products WHERE output_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, outputID); err != nil {
				return storageErr("reset dependents", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return storageErr("commit reset", err)
		}
		return nil
	})
}
