package output

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"loom/internal/stages"
)

const gateColumns = "output_id, stage, status, feedback, feedback_kind, run_id, executed_at, reviewed_at, updated_at"

// Gate returns the gate for one (output, stage) pair. A pair with no row
// yet reads as NOT_STARTED, matching the lazy row creation in
// BeginGeneration.
func (s *Store) Gate(ctx context.Context, outputID string, stage stages.Stage) (*Gate, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+gateColumns+` FROM stage_gates WHERE output_id = ? AND stage = ?`,
		outputID, stage,
	)
	gate, err := scanGate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &Gate{OutputID: outputID, Stage: stage, Status: GateNotStarted}, nil
	}
	if err != nil {
		return nil, storageErr("get gate", err)
	}
	return gate, nil
}

// Gates returns the full gate map for an output. Stages without a stored
// row are filled in as NOT_STARTED so callers always see every stage.
func (s *Store) Gates(ctx context.Context, outputID string) (map[stages.Stage]*Gate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+gateColumns+` FROM stage_gates WHERE output_id = ?`,
		outputID,
	)
	if err != nil {
		return nil, storageErr("list gates", err)
	}
	defer rows.Close()

	gates := make(map[stages.Stage]*Gate, len(stages.All()))
	for rows.Next() {
		gate, err := scanGate(rows)
		if err != nil {
			return nil, storageErr("scan gate", err)
		}
		gates[gate.Stage] = gate
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list gates", err)
	}

	for _, desc := range stages.All() {
		if _, ok := gates[desc.Stage]; !ok {
			gates[desc.Stage] = &Gate{OutputID: outputID, Stage: desc.Stage, Status: GateNotStarted}
		}
	}
	return gates, nil
}

// BeginGeneration attempts to move a gate into GENERATING under the
// supplied run id. It returns acquired=false when another run already
// holds the gate or the gate is APPROVED; callers must treat that as a
// no-op, not an error. The transition is a compare-and-swap so two
// concurrent starts can never both win.
func (s *Store) BeginGeneration(ctx context.Context, outputID string, stage stages.Stage, runID string) (bool, error) {
	if runID == "" {
		return false, errors.New("run id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Ensure the row exists so the conditional update below is the only
	// place the state decision happens.
	if _, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO stage_gates (output_id, stage, status, updated_at)
         VALUES (?, ?, ?, ?)`,
		outputID, stage, GateNotStarted, now,
	); err != nil {
		return false, storageErr("init gate", err)
	}

	placeholders := makePlaceholders(len(startableGateStatuses))
	args := make([]any, 0, len(startableGateStatuses)+4)
	args = append(args, GateGenerating, runID, now, now)
	args = append(args, outputID, stage)
	for _, status := range startableGateStatuses {
		args = append(args, status)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_gates
         SET status = ?, run_id = ?, executed_at = ?, updated_at = ?
         WHERE output_id = ? AND stage = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, storageErr("begin generation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("begin generation", err)
	}
	return affected > 0, nil
}

// CompleteGeneration moves a GENERATING gate to PENDING_REVIEW, but only
// when the stored run id still matches. A completion arriving after a
// cancel or a newer run finds a different run id and is dropped.
func (s *Store) CompleteGeneration(ctx context.Context, outputID string, stage stages.Stage, runID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_gates
         SET status = ?, feedback = NULL, feedback_kind = NULL, updated_at = ?
         WHERE output_id = ? AND stage = ? AND status = ? AND run_id = ?`,
		GatePendingReview, now, outputID, stage, GateGenerating, runID,
	)
	if err != nil {
		return false, storageErr("complete generation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("complete generation", err)
	}
	return affected > 0, nil
}

// FailGeneration moves a GENERATING gate to FAILED with classified
// feedback, guarded by the same run id check as CompleteGeneration.
func (s *Store) FailGeneration(ctx context.Context, outputID string, stage stages.Stage, runID, feedback, feedbackKind string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_gates
         SET status = ?, feedback = ?, feedback_kind = ?, updated_at = ?
         WHERE output_id = ? AND stage = ? AND status = ? AND run_id = ?`,
		GateFailed, nullableString(feedback), nullableString(feedbackKind), now,
		outputID, stage, GateGenerating, runID,
	)
	if err != nil {
		return false, storageErr("fail generation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("fail generation", err)
	}
	return affected > 0, nil
}

// SetGateStatus unconditionally writes a gate status, creating the row
// when absent. Review transitions (approve, reject, revert) go through
// this path since the reviewer, not a run, owns them.
func (s *Store) SetGateStatus(ctx context.Context, outputID string, stage stages.Stage, status GateStatus, feedback string) error {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	var reviewed any
	switch status {
	case GateApproved, GateRejected:
		reviewed = nowStr
	default:
		reviewed = nil
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO stage_gates (output_id, stage, status, feedback, reviewed_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (output_id, stage) DO UPDATE SET
             status = excluded.status,
             feedback = excluded.feedback,
             feedback_kind = NULL,
             run_id = NULL,
             reviewed_at = excluded.reviewed_at,
             updated_at = excluded.updated_at`,
		outputID, stage, status, nullableString(feedback), reviewed, nowStr,
	)
	if err != nil {
		return storageErr("set gate status", err)
	}
	return nil
}

// TransitionGate writes a gate status only when the gate currently sits
// in one of the expected states. Returns true when the row changed.
func (s *Store) TransitionGate(ctx context.Context, outputID string, stage stages.Stage, to GateStatus, from ...GateStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires at least one source status")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(from))
	args := make([]any, 0, len(from)+4)
	args = append(args, to, now, outputID, stage)
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_gates
         SET status = ?, updated_at = ?
         WHERE output_id = ? AND stage = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, storageErr("transition gate", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("transition gate", err)
	}
	return affected > 0, nil
}

// ResetGenerating clears every GENERATING gate of an output back to
// NOT_STARTED. Used by cancellation and the stale-run reclaimer; the
// run id is nulled so any in-flight completion for the old run misses.
func (s *Store) ResetGenerating(ctx context.Context, outputID string) ([]stages.Stage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage FROM stage_gates WHERE output_id = ? AND status = ?`,
		outputID, GateGenerating,
	)
	if err != nil {
		return nil, storageErr("find generating gates", err)
	}
	var reset []stages.Stage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, storageErr("scan generating gate", err)
		}
		if stage, ok := stages.Parse(raw); ok {
			reset = append(reset, stage)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("find generating gates", err)
	}
	rows.Close()

	if len(reset) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE stage_gates
         SET status = ?, run_id = NULL, updated_at = ?
         WHERE output_id = ? AND status = ?`,
		GateNotStarted, now, outputID, GateGenerating,
	); err != nil {
		return nil, storageErr("reset generating gates", err)
	}
	return reset, nil
}

// StaleGate identifies a GENERATING gate whose run started before some
// cutoff and is presumed abandoned.
type StaleGate struct {
	OutputID   string
	Stage      stages.Stage
	ExecutedAt time.Time
}

// StaleGates finds GENERATING gates whose execution started before the
// cutoff.
func (s *Store) StaleGates(ctx context.Context, cutoff time.Time) ([]StaleGate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT output_id, stage, executed_at FROM stage_gates
         WHERE status = ? AND executed_at IS NOT NULL AND executed_at < ?`,
		GateGenerating, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, storageErr("find stale gates", err)
	}
	defer rows.Close()

	var stale []StaleGate
	for rows.Next() {
		var (
			outputID string
			rawStage string
			rawTime  string
		)
		if err := rows.Scan(&outputID, &rawStage, &rawTime); err != nil {
			return nil, storageErr("scan stale gate", err)
		}
		stage, ok := stages.Parse(rawStage)
		if !ok {
			continue
		}
		executedAt, err := parseTimeString(rawTime)
		if err != nil {
			continue
		}
		stale = append(stale, StaleGate{OutputID: outputID, Stage: stage, ExecutedAt: executedAt})
	}
	return stale, rows.Err()
}

func scanGate(scanner interface{ Scan(dest ...any) error }) (*Gate, error) {
	var (
		outputID     string
		rawStage     string
		rawStatus    string
		feedback     sql.NullString
		feedbackKind sql.NullString
		runID        sql.NullString
		executedRaw  sql.NullString
		reviewedRaw  sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&outputID,
		&rawStage,
		&rawStatus,
		&feedback,
		&feedbackKind,
		&runID,
		&executedRaw,
		&reviewedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	stage, ok := stages.Parse(rawStage)
	if !ok {
		return nil, errors.New("unknown stage in gate row: " + rawStage)
	}

	gate := &Gate{
		OutputID:     outputID,
		Stage:        stage,
		Status:       GateStatus(rawStatus),
		Feedback:     feedback.String,
		FeedbackKind: feedbackKind.String,
		RunID:        runID.String,
		ExecutedAt:   timePtrFrom(executedRaw),
		ReviewedAt:   timePtrFrom(reviewedRaw),
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		gate.UpdatedAt = updated
	}
	return gate, nil
}
