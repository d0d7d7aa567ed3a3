package output

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const outputColumns = "id, title, status, language, voice_id, speech_rate, visual_style, script_style, seed, must_include, must_exclude, monetization_plan_id, bgm_path, render_path, error_message, created_at, updated_at, completed_at"

// NewOutputParams carries the base configuration supplied when an output
// is created. The configuration survives full pipeline resets.
type NewOutputParams struct {
	Title              string
	Language           string
	VoiceID            string
	SpeechRate         float64
	VisualStyle        string
	ScriptStyle        string
	Seed               int64
	MustInclude        string
	MustExclude        string
	MonetizationPlanID string
}

// NewOutput inserts a new output in DRAFT with gates defaulting to
// NOT_STARTED (gate rows are created lazily on first transition).
func (s *Store) NewOutput(ctx context.Context, params NewOutputParams) (*Output, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("output title is required")
	}
	rate := params.SpeechRate
	if rate <= 0 {
		rate = 1.0
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO outputs (
            id, title, status, language, voice_id, speech_rate, visual_style,
            script_style, seed, must_include, must_exclude, monetization_plan_id,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		title,
		StatusDraft,
		nullableString(strings.TrimSpace(params.Language)),
		nullableString(strings.TrimSpace(params.VoiceID)),
		rate,
		nullableString(strings.TrimSpace(params.VisualStyle)),
		nullableString(strings.TrimSpace(params.ScriptStyle)),
		params.Seed,
		nullableString(params.MustInclude),
		nullableString(params.MustExclude),
		nullableString(strings.TrimSpace(params.MonetizationPlanID)),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, storageErr("insert output", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches an output by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Output, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outputColumns+` FROM outputs WHERE id = ?`, id)
	out, err := scanOutput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get output", err)
	}
	return out, nil
}

// Update persists changes to an existing output.
func (s *Store) Update(ctx context.Context, out *Output) error {
	if out == nil {
		return errors.New("output is nil")
	}
	out.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE outputs
         SET title = ?, status = ?, language = ?, voice_id = ?, speech_rate = ?,
             visual_style = ?, script_style = ?, seed = ?, must_include = ?,
             must_exclude = ?, monetization_plan_id = ?, bgm_path = ?,
             render_path = ?, error_message = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		out.Title,
		out.Status,
		nullableString(out.Language),
		nullableString(out.VoiceID),
		out.SpeechRate,
		nullableString(out.VisualStyle),
		nullableString(out.ScriptStyle),
		out.Seed,
		nullableString(out.MustInclude),
		nullableString(out.MustExclude),
		nullableString(out.MonetizationPlanID),
		nullableString(out.BGMPath),
		nullableString(out.RenderPath),
		nullableString(out.ErrorMessage),
		out.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(out.CompletedAt),
		out.ID,
	)
	if err != nil {
		return storageErr("update output", err)
	}
	return nil
}

// SetStatus transitions the output status only when it currently matches
// one of the expected states. Returns true when a row changed.
func (s *Store) SetStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		res sql.Result
		err error
	)
	if len(from) == 0 {
		res, err = s.execWithRetry(
			ctx,
			`UPDATE outputs SET status = ?, updated_at = ? WHERE id = ?`,
			to, now, id,
		)
	} else {
		placeholders := makePlaceholders(len(from))
		args := make([]any, 0, len(from)+3)
		args = append(args, to, now, id)
		for _, status := range from {
			args = append(args, status)
		}
		res, err = s.execWithRetry(
			ctx,
			`UPDATE outputs SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders+`)`,
			args...,
		)
	}
	if err != nil {
		return false, storageErr("set output status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("set output status", err)
	}
	return affected > 0, nil
}

// List returns outputs filtered by status set (or all outputs when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Output, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + outputColumns + ` FROM outputs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, storageErr("list outputs", err)
	}
	defer rows.Close()

	var outputs []*Output
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			return nil, storageErr("scan output", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

// Stats returns a count of outputs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM outputs GROUP BY status`)
	if err != nil {
		return nil, storageErr("output stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates output state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusDraft:
			health.Draft += count
		case StatusInProgress:
			health.InProgress += count
		case StatusCompleted, StatusRendered:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// Delete removes an output and its dependent rows. Used by CLI cleanup,
// never by the pipeline itself.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM outputs WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete output", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete output", err)
	}
	return affected > 0, nil
}

func scanOutput(scanner interface{ Scan(dest ...any) error }) (*Output, error) {
	var (
		id           string
		title        string
		statusStr    string
		language     sql.NullString
		voiceID      sql.NullString
		speechRate   sql.NullFloat64
		visualStyle  sql.NullString
		scriptStyle  sql.NullString
		seed         sql.NullInt64
		mustInclude  sql.NullString
		mustExclude  sql.NullString
		monetization sql.NullString
		bgmPath      sql.NullString
		renderPath   sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&statusStr,
		&language,
		&voiceID,
		&speechRate,
		&visualStyle,
		&scriptStyle,
		&seed,
		&mustInclude,
		&mustExclude,
		&monetization,
		&bgmPath,
		&renderPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	out := &Output{
		ID:                 id,
		Title:              title,
		Status:             Status(statusStr),
		Language:           language.String,
		VoiceID:            voiceID.String,
		SpeechRate:         speechRate.Float64,
		VisualStyle:        visualStyle.String,
		ScriptStyle:        scriptStyle.String,
		Seed:               seed.Int64,
		MustInclude:        mustInclude.String,
		MustExclude:        mustExclude.String,
		MonetizationPlanID: monetization.String,
		BGMPath:            bgmPath.String,
		RenderPath:         renderPath.String,
		ErrorMessage:       errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		out.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		out.UpdatedAt = updated
	}
	out.CompletedAt = timePtrFrom(completedRaw)
	return out, nil
}
