package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
)

// InsertSummary inserts a new summary version and deactivates the previous
// active row for (task, summary_type), keeping "exactly one active version"
// (I-3) without a read-modify-write race: both statements run in one tx.
func (db *DB) InsertSummary(ctx context.Context, s *persistence.Summary) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var maxVersion int32
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM summaries WHERE task_id=$1 AND summary_type=$2`,
		s.TaskID, s.SummaryType).Scan(&maxVersion); err != nil {
		return fmt.Errorf("can't read max version: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE summaries SET is_active=false WHERE task_id=$1 AND summary_type=$2 AND is_active=true`,
		s.TaskID, s.SummaryType); err != nil {
		return fmt.Errorf("can't deactivate old summary: %w", err)
	}
	s.Version = maxVersion + 1
	s.Created = time.Now()
	if err := tx.QueryRow(ctx, `INSERT INTO summaries(task_id, summary_type, content, version, is_active,
		visual_format, visual_content, image_key, model_used, prompt_version, token_count, created)
		VALUES($1,$2,$3,$4,true,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		s.TaskID, s.SummaryType, s.Content, s.Version, s.VisualFormat, s.VisualContent, s.ImageKey,
		s.ModelUsed, s.PromptVersion, s.TokenCount, s.Created).Scan(&s.ID); err != nil {
		return fmt.Errorf("can't insert summary: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// ListActiveSummaries returns all active summaries for a task.
func (db *DB) ListActiveSummaries(ctx context.Context, taskID string) ([]*persistence.Summary, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, task_id, summary_type, content, version, is_active,
		visual_format, visual_content, image_key, model_used, prompt_version, token_count, created
		FROM summaries WHERE task_id=$1 AND is_active=true ORDER BY summary_type ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("can't list summaries: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Summary{}
	for rows.Next() {
		var s persistence.Summary
		if err := rows.Scan(&s.ID, &s.TaskID, &s.SummaryType, &s.Content, &s.Version, &s.IsActive,
			&s.VisualFormat, &s.VisualContent, &s.ImageKey, &s.ModelUsed, &s.PromptVersion,
			&s.TokenCount, &s.Created); err != nil {
			return nil, fmt.Errorf("can't scan summary: %w", err)
		}
		res = append(res, &s)
	}
	return res, nil
}

// LoadActiveSummary returns the active summary of one type, or nil.
func (db *DB) LoadActiveSummary(ctx context.Context, taskID, summaryType string) (*persistence.Summary, error) {
	var s persistence.Summary
	err := db.pool.QueryRow(ctx, `SELECT id, task_id, summary_type, content, version, is_active,
		visual_format, visual_content, image_key, model_used, prompt_version, token_count, created
		FROM summaries WHERE task_id=$1 AND summary_type=$2 AND is_active=true`, taskID, summaryType).
		Scan(&s.ID, &s.TaskID, &s.SummaryType, &s.Content, &s.Version, &s.IsActive,
			&s.VisualFormat, &s.VisualContent, &s.ImageKey, &s.ModelUsed, &s.PromptVersion,
			&s.TokenCount, &s.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load summary: %w", err)
	}
	return &s, nil
}
