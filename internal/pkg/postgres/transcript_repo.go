package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/voxsum/internal/pkg/persistence"
)

// InsertTranscriptSegments bulk-inserts immutable segments for a task.
func (db *DB) InsertTranscriptSegments(ctx context.Context, taskID string, segs []*persistence.TranscriptSegment) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, s := range segs {
		words, err := json.Marshal(s.Words)
		if err != nil {
			return fmt.Errorf("can't marshal words: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO transcript_segments(task_id, speaker_id, start_sec, end_sec,
			content, confidence, words, seq) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			taskID, s.SpeakerID, s.Start, s.End, s.Content, s.Confidence, words, i); err != nil {
			return fmt.Errorf("can't insert segment: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// ListTranscriptSegments returns a page of segments in original order.
func (db *DB) ListTranscriptSegments(ctx context.Context, taskID string, page, pageSize int) ([]*persistence.TranscriptSegment, int, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM transcript_segments WHERE task_id=$1`, taskID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("can't count segments: %w", err)
	}

	rows, err := db.pool.Query(ctx, `SELECT id, task_id, speaker_id, start_sec, end_sec, content, confidence,
		words, is_edited, original_content, seq FROM transcript_segments
		WHERE task_id=$1 ORDER BY seq ASC LIMIT $2 OFFSET $3`, taskID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("can't list segments: %w", err)
	}
	defer rows.Close()

	res := []*persistence.TranscriptSegment{}
	for rows.Next() {
		var s persistence.TranscriptSegment
		var words []byte
		if err := rows.Scan(&s.ID, &s.TaskID, &s.SpeakerID, &s.Start, &s.End, &s.Content, &s.Confidence,
			&words, &s.IsEdited, &s.OriginalContent, &s.Seq); err != nil {
			return nil, 0, fmt.Errorf("can't scan segment: %w", err)
		}
		if len(words) > 0 {
			_ = json.Unmarshal(words, &s.Words)
		}
		res = append(res, &s)
	}
	return res, total, nil
}

// EditSegment implements the "edit produces is_edited=true with original preserved" invariant.
func (db *DB) EditSegment(ctx context.Context, id int64, newContent string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE transcript_segments SET
		original_content = COALESCE(original_content, content),
		content = $2, is_edited = true WHERE id = $1`, id, newContent)
	if err != nil {
		return fmt.Errorf("can't edit segment: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("segment not found: %d", id)
	}
	return nil
}
