package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// muteRepo implements the mute record repository on sqlite
type muteRepo struct {
	db *sql.DB
}

// NewMuteRepo creates a sqlite-backed mute record repository
func NewMuteRepo(store *Store) repo.MuteRepo {
	return &muteRepo{db: store.db}
}

// Get gets the mute record for a user in a conversation, nil when absent
func (r *muteRepo) Get(ctx context.Context, conversationID, userID string) (*domain.MuteRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, until, reason
		FROM mutes
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)

	rec, err := scanMute(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mute: %w", err)
	}
	return rec, nil
}

// Save saves a mute record
func (r *muteRepo) Save(ctx context.Context, rec *domain.MuteRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO mutes (conversation_id, user_id, until, reason)
		VALUES (?, ?, ?, ?)
	`, rec.ConversationID, rec.UserID, rec.Until.Unix(), rec.Reason)
	if err != nil {
		return fmt.Errorf("failed to save mute: %w", err)
	}
	return nil
}

// Delete deletes a mute record
func (r *muteRepo) Delete(ctx context.Context, conversationID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM mutes WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete mute: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete mute: %w", err)
	}
	return n > 0, nil
}

// ListActive lists mutes that have not expired yet
func (r *muteRepo) ListActive(ctx context.Context, now time.Time) ([]*domain.MuteRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, until, reason
		FROM mutes
		WHERE until > ?
		ORDER BY until ASC
	`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list mutes: %w", err)
	}
	defer rows.Close()

	var records []*domain.MuteRecord
	for rows.Next() {
		rec, err := scanMute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mute: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteExpired deletes mutes whose window has passed
func (r *muteRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM mutes WHERE until <= ?
	`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired mutes: %w", err)
	}
	return result.RowsAffected()
}

func scanMute(row rowScanner) (*domain.MuteRecord, error) {
	var rec domain.MuteRecord
	var until int64
	err := row.Scan(&rec.ConversationID, &rec.UserID, &until, &rec.Reason)
	if err != nil {
		return nil, err
	}
	rec.Until = time.Unix(until, 0)
	return &rec, nil
}
