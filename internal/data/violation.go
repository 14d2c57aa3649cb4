package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// violationRepo implements the violation ledger on sqlite
type violationRepo struct {
	db *sql.DB
}

// NewViolationRepo creates a sqlite-backed violation repository
func NewViolationRepo(store *Store) repo.ViolationRepo {
	return &violationRepo{db: store.db}
}

const violationColumns = `user_id, conversation_id, count, last_trigger_at, last_trigger_content, last_trigger_kind, last_action_kind, last_message_body, history`

// Get gets a violation record, nil when absent
func (r *violationRepo) Get(ctx context.Context, userID, conversationID string) (*domain.ViolationRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+violationColumns+`
		FROM violations
		WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID)

	rec, err := scanViolation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query violation: %w", err)
	}
	return rec, nil
}

// Save saves a violation record
func (r *violationRepo) Save(ctx context.Context, rec *domain.ViolationRecord) error {
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("failed to encode violation history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO violations (`+violationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.UserID,
		rec.ConversationID,
		rec.Count,
		rec.LastTriggerAt,
		rec.LastTriggerContent,
		string(rec.LastTriggerKind),
		string(rec.LastActionKind),
		rec.LastMessageBody,
		string(history),
	)
	if err != nil {
		return fmt.Errorf("failed to save violation: %w", err)
	}
	return nil
}

// Delete deletes a violation record
func (r *violationRepo) Delete(ctx context.Context, userID, conversationID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM violations WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete violation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete violation: %w", err)
	}
	return n > 0, nil
}

// ListByConversation lists violation records for one conversation
func (r *violationRepo) ListByConversation(ctx context.Context, conversationID string) ([]*domain.ViolationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+violationColumns+`
		FROM violations
		WHERE conversation_id = ?
		ORDER BY last_trigger_at DESC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	return scanViolations(rows)
}

// ListAll lists all violation records
func (r *violationRepo) ListAll(ctx context.Context) ([]*domain.ViolationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+violationColumns+`
		FROM violations
		ORDER BY last_trigger_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	return scanViolations(rows)
}

// DeleteAll deletes all violation records
func (r *violationRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM violations`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear violations: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanViolation(row rowScanner) (*domain.ViolationRecord, error) {
	var rec domain.ViolationRecord
	var kind, action, history string
	err := row.Scan(
		&rec.UserID,
		&rec.ConversationID,
		&rec.Count,
		&rec.LastTriggerAt,
		&rec.LastTriggerContent,
		&kind,
		&action,
		&rec.LastMessageBody,
		&history,
	)
	if err != nil {
		return nil, err
	}
	rec.LastTriggerKind = domain.TriggerKind(kind)
	rec.LastActionKind = domain.ActionKind(action)
	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		rec.History = nil
	}
	return &rec, nil
}

func scanViolations(rows *sql.Rows) ([]*domain.ViolationRecord, error) {
	var records []*domain.ViolationRecord
	for rows.Next() {
		rec, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
