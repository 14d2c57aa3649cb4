package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// overrideRepo implements the group override repository on sqlite
type overrideRepo struct {
	db *sql.DB
}

// NewOverrideRepo creates a sqlite-backed group override repository
func NewOverrideRepo(store *Store) repo.OverrideRepo {
	return &overrideRepo{db: store.db}
}

// Get gets the override for a conversation, nil when absent
func (r *overrideRepo) Get(ctx context.Context, conversationID string) (*domain.GroupOverride, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, enabled, keywords, custom_message, url_whitelist, url_custom_message, updated_at
		FROM group_overrides
		WHERE conversation_id = ?
	`, conversationID)

	ov, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group override: %w", err)
	}
	return ov, nil
}

// Save saves a group override
func (r *overrideRepo) Save(ctx context.Context, ov *domain.GroupOverride) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO group_overrides (conversation_id, enabled, keywords, custom_message, url_whitelist, url_custom_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ov.ConversationID,
		boolToInt(ov.Enabled),
		encodeStrings(ov.Keywords),
		ov.CustomMessage,
		encodeStrings(ov.URLWhitelist),
		ov.URLCustomMessage,
		ov.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save group override: %w", err)
	}
	return nil
}

// Delete deletes a group override
func (r *overrideRepo) Delete(ctx context.Context, conversationID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM group_overrides WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete group override: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete group override: %w", err)
	}
	return n > 0, nil
}

// ListAll lists all group overrides
func (r *overrideRepo) ListAll(ctx context.Context) ([]*domain.GroupOverride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, enabled, keywords, custom_message, url_whitelist, url_custom_message, updated_at
		FROM group_overrides
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*domain.GroupOverride
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group override: %w", err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, nil
}

func scanOverride(row rowScanner) (*domain.GroupOverride, error) {
	var ov domain.GroupOverride
	var enabled int
	var keywords, whitelist string
	var updatedAt int64
	err := row.Scan(
		&ov.ConversationID,
		&enabled,
		&keywords,
		&ov.CustomMessage,
		&whitelist,
		&ov.URLCustomMessage,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	ov.Enabled = enabled != 0
	ov.Keywords = decodeStrings(keywords)
	ov.URLWhitelist = decodeStrings(whitelist)
	ov.UpdatedAt = time.Unix(updatedAt, 0)
	return &ov, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(data string) []string {
	if data == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}
