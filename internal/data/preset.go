package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// presetRepo implements the keyword preset repository on sqlite
type presetRepo struct {
	db *sql.DB
}

// NewPresetRepo creates a sqlite-backed keyword preset repository
func NewPresetRepo(store *Store) repo.PresetRepo {
	return &presetRepo{db: store.db}
}

// Get gets a preset by name, nil when absent
func (r *presetRepo) Get(ctx context.Context, name string) (*domain.KeywordPreset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, description, keywords, is_system, creator, created_at
		FROM keyword_presets
		WHERE name = ?
	`, name)

	preset, err := scanPreset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preset: %w", err)
	}
	return preset, nil
}

// Save saves a preset
func (r *presetRepo) Save(ctx context.Context, preset *domain.KeywordPreset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO keyword_presets (name, description, keywords, is_system, creator, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		preset.Name,
		preset.Description,
		encodeStrings(preset.Keywords),
		boolToInt(preset.IsSystem),
		preset.Creator,
		preset.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

// Delete deletes a preset. System presets are kept.
func (r *presetRepo) Delete(ctx context.Context, name string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM keyword_presets WHERE name = ? AND is_system = 0
	`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete preset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete preset: %w", err)
	}
	return n > 0, nil
}

// ListAll lists all presets
func (r *presetRepo) ListAll(ctx context.Context) ([]*domain.KeywordPreset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description, keywords, is_system, creator, created_at
		FROM keyword_presets
		ORDER BY is_system DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var presets []*domain.KeywordPreset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		presets = append(presets, preset)
	}
	return presets, nil
}

// EnsureSystem seeds system presets that do not exist yet
func (r *presetRepo) EnsureSystem(ctx context.Context, presets []*domain.KeywordPreset) error {
	for _, preset := range presets {
		_, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO keyword_presets (name, description, keywords, is_system, creator, created_at)
			VALUES (?, ?, ?, 1, ?, ?)
		`,
			preset.Name,
			preset.Description,
			encodeStrings(preset.Keywords),
			preset.Creator,
			preset.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed preset %s: %w", preset.Name, err)
		}
	}
	return nil
}

func scanPreset(row rowScanner) (*domain.KeywordPreset, error) {
	var preset domain.KeywordPreset
	var keywords string
	var isSystem int
	var createdAt int64
	err := row.Scan(
		&preset.Name,
		&preset.Description,
		&keywords,
		&isSystem,
		&preset.Creator,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	preset.Keywords = decodeStrings(keywords)
	preset.IsSystem = isSystem != 0
	preset.CreatedAt = time.Unix(createdAt, 0)
	return &preset, nil
}
