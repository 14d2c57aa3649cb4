package repo

import (
	"context"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// OverrideRepo is the group override repository interface
type OverrideRepo interface {
	// Get returns the override for a conversation, nil when absent
	Get(ctx context.Context, conversationID string) (*domain.GroupOverride, error)

	// Save creates or replaces an override
	Save(ctx context.Context, ov *domain.GroupOverride) error

	// Delete removes an override, reporting whether it existed
	Delete(ctx context.Context, conversationID string) (bool, error)

	// ListAll returns every stored override
	ListAll(ctx context.Context) ([]*domain.GroupOverride, error)
}

// PresetRepo is the keyword preset repository interface
type PresetRepo interface {
	// Get returns a preset by name, nil when absent
	Get(ctx context.Context, name string) (*domain.KeywordPreset, error)

	// Save creates or replaces a custom preset
	Save(ctx context.Context, preset *domain.KeywordPreset) error

	// Delete removes a custom preset; system presets are refused
	Delete(ctx context.Context, name string) (bool, error)

	// ListAll returns every preset
	ListAll(ctx context.Context) ([]*domain.KeywordPreset, error)

	// EnsureSystem seeds system presets that are not stored yet.
	// Existing presets are left untouched, so seeding is idempotent.
	EnsureSystem(ctx context.Context, presets []*domain.KeywordPreset) error
}
