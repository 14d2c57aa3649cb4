package repo

import (
	"context"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// MuteRepo is the mute record repository interface.
// The platform offers no per-user group mute, so mutes are bot-tracked rows
// enforced by recalling the muted user's messages until expiry.
type MuteRepo interface {
	// Get returns the mute for a user in a conversation, nil when absent
	Get(ctx context.Context, conversationID, userID string) (*domain.MuteRecord, error)

	// Save creates or replaces a mute
	Save(ctx context.Context, m *domain.MuteRecord) error

	// Delete removes a mute, reporting whether it existed
	Delete(ctx context.Context, conversationID, userID string) (bool, error)

	// ListActive returns mutes still in effect at the given time
	ListActive(ctx context.Context, now time.Time) ([]*domain.MuteRecord, error)

	// DeleteExpired prunes mutes that ended before the given time
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
