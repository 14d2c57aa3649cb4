package repo

import (
	"context"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// ViolationRepo is the violation record repository interface.
// It is plain keyed storage: read-time reset, history capping and increment
// semantics live in the ledger usecase, which is the only caller allowed to
// mutate records.
type ViolationRepo interface {
	// Get returns the record for a user in a conversation, nil when absent
	Get(ctx context.Context, userID, conversationID string) (*domain.ViolationRecord, error)

	// Save creates or replaces a record
	Save(ctx context.Context, rec *domain.ViolationRecord) error

	// Delete removes one record, reporting whether it existed
	Delete(ctx context.Context, userID, conversationID string) (bool, error)

	// ListByConversation returns all records scoped to one conversation
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.ViolationRecord, error)

	// ListAll returns every stored record
	ListAll(ctx context.Context) ([]*domain.ViolationRecord, error)

	// DeleteAll removes every record and returns how many were dropped
	DeleteAll(ctx context.Context) (int64, error)
}
