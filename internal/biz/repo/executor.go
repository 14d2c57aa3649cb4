package repo

import (
	"context"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// PunishmentExecutor executes moderation actions against the chat platform.
// All calls are best-effort: booleans report whether the action is believed
// to have succeeded, which drives the follow-up notice. A refused action
// never rolls back ledger state.
type PunishmentExecutor interface {
	// Recall removes a message from the conversation
	Recall(ctx context.Context, conversationID, messageID string) bool

	// Mute silences a user for the given number of seconds
	Mute(ctx context.Context, conversationID, userID string, seconds int) bool

	// Kick removes a user from the conversation
	Kick(ctx context.Context, conversationID, userID string) bool

	// Notify sends a moderation notice mentioning the user
	Notify(ctx context.Context, conversationID, userID, text string)
}

// ChatRepo exposes the platform reads and plain sends the admin surfaces use
type ChatRepo interface {
	// GetChatInfo returns the conversation name and type
	GetChatInfo(ctx context.Context, conversationID string) (*ChatInfo, error)

	// GetChatMembers returns the conversation member list
	GetChatMembers(ctx context.Context, conversationID string) ([]domain.Member, error)

	// SendText sends a plain text message to the conversation
	SendText(ctx context.Context, conversationID, text string) error
}

// ChatInfo represents chat information
type ChatInfo struct {
	ChatID   string
	Name     string
	ChatType string
}
