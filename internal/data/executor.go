package data

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// mentionMarkerRegex matches [MENTION:user_id:name] markers in notice text
var mentionMarkerRegex = regexp.MustCompile(`\[MENTION:([^:]+):([^\]]+)\]`)

// feishuExecutor carries out punishments through the Feishu API
type feishuExecutor struct {
	client *feishu.Client
	mutes  repo.MuteRepo
}

// NewFeishuExecutor creates a Feishu-backed punishment executor
func NewFeishuExecutor(client *feishu.Client, mutes repo.MuteRepo) repo.PunishmentExecutor {
	return &feishuExecutor{client: client, mutes: mutes}
}

// Recall recalls (deletes) a message
func (e *feishuExecutor) Recall(ctx context.Context, conversationID, messageID string) bool {
	if err := e.client.RecallMessage(messageID); err != nil {
		fmt.Printf("[Executor] Failed to recall message %s in %s: %v\n", messageID, conversationID, err)
		return false
	}
	fmt.Printf("[Executor] Recalled message %s in %s\n", messageID, conversationID)
	return true
}

// Mute records a timed mute. Feishu has no per-user group mute API, so the
// record drives recall-on-sight until it expires.
func (e *feishuExecutor) Mute(ctx context.Context, conversationID, userID string, seconds int) bool {
	rec := &domain.MuteRecord{
		ConversationID: conversationID,
		UserID:         userID,
		Until:          time.Now().Add(time.Duration(seconds) * time.Second),
		Reason:         "violation",
	}
	if err := e.mutes.Save(ctx, rec); err != nil {
		fmt.Printf("[Executor] Failed to save mute for %s in %s: %v\n", userID, conversationID, err)
		return false
	}
	fmt.Printf("[Executor] Muted %s in %s for %ds\n", userID, conversationID, seconds)
	return true
}

// Kick removes a member from the chat
func (e *feishuExecutor) Kick(ctx context.Context, conversationID, userID string) bool {
	if err := e.client.RemoveChatMember(conversationID, userID); err != nil {
		fmt.Printf("[Executor] Failed to kick %s from %s: %v\n", userID, conversationID, err)
		return false
	}
	fmt.Printf("[Executor] Kicked %s from %s\n", userID, conversationID)
	return true
}

// Notify sends a notice to the conversation. [MENTION:id:name] markers in
// the text become Feishu @ tags.
func (e *feishuExecutor) Notify(ctx context.Context, conversationID, userID, text string) {
	rendered := mentionMarkerRegex.ReplaceAllString(text, `<at user_id="$1">@$2</at>`)
	if err := e.client.SendText(conversationID, rendered); err != nil {
		fmt.Printf("[Executor] Failed to send notice to %s: %v\n", conversationID, err)
	}
}
