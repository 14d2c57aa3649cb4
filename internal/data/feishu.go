package data

import (
	"context"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// feishuChatRepo implements the chat repository on the Feishu API
type feishuChatRepo struct {
	client *feishu.Client
}

// NewFeishuChatRepo creates a Feishu-backed chat repository
func NewFeishuChatRepo(client *feishu.Client) repo.ChatRepo {
	return &feishuChatRepo{client: client}
}

// GetChatInfo gets chat info
func (r *feishuChatRepo) GetChatInfo(ctx context.Context, conversationID string) (*repo.ChatInfo, error) {
	info, err := r.client.GetChatInfo(conversationID)
	if err != nil {
		return nil, err
	}
	return &repo.ChatInfo{
		ChatID:   info.ChatID,
		Name:     info.Name,
		ChatType: info.ChatType,
	}, nil
}

// GetChatMembers gets the chat member list
func (r *feishuChatRepo) GetChatMembers(ctx context.Context, conversationID string) ([]domain.Member, error) {
	members, err := r.client.GetChatMembers(conversationID)
	if err != nil {
		return nil, err
	}

	var result []domain.Member
	for _, m := range members {
		result = append(result, domain.Member{
			UserID: m.MemberID,
			Name:   m.Name,
		})
	}
	return result, nil
}

// SendText sends a plain text message
func (r *feishuChatRepo) SendText(ctx context.Context, conversationID, text string) error {
	return r.client.SendText(conversationID, text)
}
