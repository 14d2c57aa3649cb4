package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
	"github.com/wardenlabs/feishu-warden/internal/service"
)

// p2pUsageHint replies to direct messages; moderation only runs in groups.
const p2pUsageHint = "我是群内容巡查机器人，请将我拉入群聊并授予群管理员权限后使用。"

// FeishuServer receives Feishu events and feeds them to the moderation service
type FeishuServer struct {
	feishuClient *feishu.Client
	chatRepo     repo.ChatRepo
	modSvc       *service.ModerationService
	janitor      *service.Janitor

	botIDOnce sync.Once

	// Message deduplication cache
	seenMsgsMu sync.RWMutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(
	feishuClient *feishu.Client,
	chatRepo repo.ChatRepo,
	modSvc *service.ModerationService,
	janitor *service.Janitor,
) *FeishuServer {
	return &FeishuServer{
		feishuClient: feishuClient,
		chatRepo:     chatRepo,
		modSvc:       modSvc,
		janitor:      janitor,
		seenMsgs:     make(map[string]time.Time),
	}
}

// Start starts the janitor and the Feishu event loop (blocking)
func (s *FeishuServer) Start() error {
	if s.janitor != nil {
		s.janitor.Start(context.Background())
	}

	s.feishuClient.OnMessage(s.handleMessage)
	return s.feishuClient.Start()
}

// Stop stops the server
func (s *FeishuServer) Stop() {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	s.feishuClient.Stop()
}

// handleMessage handles one Feishu message event
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	// The bot's open_id is available once the client has connected. Keep a
	// configured value when the startup fetch came back empty.
	s.botIDOnce.Do(func() {
		if id := s.feishuClient.BotOpenID(); id != "" {
			s.modSvc.SetBotID(id)
		}
	})

	fmt.Printf("[Server] Received %s from %s (chatType=%s): %s\n",
		msg.MsgType, msg.ChatID, msg.ChatType, truncate(msg.Content, 50))

	// Event redeliveries: check if already processed
	if s.isMessageSeen(msg.MsgID) {
		fmt.Printf("[Server] Duplicate message ignored: %s\n", msg.MsgID)
		return
	}
	s.markMessageSeen(msg.MsgID)

	ctx := context.Background()

	chatType := domain.ChatTypeP2P
	if msg.ChatType == "group" {
		chatType = domain.ChatTypeGroup
	}

	// Direct messages get a usage hint instead of moderation.
	if chatType != domain.ChatTypeGroup {
		if err := s.chatRepo.SendText(ctx, msg.ChatID, p2pUsageHint); err != nil {
			fmt.Printf("[Server] Failed to send usage hint: %v\n", err)
		}
		return
	}

	senderID := ""
	if msg.Sender != nil {
		senderID = msg.Sender.SenderID
	}

	inbound := &domain.Message{
		ID:         msg.MsgID,
		ChatID:     msg.ChatID,
		ChatType:   chatType,
		Content:    msg.Content,
		SenderID:   senderID,
		SenderName: s.resolveSenderName(ctx, msg.ChatID, senderID),
		MsgType:    msg.MsgType,
		CreateTime: time.UnixMilli(msg.CreateTime),
	}

	if err := s.modSvc.HandleMessage(ctx, inbound); err != nil {
		fmt.Printf("[Server] Handle message error: %v\n", err)
	}
}

// resolveSenderName looks the sender up in the member list, empty when unknown
func (s *FeishuServer) resolveSenderName(ctx context.Context, chatID, senderID string) string {
	if senderID == "" {
		return ""
	}
	members, err := s.chatRepo.GetChatMembers(ctx, chatID)
	if err != nil {
		return ""
	}
	for _, m := range members {
		if m.UserID == senderID {
			return m.Name
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isMessageSeen checks if a message has been processed
func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.RLock()
	defer s.seenMsgsMu.RUnlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen marks a message as processed
func (s *FeishuServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	s.seenMsgs[msgID] = time.Now()

	// Clean up expired message records (older than 5 minutes)
	// Clean up when marking new messages to prevent memory leaks
	cutoff := time.Now().Add(-5 * time.Minute)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
