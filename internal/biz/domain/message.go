package domain

import "time"

// ChatType is the conversation type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// Message represents an inbound message entity
type Message struct {
	ID         string
	ChatID     string
	ChatType   ChatType
	Content    string
	SenderID   string
	SenderName string
	MsgType    string // text, image, post, etc.
	CreateTime time.Time
}

// IsFromBot checks if the message is from the bot
func (m *Message) IsFromBot(botID string) bool {
	return m.SenderID == botID
}

// IsGroupMessage checks if the message was sent in a group chat
func (m *Message) IsGroupMessage() bool {
	return m.ChatType == ChatTypeGroup
}
