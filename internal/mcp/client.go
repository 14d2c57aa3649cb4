package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for communicating with the warden admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ============ Violation Ledger ============

// RecordStatus is one user's current offense standing
type RecordStatus struct {
	UserID         string           `json:"user_id"`
	ConversationID string           `json:"conversation_id"`
	Count          uint             `json:"count"`
	ResetAt        string           `json:"reset_at,omitempty"`
	Record         *ViolationRecord `json:"record,omitempty"`
}

// ViolationRecord mirrors the ledger record returned by the admin API
type ViolationRecord struct {
	UserID             string           `json:"user_id"`
	ConversationID     string           `json:"conversation_id"`
	Count              uint             `json:"count"`
	LastTriggerAt      int64            `json:"last_trigger_at"`
	LastTriggerContent string           `json:"last_trigger_content"`
	LastTriggerKind    string           `json:"last_trigger_kind"`
	LastActionKind     string           `json:"last_action_kind"`
	LastMessageBody    string           `json:"last_message_body"`
	History            []ViolationEntry `json:"history"`
}

// ViolationEntry is one item of a record's history
type ViolationEntry struct {
	Timestamp   int64  `json:"timestamp"`
	Content     string `json:"content"`
	Kind        string `json:"kind"`
	Action      string `json:"action"`
	MessageBody string `json:"message_body"`
}

// GetOffenders lists users with active violation counts. An empty
// conversationID queries across all conversations.
func (c *Client) GetOffenders(conversationID string) ([]string, error) {
	path := "/api/violations"
	if conversationID != "" {
		path = fmt.Sprintf("/api/violations/%s", url.PathEscape(conversationID))
	}

	var result struct {
		Users []string `json:"users"`
	}
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

// GetRecord gets one user's violation record in a conversation
func (c *Client) GetRecord(conversationID, userID string) (*RecordStatus, error) {
	var status RecordStatus
	path := fmt.Sprintf("/api/violations/%s/%s", url.PathEscape(conversationID), url.PathEscape(userID))
	if err := c.get(path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetRecordHistory gets the violation history for one user in a conversation
func (c *Client) GetRecordHistory(conversationID, userID string) ([]ViolationEntry, error) {
	var result struct {
		History []ViolationEntry `json:"history"`
	}
	path := fmt.Sprintf("/api/violations/%s/%s/history", url.PathEscape(conversationID), url.PathEscape(userID))
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.History, nil
}

// ResetRecord clears one user's violation count, reporting whether a record existed
func (c *Client) ResetRecord(conversationID, userID string) (bool, error) {
	var result struct {
		Existed bool `json:"existed"`
	}
	path := fmt.Sprintf("/api/violations/%s/%s", url.PathEscape(conversationID), url.PathEscape(userID))
	if err := c.delete(path, &result); err != nil {
		return false, err
	}
	return result.Existed, nil
}

// ClearViolations drops every violation record
func (c *Client) ClearViolations() (int64, error) {
	var result struct {
		Cleared int64 `json:"cleared"`
	}
	if err := c.delete("/api/violations", &result); err != nil {
		return 0, err
	}
	return result.Cleared, nil
}

// Resync rebuilds the bot's ledger cache from durable storage
func (c *Client) Resync() (int64, error) {
	var result struct {
		Loaded int64 `json:"loaded"`
	}
	if err := c.post("/api/resync", nil, &result); err != nil {
		return 0, err
	}
	return result.Loaded, nil
}

// ============ Group Overrides ============

// Override mirrors a per-group configuration override
type Override struct {
	ConversationID   string   `json:"conversation_id"`
	Enabled          bool     `json:"enabled"`
	Keywords         []string `json:"keywords"`
	CustomMessage    string   `json:"custom_message"`
	URLWhitelist     []string `json:"url_whitelist"`
	URLCustomMessage string   `json:"url_custom_message"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// GetOverrides gets all per-group overrides
func (c *Client) GetOverrides() ([]Override, error) {
	var result struct {
		Overrides []Override `json:"overrides"`
	}
	if err := c.get("/api/overrides", &result); err != nil {
		return nil, err
	}
	return result.Overrides, nil
}

// GetOverride gets the override for one conversation
func (c *Client) GetOverride(conversationID string) (*Override, error) {
	var ov Override
	path := fmt.Sprintf("/api/overrides/%s", url.PathEscape(conversationID))
	if err := c.get(path, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// SaveOverride creates or replaces a per-group override
func (c *Client) SaveOverride(ov Override) error {
	return c.post("/api/overrides", ov, nil)
}

// DeleteOverride removes a per-group override
func (c *Client) DeleteOverride(conversationID string) error {
	return c.delete(fmt.Sprintf("/api/overrides/%s", url.PathEscape(conversationID)), nil)
}

// ============ Keyword Presets ============

// Preset mirrors a named keyword pack
type Preset struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	IsSystem    bool     `json:"is_system"`
	Creator     string   `json:"creator"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// GetPresets gets all keyword presets
func (c *Client) GetPresets() ([]Preset, error) {
	var result struct {
		Presets []Preset `json:"presets"`
	}
	if err := c.get("/api/presets", &result); err != nil {
		return nil, err
	}
	return result.Presets, nil
}

// CreatePreset creates or replaces a custom keyword preset
func (c *Client) CreatePreset(name, description string, keywords []string) error {
	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"keywords":    keywords,
	}
	return c.post("/api/presets", body, nil)
}

// DeletePreset removes a custom keyword preset
func (c *Client) DeletePreset(name string) error {
	return c.delete(fmt.Sprintf("/api/presets/%s", url.PathEscape(name)), nil)
}

// ============ Mutes ============

// Mute mirrors an active mute row
type Mute struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Until          string `json:"until"`
	Reason         string `json:"reason"`
}

// GetMutes gets all mutes currently in effect
func (c *Client) GetMutes() ([]Mute, error) {
	var result struct {
		Mutes []Mute `json:"mutes"`
	}
	if err := c.get("/api/mutes", &result); err != nil {
		return nil, err
	}
	return result.Mutes, nil
}

// MuteUser mutes a user, returning when the mute ends. Zero seconds applies
// the bot's configured default duration.
func (c *Client) MuteUser(conversationID, userID string, seconds int, reason string) (string, error) {
	body := map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         userID,
		"seconds":         seconds,
		"reason":          reason,
	}
	var result struct {
		Until string `json:"until"`
	}
	if err := c.post("/api/mutes", body, &result); err != nil {
		return "", err
	}
	return result.Until, nil
}

// UnmuteUser lifts a user's mute
func (c *Client) UnmuteUser(conversationID, userID string) error {
	path := fmt.Sprintf("/api/mutes/%s/%s", url.PathEscape(conversationID), url.PathEscape(userID))
	return c.delete(path, nil)
}

// ============ Chats ============

// ChatInfo mirrors a conversation's name and type
type ChatInfo struct {
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
	ChatType       string `json:"chat_type"`
}

// GetChatInfo gets a conversation's name and type
func (c *Client) GetChatInfo(conversationID string) (*ChatInfo, error) {
	var info ChatInfo
	path := fmt.Sprintf("/api/chats/%s", url.PathEscape(conversationID))
	if err := c.get(path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) delete(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP DELETE failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
