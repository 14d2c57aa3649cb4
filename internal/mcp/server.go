package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes the moderation admin API as MCP tools over stdio, so an
// agent can inspect and manage the bot through natural language.
type Server struct {
	server *mcp.Server
	client *Client
}

// NewServer creates a new MCP server backed by the admin API client
func NewServer(client *Client) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "warden-admin",
		Version: "v1.0.0",
	}, nil)

	s := &Server{
		server: server,
		client: client,
	}
	s.registerTools()
	return s
}

// registerTools registers all moderation admin tools
func (s *Server) registerTools() {
	// Violation ledger
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_list_offenders",
		Description: "List users with active violation counts. Scope to one group with conversation_id, or omit it to scan all groups.",
	}, s.handleListOffenders)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_query_record",
		Description: "Get a user's current violation count in a group, including what last triggered it and when the count resets.",
	}, s.handleQueryRecord)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_get_history",
		Description: "Get a user's recent violation history in a group: what they sent, what matched, and what action was taken.",
	}, s.handleGetHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_reset_record",
		Description: "Clear a user's violation count in a group. Use when user says 'forgive XXX', 'reset their count', etc.",
	}, s.handleResetRecord)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_clear_all_records",
		Description: "Clear every violation record across all groups. Destructive, use only when explicitly asked.",
	}, s.handleClearAllRecords)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_resync",
		Description: "Rebuild the bot's in-memory ledger cache from durable storage. Use after editing storage out of band.",
	}, s.handleResync)

	// Group overrides
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_list_overrides",
		Description: "List all per-group configuration overrides.",
	}, s.handleListOverrides)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_set_override",
		Description: "Create or replace a group's configuration override: its keyword list, URL whitelist and notice templates. Non-empty fields replace the global defaults for that group.",
	}, s.handleSetOverride)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_delete_override",
		Description: "Remove a group's configuration override so it falls back to the global defaults.",
	}, s.handleDeleteOverride)

	// Keyword presets
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_list_presets",
		Description: "List all keyword presets, including the built-in system packs.",
	}, s.handleListPresets)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_create_preset",
		Description: "Create or replace a custom keyword preset. System presets cannot be overwritten.",
	}, s.handleCreatePreset)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_delete_preset",
		Description: "Delete a custom keyword preset. System presets cannot be deleted.",
	}, s.handleDeletePreset)

	// Mutes
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_list_mutes",
		Description: "List all mutes currently in effect.",
	}, s.handleListMutes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_mute_user",
		Description: "Mute a user in a group. The bot recalls everything they send until the mute expires. Omit seconds to use the configured default.",
	}, s.handleMuteUser)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_unmute_user",
		Description: "Lift a user's mute in a group. Use when user says 'unmute XXX', 'let them speak again', etc.",
	}, s.handleUnmuteUser)

	// Chats
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "warden_chat_info",
		Description: "Look up a group's name and type by its chat_id. Use to confirm which group a conversation_id refers to.",
	}, s.handleChatInfo)
}

// ============ Violation Ledger Tools ============

// ListOffendersInput scopes the offender listing
type ListOffendersInput struct {
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"The group to list offenders for. Omit to scan all groups."`
}

// ListOffendersOutput contains the offending user IDs
type ListOffendersOutput struct {
	Users []string `json:"users"`
	Error string   `json:"error,omitempty"`
}

func (s *Server) handleListOffenders(ctx context.Context, req *mcp.CallToolRequest, input ListOffendersInput) (*mcp.CallToolResult, ListOffendersOutput, error) {
	users, err := s.client.GetOffenders(input.ConversationID)
	if err != nil {
		return nil, ListOffendersOutput{Error: err.Error()}, nil
	}
	return nil, ListOffendersOutput{Users: users}, nil
}

// QueryRecordInput identifies one user in one group
type QueryRecordInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
	UserID         string `json:"user_id" jsonschema:"The user's open_id"`
}

// QueryRecordOutput is the user's current standing
type QueryRecordOutput struct {
	Count       uint   `json:"count"`
	ResetAt     string `json:"reset_at,omitempty"`
	LastContent string `json:"last_content,omitempty"`
	LastKind    string `json:"last_kind,omitempty"`
	LastAction  string `json:"last_action,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleQueryRecord(ctx context.Context, req *mcp.CallToolRequest, input QueryRecordInput) (*mcp.CallToolResult, QueryRecordOutput, error) {
	if input.ConversationID == "" || input.UserID == "" {
		return nil, QueryRecordOutput{Error: "conversation_id and user_id are required"}, nil
	}

	status, err := s.client.GetRecord(input.ConversationID, input.UserID)
	if err != nil {
		return nil, QueryRecordOutput{Error: err.Error()}, nil
	}

	out := QueryRecordOutput{Count: status.Count, ResetAt: status.ResetAt}
	if status.Record != nil {
		out.LastContent = status.Record.LastTriggerContent
		out.LastKind = status.Record.LastTriggerKind
		out.LastAction = status.Record.LastActionKind
	}
	return nil, out, nil
}

// GetHistoryInput identifies one user in one group
type GetHistoryInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
	UserID         string `json:"user_id" jsonschema:"The user's open_id"`
}

// GetHistoryOutput contains the user's violation history
type GetHistoryOutput struct {
	History []ViolationEntry `json:"history"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) handleGetHistory(ctx context.Context, req *mcp.CallToolRequest, input GetHistoryInput) (*mcp.CallToolResult, GetHistoryOutput, error) {
	if input.ConversationID == "" || input.UserID == "" {
		return nil, GetHistoryOutput{Error: "conversation_id and user_id are required"}, nil
	}

	history, err := s.client.GetRecordHistory(input.ConversationID, input.UserID)
	if err != nil {
		return nil, GetHistoryOutput{Error: err.Error()}, nil
	}
	return nil, GetHistoryOutput{History: history}, nil
}

// ResetRecordInput identifies one user in one group
type ResetRecordInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
	UserID         string `json:"user_id" jsonschema:"The user's open_id"`
}

// ResetRecordOutput reports the reset outcome
type ResetRecordOutput struct {
	Success bool   `json:"success"`
	Existed bool   `json:"existed"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleResetRecord(ctx context.Context, req *mcp.CallToolRequest, input ResetRecordInput) (*mcp.CallToolResult, ResetRecordOutput, error) {
	if input.ConversationID == "" || input.UserID == "" {
		return nil, ResetRecordOutput{Error: "conversation_id and user_id are required"}, nil
	}

	existed, err := s.client.ResetRecord(input.ConversationID, input.UserID)
	if err != nil {
		return nil, ResetRecordOutput{Error: err.Error()}, nil
	}
	return nil, ResetRecordOutput{Success: true, Existed: existed}, nil
}

// ClearAllRecordsInput is empty
type ClearAllRecordsInput struct{}

// ClearAllRecordsOutput reports how many records were dropped
type ClearAllRecordsOutput struct {
	Cleared int64  `json:"cleared"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleClearAllRecords(ctx context.Context, req *mcp.CallToolRequest, input ClearAllRecordsInput) (*mcp.CallToolResult, ClearAllRecordsOutput, error) {
	cleared, err := s.client.ClearViolations()
	if err != nil {
		return nil, ClearAllRecordsOutput{Error: err.Error()}, nil
	}
	return nil, ClearAllRecordsOutput{Cleared: cleared}, nil
}

// ResyncInput is empty
type ResyncInput struct{}

// ResyncOutput reports how many records were loaded
type ResyncOutput struct {
	Loaded int64  `json:"loaded"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleResync(ctx context.Context, req *mcp.CallToolRequest, input ResyncInput) (*mcp.CallToolResult, ResyncOutput, error) {
	loaded, err := s.client.Resync()
	if err != nil {
		return nil, ResyncOutput{Error: err.Error()}, nil
	}
	return nil, ResyncOutput{Loaded: loaded}, nil
}

// ============ Override Tools ============

// ListOverridesInput is empty
type ListOverridesInput struct{}

// ListOverridesOutput contains all per-group overrides
type ListOverridesOutput struct {
	Overrides []Override `json:"overrides"`
	Error     string     `json:"error,omitempty"`
}

func (s *Server) handleListOverrides(ctx context.Context, req *mcp.CallToolRequest, input ListOverridesInput) (*mcp.CallToolResult, ListOverridesOutput, error) {
	overrides, err := s.client.GetOverrides()
	if err != nil {
		return nil, ListOverridesOutput{Error: err.Error()}, nil
	}
	return nil, ListOverridesOutput{Overrides: overrides}, nil
}

// SetOverrideInput is a group's configuration override
type SetOverrideInput struct {
	ConversationID   string   `json:"conversation_id" jsonschema:"The group chat_id"`
	Enabled          bool     `json:"enabled" jsonschema:"Whether moderation is enabled for this group"`
	Keywords         []string `json:"keywords,omitempty" jsonschema:"Keywords replacing the global list for this group"`
	CustomMessage    string   `json:"custom_message,omitempty" jsonschema:"Warning template. Placeholders: {user} {count} {duration}"`
	URLWhitelist     []string `json:"url_whitelist,omitempty" jsonschema:"Allowed URL domains replacing the global whitelist"`
	URLCustomMessage string   `json:"url_custom_message,omitempty" jsonschema:"Warning template for URL violations"`
}

// SetOverrideOutput reports the save outcome
type SetOverrideOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSetOverride(ctx context.Context, req *mcp.CallToolRequest, input SetOverrideInput) (*mcp.CallToolResult, SetOverrideOutput, error) {
	if input.ConversationID == "" {
		return nil, SetOverrideOutput{Error: "conversation_id is required"}, nil
	}

	err := s.client.SaveOverride(Override{
		ConversationID:   input.ConversationID,
		Enabled:          input.Enabled,
		Keywords:         input.Keywords,
		CustomMessage:    input.CustomMessage,
		URLWhitelist:     input.URLWhitelist,
		URLCustomMessage: input.URLCustomMessage,
	})
	if err != nil {
		return nil, SetOverrideOutput{Error: err.Error()}, nil
	}
	return nil, SetOverrideOutput{Success: true}, nil
}

// DeleteOverrideInput identifies one group
type DeleteOverrideInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
}

// DeleteOverrideOutput reports the delete outcome
type DeleteOverrideOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleDeleteOverride(ctx context.Context, req *mcp.CallToolRequest, input DeleteOverrideInput) (*mcp.CallToolResult, DeleteOverrideOutput, error) {
	if input.ConversationID == "" {
		return nil, DeleteOverrideOutput{Error: "conversation_id is required"}, nil
	}

	if err := s.client.DeleteOverride(input.ConversationID); err != nil {
		return nil, DeleteOverrideOutput{Error: err.Error()}, nil
	}
	return nil, DeleteOverrideOutput{Success: true}, nil
}

// ============ Preset Tools ============

// ListPresetsInput is empty
type ListPresetsInput struct{}

// ListPresetsOutput contains all keyword presets
type ListPresetsOutput struct {
	Presets []Preset `json:"presets"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handleListPresets(ctx context.Context, req *mcp.CallToolRequest, input ListPresetsInput) (*mcp.CallToolResult, ListPresetsOutput, error) {
	presets, err := s.client.GetPresets()
	if err != nil {
		return nil, ListPresetsOutput{Error: err.Error()}, nil
	}
	return nil, ListPresetsOutput{Presets: presets}, nil
}

// CreatePresetInput is a custom keyword preset
type CreatePresetInput struct {
	Name        string   `json:"name" jsonschema:"The preset name"`
	Description string   `json:"description,omitempty" jsonschema:"What this preset covers"`
	Keywords    []string `json:"keywords" jsonschema:"The keywords in this preset"`
}

// CreatePresetOutput reports the create outcome
type CreatePresetOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCreatePreset(ctx context.Context, req *mcp.CallToolRequest, input CreatePresetInput) (*mcp.CallToolResult, CreatePresetOutput, error) {
	if input.Name == "" {
		return nil, CreatePresetOutput{Error: "name is required"}, nil
	}
	if len(input.Keywords) == 0 {
		return nil, CreatePresetOutput{Error: "keywords are required"}, nil
	}

	if err := s.client.CreatePreset(input.Name, input.Description, input.Keywords); err != nil {
		return nil, CreatePresetOutput{Error: err.Error()}, nil
	}
	return nil, CreatePresetOutput{Success: true}, nil
}

// DeletePresetInput identifies one preset
type DeletePresetInput struct {
	Name string `json:"name" jsonschema:"The preset name"`
}

// DeletePresetOutput reports the delete outcome
type DeletePresetOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleDeletePreset(ctx context.Context, req *mcp.CallToolRequest, input DeletePresetInput) (*mcp.CallToolResult, DeletePresetOutput, error) {
	if input.Name == "" {
		return nil, DeletePresetOutput{Error: "name is required"}, nil
	}

	if err := s.client.DeletePreset(input.Name); err != nil {
		return nil, DeletePresetOutput{Error: err.Error()}, nil
	}
	return nil, DeletePresetOutput{Success: true}, nil
}

// ============ Mute Tools ============

// ListMutesInput is empty
type ListMutesInput struct{}

// ListMutesOutput contains all active mutes
type ListMutesOutput struct {
	Mutes []Mute `json:"mutes"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleListMutes(ctx context.Context, req *mcp.CallToolRequest, input ListMutesInput) (*mcp.CallToolResult, ListMutesOutput, error) {
	mutes, err := s.client.GetMutes()
	if err != nil {
		return nil, ListMutesOutput{Error: err.Error()}, nil
	}
	return nil, ListMutesOutput{Mutes: mutes}, nil
}

// MuteUserInput describes the mute to apply
type MuteUserInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
	UserID         string `json:"user_id" jsonschema:"The user's open_id"`
	Seconds        int    `json:"seconds,omitempty" jsonschema:"Mute duration in seconds. Omit for the configured default."`
	Reason         string `json:"reason,omitempty" jsonschema:"Why the user is being muted"`
}

// MuteUserOutput reports the mute outcome
type MuteUserOutput struct {
	Success bool   `json:"success"`
	Until   string `json:"until,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleMuteUser(ctx context.Context, req *mcp.CallToolRequest, input MuteUserInput) (*mcp.CallToolResult, MuteUserOutput, error) {
	if input.ConversationID == "" || input.UserID == "" {
		return nil, MuteUserOutput{Error: "conversation_id and user_id are required"}, nil
	}

	until, err := s.client.MuteUser(input.ConversationID, input.UserID, input.Seconds, input.Reason)
	if err != nil {
		return nil, MuteUserOutput{Error: err.Error()}, nil
	}
	return nil, MuteUserOutput{Success: true, Until: until}, nil
}

// UnmuteUserInput identifies one user in one group
type UnmuteUserInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
	UserID         string `json:"user_id" jsonschema:"The user's open_id"`
}

// UnmuteUserOutput reports the unmute outcome
type UnmuteUserOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleUnmuteUser(ctx context.Context, req *mcp.CallToolRequest, input UnmuteUserInput) (*mcp.CallToolResult, UnmuteUserOutput, error) {
	if input.ConversationID == "" || input.UserID == "" {
		return nil, UnmuteUserOutput{Error: "conversation_id and user_id are required"}, nil
	}

	if err := s.client.UnmuteUser(input.ConversationID, input.UserID); err != nil {
		return nil, UnmuteUserOutput{Error: err.Error()}, nil
	}
	return nil, UnmuteUserOutput{Success: true}, nil
}

// ============ Chat Tools ============

// ChatInfoInput identifies one group
type ChatInfoInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The group chat_id"`
}

// ChatInfoOutput is the conversation's name and type
type ChatInfoOutput struct {
	Name     string `json:"name,omitempty"`
	ChatType string `json:"chat_type,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleChatInfo(ctx context.Context, req *mcp.CallToolRequest, input ChatInfoInput) (*mcp.CallToolResult, ChatInfoOutput, error) {
	if input.ConversationID == "" {
		return nil, ChatInfoOutput{Error: "conversation_id is required"}, nil
	}

	info, err := s.client.GetChatInfo(input.ConversationID)
	if err != nil {
		return nil, ChatInfoOutput{Error: err.Error()}, nil
	}
	return nil, ChatInfoOutput{Name: info.Name, ChatType: info.ChatType}, nil
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *Server) GetServer() *mcp.Server {
	return s.server
}
