package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
	"github.com/wardenlabs/feishu-warden/internal/metrics"
)

// Server provides the localhost HTTP admin API for operators and the MCP bridge
type Server struct {
	ledgerUC     *usecase.LedgerUsecase
	overrideRepo repo.OverrideRepo
	presetRepo   repo.PresetRepo
	muteRepo     repo.MuteRepo
	chatRepo     repo.ChatRepo

	global domain.EffectiveConfig

	server *http.Server
	port   int
}

// NewServer creates a new API server
func NewServer(
	ledgerUC *usecase.LedgerUsecase,
	overrideRepo repo.OverrideRepo,
	presetRepo repo.PresetRepo,
	muteRepo repo.MuteRepo,
	chatRepo repo.ChatRepo,
	global domain.EffectiveConfig,
	port int,
) *Server {
	return &Server{
		ledgerUC:     ledgerUC,
		overrideRepo: overrideRepo,
		presetRepo:   presetRepo,
		muteRepo:     muteRepo,
		chatRepo:     chatRepo,
		global:       global,
		port:         port,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Violation ledger
	mux.HandleFunc("/api/violations", s.handleViolations)
	mux.HandleFunc("/api/violations/", s.handleViolationItem)
	mux.HandleFunc("/api/resync", s.handleResync)

	// Group overrides
	mux.HandleFunc("/api/overrides", s.handleOverrides)
	mux.HandleFunc("/api/overrides/", s.handleOverrideItem)

	// Keyword presets
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/presets/", s.handlePresetItem)

	// Mutes
	mux.HandleFunc("/api/mutes", s.handleMutes)
	mux.HandleFunc("/api/mutes/", s.handleMuteItem)

	// Chat lookups
	mux.HandleFunc("/api/chats/", s.handleChatItem)

	// Prometheus metrics
	mux.Handle("/metrics", metrics.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: mux,
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// ============ Violation Handlers ============

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		users, err := s.ledgerUC.ListActive(ctx, "", s.global.ResetWindow())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if users == nil {
			users = []string{}
		}
		s.writeJSON(w, map[string]interface{}{"users": users})

	case http.MethodDelete:
		cleared, err := s.ledgerUC.ClearAll(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"cleared": cleared})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleViolationItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/violations/{conversation_id}[/{user_id}[/history]]
	path := strings.TrimPrefix(r.URL.Path, "/api/violations/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleConversationOffenders(w, r, parts[0])
	case len(parts) == 2:
		s.handleRecord(w, r, parts[0], parts[1])
	case len(parts) == 3 && parts[2] == "history":
		s.handleRecordHistory(w, r, parts[0], parts[1])
	default:
		http.Error(w, "invalid path", http.StatusBadRequest)
	}
}

func (s *Server) handleConversationOffenders(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := s.ledgerUC.ListActive(r.Context(), conversationID, s.global.ResetWindow())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	s.writeJSON(w, map[string]interface{}{"conversation_id": conversationID, "users": users})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, conversationID, userID string) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		status, err := s.ledgerUC.Query(ctx, userID, conversationID, s.global.ResetWindow())
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp := map[string]interface{}{
			"user_id":         userID,
			"conversation_id": conversationID,
			"count":           status.Count,
		}
		if !status.ResetAt.IsZero() {
			resp["reset_at"] = status.ResetAt.Format(time.RFC3339)
		}
		if status.Record != nil {
			resp["record"] = status.Record
		}
		s.writeJSON(w, resp)

	case http.MethodDelete:
		existed, err := s.ledgerUC.Reset(ctx, userID, conversationID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "existed": existed})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRecordHistory(w http.ResponseWriter, r *http.Request, conversationID, userID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.ledgerUC.Query(r.Context(), userID, conversationID, s.global.ResetWindow())
	if err != nil {
		s.writeError(w, err)
		return
	}

	history := []domain.ViolationEntry{}
	if status.Record != nil {
		history = status.Record.History
	}
	s.writeJSON(w, map[string]interface{}{"history": history})
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loaded, err := s.ledgerUC.Resync(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"loaded": loaded})
}

// ============ Override Handlers ============

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		overrides, err := s.overrideRepo.ListAll(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"overrides": overrides})

	case http.MethodPost:
		var req struct {
			ConversationID   string   `json:"conversation_id"`
			Enabled          bool     `json:"enabled"`
			Keywords         []string `json:"keywords"`
			CustomMessage    string   `json:"custom_message"`
			URLWhitelist     []string `json:"url_whitelist"`
			URLCustomMessage string   `json:"url_custom_message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ConversationID == "" {
			http.Error(w, "conversation_id is required", http.StatusBadRequest)
			return
		}
		ov := &domain.GroupOverride{
			ConversationID:   req.ConversationID,
			Enabled:          req.Enabled,
			Keywords:         req.Keywords,
			CustomMessage:    req.CustomMessage,
			URLWhitelist:     req.URLWhitelist,
			URLCustomMessage: req.URLCustomMessage,
			UpdatedAt:        time.Now(),
		}
		if err := s.overrideRepo.Save(ctx, ov); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOverrideItem(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimPrefix(r.URL.Path, "/api/overrides/")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		ov, err := s.overrideRepo.Get(ctx, conversationID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ov == nil {
			http.Error(w, "override not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, ov)

	case http.MethodDelete:
		existed, err := s.overrideRepo.Delete(ctx, conversationID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !existed {
			http.Error(w, "override not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ============ Preset Handlers ============

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		presets, err := s.presetRepo.ListAll(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"presets": presets})

	case http.MethodPost:
		var req struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Keywords    []string `json:"keywords"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if len(req.Keywords) == 0 {
			http.Error(w, "keywords are required", http.StatusBadRequest)
			return
		}

		existing, err := s.presetRepo.Get(ctx, req.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if existing != nil && existing.IsSystem {
			http.Error(w, "system presets cannot be modified", http.StatusForbidden)
			return
		}

		preset := &domain.KeywordPreset{
			Name:        req.Name,
			Description: req.Description,
			Keywords:    req.Keywords,
			Creator:     "api",
			CreatedAt:   time.Now(),
		}
		if err := s.presetRepo.Save(ctx, preset); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePresetItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/presets/")
	if name == "" {
		http.Error(w, "preset name is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		preset, err := s.presetRepo.Get(ctx, name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if preset == nil {
			http.Error(w, "preset not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, preset)

	case http.MethodDelete:
		preset, err := s.presetRepo.Get(ctx, name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if preset == nil {
			http.Error(w, "preset not found", http.StatusNotFound)
			return
		}
		if preset.IsSystem {
			http.Error(w, "system presets cannot be deleted", http.StatusForbidden)
			return
		}
		if _, err := s.presetRepo.Delete(ctx, name); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ============ Mute Handlers ============

func (s *Server) handleMutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		mutes, err := s.muteRepo.ListActive(ctx, time.Now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if mutes == nil {
			mutes = []*domain.MuteRecord{}
		}
		s.writeJSON(w, map[string]interface{}{"mutes": mutes})

	case http.MethodPost:
		var req struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
			Seconds        int    `json:"seconds"`
			Reason         string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ConversationID == "" || req.UserID == "" {
			http.Error(w, "conversation_id and user_id are required", http.StatusBadRequest)
			return
		}
		if req.Seconds <= 0 {
			req.Seconds = s.global.MuteDuration
		}
		if req.Reason == "" {
			req.Reason = "manual"
		}

		rec := &domain.MuteRecord{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Until:          time.Now().Add(time.Duration(req.Seconds) * time.Second),
			Reason:         req.Reason,
		}
		if err := s.muteRepo.Save(ctx, rec); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "until": rec.Until.Format(time.RFC3339)})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMuteItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse path: /api/mutes/{conversation_id}/{user_id}
	path := strings.TrimPrefix(r.URL.Path, "/api/mutes/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	existed, err := s.muteRepo.Delete(r.Context(), parts[0], parts[1])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !existed {
		http.Error(w, "mute not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Chat Handlers ============

func (s *Server) handleChatItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	info, err := s.chatRepo.GetChatInfo(r.Context(), conversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"conversation_id": info.ChatID,
		"name":            info.Name,
		"chat_type":       info.ChatType,
	})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
