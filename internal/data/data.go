package data

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// Store owns the shared sqlite database
type Store struct {
	db *sql.DB
}

// NewStore opens the database and creates the schema
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	fmt.Println("[Store] Database initialized")
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	// Violation ledger
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS violations (
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			last_trigger_at INTEGER NOT NULL DEFAULT 0,
			last_trigger_content TEXT NOT NULL DEFAULT '',
			last_trigger_kind TEXT NOT NULL DEFAULT '',
			last_action_kind TEXT NOT NULL DEFAULT '',
			history TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (user_id, conversation_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create violations table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_violations_conversation ON violations(conversation_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create violations index: %w", err)
	}

	// Add last_message_body column (if not exists) - for database migration
	_, _ = db.Exec(`ALTER TABLE violations ADD COLUMN last_message_body TEXT NOT NULL DEFAULT ''`)

	// Per-group overrides
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_overrides (
			conversation_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			keywords TEXT NOT NULL DEFAULT '[]',
			custom_message TEXT NOT NULL DEFAULT '',
			url_whitelist TEXT NOT NULL DEFAULT '[]',
			url_custom_message TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create group_overrides table: %w", err)
	}

	// Keyword presets
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS keyword_presets (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '[]',
			is_system INTEGER NOT NULL DEFAULT 0,
			creator TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create keyword_presets table: %w", err)
	}

	// Active mutes
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mutes (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			until INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (conversation_id, user_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create mutes table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_mutes_until ON mutes(until)
	`)
	if err != nil {
		return fmt.Errorf("failed to create mutes index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Repositories contains all repositories
type Repositories struct {
	Violation repo.ViolationRepo
	Override  repo.OverrideRepo
	Preset    repo.PresetRepo
	Mute      repo.MuteRepo
	Chat      repo.ChatRepo
	Executor  repo.PunishmentExecutor

	store *Store
}

// NewRepositories creates all repositories
func NewRepositories(feishuClient *feishu.Client, dbPath string, redisURL string) (*Repositories, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}

	// The violation ledger can run on redis when state must be shared
	// across instances; sqlite is the default.
	var violationRepo repo.ViolationRepo
	if redisURL != "" {
		violationRepo, err = NewRedisViolationRepo(redisURL)
		if err != nil {
			store.Close()
			return nil, err
		}
		fmt.Println("[Store] Violation ledger backed by redis")
	} else {
		violationRepo = NewViolationRepo(store)
	}

	muteRepo := NewMuteRepo(store)

	return &Repositories{
		Violation: violationRepo,
		Override:  NewOverrideRepo(store),
		Preset:    NewPresetRepo(store),
		Mute:      muteRepo,
		Chat:      NewFeishuChatRepo(feishuClient),
		Executor:  NewFeishuExecutor(feishuClient, muteRepo),
		store:     store,
	}, nil
}

// Close closes the underlying stores
func (r *Repositories) Close() error {
	if c, ok := r.Violation.(io.Closer); ok {
		_ = c.Close()
	}
	return r.store.Close()
}
