package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Store configuration
	Store StoreConfig

	// Admin API configuration
	API APIConfig

	// Moderation policy (loaded from YAML)
	Policy *PolicyConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
	BotOpenID string // optional; resolved at startup when empty
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DBPath   string
	RedisURL string // optional; switches the violation ledger to Redis
}

// APIConfig contains admin API configuration
type APIConfig struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Warden DB path
	dbPath := os.Getenv("WARDEN_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".feishu-warden", "warden.db")
	}

	// Admin API port
	apiPort := 9877
	if val := os.Getenv("API_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			apiPort = parsed
		}
	}

	// Load moderation policy from YAML
	policyPath := os.Getenv("POLICY_CONFIG_PATH")
	policy, err := LoadPolicyConfig(policyPath)
	if err != nil {
		fmt.Printf("[Config] Policy load failed: %v, using defaults\n", err)
		policy = DefaultPolicyConfig()
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
			BotOpenID: os.Getenv("BOT_OPEN_ID"),
		},
		Store: StoreConfig{
			DBPath:   dbPath,
			RedisURL: os.Getenv("REDIS_URL"),
		},
		API: APIConfig{
			Port: apiPort,
		},
		Policy: policy,
		Debug:  os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return &ConfigError{Field: "API_PORT", Message: "must be a valid port"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
