package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
)

// PolicyConfig is the moderation policy loaded from YAML
type PolicyConfig struct {
	Keywords     []KeywordRuleConfig `yaml:"keywords"`
	URLWhitelist []string            `yaml:"url_whitelist"`
	Messages     MessagesConfig      `yaml:"messages"`
	Thresholds   ThresholdsConfig    `yaml:"thresholds"`
	GroupConfig  GroupConfigPolicy   `yaml:"group_config"`
	Presets      []PresetConfig      `yaml:"presets"`
}

// KeywordRuleConfig is one configured keyword rule
type KeywordRuleConfig struct {
	Pattern string `yaml:"pattern"`
	IsRegex bool   `yaml:"is_regex"`
	Flags   string `yaml:"flags"`
}

// MessagesConfig contains the notice templates. Placeholders: {user},
// {count}, {duration}.
type MessagesConfig struct {
	Keyword string `yaml:"keyword"`
	URL     string `yaml:"url"`
}

// ThresholdsConfig contains the escalation thresholds
type ThresholdsConfig struct {
	MuteDurationSeconds        int    `yaml:"mute_duration_seconds"`
	URLMuteDurationSeconds     int    `yaml:"url_mute_duration_seconds"`
	URLAction                  string `yaml:"url_action"`
	AutoPunishment             *bool  `yaml:"auto_punishment"`
	SecondViolationMuteSeconds int    `yaml:"second_violation_mute_seconds"`
	MaxViolationCount          int    `yaml:"max_violation_count"`
	KickOnMax                  *bool  `yaml:"kick_on_max"`
	ResetWindowSeconds         int    `yaml:"reset_window_seconds"`
}

// GroupConfigPolicy controls per-group overrides
type GroupConfigPolicy struct {
	Enabled           bool     `yaml:"enabled"`
	PreEnabled        []string `yaml:"pre_enabled"`
	AutoImportPresets []string `yaml:"auto_import_presets"`
}

// PresetConfig is a seeded keyword preset
type PresetConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// LoadPolicyConfig loads the moderation policy from a YAML file
func LoadPolicyConfig(configPath string) (*PolicyConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/policy.yaml",
			"./configs/policy.yaml",
			"/etc/feishu-warden/policy.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "policy.yaml"))
		}
		// Add path relative to working directory
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "policy.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	if data == nil {
		// Return default config if no file found
		fmt.Println("[Config] No policy.yaml found, using defaults")
		return DefaultPolicyConfig(), nil
	}

	fmt.Printf("[Config] Loading policy from: %s\n", loadedPath)

	var config PolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy.yaml: %w", err)
	}

	config.fillDefaults()
	return &config, nil
}

// DefaultPolicyConfig returns the built-in policy
func DefaultPolicyConfig() *PolicyConfig {
	autoPunish := true
	kickOnMax := false
	return &PolicyConfig{
		Messages: MessagesConfig{
			Keyword: "{user} 消息包含违规内容，请注意群规（第 {count} 次）",
			URL:     "{user} 请勿发送链接（第 {count} 次）",
		},
		Thresholds: ThresholdsConfig{
			MuteDurationSeconds:        300,
			URLMuteDurationSeconds:     600,
			URLAction:                  domain.URLActionRecall,
			AutoPunishment:             &autoPunish,
			SecondViolationMuteSeconds: 300,
			MaxViolationCount:          5,
			KickOnMax:                  &kickOnMax,
			ResetWindowSeconds:         86400,
		},
	}
}

// fillDefaults fills in default values for empty fields
func (c *PolicyConfig) fillDefaults() {
	defaults := DefaultPolicyConfig()

	if c.Messages.Keyword == "" {
		c.Messages.Keyword = defaults.Messages.Keyword
	}
	if c.Messages.URL == "" {
		c.Messages.URL = defaults.Messages.URL
	}

	if c.Thresholds.MuteDurationSeconds <= 0 {
		c.Thresholds.MuteDurationSeconds = defaults.Thresholds.MuteDurationSeconds
	}
	if c.Thresholds.URLMuteDurationSeconds <= 0 {
		c.Thresholds.URLMuteDurationSeconds = defaults.Thresholds.URLMuteDurationSeconds
	}
	if c.Thresholds.URLAction == "" {
		c.Thresholds.URLAction = defaults.Thresholds.URLAction
	}
	if c.Thresholds.AutoPunishment == nil {
		c.Thresholds.AutoPunishment = defaults.Thresholds.AutoPunishment
	}
	if c.Thresholds.SecondViolationMuteSeconds <= 0 {
		c.Thresholds.SecondViolationMuteSeconds = defaults.Thresholds.SecondViolationMuteSeconds
	}
	if c.Thresholds.MaxViolationCount <= 0 {
		c.Thresholds.MaxViolationCount = defaults.Thresholds.MaxViolationCount
	}
	if c.Thresholds.KickOnMax == nil {
		c.Thresholds.KickOnMax = defaults.Thresholds.KickOnMax
	}
	if c.Thresholds.ResetWindowSeconds <= 0 {
		c.Thresholds.ResetWindowSeconds = defaults.Thresholds.ResetWindowSeconds
	}
}

// ToEffectiveConfig converts the policy into the global effective config
func (c *PolicyConfig) ToEffectiveConfig() domain.EffectiveConfig {
	rules := make([]domain.KeywordRule, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		if k.Pattern == "" {
			continue
		}
		rules = append(rules, domain.KeywordRule{
			Pattern: k.Pattern,
			IsRegex: k.IsRegex,
			Flags:   k.Flags,
		})
	}

	return domain.EffectiveConfig{
		Keywords:                   rules,
		URLWhitelist:               append([]string(nil), c.URLWhitelist...),
		CustomMessage:              c.Messages.Keyword,
		URLCustomMessage:           c.Messages.URL,
		MuteDuration:               c.Thresholds.MuteDurationSeconds,
		URLMuteDuration:            c.Thresholds.URLMuteDurationSeconds,
		URLAction:                  c.Thresholds.URLAction,
		AutoPunishment:             c.Thresholds.AutoPunishment == nil || *c.Thresholds.AutoPunishment,
		SecondViolationMuteSeconds: c.Thresholds.SecondViolationMuteSeconds,
		MaxViolationCount:          c.Thresholds.MaxViolationCount,
		KickOnMax:                  c.Thresholds.KickOnMax != nil && *c.Thresholds.KickOnMax,
		ResetWindowSeconds:         c.Thresholds.ResetWindowSeconds,
	}
}

// ToResolverConfig converts the group-config section for the resolver
func (c *PolicyConfig) ToResolverConfig() usecase.ResolverConfig {
	return usecase.ResolverConfig{
		GroupConfigEnabled: c.GroupConfig.Enabled,
		PreEnabled:         append([]string(nil), c.GroupConfig.PreEnabled...),
		AutoImportPresets:  append([]string(nil), c.GroupConfig.AutoImportPresets...),
	}
}

// SystemPresets converts the configured presets for store seeding
func (c *PolicyConfig) SystemPresets() []*domain.KeywordPreset {
	now := time.Now()
	presets := make([]*domain.KeywordPreset, 0, len(c.Presets))
	for _, p := range c.Presets {
		if p.Name == "" {
			continue
		}
		presets = append(presets, &domain.KeywordPreset{
			Name:        p.Name,
			Description: p.Description,
			Keywords:    append([]string(nil), p.Keywords...),
			IsSystem:    true,
			Creator:     "system",
			CreatedAt:   now,
		})
	}
	return presets
}
