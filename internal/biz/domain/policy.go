package domain

import "time"

// KeywordRule represents one banned-keyword rule
type KeywordRule struct {
	Pattern string
	IsRegex bool
	Flags   string // regex flags, e.g. "i" (default when empty)
}

// LiteralRules converts plain keyword strings into containment rules
func LiteralRules(keywords []string) []KeywordRule {
	rules := make([]KeywordRule, 0, len(keywords))
	for _, k := range keywords {
		if k == "" {
			continue
		}
		rules = append(rules, KeywordRule{Pattern: k})
	}
	return rules
}

// URLActionRecall and friends name the configured response to a URL violation
const (
	URLActionRecall = "recall"
	URLActionMute   = "mute"
	URLActionWarn   = "warn"
)

// EffectiveConfig is the configuration governing detection for one message.
// The resolver assembles it fresh per message; it is never persisted.
type EffectiveConfig struct {
	Keywords                   []KeywordRule
	URLWhitelist               []string
	CustomMessage              string
	URLCustomMessage           string
	MuteDuration               int // seconds, keyword violations
	URLMuteDuration            int // seconds, URL violations
	URLAction                  string
	AutoPunishment             bool
	SecondViolationMuteSeconds int
	MaxViolationCount          int
	KickOnMax                  bool
	ResetWindowSeconds         int
}

// Clone returns a copy whose slices do not alias the receiver's
func (c EffectiveConfig) Clone() EffectiveConfig {
	out := c
	out.Keywords = append([]KeywordRule(nil), c.Keywords...)
	out.URLWhitelist = append([]string(nil), c.URLWhitelist...)
	return out
}

// ResetWindow returns the inactivity window as a duration
func (c EffectiveConfig) ResetWindow() time.Duration {
	return time.Duration(c.ResetWindowSeconds) * time.Second
}

// GroupOverride represents per-conversation configuration overrides
type GroupOverride struct {
	ConversationID   string    `json:"conversation_id"`
	Enabled          bool      `json:"enabled"`
	Keywords         []string  `json:"keywords"` // literal keywords, full replace when non-empty
	CustomMessage    string    `json:"custom_message"`
	URLWhitelist     []string  `json:"url_whitelist"` // full replace when non-empty
	URLCustomMessage string    `json:"url_custom_message"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MergeKeywords unions the given keywords into the override (case-sensitive,
// no duplicates, insertion order preserved). Returns how many were added.
func (o *GroupOverride) MergeKeywords(keywords []string) int {
	seen := make(map[string]bool, len(o.Keywords))
	for _, k := range o.Keywords {
		seen[k] = true
	}
	added := 0
	for _, k := range keywords {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		o.Keywords = append(o.Keywords, k)
		added++
	}
	return added
}

// Apply overlays the override's non-empty fields onto a copy of global
func (o *GroupOverride) Apply(global EffectiveConfig) EffectiveConfig {
	out := global.Clone()
	if len(o.Keywords) > 0 {
		out.Keywords = LiteralRules(o.Keywords)
	}
	if o.CustomMessage != "" {
		out.CustomMessage = o.CustomMessage
	}
	if len(o.URLWhitelist) > 0 {
		out.URLWhitelist = append([]string(nil), o.URLWhitelist...)
	}
	if o.URLCustomMessage != "" {
		out.URLCustomMessage = o.URLCustomMessage
	}
	return out
}

// KeywordPreset represents a named reusable keyword pack
type KeywordPreset struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"` // ordered
	IsSystem    bool      `json:"is_system"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"created_at"`
}

// MuteRecord represents a bot-tracked mute for one user in one conversation.
// Feishu has no per-user group mute API, so mutes are enforced by recalling
// the user's messages until the record expires.
type MuteRecord struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Until          time.Time `json:"until"`
	Reason         string    `json:"reason"`
}

// Active reports whether the mute is still in effect
func (m *MuteRecord) Active(now time.Time) bool {
	return now.Before(m.Until)
}

// Remaining returns the time left on the mute, zero when expired
func (m *MuteRecord) Remaining(now time.Time) time.Duration {
	if !m.Active(now) {
		return 0
	}
	return m.Until.Sub(now)
}
