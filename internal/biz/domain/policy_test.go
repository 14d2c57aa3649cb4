package domain

import (
	"testing"
	"time"
)

func globalConfigFixture() EffectiveConfig {
	return EffectiveConfig{
		Keywords:                   []KeywordRule{{Pattern: "spam"}, {Pattern: "casino"}},
		URLWhitelist:               []string{"example.com"},
		CustomMessage:              "global keyword notice",
		URLCustomMessage:           "global url notice",
		MuteDuration:               300,
		URLMuteDuration:            600,
		URLAction:                  URLActionRecall,
		AutoPunishment:             true,
		SecondViolationMuteSeconds: 60,
		MaxViolationCount:          3,
		KickOnMax:                  true,
		ResetWindowSeconds:         3600,
	}
}

func TestGroupOverride_Apply(t *testing.T) {
	global := globalConfigFixture()
	ov := &GroupOverride{
		ConversationID: "c1",
		Enabled:        true,
		Keywords:       []string{"scam"},
		CustomMessage:  "group notice",
	}

	eff := ov.Apply(global)

	if len(eff.Keywords) != 1 || eff.Keywords[0].Pattern != "scam" {
		t.Errorf("Expected keyword full replace, got %+v", eff.Keywords)
	}
	if eff.CustomMessage != "group notice" {
		t.Errorf("Expected overridden message, got %q", eff.CustomMessage)
	}
	// Empty override fields keep global values.
	if len(eff.URLWhitelist) != 1 || eff.URLWhitelist[0] != "example.com" {
		t.Errorf("Expected global whitelist preserved, got %v", eff.URLWhitelist)
	}
	if eff.URLCustomMessage != "global url notice" {
		t.Errorf("Expected global url notice preserved, got %q", eff.URLCustomMessage)
	}
	// Thresholds always come from global.
	if eff.SecondViolationMuteSeconds != 60 || eff.MaxViolationCount != 3 || !eff.KickOnMax {
		t.Error("Expected escalation thresholds from global config")
	}
}

func TestGroupOverride_ApplyDoesNotMutateGlobal(t *testing.T) {
	global := globalConfigFixture()
	ov := &GroupOverride{Enabled: true, Keywords: []string{"scam"}, URLWhitelist: []string{"other.com"}}

	eff := ov.Apply(global)
	eff.Keywords[0].Pattern = "mutated"
	eff.URLWhitelist[0] = "mutated.com"

	if global.Keywords[0].Pattern != "spam" {
		t.Error("Expected global keywords untouched")
	}
	if global.URLWhitelist[0] != "example.com" {
		t.Error("Expected global whitelist untouched")
	}
}

func TestGroupOverride_MergeKeywords(t *testing.T) {
	ov := &GroupOverride{Keywords: []string{"a", "b"}}

	added := ov.MergeKeywords([]string{"b", "c", "A", ""})
	if added != 2 {
		t.Errorf("Expected 2 added (c and case-sensitive A), got %d", added)
	}
	want := []string{"a", "b", "c", "A"}
	if len(ov.Keywords) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ov.Keywords)
	}
	for i := range want {
		if ov.Keywords[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, ov.Keywords)
		}
	}

	// Merging the same set again changes nothing.
	if added := ov.MergeKeywords([]string{"b", "c"}); added != 0 {
		t.Errorf("Expected idempotent merge, added %d", added)
	}
}

func TestEffectiveConfig_Clone(t *testing.T) {
	global := globalConfigFixture()
	cp := global.Clone()

	cp.Keywords[0].Pattern = "changed"
	cp.URLWhitelist[0] = "changed.com"

	if global.Keywords[0].Pattern != "spam" || global.URLWhitelist[0] != "example.com" {
		t.Error("Expected clone to not alias slices")
	}
}

func TestLiteralRules(t *testing.T) {
	rules := LiteralRules([]string{"spam", "", "scam"})
	if len(rules) != 2 {
		t.Fatalf("Expected empty keywords dropped, got %d rules", len(rules))
	}
	for _, r := range rules {
		if r.IsRegex {
			t.Error("Expected literal rules to be non-regex")
		}
	}
}

func TestMuteRecord_Active(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	m := &MuteRecord{Until: now.Add(time.Minute)}
	if !m.Active(now) {
		t.Error("Expected mute active before expiry")
	}
	if m.Remaining(now) != time.Minute {
		t.Errorf("Expected 60s remaining, got %v", m.Remaining(now))
	}

	expired := &MuteRecord{Until: now.Add(-time.Millisecond)}
	if expired.Active(now) {
		t.Error("Expected mute expired")
	}
	if expired.Remaining(now) != 0 {
		t.Error("Expected zero remaining after expiry")
	}
}
