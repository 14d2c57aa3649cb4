package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// Mock implementations

type mockOverrideRepo struct {
	mu        sync.Mutex
	overrides map[string]*domain.GroupOverride
	getErr    error
	saveCount int
}

func (m *mockOverrideRepo) Get(ctx context.Context, conversationID string) (*domain.GroupOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.overrides[conversationID], nil
}

func (m *mockOverrideRepo) Save(ctx context.Context, ov *domain.GroupOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCount++
	m.overrides[ov.ConversationID] = ov
	return nil
}

func (m *mockOverrideRepo) Delete(ctx context.Context, conversationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.overrides[conversationID]
	delete(m.overrides, conversationID)
	return ok, nil
}

func (m *mockOverrideRepo) ListAll(ctx context.Context) ([]*domain.GroupOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GroupOverride
	for _, ov := range m.overrides {
		out = append(out, ov)
	}
	return out, nil
}

type mockPresetRepo struct {
	presets map[string]*domain.KeywordPreset
}

func (m *mockPresetRepo) Get(ctx context.Context, name string) (*domain.KeywordPreset, error) {
	return m.presets[name], nil
}

func (m *mockPresetRepo) Save(ctx context.Context, p *domain.KeywordPreset) error {
	m.presets[p.Name] = p
	return nil
}

func (m *mockPresetRepo) Delete(ctx context.Context, name string) (bool, error) {
	_, ok := m.presets[name]
	delete(m.presets, name)
	return ok, nil
}

func (m *mockPresetRepo) ListAll(ctx context.Context) ([]*domain.KeywordPreset, error) {
	var out []*domain.KeywordPreset
	for _, p := range m.presets {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPresetRepo) EnsureSystem(ctx context.Context, presets []*domain.KeywordPreset) error {
	for _, p := range presets {
		if _, ok := m.presets[p.Name]; !ok {
			m.presets[p.Name] = p
		}
	}
	return nil
}

func testGlobal() domain.EffectiveConfig {
	return domain.EffectiveConfig{
		Keywords:                   []domain.KeywordRule{{Pattern: "spam"}},
		URLWhitelist:               []string{"example.com"},
		CustomMessage:              "global notice",
		SecondViolationMuteSeconds: 60,
		MaxViolationCount:          3,
		KickOnMax:                  true,
		ResetWindowSeconds:         3600,
	}
}

func newResolverFixture(cfg ResolverConfig) (*ResolverUsecase, *mockOverrideRepo, *mockPresetRepo) {
	overrides := &mockOverrideRepo{overrides: make(map[string]*domain.GroupOverride)}
	presets := &mockPresetRepo{presets: make(map[string]*domain.KeywordPreset)}
	return NewResolverUsecase(overrides, presets, cfg), overrides, presets
}

func TestResolverUsecase_GlobalWhenMasterDisabled(t *testing.T) {
	uc, overrides, _ := newResolverFixture(ResolverConfig{GroupConfigEnabled: false})
	overrides.overrides["c1"] = &domain.GroupOverride{
		ConversationID: "c1", Enabled: true, Keywords: []string{"other"},
	}

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff.Keywords[0].Pattern != "spam" {
		t.Error("Expected global config when master switch is off")
	}
}

func TestResolverUsecase_GlobalWhenNoOverride(t *testing.T) {
	uc, _, _ := newResolverFixture(ResolverConfig{GroupConfigEnabled: true})

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff.Keywords[0].Pattern != "spam" || eff.CustomMessage != "global notice" {
		t.Error("Expected global config for unknown conversation")
	}
}

func TestResolverUsecase_PreEnabledSynthesis(t *testing.T) {
	uc, overrides, presets := newResolverFixture(ResolverConfig{
		GroupConfigEnabled: true,
		PreEnabled:         []string{"c1"},
		AutoImportPresets:  []string{"ads", "missing"},
	})
	presets.presets["ads"] = &domain.KeywordPreset{
		Name:     "ads",
		Keywords: []string{"casino", "lottery"},
		IsSystem: true,
	}

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Imported keywords replace the global list.
	if len(eff.Keywords) != 2 || eff.Keywords[0].Pattern != "casino" {
		t.Errorf("Expected imported keywords, got %+v", eff.Keywords)
	}

	stored := overrides.overrides["c1"]
	if stored == nil || !stored.Enabled {
		t.Fatal("Expected synthesized override to be persisted enabled")
	}
	if len(stored.Keywords) != 2 {
		t.Errorf("Expected 2 imported keywords stored, got %d", len(stored.Keywords))
	}

	// Second resolution must not re-synthesize or double-import.
	again, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if overrides.saveCount != 1 {
		t.Errorf("Expected exactly one synthesis write, got %d", overrides.saveCount)
	}
	if len(again.Keywords) != len(eff.Keywords) {
		t.Error("Expected idempotent resolution")
	}
	if len(overrides.overrides["c1"].Keywords) != 2 {
		t.Error("Expected no duplicate preset import")
	}
}

func TestResolverUsecase_DisabledOverrideFallsBack(t *testing.T) {
	uc, overrides, _ := newResolverFixture(ResolverConfig{GroupConfigEnabled: true})
	overrides.overrides["c1"] = &domain.GroupOverride{
		ConversationID: "c1", Enabled: false, Keywords: []string{"other"},
	}

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff.Keywords[0].Pattern != "spam" {
		t.Error("Expected global config when override is disabled")
	}
}

func TestResolverUsecase_EnabledOverrideApplies(t *testing.T) {
	uc, overrides, _ := newResolverFixture(ResolverConfig{GroupConfigEnabled: true})
	overrides.overrides["c1"] = &domain.GroupOverride{
		ConversationID: "c1",
		Enabled:        true,
		Keywords:       []string{"scam"},
		CustomMessage:  "group notice",
	}

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(eff.Keywords) != 1 || eff.Keywords[0].Pattern != "scam" {
		t.Errorf("Expected override keywords, got %+v", eff.Keywords)
	}
	if eff.CustomMessage != "group notice" {
		t.Error("Expected override message")
	}
	// Untouched fields come from global.
	if len(eff.URLWhitelist) != 1 || eff.URLWhitelist[0] != "example.com" {
		t.Error("Expected global whitelist preserved")
	}
	if eff.MaxViolationCount != 3 {
		t.Error("Expected global thresholds preserved")
	}
}

func TestResolverUsecase_StoreErrorFallsBackToGlobal(t *testing.T) {
	uc, overrides, _ := newResolverFixture(ResolverConfig{GroupConfigEnabled: true})
	overrides.getErr = errors.New("store down")

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err == nil {
		t.Fatal("Expected store error to be surfaced")
	}
	if eff.Keywords[0].Pattern != "spam" {
		t.Error("Expected usable global fallback alongside the error")
	}
}

func TestResolverUsecase_SynthesisWithoutPresets(t *testing.T) {
	uc, overrides, _ := newResolverFixture(ResolverConfig{
		GroupConfigEnabled: true,
		PreEnabled:         []string{"c1"},
	})

	eff, err := uc.Resolve(context.Background(), "c1", testGlobal())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// Empty synthesized keyword list keeps the global keywords.
	if len(eff.Keywords) != 1 || eff.Keywords[0].Pattern != "spam" {
		t.Errorf("Expected global keywords through empty override, got %+v", eff.Keywords)
	}

	stored := overrides.overrides["c1"]
	if stored == nil || !stored.Enabled || len(stored.Keywords) != 0 {
		t.Error("Expected empty enabled override persisted")
	}
	if stored.UpdatedAt.After(time.Now()) {
		t.Error("Expected sane timestamp on synthesized override")
	}
}
