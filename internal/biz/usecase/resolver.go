package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// ResolverConfig carries the group-configuration policy knobs
type ResolverConfig struct {
	GroupConfigEnabled bool     // master switch for per-group overrides
	PreEnabled         []string // conversations that get an override synthesized on first contact
	AutoImportPresets  []string // preset names merged into synthesized overrides
}

// ResolverUsecase produces the effective configuration for a conversation
type ResolverUsecase struct {
	overrideRepo repo.OverrideRepo
	presetRepo   repo.PresetRepo
	config       ResolverConfig

	preEnabled map[string]bool
	synthMu    sync.Mutex // serializes override synthesis
}

// NewResolverUsecase creates a new resolver usecase
func NewResolverUsecase(
	overrideRepo repo.OverrideRepo,
	presetRepo repo.PresetRepo,
	config ResolverConfig,
) *ResolverUsecase {
	pre := make(map[string]bool, len(config.PreEnabled))
	for _, id := range config.PreEnabled {
		pre[id] = true
	}
	return &ResolverUsecase{
		overrideRepo: overrideRepo,
		presetRepo:   presetRepo,
		config:       config,
		preEnabled:   pre,
	}
}

// Resolve returns the configuration governing one conversation. The returned
// value always works for detection: when the override store fails, the global
// configuration comes back together with the error so the caller can proceed.
func (uc *ResolverUsecase) Resolve(ctx context.Context, conversationID string, global domain.EffectiveConfig) (domain.EffectiveConfig, error) {
	if !uc.config.GroupConfigEnabled {
		return global, nil
	}

	ov, err := uc.overrideRepo.Get(ctx, conversationID)
	if err != nil {
		return global, fmt.Errorf("get override: %w", err)
	}

	if ov == nil {
		if !uc.preEnabled[conversationID] {
			return global, nil
		}
		ov, err = uc.synthesizeOverride(ctx, conversationID)
		if err != nil {
			return global, err
		}
	}

	if !ov.Enabled {
		return global, nil
	}
	return ov.Apply(global), nil
}

// synthesizeOverride creates the stored override for a pre-enabled
// conversation, importing the configured presets exactly once.
func (uc *ResolverUsecase) synthesizeOverride(ctx context.Context, conversationID string) (*domain.GroupOverride, error) {
	uc.synthMu.Lock()
	defer uc.synthMu.Unlock()

	// Another message may have synthesized it while we waited.
	ov, err := uc.overrideRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	if ov != nil {
		return ov, nil
	}

	ov = &domain.GroupOverride{
		ConversationID: conversationID,
		Enabled:        true,
		Keywords:       []string{},
		URLWhitelist:   []string{},
		UpdatedAt:      time.Now(),
	}

	for _, name := range uc.config.AutoImportPresets {
		preset, err := uc.presetRepo.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("get preset %s: %w", name, err)
		}
		if preset == nil {
			fmt.Printf("[Resolver] Auto-import preset not found: %s\n", name)
			continue
		}
		ov.MergeKeywords(preset.Keywords)
	}

	if err := uc.overrideRepo.Save(ctx, ov); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	fmt.Printf("[Resolver] Synthesized override for %s (%d keywords imported)\n", conversationID, len(ov.Keywords))
	return ov, nil
}

// IsPreEnabled reports whether a conversation is on the pre-enabled list
func (uc *ResolverUsecase) IsPreEnabled(conversationID string) bool {
	return uc.preEnabled[conversationID]
}
