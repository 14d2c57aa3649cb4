package usecase

import (
	"context"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
)

// DetectUsecase turns one message into at most one verdict
type DetectUsecase struct {
	resolver *ResolverUsecase
}

// NewDetectUsecase creates a new detect usecase
func NewDetectUsecase(resolver *ResolverUsecase) *DetectUsecase {
	return &DetectUsecase{resolver: resolver}
}

// EvaluateAgainst runs detection against an already-resolved configuration.
// Keyword rules are checked before URLs; the first violation wins. Media-only
// messages never produce a verdict. Evaluation reads no ledger state.
func (uc *DetectUsecase) EvaluateAgainst(messageText string, cfg domain.EffectiveConfig) *domain.Verdict {
	if messageText == "" || domain.IsMediaOnly(messageText) {
		return nil
	}

	if matched, ok := domain.MatchKeyword(messageText, cfg.Keywords); ok {
		return &domain.Verdict{Kind: domain.TriggerKeyword, MatchedContent: matched}
	}

	if url, ok := domain.FindViolatingURL(messageText, cfg.URLWhitelist); ok {
		return &domain.Verdict{Kind: domain.TriggerURL, MatchedContent: url}
	}

	return nil
}

// Evaluate resolves the conversation's configuration and runs detection.
// A nil verdict means the message passed. The resolved configuration comes
// back so callers can act on the same snapshot the verdict was made under.
// Both stay valid even when an error is returned: resolution falls back to
// the global configuration on store failure, and detection proceeds.
func (uc *DetectUsecase) Evaluate(ctx context.Context, messageText, conversationID string, global domain.EffectiveConfig) (*domain.Verdict, domain.EffectiveConfig, error) {
	cfg, err := uc.resolver.Resolve(ctx, conversationID, global)
	return uc.EvaluateAgainst(messageText, cfg), cfg, err
}
