package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
	"github.com/wardenlabs/feishu-warden/internal/metrics"
)

// ModerationService runs inbound group messages through the moderation
// pipeline: mute enforcement, detection, ledger recording, escalation,
// and the follow-up notice.
type ModerationService struct {
	detectUC *usecase.DetectUsecase
	ledgerUC *usecase.LedgerUsecase
	muteRepo repo.MuteRepo
	executor repo.PunishmentExecutor

	global domain.EffectiveConfig
	botID  string
}

// NewModerationService creates a new moderation service
func NewModerationService(
	detectUC *usecase.DetectUsecase,
	ledgerUC *usecase.LedgerUsecase,
	muteRepo repo.MuteRepo,
	executor repo.PunishmentExecutor,
	global domain.EffectiveConfig,
) *ModerationService {
	return &ModerationService{
		detectUC: detectUC,
		ledgerUC: ledgerUC,
		muteRepo: muteRepo,
		executor: executor,
		global:   global,
	}
}

// SetBotID records the bot's own open_id so its notices are never scanned
func (s *ModerationService) SetBotID(id string) {
	s.botID = id
}

// HandleMessage processes one message. Detection and enforcement failures
// are absorbed here; the returned error reports ledger persistence problems
// only, and the message's escalation is skipped when it fires.
func (s *ModerationService) HandleMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.IsGroupMessage() {
		return nil
	}
	if msg.SenderID == "" || msg.IsFromBot(s.botID) {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.ScanLatency.Observe(time.Since(start).Seconds())
	}()

	if s.enforceMute(ctx, msg) {
		return nil
	}

	verdict, cfg, err := s.detectUC.Evaluate(ctx, msg.Content, msg.ChatID, s.global)
	if err != nil {
		// Resolution fell back to the global config; detection already ran.
		fmt.Printf("[Moderation] Config resolution degraded for %s: %v\n", msg.ChatID, err)
	}
	if verdict == nil {
		metrics.MessagesScanned.WithLabelValues("clean").Inc()
		return nil
	}
	metrics.MessagesScanned.WithLabelValues(string(verdict.Kind)).Inc()

	return s.punish(ctx, msg, verdict, cfg)
}

// enforceMute recalls messages from users under an active mute. Reports
// whether the message was consumed by mute enforcement.
func (s *ModerationService) enforceMute(ctx context.Context, msg *domain.Message) bool {
	rec, err := s.muteRepo.Get(ctx, msg.ChatID, msg.SenderID)
	if err != nil {
		fmt.Printf("[Moderation] Mute lookup failed for %s in %s: %v\n", msg.SenderID, msg.ChatID, err)
		return false
	}
	now := time.Now()
	if rec == nil || !rec.Active(now) {
		return false
	}

	fmt.Printf("[Moderation] %s is muted in %s (%s left), recalling message\n",
		msg.SenderID, msg.ChatID, rec.Remaining(now).Round(time.Second))
	if s.executor.Recall(ctx, msg.ChatID, msg.ID) {
		metrics.ActionsTotal.WithLabelValues("recall").Inc()
	}
	return true
}

// punish runs the enforcement side of a verdict: recall, ledger write,
// escalation, notice, action write.
func (s *ModerationService) punish(ctx context.Context, msg *domain.Message, verdict *domain.Verdict, cfg domain.EffectiveConfig) error {
	fmt.Printf("[Moderation] %s violation by %s in %s: %q\n",
		verdict.Kind, msg.SenderID, msg.ChatID, verdict.MatchedContent)

	if s.shouldRecall(verdict.Kind, cfg) {
		if s.executor.Recall(ctx, msg.ChatID, msg.ID) {
			metrics.ActionsTotal.WithLabelValues("recall").Inc()
		}
	}

	trigger := domain.Trigger{
		Kind:        verdict.Kind,
		Content:     verdict.MatchedContent,
		MessageBody: msg.Content,
	}
	count, err := s.ledgerUC.RecordViolation(ctx, msg.SenderID, msg.ChatID, trigger, cfg.ResetWindow())
	if err != nil {
		fmt.Printf("[Moderation] Ledger write failed for %s in %s, escalation skipped: %v\n",
			msg.SenderID, msg.ChatID, err)
		return fmt.Errorf("failed to record violation: %w", err)
	}

	action, muteSeconds := s.respond(ctx, msg, verdict.Kind, cfg, count)
	s.notify(ctx, msg, verdict.Kind, cfg, count, muteSeconds)

	if err := s.ledgerUC.RecordAction(ctx, msg.SenderID, msg.ChatID, action); err != nil {
		fmt.Printf("[Moderation] Failed to record action for %s in %s: %v\n",
			msg.SenderID, msg.ChatID, err)
	}
	metrics.ActionsTotal.WithLabelValues(string(action)).Inc()
	return nil
}

// shouldRecall decides whether the offending message itself gets removed.
// URL violations under urlAction "warn" stay visible; everything else is
// recalled as long as auto punishment is on.
func (s *ModerationService) shouldRecall(kind domain.TriggerKind, cfg domain.EffectiveConfig) bool {
	if !cfg.AutoPunishment {
		return false
	}
	if kind == domain.TriggerURL && cfg.URLAction == domain.URLActionWarn {
		return false
	}
	return true
}

// respond executes the punishment for the post-increment count and returns
// what actually happened. URL violations honor the configured urlAction:
// "warn" never escalates, "mute" applies the fixed URL mute length, and
// "recall" falls through to the escalation ladder like a keyword violation.
func (s *ModerationService) respond(ctx context.Context, msg *domain.Message, kind domain.TriggerKind, cfg domain.EffectiveConfig, count uint) (domain.ActionKind, int) {
	if kind == domain.TriggerURL {
		switch cfg.URLAction {
		case domain.URLActionWarn:
			return domain.ActionWarn, 0
		case domain.URLActionMute:
			if cfg.AutoPunishment && s.executor.Mute(ctx, msg.ChatID, msg.SenderID, cfg.URLMuteDuration) {
				return domain.ActionMute, cfg.URLMuteDuration
			}
			return domain.ActionWarn, 0
		}
	}
	return s.escalate(ctx, msg, cfg, count)
}

// escalate applies the ladder tier for the given count. A refused kick
// falls back to the long mute; a refused mute degrades to a bare warning.
func (s *ModerationService) escalate(ctx context.Context, msg *domain.Message, cfg domain.EffectiveConfig, count uint) (domain.ActionKind, int) {
	p := domain.Escalate(count, cfg)
	if !cfg.AutoPunishment {
		return domain.ActionWarn, 0
	}

	switch p.Tier {
	case domain.TierKick:
		if s.executor.Kick(ctx, msg.ChatID, msg.SenderID) {
			return domain.ActionKick, 0
		}
		fmt.Printf("[Moderation] Kick failed for %s in %s, falling back to mute\n", msg.SenderID, msg.ChatID)
		if s.executor.Mute(ctx, msg.ChatID, msg.SenderID, p.MuteSeconds) {
			return domain.ActionMute, p.MuteSeconds
		}
		return domain.ActionWarn, 0
	case domain.TierMute:
		if s.executor.Mute(ctx, msg.ChatID, msg.SenderID, p.MuteSeconds) {
			return domain.ActionMute, p.MuteSeconds
		}
		return domain.ActionWarn, 0
	default:
		return domain.ActionWarn, 0
	}
}

// notify sends the configured notice with {user}, {count} and {duration}
// filled in. The {user} placeholder becomes a real @mention at send time.
func (s *ModerationService) notify(ctx context.Context, msg *domain.Message, kind domain.TriggerKind, cfg domain.EffectiveConfig, count uint, muteSeconds int) {
	tpl := cfg.CustomMessage
	if kind == domain.TriggerURL && cfg.URLCustomMessage != "" {
		tpl = cfg.URLCustomMessage
	}
	if tpl == "" {
		return
	}

	member := domain.Member{UserID: msg.SenderID, Name: msg.SenderName}
	if member.Name == "" {
		member.Name = msg.SenderID
	}

	text := strings.ReplaceAll(tpl, "{user}", member.FormatMention())
	text = strings.ReplaceAll(text, "{count}", strconv.FormatUint(uint64(count), 10))
	text = strings.ReplaceAll(text, "{duration}", formatSeconds(muteSeconds))
	s.executor.Notify(ctx, msg.ChatID, msg.SenderID, text)
}

// formatSeconds renders a mute length for notices, e.g. 300 -> "5分钟"
func formatSeconds(seconds int) string {
	switch {
	case seconds <= 0:
		return "0秒"
	case seconds%3600 == 0:
		return fmt.Sprintf("%d小时", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%d分钟", seconds/60)
	default:
		return fmt.Sprintf("%d秒", seconds)
	}
}
