package domain

// Tier is the punishment category derived from an offense count
type Tier int

const (
	TierNone Tier = iota
	TierWarn
	TierMute
	TierKick
)

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case TierWarn:
		return "warn"
	case TierMute:
		return "mute"
	case TierKick:
		return "kick"
	default:
		return "none"
	}
}

// ActionKind maps the tier onto the persisted action enum
func (t Tier) ActionKind() ActionKind {
	switch t {
	case TierMute:
		return ActionMute
	case TierKick:
		return ActionKick
	default:
		return ActionWarn
	}
}

const (
	// FallbackMuteSeconds is the long mute applied at the max tier when
	// kicking is disabled or a kick attempt fails.
	FallbackMuteSeconds = 3600

	// MaxMuteSeconds caps linear escalation at 24 hours.
	MaxMuteSeconds = 24 * 3600
)

// Punishment is the resolved action for one offense count. MuteSeconds is
// the mute length for TierMute, and the fallback mute length for TierKick.
type Punishment struct {
	Tier        Tier
	MuteSeconds int
}

// Escalate derives the punishment for a post-increment offense count.
// Pure function of the count and the policy thresholds; it neither reads
// nor writes ledger state.
func Escalate(count uint, cfg EffectiveConfig) Punishment {
	switch {
	case count == 0:
		return Punishment{Tier: TierNone}
	case cfg.MaxViolationCount > 0 && int(count) >= cfg.MaxViolationCount:
		if cfg.KickOnMax {
			return Punishment{Tier: TierKick, MuteSeconds: FallbackMuteSeconds}
		}
		return Punishment{Tier: TierMute, MuteSeconds: FallbackMuteSeconds}
	case count == 1:
		return Punishment{Tier: TierWarn}
	case count == 2:
		return Punishment{Tier: TierMute, MuteSeconds: cfg.SecondViolationMuteSeconds}
	default:
		secs := cfg.SecondViolationMuteSeconds * (int(count) - 1)
		if secs > MaxMuteSeconds {
			secs = MaxMuteSeconds
		}
		return Punishment{Tier: TierMute, MuteSeconds: secs}
	}
}
