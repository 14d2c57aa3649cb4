package service

import (
	"context"
	"testing"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
)

func TestJanitor_ExpireMutes(t *testing.T) {
	mutes := &mockMuteStore{mutes: make(map[string]*domain.MuteRecord)}
	mutes.mutes["c1:ended"] = &domain.MuteRecord{
		ConversationID: "c1", UserID: "ended", Until: time.Now().Add(-time.Minute),
	}
	mutes.mutes["c1:active"] = &domain.MuteRecord{
		ConversationID: "c1", UserID: "active", Until: time.Now().Add(time.Hour),
	}

	j := NewJanitor(mutes, nil, time.Hour)
	j.expireMutes()

	if len(mutes.mutes) != 1 {
		t.Fatalf("Expected only the active mute to survive, got %d", len(mutes.mutes))
	}
	if _, ok := mutes.mutes["c1:active"]; !ok {
		t.Error("Expected the active mute to survive")
	}
}

func TestJanitor_SweepLedger(t *testing.T) {
	violations := &mockViolationStore{records: make(map[string]*domain.ViolationRecord)}
	violations.records["stale:c1"] = &domain.ViolationRecord{
		UserID: "stale", ConversationID: "c1", Count: 1,
		LastTriggerAt: time.Now().Add(-20 * 24 * time.Hour).UnixMilli(),
	}
	violations.records["fresh:c1"] = &domain.ViolationRecord{
		UserID: "fresh", ConversationID: "c1", Count: 1,
		LastTriggerAt: time.Now().UnixMilli(),
	}

	j := NewJanitor(&mockMuteStore{mutes: make(map[string]*domain.MuteRecord)},
		usecase.NewLedgerUsecase(violations), 24*time.Hour)
	j.sweepLedger()

	remaining, _ := violations.ListAll(context.Background())
	if len(remaining) != 1 || remaining[0].UserID != "fresh" {
		t.Errorf("Expected only the fresh record to survive, got %+v", remaining)
	}
}

func TestJanitor_SweepDisabledWithoutWindow(t *testing.T) {
	violations := &mockViolationStore{records: make(map[string]*domain.ViolationRecord)}
	violations.records["old:c1"] = &domain.ViolationRecord{
		UserID: "old", ConversationID: "c1", Count: 1,
		LastTriggerAt: time.Now().Add(-365 * 24 * time.Hour).UnixMilli(),
	}

	j := NewJanitor(&mockMuteStore{mutes: make(map[string]*domain.MuteRecord)},
		usecase.NewLedgerUsecase(violations), 0)
	j.sweepLedger()

	if remaining, _ := violations.ListAll(context.Background()); len(remaining) != 1 {
		t.Error("Expected no sweep when counts never expire")
	}
}

func TestJanitor_StartStop(t *testing.T) {
	mutes := &mockMuteStore{mutes: make(map[string]*domain.MuteRecord)}
	violations := &mockViolationStore{records: make(map[string]*domain.ViolationRecord)}

	j := NewJanitor(mutes, usecase.NewLedgerUsecase(violations), time.Hour)
	j.Start(context.Background())
	j.Stop()
	// Stop must not hang with loops pending on their tickers.
}
