package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
)

// Mock implementations

type mockViolationStore struct {
	mu      sync.Mutex
	records map[string]*domain.ViolationRecord
	saveErr error
}

func (m *mockViolationStore) Get(ctx context.Context, userID, conversationID string) (*domain.ViolationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[domain.RecordKey(userID, conversationID)].Clone(), nil
}

func (m *mockViolationStore) Save(ctx context.Context, rec *domain.ViolationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.Key()] = rec.Clone()
	return nil
}

func (m *mockViolationStore) Delete(ctx context.Context, userID, conversationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.RecordKey(userID, conversationID)
	_, ok := m.records[key]
	delete(m.records, key)
	return ok, nil
}

func (m *mockViolationStore) ListByConversation(ctx context.Context, conversationID string) ([]*domain.ViolationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ViolationRecord
	for _, rec := range m.records {
		if rec.ConversationID == conversationID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *mockViolationStore) ListAll(ctx context.Context) ([]*domain.ViolationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ViolationRecord
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *mockViolationStore) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records))
	m.records = make(map[string]*domain.ViolationRecord)
	return n, nil
}

func (m *mockViolationStore) get(userID, conversationID string) *domain.ViolationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[domain.RecordKey(userID, conversationID)]
}

type mockOverrideStore struct {
	overrides map[string]*domain.GroupOverride
}

func (m *mockOverrideStore) Get(ctx context.Context, conversationID string) (*domain.GroupOverride, error) {
	return m.overrides[conversationID], nil
}

func (m *mockOverrideStore) Save(ctx context.Context, ov *domain.GroupOverride) error {
	if m.overrides == nil {
		m.overrides = make(map[string]*domain.GroupOverride)
	}
	m.overrides[ov.ConversationID] = ov
	return nil
}

func (m *mockOverrideStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	_, ok := m.overrides[conversationID]
	delete(m.overrides, conversationID)
	return ok, nil
}

func (m *mockOverrideStore) ListAll(ctx context.Context) ([]*domain.GroupOverride, error) {
	return nil, nil
}

type mockPresetStore struct{}

func (m *mockPresetStore) Get(ctx context.Context, name string) (*domain.KeywordPreset, error) {
	return nil, nil
}

func (m *mockPresetStore) Save(ctx context.Context, preset *domain.KeywordPreset) error {
	return nil
}

func (m *mockPresetStore) Delete(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (m *mockPresetStore) ListAll(ctx context.Context) ([]*domain.KeywordPreset, error) {
	return nil, nil
}

func (m *mockPresetStore) EnsureSystem(ctx context.Context, presets []*domain.KeywordPreset) error {
	return nil
}

type mockMuteStore struct {
	mu    sync.Mutex
	mutes map[string]*domain.MuteRecord
}

func (m *mockMuteStore) key(conversationID, userID string) string {
	return conversationID + ":" + userID
}

func (m *mockMuteStore) Get(ctx context.Context, conversationID, userID string) (*domain.MuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutes[m.key(conversationID, userID)], nil
}

func (m *mockMuteStore) Save(ctx context.Context, rec *domain.MuteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutes[m.key(rec.ConversationID, rec.UserID)] = rec
	return nil
}

func (m *mockMuteStore) Delete(ctx context.Context, conversationID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(conversationID, userID)
	_, ok := m.mutes[key]
	delete(m.mutes, key)
	return ok, nil
}

func (m *mockMuteStore) ListActive(ctx context.Context, now time.Time) ([]*domain.MuteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MuteRecord
	for _, rec := range m.mutes {
		if rec.Active(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockMuteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, rec := range m.mutes {
		if !rec.Active(now) {
			delete(m.mutes, key)
			n++
		}
	}
	return n, nil
}

type muteCall struct {
	userID  string
	seconds int
}

type mockExecutor struct {
	mu        sync.Mutex
	recalled  []string
	muted     []muteCall
	kicked    []string
	notices   []string
	kickFails bool
	muteFails bool
}

func (m *mockExecutor) Recall(ctx context.Context, conversationID, messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalled = append(m.recalled, messageID)
	return true
}

func (m *mockExecutor) Mute(ctx context.Context, conversationID, userID string, seconds int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.muteFails {
		return false
	}
	m.muted = append(m.muted, muteCall{userID: userID, seconds: seconds})
	return true
}

func (m *mockExecutor) Kick(ctx context.Context, conversationID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kickFails {
		return false
	}
	m.kicked = append(m.kicked, userID)
	return true
}

func (m *mockExecutor) Notify(ctx context.Context, conversationID, userID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
}

// Fixtures

func moderationGlobal() domain.EffectiveConfig {
	return domain.EffectiveConfig{
		Keywords:                   []domain.KeywordRule{{Pattern: "spam"}},
		URLWhitelist:               []string{"example.com"},
		CustomMessage:              "{user} 违规（第 {count} 次，禁言 {duration}）",
		URLCustomMessage:           "{user} 请勿发送链接（第 {count} 次，禁言 {duration}）",
		MuteDuration:               300,
		URLMuteDuration:            600,
		URLAction:                  domain.URLActionRecall,
		AutoPunishment:             true,
		SecondViolationMuteSeconds: 300,
		MaxViolationCount:          5,
		KickOnMax:                  false,
		ResetWindowSeconds:         86400,
	}
}

func newModerationFixture(global domain.EffectiveConfig) (*ModerationService, *mockExecutor, *mockViolationStore, *mockMuteStore) {
	violations := &mockViolationStore{records: make(map[string]*domain.ViolationRecord)}
	mutes := &mockMuteStore{mutes: make(map[string]*domain.MuteRecord)}
	exec := &mockExecutor{}

	resolver := usecase.NewResolverUsecase(&mockOverrideStore{}, &mockPresetStore{}, usecase.ResolverConfig{})
	svc := NewModerationService(
		usecase.NewDetectUsecase(resolver),
		usecase.NewLedgerUsecase(violations),
		mutes,
		exec,
		global,
	)
	return svc, exec, violations, mutes
}

func groupMessage(content string) *domain.Message {
	return &domain.Message{
		ID:         "om_1",
		ChatID:     "oc_test",
		ChatType:   domain.ChatTypeGroup,
		Content:    content,
		SenderID:   "ou_alice",
		SenderName: "Alice",
		MsgType:    "text",
		CreateTime: time.Now(),
	}
}

// Tests

func TestHandleMessage_CleanMessage(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())

	if err := svc.HandleMessage(context.Background(), groupMessage("hello there")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(exec.recalled) != 0 || len(exec.notices) != 0 {
		t.Error("Expected no actions for a clean message")
	}
	if violations.get("ou_alice", "oc_test") != nil {
		t.Error("Expected no ledger record for a clean message")
	}
}

func TestHandleMessage_FirstViolationWarns(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())

	if err := svc.HandleMessage(context.Background(), groupMessage("this is spam")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(exec.recalled) != 1 || exec.recalled[0] != "om_1" {
		t.Errorf("Expected the offending message recalled, got %v", exec.recalled)
	}
	if len(exec.muted) != 0 || len(exec.kicked) != 0 {
		t.Error("Expected a bare warning on the first violation")
	}
	if len(exec.notices) != 1 {
		t.Fatalf("Expected 1 notice, got %d", len(exec.notices))
	}
	if !strings.Contains(exec.notices[0], "[MENTION:ou_alice:Alice]") {
		t.Errorf("Expected {user} replaced by a mention marker, got %q", exec.notices[0])
	}
	if !strings.Contains(exec.notices[0], "第 1 次") {
		t.Errorf("Expected {count} replaced with 1, got %q", exec.notices[0])
	}

	rec := violations.get("ou_alice", "oc_test")
	if rec == nil {
		t.Fatal("Expected a ledger record")
	}
	if rec.Count != 1 || rec.LastActionKind != domain.ActionWarn {
		t.Errorf("Expected count 1 with warn recorded, got count=%d action=%s", rec.Count, rec.LastActionKind)
	}
	if rec.LastMessageBody != "this is spam" {
		t.Errorf("Expected the full message body stored, got %q", rec.LastMessageBody)
	}
}

func TestHandleMessage_SecondViolationMutes(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())

	_ = svc.HandleMessage(context.Background(), groupMessage("spam one"))
	_ = svc.HandleMessage(context.Background(), groupMessage("spam two"))

	if len(exec.muted) != 1 {
		t.Fatalf("Expected 1 mute, got %d", len(exec.muted))
	}
	if exec.muted[0].userID != "ou_alice" || exec.muted[0].seconds != 300 {
		t.Errorf("Expected 300s mute for ou_alice, got %+v", exec.muted[0])
	}
	if !strings.Contains(exec.notices[1], "第 2 次") {
		t.Errorf("Expected count 2 in the second notice, got %q", exec.notices[1])
	}

	rec := violations.get("ou_alice", "oc_test")
	if rec.Count != 2 || rec.LastActionKind != domain.ActionMute {
		t.Errorf("Expected count 2 with mute recorded, got count=%d action=%s", rec.Count, rec.LastActionKind)
	}
	if len(rec.History) != 2 || rec.History[1].Action != domain.ActionMute {
		t.Errorf("Expected mute backfilled into history, got %+v", rec.History)
	}
}

func TestHandleMessage_EscalationGrowsLinearly(t *testing.T) {
	svc, exec, _, _ := newModerationFixture(moderationGlobal())

	for i := 0; i < 4; i++ {
		_ = svc.HandleMessage(context.Background(), groupMessage("spam again"))
	}

	// Violations 2, 3 and 4 mute for 300, 600 and 900 seconds.
	want := []int{300, 600, 900}
	if len(exec.muted) != len(want) {
		t.Fatalf("Expected %d mutes, got %d", len(want), len(exec.muted))
	}
	for i, seconds := range want {
		if exec.muted[i].seconds != seconds {
			t.Errorf("Mute %d: expected %ds, got %ds", i+1, seconds, exec.muted[i].seconds)
		}
	}
}

func TestHandleMessage_MaxCountKicks(t *testing.T) {
	global := moderationGlobal()
	global.MaxViolationCount = 3
	global.KickOnMax = true
	svc, exec, violations, _ := newModerationFixture(global)

	for i := 0; i < 3; i++ {
		_ = svc.HandleMessage(context.Background(), groupMessage("spam forever"))
	}

	if len(exec.kicked) != 1 || exec.kicked[0] != "ou_alice" {
		t.Errorf("Expected ou_alice kicked at max count, got %v", exec.kicked)
	}
	rec := violations.get("ou_alice", "oc_test")
	if rec.LastActionKind != domain.ActionKick {
		t.Errorf("Expected kick recorded, got %s", rec.LastActionKind)
	}
}

func TestHandleMessage_KickFailureFallsBackToMute(t *testing.T) {
	global := moderationGlobal()
	global.MaxViolationCount = 3
	global.KickOnMax = true
	svc, exec, violations, _ := newModerationFixture(global)
	exec.kickFails = true

	for i := 0; i < 3; i++ {
		_ = svc.HandleMessage(context.Background(), groupMessage("spam forever"))
	}

	if len(exec.kicked) != 0 {
		t.Errorf("Expected no successful kick, got %v", exec.kicked)
	}
	last := exec.muted[len(exec.muted)-1]
	if last.seconds != domain.FallbackMuteSeconds {
		t.Errorf("Expected the %ds fallback mute, got %ds", domain.FallbackMuteSeconds, last.seconds)
	}
	if !strings.Contains(exec.notices[2], "1小时") {
		t.Errorf("Expected the fallback duration in the notice, got %q", exec.notices[2])
	}
	rec := violations.get("ou_alice", "oc_test")
	if rec.LastActionKind != domain.ActionMute {
		t.Errorf("Expected mute recorded after the failed kick, got %s", rec.LastActionKind)
	}
}

func TestHandleMessage_MaxCountWithoutKickMutesLong(t *testing.T) {
	global := moderationGlobal()
	global.MaxViolationCount = 2
	svc, exec, _, _ := newModerationFixture(global)

	_ = svc.HandleMessage(context.Background(), groupMessage("spam one"))
	_ = svc.HandleMessage(context.Background(), groupMessage("spam two"))

	if len(exec.kicked) != 0 {
		t.Error("Expected no kick when kickOnMax is off")
	}
	if len(exec.muted) != 1 || exec.muted[0].seconds != domain.FallbackMuteSeconds {
		t.Errorf("Expected the long mute at max count, got %+v", exec.muted)
	}
}

func TestHandleMessage_URLWarnLeavesMessage(t *testing.T) {
	global := moderationGlobal()
	global.URLAction = domain.URLActionWarn
	svc, exec, violations, _ := newModerationFixture(global)

	if err := svc.HandleMessage(context.Background(), groupMessage("join https://evil.com/x")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(exec.recalled) != 0 {
		t.Error("Expected the message to stay under urlAction warn")
	}
	if len(exec.muted) != 0 {
		t.Error("Expected no mute under urlAction warn")
	}
	if len(exec.notices) != 1 || !strings.Contains(exec.notices[0], "请勿发送链接") {
		t.Errorf("Expected the URL notice template, got %v", exec.notices)
	}
	if rec := violations.get("ou_alice", "oc_test"); rec == nil || rec.Count != 1 {
		t.Error("Expected the violation counted even without punishment")
	}
}

func TestHandleMessage_URLMuteAppliesFixedDuration(t *testing.T) {
	global := moderationGlobal()
	global.URLAction = domain.URLActionMute
	svc, exec, _, _ := newModerationFixture(global)

	_ = svc.HandleMessage(context.Background(), groupMessage("join https://evil.com/x"))

	if len(exec.recalled) != 1 {
		t.Error("Expected the message recalled under urlAction mute")
	}
	if len(exec.muted) != 1 || exec.muted[0].seconds != 600 {
		t.Errorf("Expected the fixed 600s URL mute, got %+v", exec.muted)
	}
	if !strings.Contains(exec.notices[0], "10分钟") {
		t.Errorf("Expected the URL mute duration in the notice, got %q", exec.notices[0])
	}
}

func TestHandleMessage_URLRecallEscalates(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())

	_ = svc.HandleMessage(context.Background(), groupMessage("join https://evil.com/x"))

	if len(exec.recalled) != 1 {
		t.Error("Expected the message recalled under urlAction recall")
	}
	if len(exec.muted) != 0 {
		t.Error("Expected the first URL offense to warn like a keyword one")
	}
	rec := violations.get("ou_alice", "oc_test")
	if rec.LastTriggerKind != domain.TriggerURL {
		t.Errorf("Expected a url trigger recorded, got %s", rec.LastTriggerKind)
	}
}

func TestHandleMessage_WhitelistedURLPasses(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())

	_ = svc.HandleMessage(context.Background(), groupMessage("see https://sub.example.com/doc"))

	if len(exec.recalled) != 0 || len(exec.notices) != 0 {
		t.Error("Expected no action on a whitelisted URL")
	}
	if violations.get("ou_alice", "oc_test") != nil {
		t.Error("Expected no ledger record for a whitelisted URL")
	}
}

func TestHandleMessage_AutoPunishmentOffStillRecords(t *testing.T) {
	global := moderationGlobal()
	global.AutoPunishment = false
	svc, exec, violations, _ := newModerationFixture(global)

	_ = svc.HandleMessage(context.Background(), groupMessage("this is spam"))
	_ = svc.HandleMessage(context.Background(), groupMessage("this is spam"))

	if len(exec.recalled) != 0 || len(exec.muted) != 0 || len(exec.kicked) != 0 {
		t.Error("Expected no enforcement with auto punishment off")
	}
	if len(exec.notices) != 2 {
		t.Errorf("Expected notices to still go out, got %d", len(exec.notices))
	}
	rec := violations.get("ou_alice", "oc_test")
	if rec == nil || rec.Count != 2 {
		t.Error("Expected the ledger to advance with auto punishment off")
	}
}

func TestHandleMessage_MutedSenderGetsRecalled(t *testing.T) {
	svc, exec, violations, mutes := newModerationFixture(moderationGlobal())
	mutes.mutes["oc_test:ou_alice"] = &domain.MuteRecord{
		ConversationID: "oc_test",
		UserID:         "ou_alice",
		Until:          time.Now().Add(5 * time.Minute),
		Reason:         "violation",
	}

	if err := svc.HandleMessage(context.Background(), groupMessage("this is spam")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(exec.recalled) != 1 || exec.recalled[0] != "om_1" {
		t.Errorf("Expected the muted user's message recalled, got %v", exec.recalled)
	}
	if violations.get("ou_alice", "oc_test") != nil {
		t.Error("Expected mute enforcement to consume the message before detection")
	}
	if len(exec.notices) != 0 {
		t.Error("Expected no notice for mute enforcement")
	}
}

func TestHandleMessage_ExpiredMuteDoesNotEnforce(t *testing.T) {
	svc, exec, _, mutes := newModerationFixture(moderationGlobal())
	mutes.mutes["oc_test:ou_alice"] = &domain.MuteRecord{
		ConversationID: "oc_test",
		UserID:         "ou_alice",
		Until:          time.Now().Add(-time.Minute),
	}

	_ = svc.HandleMessage(context.Background(), groupMessage("hello there"))

	if len(exec.recalled) != 0 {
		t.Error("Expected an expired mute to be ignored")
	}
}

func TestHandleMessage_SkipsNonGroupAndSelf(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())
	svc.SetBotID("ou_bot")

	p2p := groupMessage("this is spam")
	p2p.ChatType = domain.ChatTypeP2P
	_ = svc.HandleMessage(context.Background(), p2p)

	own := groupMessage("this is spam")
	own.SenderID = "ou_bot"
	_ = svc.HandleMessage(context.Background(), own)

	if len(exec.recalled) != 0 || len(exec.notices) != 0 {
		t.Error("Expected P2P and self messages to be skipped")
	}
	if violations.get("ou_bot", "oc_test") != nil {
		t.Error("Expected no ledger record for the bot's own message")
	}
}

func TestHandleMessage_LedgerFailureSkipsEscalation(t *testing.T) {
	svc, exec, violations, _ := newModerationFixture(moderationGlobal())
	violations.saveErr = errors.New("store offline")

	err := svc.HandleMessage(context.Background(), groupMessage("this is spam"))
	if err == nil {
		t.Fatal("Expected the persistence error surfaced")
	}

	// The recall already happened, but no punishment or notice follows.
	if len(exec.recalled) != 1 {
		t.Errorf("Expected the recall before the ledger write, got %v", exec.recalled)
	}
	if len(exec.muted) != 0 || len(exec.kicked) != 0 || len(exec.notices) != 0 {
		t.Error("Expected escalation skipped on ledger failure")
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "0秒"},
		{45, "45秒"},
		{60, "1分钟"},
		{90, "90秒"},
		{300, "5分钟"},
		{3600, "1小时"},
		{3660, "61分钟"},
		{7200, "2小时"},
	}
	for _, tc := range cases {
		if got := formatSeconds(tc.seconds); got != tc.want {
			t.Errorf("formatSeconds(%d): expected %q, got %q", tc.seconds, tc.want, got)
		}
	}
}
