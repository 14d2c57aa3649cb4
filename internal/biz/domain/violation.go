package domain

import "time"

// TriggerKind classifies what tripped a violation
type TriggerKind string

const (
	TriggerKeyword TriggerKind = "keyword"
	TriggerURL     TriggerKind = "url"
)

// ActionKind classifies the punishment applied
type ActionKind string

const (
	ActionWarn ActionKind = "warn"
	ActionMute ActionKind = "mute"
	ActionKick ActionKind = "kick"
)

// HistoryCap bounds the per-record violation history
const HistoryCap = 10

// Verdict is the outcome of evaluating one message; nil means pass
type Verdict struct {
	Kind           TriggerKind
	MatchedContent string
}

// Trigger describes a violation being recorded in the ledger
type Trigger struct {
	Kind        TriggerKind
	Content     string // matched keyword or URL
	MessageBody string // full offending message text
}

// ViolationEntry is one history item inside a violation record
type ViolationEntry struct {
	Timestamp   int64       `json:"timestamp"` // epoch ms
	Content     string      `json:"content"`
	Kind        TriggerKind `json:"kind"`
	Action      ActionKind  `json:"action"`
	MessageBody string      `json:"message_body"`
}

// ViolationRecord is the durable offense state for one user in one conversation
type ViolationRecord struct {
	UserID             string           `json:"user_id"`
	ConversationID     string           `json:"conversation_id"`
	Count              uint             `json:"count"`
	LastTriggerAt      int64            `json:"last_trigger_at"` // epoch ms, 0 after a reset
	LastTriggerContent string           `json:"last_trigger_content"`
	LastTriggerKind    TriggerKind      `json:"last_trigger_kind"`
	LastActionKind     ActionKind       `json:"last_action_kind"`
	LastMessageBody    string           `json:"last_message_body"`
	History            []ViolationEntry `json:"history"`
}

// RecordKey builds the unique user x conversation key
func RecordKey(userID, conversationID string) string {
	return userID + ":" + conversationID
}

// Key returns the record's unique key
func (r *ViolationRecord) Key() string {
	return RecordKey(r.UserID, r.ConversationID)
}

// Expired reports whether the inactivity window elapsed since the last trigger.
// A non-positive window means counts never expire.
func (r *ViolationRecord) Expired(now time.Time, resetWindow time.Duration) bool {
	if resetWindow <= 0 || r.LastTriggerAt == 0 || r.Count == 0 {
		return false
	}
	return now.UnixMilli()-r.LastTriggerAt > resetWindow.Milliseconds()
}

// ResetIfExpired zeroes the counter when the window elapsed, returning true if it did
func (r *ViolationRecord) ResetIfExpired(now time.Time, resetWindow time.Duration) bool {
	if !r.Expired(now, resetWindow) {
		return false
	}
	r.Count = 0
	r.LastTriggerAt = 0
	return true
}

// RecordTrigger applies one detection event: increments the count and
// remembers the trigger. The action is filled in later via RecordAction
// once the punishment outcome is known.
func (r *ViolationRecord) RecordTrigger(now time.Time, t Trigger) {
	r.Count++
	r.LastTriggerAt = now.UnixMilli()
	r.LastTriggerContent = t.Content
	r.LastTriggerKind = t.Kind
	r.LastMessageBody = t.MessageBody
	r.appendHistory(ViolationEntry{
		Timestamp:   r.LastTriggerAt,
		Content:     t.Content,
		Kind:        t.Kind,
		MessageBody: t.MessageBody,
	})
}

// RecordAction stores the punishment outcome of the latest trigger
func (r *ViolationRecord) RecordAction(action ActionKind) {
	r.LastActionKind = action
	if n := len(r.History); n > 0 {
		r.History[n-1].Action = action
	}
}

func (r *ViolationRecord) appendHistory(e ViolationEntry) {
	r.History = append(r.History, e)
	if len(r.History) > HistoryCap {
		r.History = r.History[len(r.History)-HistoryCap:]
	}
}

// ResetETA returns when the count will expire; zero time when nothing is pending
func (r *ViolationRecord) ResetETA(resetWindow time.Duration) time.Time {
	if resetWindow <= 0 || r.LastTriggerAt == 0 || r.Count == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.LastTriggerAt).Add(resetWindow)
}

// Clone returns a deep copy so cached records can be handed out safely
func (r *ViolationRecord) Clone() *ViolationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.History = append([]ViolationEntry(nil), r.History...)
	return &out
}
