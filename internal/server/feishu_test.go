package server

import (
	"testing"
	"time"
)

func TestMessageDeduplication(t *testing.T) {
	s := &FeishuServer{seenMsgs: make(map[string]time.Time)}

	if s.isMessageSeen("om_1") {
		t.Error("Expected a fresh message to be unseen")
	}
	s.markMessageSeen("om_1")
	if !s.isMessageSeen("om_1") {
		t.Error("Expected a redelivered message to be seen")
	}
}

func TestMessageDeduplication_Cleanup(t *testing.T) {
	s := &FeishuServer{seenMsgs: make(map[string]time.Time)}
	s.seenMsgs["om_old"] = time.Now().Add(-10 * time.Minute)

	s.markMessageSeen("om_new")

	if s.isMessageSeen("om_old") {
		t.Error("Expected entries older than 5 minutes to be dropped")
	}
	if !s.isMessageSeen("om_new") {
		t.Error("Expected the new entry to stay")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("a long message body", 6); got != "a long..." {
		t.Errorf("Expected truncated string, got %q", got)
	}
}
