package domain

import "testing"

func TestFindViolatingURL_ProtocolURL(t *testing.T) {
	url, ok := FindViolatingURL("join now https://evil.com/promo before it ends", nil)
	if !ok {
		t.Fatal("Expected a violation")
	}
	if url != "https://evil.com/promo" {
		t.Errorf("Expected full candidate, got %q", url)
	}
}

func TestFindViolatingURL_WhitelistSuffixRule(t *testing.T) {
	whitelist := []string{"example.com"}

	cases := []struct {
		name    string
		text    string
		violate bool
	}{
		{"subdomain excluded", "see https://sub.example.com/page", false},
		{"exact host excluded", "see https://example.com/page", false},
		{"unrelated host flagged", "see https://example.org/page", true},
		{"suffix without dot boundary flagged", "see https://notexample.com/page", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := FindViolatingURL(tc.text, whitelist)
			if ok != tc.violate {
				t.Errorf("Expected violate=%v for %q, got %v", tc.violate, tc.text, ok)
			}
		})
	}
}

func TestHostWhitelisted_DotBoundary(t *testing.T) {
	// Entry a.com must not cover notaa.com; substring containment is not
	// the rule, suffix on a dot boundary is.
	if HostWhitelisted("notaa.com", []string{"a.com"}) {
		t.Error("Expected notaa.com to stay outside entry a.com")
	}
	if !HostWhitelisted("b.a.com", []string{"a.com"}) {
		t.Error("Expected b.a.com to be covered by entry a.com")
	}
}

func TestFindViolatingURL_MediaOnly(t *testing.T) {
	for _, text := range []string{"[Image]", "[图片]", "[Image] [Sticker]", " [语音] "} {
		if _, ok := FindViolatingURL(text, nil); ok {
			t.Errorf("Expected media-only text %q to never violate", text)
		}
	}
}

func TestFindViolatingURL_FilenameHeuristic(t *testing.T) {
	cases := []string{
		"photo.png",
		"voice_01.amr",
		"d41d8cd98f00b204e9800998ecf8427e.jpg",
		"report.docx attached",
	}
	for _, text := range cases {
		if url, ok := FindViolatingURL(text, nil); ok {
			t.Errorf("Expected filename %q to be skipped, flagged %q", text, url)
		}
	}

	// A path separator disqualifies the filename reading.
	if _, ok := FindViolatingURL("evil.com/photo.png", nil); !ok {
		t.Error("Expected host with a path to stay a violation")
	}
}

func TestFindViolatingURL_CDNSafeHosts(t *testing.T) {
	if url, ok := FindViolatingURL("https://sf3-cn.feishucdn.com/obj/abc123", nil); ok {
		t.Errorf("Expected platform CDN host to be safe, flagged %q", url)
	}
}

func TestFindViolatingURL_IPv4(t *testing.T) {
	url, ok := FindViolatingURL("panel at 203.0.113.5:8080/admin now", nil)
	if !ok || url != "203.0.113.5:8080/admin" {
		t.Errorf("Expected IPv4 candidate, got %q ok=%v", url, ok)
	}

	if _, ok := FindViolatingURL("bogus 999.1.2.3 address", nil); ok {
		t.Error("Expected out-of-range octets to be rejected")
	}
}

func TestFindViolatingURL_EntityDecodedAndPunctuation(t *testing.T) {
	url, ok := FindViolatingURL("链接：https://evil.com，快点", nil)
	if !ok {
		t.Fatal("Expected violation for URL glued to fullwidth punctuation")
	}
	if url != "https://evil.com" {
		t.Errorf("Expected trimmed candidate, got %q", url)
	}

	if _, ok := FindViolatingURL("check www&#46;evil&#46;com today", nil); !ok {
		t.Error("Expected HTML-entity-encoded URL to be decoded and flagged")
	}
}

func TestFindViolatingURL_FirstCandidateWins(t *testing.T) {
	text := "first https://evil.com/a then https://worse.com/b"
	url, ok := FindViolatingURL(text, nil)
	if !ok || url != "https://evil.com/a" {
		t.Errorf("Expected first violating candidate, got %q ok=%v", url, ok)
	}

	// When the first is whitelisted, the scan moves on.
	url, ok = FindViolatingURL(text, []string{"evil.com"})
	if !ok || url != "https://worse.com/b" {
		t.Errorf("Expected second candidate after whitelist skip, got %q ok=%v", url, ok)
	}
}

func TestFindViolatingURL_MalformedCandidateRecovers(t *testing.T) {
	// %zz breaks URL parsing; the host is still recovered by the fallback.
	if _, ok := FindViolatingURL("grab evil.com/%zz now", nil); !ok {
		t.Error("Expected fallback host recovery for unparsable candidate")
	}
}

func TestExtractURLCandidates_Dedupe(t *testing.T) {
	cands := ExtractURLCandidates("www.evil.com again www.evil.com")
	count := 0
	for _, c := range cands {
		if c == "www.evil.com" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected deduplicated candidate, got %d copies in %v", count, cands)
	}
}

func TestFindViolatingURL_PlainText(t *testing.T) {
	for _, text := range []string{
		"no links here at all",
		"version v2.0.1 released",
		"pi is 3.14",
		"",
	} {
		if url, ok := FindViolatingURL(text, nil); ok {
			t.Errorf("Expected no violation in %q, flagged %q", text, url)
		}
	}
}
