package domain

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Protocol- or www-prefixed tokens.
	urlProtoRe = regexp.MustCompile(`(?i)\b(?:https?://|ftp://|www\.)[^\s<>"'()（）\[\]{}，。；：！？、【】《》]+`)

	// Bare host.tld tokens with an optional port and path.
	urlBareRe = regexp.MustCompile(`(?i)\b(?:[a-z0-9][a-z0-9_-]{0,62}\.)+[a-z]{2,18}\b(?::\d{1,5})?(?:/[^\s<>"'()（）\[\]{}，。；：！？、【】《》]*)?`)

	// IPv4 with optional port and path. Octets are range-checked in code.
	urlIPRe = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?(?:/[^\s<>"'()（）\[\]{}，。；：！？、【】《》]*)?`)

	// Host recovery for candidates url.Parse rejects.
	domainFallbackRe = regexp.MustCompile(`(?i)(?:[a-z0-9][a-z0-9-]{0,62}\.)+[a-z]{2,18}`)

	// Punctuation glued onto a protocol/domain token hides it from the word
	// boundary above; a space is inserted before extraction.
	punctBeforeURLRe = regexp.MustCompile(`(?i)([,;:!?，。；：！？、()（）\[\]【】<>《》"'])(https?://|ftp://|www\.)`)

	hashNameRe  = regexp.MustCompile(`(?i)^[a-f0-9]{16,}$`)
	shortNameRe = regexp.MustCompile(`(?i)^[a-z0-9_-]{1,16}$`)
)

// mediaMarkers are placeholders the platform layer substitutes for
// rich content. A message reduced to markers carries no scannable text.
var mediaMarkers = []string{
	"[Image]", "[Audio]", "[Video]", "[File]", "[Sticker]", "[ShareCard]", "[ShareChat]", "[ShareUser]",
	"[图片]", "[语音]", "[视频]", "[文件]", "[表情]", "[分享卡片]",
}

// mediaExtensions are file extensions treated as non-link filename tails.
var mediaExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "ico": true, "svg": true,
	"mp3": true, "wav": true, "ogg": true, "amr": true, "m4a": true, "aac": true, "flac": true,
	"mp4": true, "mov": true, "avi": true, "mkv": true, "flv": true, "webm": true, "wmv": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
	"txt": true, "md": true, "csv": true, "log": true,
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true,
}

// cdnSafeHosts never count as violations regardless of group whitelist.
// They are the platform's own media and asset domains.
var cdnSafeHosts = []string{
	"feishu.cn",
	"feishucdn.com",
	"feishupkg.com",
	"larksuite.com",
	"larkoffice.com",
	"lark-file.com",
}

// IsMediaOnly reports whether text consists solely of rich-content markers
func IsMediaOnly(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return false
	}
	for _, m := range mediaMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.TrimSpace(s) == ""
}

// ExtractURLCandidates returns deduplicated URL-like tokens in extraction
// order: protocol/www-prefixed first, then bare host.tld, then IPv4.
func ExtractURLCandidates(text string) []string {
	s := html.UnescapeString(text)
	s = punctBeforeURLRe.ReplaceAllString(s, "$1 $2")

	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		c := strings.TrimRight(raw, `.,;:!?"'>）】。，；`)
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	for _, m := range urlProtoRe.FindAllString(s, -1) {
		add(m)
	}
	for _, m := range urlBareRe.FindAllString(s, -1) {
		add(m)
	}
	for _, m := range urlIPRe.FindAllString(s, -1) {
		if validIPv4(m) {
			add(m)
		}
	}
	return out
}

// FindViolatingURL scans text for URL-like tokens and returns the first one
// that is neither a likely filename nor covered by the built-in safe set or
// the supplied whitelist. Media-only messages never produce a violation.
func FindViolatingURL(text string, whitelist []string) (string, bool) {
	if IsMediaOnly(text) {
		return "", false
	}
	for _, cand := range ExtractURLCandidates(text) {
		if isLikelyFilename(cand) {
			continue
		}
		host := hostOf(cand)
		if host == "" {
			continue
		}
		if HostWhitelisted(host, cdnSafeHosts) || HostWhitelisted(host, whitelist) {
			continue
		}
		return cand, true
	}
	return "", false
}

// HostWhitelisted reports whether host equals an entry or is a sub-domain of
// one (suffix match on a dot boundary).
func HostWhitelisted(host string, entries []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		e = strings.TrimSuffix(e, ".")
		if e == "" {
			continue
		}
		if host == e || strings.HasSuffix(host, "."+e) {
			return true
		}
	}
	return false
}

// isLikelyFilename filters media/document filenames the bare-domain pattern
// picks up. They are attachments named in chat, not links.
func isLikelyFilename(candidate string) bool {
	if strings.Contains(candidate, "://") || strings.Contains(candidate, "/") {
		return false
	}
	dot := strings.LastIndex(candidate, ".")
	if dot <= 0 || dot == len(candidate)-1 {
		return false
	}
	ext := strings.ToLower(candidate[dot+1:])
	if !mediaExtensions[ext] {
		return false
	}
	name := candidate[:dot]
	return hashNameRe.MatchString(name) || shortNameRe.MatchString(name)
}

func hostOf(candidate string) string {
	raw := candidate
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		if m := domainFallbackRe.FindString(candidate); m != "" {
			return strings.ToLower(m)
		}
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func validIPv4(candidate string) bool {
	host := candidate
	if i := strings.IndexAny(host, ":/"); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
