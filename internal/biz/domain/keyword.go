package domain

import (
	"regexp"
	"strings"
	"sync"
)

// ruleCache holds compiled keyword patterns so repeated evaluation does not
// recompile per message. Broken patterns are remembered too, so they degrade
// to containment matching without retrying the compiler every time.
var ruleCache = struct {
	sync.RWMutex
	compiled map[string]*regexp.Regexp
	broken   map[string]bool
}{
	compiled: make(map[string]*regexp.Regexp),
	broken:   make(map[string]bool),
}

// MatchKeyword scans rules in order and returns the pattern text of the
// first rule matching text, or false when none matches. Regex rules are
// tested against the raw text; a rule whose pattern does not compile falls
// back to case-insensitive containment of the literal pattern, and the scan
// continues with the remaining rules. Non-regex rules always use
// case-insensitive containment.
func MatchKeyword(text string, rules []KeywordRule) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range rules {
		if rule.Pattern == "" {
			continue
		}
		if rule.IsRegex {
			if re := compileRule(rule); re != nil {
				if re.MatchString(text) {
					return rule.Pattern, true
				}
				continue
			}
		}
		if containsFold(text, rule.Pattern) {
			return rule.Pattern, true
		}
	}
	return "", false
}

func compileRule(rule KeywordRule) *regexp.Regexp {
	key := rule.Flags + "\x00" + rule.Pattern

	ruleCache.RLock()
	re, ok := ruleCache.compiled[key]
	bad := ruleCache.broken[key]
	ruleCache.RUnlock()
	if ok {
		return re
	}
	if bad {
		return nil
	}

	re, err := regexp.Compile(inlineFlags(rule.Flags) + rule.Pattern)
	ruleCache.Lock()
	if err != nil {
		ruleCache.broken[key] = true
	} else {
		ruleCache.compiled[key] = re
	}
	ruleCache.Unlock()
	return re
}

// inlineFlags maps a flag string onto Go's inline flag group. Unknown flag
// characters (e.g. "g" or "u" carried over from other regex dialects) are
// dropped. Case-insensitive matching is the default when no flags are given.
func inlineFlags(flags string) string {
	if flags == "" {
		return "(?i)"
	}
	var kept []rune
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "(?" + string(kept) + ")"
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
