// Package tokenizer provides the text normalisation used everywhere a
// transcript token or query term becomes a searchable term: lowercasing,
// alphabet filtering (Latin digits plus Hangul syllables), and a small
// deterministic suffix-rewrite table that canonicalises common Korean
// verb/adjective endings. It is an approximation of stemming, not a
// morphological analyzer.
package tokenizer

import (
	"strings"
	"unicode"
)

// suffixRule rewrites one verb/adjective ending to its dictionary form.
// Rules are tried top to bottom; the first match wins. The rune before the
// suffix must be Hangul so bare endings are not rewritten.
type suffixRule struct {
	suffix      string
	replacement string
}

var suffixRules = []suffixRule{
	{"했다", "하다"},
	{"한다", "하다"},
	{"해요", "하다"},
	{"했어", "하다"},
	{"하는", "하다"},
	{"하며", "하다"},
	{"하면", "하다"},
	{"하고", "하다"},
	{"돼요", "되다"},
	{"됐다", "되다"},
	{"돼", "되다"},
	{"였어", "이다"},
	{"였다", "이다"},
}

// NormalizeForSearch lowercases the input, replaces every rune outside
// digits, lowercase Latin, Hangul syllables, and whitespace with a space,
// collapses whitespace runs, and trims. Pure and total.
func NormalizeForSearch(input string) string {
	lowered := strings.ToLower(input)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if isSearchRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeToken canonicalises a single token. Tokens that match a suffix
// rule are rewritten to their dictionary form; otherwise the token survives
// only when it is at least two Hangul syllables or at least two Latin/digit
// characters. Everything else normalizes to "" and is filtered downstream.
func NormalizeToken(token string) string {
	trimmed := strings.ToLower(strings.TrimSpace(token))
	if trimmed == "" {
		return ""
	}

	for _, rule := range suffixRules {
		stem, ok := strings.CutSuffix(trimmed, rule.suffix)
		if !ok {
			continue
		}
		if !endsWithHangul(stem) {
			continue
		}
		return stem + rule.replacement
	}

	if isAllHangul(trimmed, 2) || isAllLatinDigit(trimmed, 2) {
		return trimmed
	}
	return ""
}

func isSearchRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case isHangulSyllable(r):
		return true
	}
	return false
}

// isHangulSyllable reports whether r is a precomposed Hangul syllable
// (U+AC00 to U+D7A3), mirroring the 가-힣 class.
func isHangulSyllable(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}

func endsWithHangul(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	return unicode.Is(unicode.Hangul, runes[len(runes)-1])
}

func isAllHangul(s string, minLen int) bool {
	count := 0
	for _, r := range s {
		if !isHangulSyllable(r) {
			return false
		}
		count++
	}
	return count >= minLen
}

func isAllLatinDigit(s string, minLen int) bool {
	count := 0
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
		count++
	}
	return count >= minLen
}
