package search

import "strings"

const snippetMaxLength = 120

// BuildSnippet produces a short display excerpt of a chunk's text,
// centered on the first matched term when it appears verbatim. Lengths
// and offsets are measured in runes so Hangul text truncates cleanly.
func BuildSnippet(fullText string, matchedTerms []string) string {
	runes := []rune(fullText)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= snippetMaxLength {
		return fullText
	}

	var firstTerm string
	if len(matchedTerms) > 0 {
		firstTerm = strings.TrimSpace(matchedTerms[0])
	}
	if firstTerm == "" {
		return string(runes[:snippetMaxLength-1]) + "…"
	}

	lowerRunes := []rune(strings.ToLower(fullText))
	termRunes := []rune(strings.ToLower(firstTerm))
	matchIndex := indexRunes(lowerRunes, termRunes)
	if matchIndex < 0 {
		return string(runes[:snippetMaxLength-1]) + "…"
	}

	contextPadding := (snippetMaxLength - len(termRunes)) / 2
	start := matchIndex - contextPadding
	if start < 0 {
		start = 0
	}
	end := start + snippetMaxLength
	if end > len(runes) {
		end = len(runes)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteRune('…')
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteRune('…')
	}
	return b.String()
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
