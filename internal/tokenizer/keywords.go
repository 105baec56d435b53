package tokenizer

import (
	"strings"
	"unicode"
)

// DefaultKoreanStopwords lists high-frequency Korean fillers, pronouns, and
// connectives that carry no retrieval value. Compared after normalisation,
// so "하다" also swallows the tokens the suffix table rewrites to it.
var DefaultKoreanStopwords = []string{
	"그", "저", "이", "그리고", "그래서", "근데", "진짜", "정말",
	"아", "어", "음", "네", "응", "것", "수", "더", "좀", "또",
	"그거", "이거", "저거", "하다",
}

// ExtractKeywords returns the unique normalized terms of text, in
// first-seen order, with stopwords removed. A nil stopwords slice selects
// DefaultKoreanStopwords.
func ExtractKeywords(text string, stopwords []string) []string {
	if stopwords == nil {
		stopwords = DefaultKoreanStopwords
	}
	stopset := make(map[string]struct{}, len(stopwords))
	for _, word := range stopwords {
		if norm := NormalizeToken(word); norm != "" {
			stopset[norm] = struct{}{}
		}
	}

	lowered := strings.ToLower(text)
	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		norm := NormalizeToken(word)
		if norm == "" {
			continue
		}
		if _, stop := stopset[norm]; stop {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		keywords = append(keywords, norm)
	}
	return keywords
}

// TokenizeQuery splits a free-text query into unique normalized terms,
// preserving first-seen order.
func TokenizeQuery(query string) []string {
	fields := strings.Fields(NormalizeForSearch(query))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
	}
	return terms
}
