package search

import (
	"strings"
	"testing"
)

func TestBuildSnippetShortTextUnchanged(t *testing.T) {
	text := "짧은 문장은 그대로 돌려준다"
	if got := BuildSnippet(text, []string{"문장"}); got != text {
		t.Errorf("BuildSnippet = %q, want unchanged input", got)
	}
}

func TestBuildSnippetEmpty(t *testing.T) {
	if got := BuildSnippet("", []string{"검색"}); got != "" {
		t.Errorf("BuildSnippet(\"\") = %q", got)
	}
}

func TestBuildSnippetTruncatesWithoutTerm(t *testing.T) {
	text := strings.Repeat("가", 200)
	got := BuildSnippet(text, nil)
	runes := []rune(got)
	if len(runes) != 120 {
		t.Fatalf("snippet has %d runes, want 120", len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Errorf("snippet does not end with ellipsis: %q", got)
	}
}

func TestBuildSnippetCentersOnFirstTerm(t *testing.T) {
	text := strings.Repeat("앞", 150) + "검색어" + strings.Repeat("뒤", 150)
	got := BuildSnippet(text, []string{"검색어"})

	if !strings.Contains(got, "검색어") {
		t.Fatalf("snippet %q does not contain the matched term", got)
	}
	runes := []rune(got)
	if runes[0] != '…' || runes[len(runes)-1] != '…' {
		t.Errorf("mid-text snippet should be ellipsized on both sides: %q", got)
	}
	if len(runes) > 122 {
		t.Errorf("snippet has %d runes, want at most 122", len(runes))
	}
}

func TestBuildSnippetTermNearStart(t *testing.T) {
	text := "검색어 " + strings.Repeat("뒤", 200)
	got := BuildSnippet(text, []string{"검색어"})

	if !strings.HasPrefix(got, "검색어") {
		t.Errorf("snippet should start at the text head: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("snippet should be ellipsized at the tail: %q", got)
	}
}

func TestBuildSnippetCaseInsensitiveMatch(t *testing.T) {
	text := strings.Repeat("x", 150) + " Kafka " + strings.Repeat("y", 150)
	got := BuildSnippet(text, []string{"kafka"})
	if !strings.Contains(got, "Kafka") {
		t.Errorf("snippet %q should contain the original-cased term", got)
	}
}

func TestBuildSnippetTermAbsentFallsBack(t *testing.T) {
	text := strings.Repeat("가", 200)
	got := BuildSnippet(text, []string{"없는말"})
	runes := []rune(got)
	if len(runes) != 120 || runes[len(runes)-1] != '…' {
		t.Errorf("expected head truncation fallback, got %q", got)
	}
}
