package tokenizer

import "regexp"

// wordPattern matches maximal word runs: a letter or digit followed by
// letters, digits, apostrophes, or hyphens. Unicode-aware so Hangul and
// Latin words both tokenize.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'-]*`)

// TokenizeWords extracts the raw word tokens of a transcript segment in
// order of appearance. Timing distribution and normalisation happen in the
// chunker; this only finds the word boundaries.
func TokenizeWords(text string) []string {
	return wordPattern.FindAllString(text, -1)
}
