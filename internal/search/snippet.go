package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSnippetChars caps snippet length.
const DefaultSnippetChars = 280

var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+`)

// Snippet extracts a short excerpt of text centered on the sentence that
// matches the most query tokens: one sentence of leading context, the best
// sentence, and up to two sentences after it. Output longer than maxChars is
// cut at a word boundary with an ellipsis.
func Snippet(text, query string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncate(text, maxChars)
	}

	queryTokens := tokenSet(query)
	best := 0
	bestCount := -1
	for i, sent := range sentences {
		lower := strings.ToLower(sent)
		count := 0
		for tok := range queryTokens {
			if strings.Contains(lower, tok) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	left := best - 1
	if left < 0 {
		left = 0
	}
	right := best + 3
	if right > len(sentences) {
		right = len(sentences)
	}

	return truncate(strings.Join(sentences[left:right], " "), maxChars)
}

// splitSentences splits text on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	indexes := sentenceSplit.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(indexes)+1)
	start := 0
	for _, loc := range indexes {
		// loc[0] is the punctuation mark; keep it
		sentences = append(sentences, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// tokenSet lowercases and splits query into alphanumeric tokens.
func tokenSet(query string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// truncate cuts s at a word boundary under maxChars, appending an ellipsis.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	// Never split a multi-byte rune
	end := maxChars
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
