package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// targetStopwords are dropped from target descriptions before hashing.
// Positional words (above, left, first, ...) are deliberately absent: they
// change which element is meant.
var targetStopwords = func() map[string]bool {
	words := []string{
		"the", "a", "an", "is", "are", "be", "this", "that", "these", "those",
		"it", "its", "of", "for", "with", "at", "by", "from", "as", "on", "in",
		"and", "or", "to", "please", "labeled", "labelled", "called", "named",
		"element", "which", "says", "saying", "reads", "text",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// NormalizeTarget canonicalizes a target description: lowercase, punctuation
// replaced by spaces, stopwords removed, words sorted. "Click the 'Submit'
// button" and "button submit click" normalize identically.
func NormalizeTarget(target string) string {
	lower := strings.ToLower(target)

	var cleaned strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cleaned.WriteRune(r)
		} else {
			cleaned.WriteRune(' ')
		}
	}

	words := strings.Fields(cleaned.String())
	filtered := words[:0]
	for _, w := range words {
		if !targetStopwords[w] {
			filtered = append(filtered, w)
		}
	}
	sort.Strings(filtered)
	return strings.Join(filtered, " ")
}

// Signature derives the journal key for a target on a page state. The action
// kind is not part of the key: a point found for "click" is equally valid for
// "type" on the same element.
func Signature(target, fingerprint string) string {
	sum := sha256.Sum256([]byte(NormalizeTarget(target) + "\n" + fingerprint))
	return hex.EncodeToString(sum[:])
}
