package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxChunkSize is the maximum joined length of a chunk in characters.
	DefaultMaxChunkSize = 1000
	// DefaultOverlapSentences is how many trailing sentences are carried into the next chunk.
	DefaultOverlapSentences = 2
	// DefaultOverlapChars is the character overlap budget accepted by the legacy ChunkText API.
	DefaultOverlapChars = 100
	// CharsPerOverlapSentence converts a character overlap budget into an
	// approximate sentence count for the legacy API. Best effort, not exact.
	CharsPerOverlapSentence = 100
)

// sentencePattern matches a run of non-terminator characters followed by a
// sentence terminator and an optional closing quote.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]["']?`)

// SplitIntoSentences splits text into trimmed sentences. A sentence is a
// maximal run of characters ending in '.', '!' or '?', optionally followed by
// a closing quote. Trailing text without a terminator is dropped. The function
// never fails; input without any terminator yields nil.
func SplitIntoSentences(text string) []string {
	if text == "" {
		return nil
	}

	var sentences []string
	for _, match := range sentencePattern.FindAllString(text, -1) {
		s := strings.TrimSpace(match)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// ChunkTextBySentences splits text into chunks of at most maxChunkSize
// characters, aligned on sentence boundaries. Sentences within a chunk are
// joined by single spaces. Consecutive chunks share the last overlapSentences
// sentences of the previous chunk so downstream retrieval keeps context
// across boundaries. A single sentence longer than maxChunkSize becomes its
// own oversized chunk; it is never split or truncated.
//
// maxChunkSize < 1 is clamped to DefaultMaxChunkSize, overlapSentences < 0 to 0.
func ChunkTextBySentences(text string, maxChunkSize, overlapSentences int) []string {
	if maxChunkSize < 1 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}

	sentences := SplitIntoSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		addedLen := len(sentence)
		if len(current) > 0 {
			addedLen++ // joining space
		}

		if currentLen+addedLen > maxChunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			// Seed the next chunk with the trailing overlap, even if the
			// overlap alone already exceeds maxChunkSize.
			overlap := overlapSentences
			if overlap > len(current) {
				overlap = len(current)
			}
			current = append([]string(nil), current[len(current)-overlap:]...)
			currentLen = joinedLen(current)

			addedLen = len(sentence)
			if len(current) > 0 {
				addedLen++
			}
		}

		current = append(current, sentence)
		currentLen += addedLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	filtered := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// ChunkText is the legacy character-oriented API. It converts the character
// overlap budget into an approximate sentence count and delegates to
// ChunkTextBySentences. Kept for compatibility with callers that predate
// sentence-level overlap.
func ChunkText(text string, maxChunkSize, overlapChars int) []string {
	overlapSentences := overlapChars / CharsPerOverlapSentence
	if overlapSentences < 1 {
		overlapSentences = 1
	}
	return ChunkTextBySentences(text, maxChunkSize, overlapSentences)
}

func joinedLen(sentences []string) int {
	if len(sentences) == 0 {
		return 0
	}
	n := len(sentences) - 1
	for _, s := range sentences {
		n += len(s)
	}
	return n
}
