package chunker

import (
	"strings"
	"testing"
)

func TestSplitIntoSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "no terminator", in: "just some words without an end", want: nil},
		{name: "basic", in: "Hello world. This is a test!", want: []string{"Hello world.", "This is a test!"}},
		{name: "question", in: "Is it working? Yes.", want: []string{"Is it working?", "Yes."}},
		{name: "closing quote", in: `He said "stop." Then left.`, want: []string{`He said "stop."`, "Then left."}},
		{name: "trailing fragment dropped", in: "Done. And then", want: []string{"Done."}},
		{name: "whitespace trimmed", in: "  First.   Second.  ", want: []string{"First.", "Second."}},
	}

	for _, tt := range tests {
		got := SplitIntoSentences(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: SplitIntoSentences(%q) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%s: sentence %d = %q, want %q", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSplitIntoSentencesNeverEmpty(t *testing.T) {
	for _, in := range []string{"", ".", "...", "!?.", "a.", " . . . "} {
		for _, s := range SplitIntoSentences(in) {
			if strings.TrimSpace(s) == "" {
				t.Fatalf("SplitIntoSentences(%q) returned an empty sentence", in)
			}
		}
	}
}

func TestChunkTextBySentencesEmpty(t *testing.T) {
	if got := ChunkTextBySentences("", 1000, 2); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestChunkTextBySentencesScenario(t *testing.T) {
	chunks := ChunkTextBySentences("Hello world. This is a test. Short.", 20, 1)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "Hello world." {
		t.Fatalf("chunk 0 = %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "Hello world.") {
		t.Fatalf("chunk 1 should begin with the last sentence of chunk 0, got %q", chunks[1])
	}
	if !strings.HasSuffix(chunks[2], "Short.") {
		t.Fatalf("chunk 2 should end with the final sentence, got %q", chunks[2])
	}
}

func TestChunkTextBySentencesOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 50) + "end." // far beyond maxChunkSize
	chunks := ChunkTextBySentences("Short one. "+long+" After.", 20, 0)

	found := false
	for _, c := range chunks {
		if c == strings.TrimSpace(long) {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized sentence must appear verbatim as its own chunk: %v", chunks)
	}
}

func TestChunkTextBySentencesEverySentenceCovered(t *testing.T) {
	text := "One. Two. Three. Four. Five. Six. Seven. Eight."
	sentences := SplitIntoSentences(text)
	chunks := ChunkTextBySentences(text, 15, 2)

	for _, s := range sentences {
		covered := false
		for _, c := range chunks {
			if strings.Contains(c, s) {
				covered = true
				break
			}
		}
		if !covered {
			t.Fatalf("sentence %q missing from all chunks %v", s, chunks)
		}
	}

	for _, c := range chunks {
		if c == "" {
			t.Fatalf("empty chunk in %v", chunks)
		}
	}
}

func TestChunkTextBySentencesOverlapCount(t *testing.T) {
	text := "Alpha one. Beta two. Gamma three. Delta four. Epsilon five."
	overlap := 2
	chunks := ChunkTextBySentences(text, 25, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}

	for i := 1; i < len(chunks); i++ {
		prevSentences := SplitIntoSentences(chunks[i-1])
		want := overlap
		if want > len(prevSentences) {
			want = len(prevSentences)
		}
		carried := strings.Join(prevSentences[len(prevSentences)-want:], " ")
		if !strings.HasPrefix(chunks[i], carried) {
			t.Fatalf("chunk %d should start with the last %d sentences of its predecessor (%q), got %q",
				i, want, carried, chunks[i])
		}
	}
}

func TestChunkTextBySentencesClampsArguments(t *testing.T) {
	// Invalid sizes must not panic or drop content.
	chunks := ChunkTextBySentences("First. Second.", 0, -3)
	if len(chunks) == 0 {
		t.Fatal("expected chunks despite clamped arguments")
	}
}

func TestChunkTextLegacyOverlapConversion(t *testing.T) {
	text := "Alpha one. Beta two. Gamma three. Delta four. Epsilon five."

	// 100 chars of overlap budget converts to a single overlap sentence.
	legacy := ChunkText(text, 25, DefaultOverlapChars)
	direct := ChunkTextBySentences(text, 25, 1)
	if len(legacy) != len(direct) {
		t.Fatalf("legacy chunking diverged: %v vs %v", legacy, direct)
	}
	for i := range legacy {
		if legacy[i] != direct[i] {
			t.Fatalf("legacy chunk %d = %q, want %q", i, legacy[i], direct[i])
		}
	}

	// Sub-sentence budgets still carry at least one sentence of overlap.
	if got := ChunkText(text, 25, 10); len(got) != len(direct) {
		t.Fatalf("small overlap budget should clamp to one sentence, got %v", got)
	}
}
