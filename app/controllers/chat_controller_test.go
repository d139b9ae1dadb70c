package controllers

import (
	"strings"
	"testing"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/rag"
)

func TestBuildChatMessagesOrder(t *testing.T) {
	scored := []rag.ScoredChunk{
		{SourceTitle: "Handbook", Chunk: models.SourceChunk{Content: "Refunds take 5 days."}, Score: 0.9},
	}
	history := []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "hi"},
		{Role: models.ChatRoleAssistant, Content: "hello"},
		{Role: "system", Content: "should be skipped"},
	}

	msgs := buildChatMessages(scored, history, "how long do refunds take?")

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages (system, 2 history, user), got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "Refunds take 5 days.") {
		t.Fatalf("system prompt should carry retrieved context, got %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Content, "Handbook") {
		t.Fatal("system prompt should name the source")
	}
	if msgs[1].Content != "hi" || msgs[2].Content != "hello" {
		t.Fatalf("history should be preserved in order, got %+v", msgs[1:3])
	}
	if msgs[3].Role != models.ChatRoleUser || msgs[3].Content != "how long do refunds take?" {
		t.Fatalf("last message must be the new user turn, got %+v", msgs[3])
	}
}

func TestBuildChatMessagesWithoutContext(t *testing.T) {
	msgs := buildChatMessages(nil, nil, "hello")

	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %d", len(msgs))
	}
	if strings.Contains(msgs[0].Content, "Context:") {
		t.Fatal("system prompt should not contain a context section when retrieval is empty")
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := truncateTitle("short", 60); got != "short" {
		t.Fatalf("short titles stay untouched, got %q", got)
	}
	long := strings.Repeat("ä", 80)
	got := truncateTitle(long, 60)
	if runes := []rune(got); len(runes) != 61 {
		t.Fatalf("expected 60 runes plus ellipsis, got %d", len(runes))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatal("truncated title should end with ellipsis")
	}
}
