package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/app/repository"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/embedding"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/entitlements"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/llm"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/metrics/counter"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/rag"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

const chatHistoryWindow = 10

type createSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// chunkRef is what gets persisted on assistant messages as retrieval context.
type chunkRef struct {
	SourceTitle string  `json:"source_title"`
	ChunkID     uint    `json:"chunk_id"`
	Position    int     `json:"position"`
	Score       float64 `json:"score"`
}

// HandleCreateChatSession opens a new chat session within plan limits.
func HandleCreateChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	settings := models.GetAppSettings()
	if settings != nil && !settings.IsChatEnabled() {
		return jsonError(c, fiber.StatusServiceUnavailable, "chat_disabled", "Chat is currently disabled")
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	repo := repository.GetGlobalFactory().GetChatRepository()

	open, err := repo.CountOpenSessionsByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count sessions")
	}
	if !entitlements.AllowsNewSession(userCtx.Plan, int(open)) {
		return jsonError(c, fiber.StatusTooManyRequests, "limit_reached", "Session limit reached for your plan")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}

	now := time.Now()
	sess := &models.ChatSession{
		UUID:         uuid.New().String(),
		UserID:       userCtx.UserID,
		Title:        title,
		LastActiveAt: &now,
	}
	if err := repo.CreateSession(sess); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create session")
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse(sess))
}

// HandleListChatSessions lists the user's sessions, most recently active first.
func HandleListChatSessions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	repo := repository.GetGlobalFactory().GetChatRepository()
	sessions, err := repo.GetSessionsByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sessions")
	}

	items := make([]fiber.Map, 0, len(sessions))
	for i := range sessions {
		items = append(items, sessionResponse(&sessions[i]))
	}
	return c.JSON(fiber.Map{"sessions": items})
}

// HandleGetChatSession returns a session with its message history.
func HandleGetChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	sess, errResp := loadOwnedSession(c, userCtx.UserID)
	if errResp != nil {
		return errResp(c)
	}

	repo := repository.GetGlobalFactory().GetChatRepository()
	messages, err := repo.GetMessagesBySessionID(sess.ID, 0)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load messages")
	}

	msgItems := make([]fiber.Map, 0, len(messages))
	for _, m := range messages {
		item := fiber.Map{
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if m.Role == models.ChatRoleAssistant && m.ContextJSON != "" {
			var refs []chunkRef
			if err := json.Unmarshal([]byte(m.ContextJSON), &refs); err == nil {
				item["context"] = refs
			}
		}
		msgItems = append(msgItems, item)
	}

	resp := sessionResponse(sess)
	resp["messages"] = msgItems
	return c.JSON(resp)
}

// HandleDeleteChatSession soft-deletes a session.
func HandleDeleteChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	sess, errResp := loadOwnedSession(c, userCtx.UserID)
	if errResp != nil {
		return errResp(c)
	}

	repo := repository.GetGlobalFactory().GetChatRepository()
	if err := repo.DeleteSession(sess.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete session")
	}

	return c.JSON(fiber.Map{"message": "session deleted"})
}

// HandleSendChatMessage runs the full RAG turn: quota check, retrieval,
// completion, persistence, usage accounting.
func HandleSendChatMessage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	settings := models.GetAppSettings()
	if settings != nil && !settings.IsChatEnabled() {
		return jsonError(c, fiber.StatusServiceUnavailable, "chat_disabled", "Chat is currently disabled")
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Message must not be empty")
	}

	sess, errResp := loadOwnedSession(c, userCtx.UserID)
	if errResp != nil {
		return errResp(c)
	}

	// Quota check before any paid API call.
	usedToday, err := counter.GetDailyUsage(userCtx.UserID)
	if err != nil {
		log.Printf("daily usage lookup failed for user %d: %v", userCtx.UserID, err)
	}
	if !entitlements.AllowsMessages(userCtx.Plan, int(usedToday)) {
		return jsonError(c, fiber.StatusTooManyRequests, "limit_reached", "Daily message limit reached for your plan")
	}

	db := database.GetDB()
	repo := repository.GetGlobalFactory().GetChatRepository()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	// Retrieve grounding context from the knowledge base.
	limits := entitlements.LimitsFor(userCtx.Plan)
	retriever := rag.NewRetriever(db, embedding.NewOpenAIClientFromEnv())
	scored, err := retriever.TopK(ctx, message, limits.ContextChunks)
	if err != nil {
		log.Printf("context retrieval failed for session %d: %v", sess.ID, err)
		scored = nil
	}

	history, err := repo.GetMessagesBySessionID(sess.ID, chatHistoryWindow)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load history")
	}

	client, err := llm.NewFromEnv()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Chat backend not configured")
	}

	completion, err := client.Complete(ctx, buildChatMessages(scored, history, message))
	if err != nil {
		return jsonError(c, fiber.StatusBadGateway, "upstream_error", "Chat completion failed")
	}

	refs := make([]chunkRef, 0, len(scored))
	for _, s := range scored {
		refs = append(refs, chunkRef{
			SourceTitle: s.SourceTitle,
			ChunkID:     s.Chunk.ID,
			Position:    s.Chunk.Position,
			Score:       s.Score,
		})
	}
	contextJSON, _ := json.Marshal(refs)

	userMsg := &models.ChatMessage{SessionID: sess.ID, Role: models.ChatRoleUser, Content: message}
	if err := repo.CreateMessage(userMsg); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store message")
	}
	assistantMsg := &models.ChatMessage{
		SessionID:   sess.ID,
		Role:        models.ChatRoleAssistant,
		Content:     completion.Content,
		ContextJSON: string(contextJSON),
		TokensUsed:  completion.TokensUsed,
	}
	if err := repo.CreateMessage(assistantMsg); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store reply")
	}

	now := time.Now()
	sess.LastActiveAt = &now
	if sess.Title == "New chat" {
		sess.Title = truncateTitle(message, 60)
	}
	if err := repo.UpdateSession(sess); err != nil {
		log.Printf("failed to update session %d: %v", sess.ID, err)
	}

	// Usage accounting; message count is flushed to the DB asynchronously.
	if _, err := counter.IncrementDailyUsage(userCtx.UserID); err != nil {
		log.Printf("failed to increment daily usage for user %d: %v", userCtx.UserID, err)
	}
	if err := counter.AddSessionMessage(sess.ID); err != nil {
		log.Printf("failed to count session message for session %d: %v", sess.ID, err)
	}

	return c.JSON(fiber.Map{
		"reply":       completion.Content,
		"context":     refs,
		"tokens_used": completion.TokensUsed,
		"created_at":  assistantMsg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// buildChatMessages assembles the completion request: system prompt with
// retrieved context, recent history, then the new user message.
func buildChatMessages(scored []rag.ScoredChunk, history []models.ChatMessage, message string) []llm.Message {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Answer using the provided context where relevant.")
	if len(scored) > 0 {
		sb.WriteString("\n\nContext:\n")
		for i, s := range scored {
			fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, s.SourceTitle, s.Chunk.Content)
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sb.String()})
	for _, m := range history {
		if m.Role != models.ChatRoleUser && m.Role != models.ChatRoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: models.ChatRoleUser, Content: message})
}

func sessionResponse(s *models.ChatSession) fiber.Map {
	return fiber.Map{
		"uuid":           s.UUID,
		"title":          s.Title,
		"message_count":  s.MessageCount,
		"last_active_at": formatTimePtr(s.LastActiveAt),
		"created_at":     s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// loadOwnedSession resolves :uuid and enforces ownership. The second return
// value is a deferred error responder so handlers can bail out in one line.
func loadOwnedSession(c *fiber.Ctx, userID uint) (*models.ChatSession, func(*fiber.Ctx) error) {
	sessionUUID := strings.TrimSpace(c.Params("uuid"))
	if sessionUUID == "" {
		return nil, func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing session uuid")
		}
	}

	repo := repository.GetGlobalFactory().GetChatRepository()
	sess, err := repo.GetSessionByUUID(sessionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, func(c *fiber.Ctx) error {
				return jsonError(c, fiber.StatusNotFound, "not_found", "Session not found")
			}
		}
		return nil, func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load session")
		}
	}
	if sess.UserID != userID {
		// Do not leak existence of other users' sessions.
		return nil, func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Session not found")
		}
	}
	return sess, nil
}

func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
