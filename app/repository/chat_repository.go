package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

// chatRepository implements ChatRepository interface
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(session *models.ChatSession) error {
	return r.db.Create(session).Error
}

func (r *chatRepository) GetSessionByUUID(uuid string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("uuid = ?", uuid).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) GetSessionsByUserID(userID uint) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := r.db.Where("user_id = ?", userID).Order("last_active_at DESC").Find(&sessions).Error
	return sessions, err
}

func (r *chatRepository) CountOpenSessionsByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatSession{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *chatRepository) UpdateSession(session *models.ChatSession) error {
	return r.db.Save(session).Error
}

func (r *chatRepository) DeleteSession(id uint) error {
	return r.db.Delete(&models.ChatSession{}, id).Error
}

func (r *chatRepository) CreateMessage(message *models.ChatMessage) error {
	return r.db.Create(message).Error
}

// GetMessagesBySessionID returns the most recent messages of a session in
// chronological order. limit <= 0 returns all messages.
func (r *chatRepository) GetMessagesBySessionID(sessionID uint, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	q := r.db.Where("session_id = ?", sessionID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	// reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatRepository) CountMessagesByUserSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.user_id = ? AND chat_messages.role = ? AND chat_messages.created_at >= ?", userID, models.ChatRoleUser, since).
		Count(&count).Error
	return count, err
}
