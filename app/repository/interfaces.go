package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// SourceRepository defines the interface for knowledge-base source operations
type SourceRepository interface {
	GetByID(id uint) (*models.Source, error)
	GetByUUID(uuid string) (*models.Source, error)
	List(offset, limit int) ([]models.Source, error)
	Count() (int64, error)
	Search(query string) ([]models.Source, error)
	GetChunks(sourceID uint) ([]models.SourceChunk, error)
	CountChunks(sourceID uint) (int64, error)
	CountPendingChunks(sourceID uint) (int64, error)
}

// ChatRepository defines the interface for chat session and message operations
type ChatRepository interface {
	CreateSession(session *models.ChatSession) error
	GetSessionByUUID(uuid string) (*models.ChatSession, error)
	GetSessionsByUserID(userID uint) ([]models.ChatSession, error)
	CountOpenSessionsByUserID(userID uint) (int64, error)
	UpdateSession(session *models.ChatSession) error
	DeleteSession(id uint) error
	CreateMessage(message *models.ChatMessage) error
	GetMessagesBySessionID(sessionID uint, limit int) ([]models.ChatMessage, error)
	CountMessagesByUserSince(userID uint, since time.Time) (int64, error)
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Source  SourceRepository
	Chat    ChatRepository
	Setting SettingRepository
	Queue   QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Source:  NewSourceRepository(db),
		Chat:    NewChatRepository(db),
		Setting: NewSettingRepository(db),
		Queue:   NewQueueRepository(),
	}
}
