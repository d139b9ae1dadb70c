package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory provides a centralized way to create repositories
type Factory struct {
	db           *gorm.DB
	repositories *Repositories
	once         sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns the repositories instance (singleton per factory)
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repositories = NewRepositories(f.db)
	})
	return f.repositories
}

// GetUserRepository returns the user repository
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSourceRepository returns the source repository
func (f *Factory) GetSourceRepository() SourceRepository {
	return f.GetRepositories().Source
}

// GetChatRepository returns the chat repository
func (f *Factory) GetChatRepository() ChatRepository {
	return f.GetRepositories().Chat
}

// GetSettingRepository returns the setting repository
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

// GetQueueRepository returns the queue repository
func (f *Factory) GetQueueRepository() QueueRepository {
	return f.GetRepositories().Queue
}

// Global factory instance
var globalFactory *Factory
var globalFactoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	globalFactoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
