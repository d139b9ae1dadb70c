package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle             string `json:"site_title" validate:"required,min=1,max=255"`
	SiteDescription       string `json:"site_description" validate:"max=500"`
	RegistrationEnabled   bool   `json:"registration_enabled"`
	ChatEnabled           bool   `json:"chat_enabled"`
	JobQueueWorkerCount   int    `json:"job_queue_worker_count" validate:"min=1,max=64"`
	ChunkMaxSize          int    `json:"chunk_max_size" validate:"min=1"`
	ChunkOverlapSentences int    `json:"chunk_overlap_sentences" validate:"min=0"`
	mu                    sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return appSettings
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = &AppSettings{
		SiteTitle:             "Fluxo Alfa",
		SiteDescription:       "RAG chat platform",
		RegistrationEnabled:   true,
		ChatEnabled:           true,
		JobQueueWorkerCount:   5,
		ChunkMaxSize:          1000,
		ChunkOverlapSentences: 2,
	}

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Apply loaded settings
	for _, setting := range settings {
		switch setting.Key {
		case "site_title":
			appSettings.SiteTitle = setting.Value
		case "site_description":
			appSettings.SiteDescription = setting.Value
		case "registration_enabled":
			appSettings.RegistrationEnabled = setting.Value == "true"
		case "chat_enabled":
			appSettings.ChatEnabled = setting.Value == "true"
		case "job_queue_worker_count":
			if n, err := strconv.Atoi(setting.Value); err == nil && n > 0 {
				appSettings.JobQueueWorkerCount = n
			}
		case "chunk_max_size":
			if n, err := strconv.Atoi(setting.Value); err == nil && n > 0 {
				appSettings.ChunkMaxSize = n
			}
		case "chunk_overlap_sentences":
			if n, err := strconv.Atoi(setting.Value); err == nil && n >= 0 {
				appSettings.ChunkOverlapSentences = n
			}
		}
	}

	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]interface{}{
		"site_title":              settings.SiteTitle,
		"site_description":        settings.SiteDescription,
		"registration_enabled":    fmt.Sprintf("%t", settings.RegistrationEnabled),
		"chat_enabled":            fmt.Sprintf("%t", settings.ChatEnabled),
		"job_queue_worker_count":  strconv.Itoa(settings.JobQueueWorkerCount),
		"chunk_max_size":          strconv.Itoa(settings.ChunkMaxSize),
		"chunk_overlap_sentences": strconv.Itoa(settings.ChunkOverlapSentences),
	}

	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				setting = Setting{
					Key:   key,
					Value: fmt.Sprintf("%v", value),
					Type:  getSettingType(key),
				}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			setting.Value = fmt.Sprintf("%v", value)
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	appSettings = settings
	return nil
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case "registration_enabled", "chat_enabled":
		return "boolean"
	case "job_queue_worker_count", "chunk_max_size", "chunk_overlap_sentences":
		return "integer"
	default:
		return "string"
	}
}

// Validate validates the settings
func (s *AppSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// ToJSON converts settings to JSON
func (s *AppSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// IsRegistrationEnabled returns whether new account registration is open
func (s *AppSettings) IsRegistrationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RegistrationEnabled
}

// IsChatEnabled returns whether the chat endpoints accept new messages
func (s *AppSettings) IsChatEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ChatEnabled
}

// GetJobQueueWorkerCount returns the configured background worker count
func (s *AppSettings) GetJobQueueWorkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.JobQueueWorkerCount <= 0 {
		return 5
	}
	return s.JobQueueWorkerCount
}

// GetChunkMaxSize returns the maximum chunk size for source ingestion
func (s *AppSettings) GetChunkMaxSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ChunkMaxSize
}

// GetChunkOverlapSentences returns the sentence overlap for source ingestion
func (s *AppSettings) GetChunkOverlapSentences() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ChunkOverlapSentences
}
