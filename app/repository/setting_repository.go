package repository

import (
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

// settingRepository implements SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get() (*models.AppSettings, error) {
	if err := models.LoadSettings(r.db); err != nil {
		return nil, err
	}
	return models.GetAppSettings(), nil
}

func (r *settingRepository) Save(settings *models.AppSettings) error {
	return models.SaveSettings(r.db, settings)
}

func (r *settingRepository) GetValue(key string) (string, error) {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r *settingRepository) SetValue(key, value string) error {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		setting = models.Setting{Key: key, Value: value, Type: "string"}
		return r.db.Create(&setting).Error
	}
	if err != nil {
		return err
	}
	setting.Value = value
	return r.db.Save(&setting).Error
}
