package repository

import (
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

// sourceRepository implements SourceRepository interface
type sourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &sourceRepository{db: db}
}

func (r *sourceRepository) GetByID(id uint) (*models.Source, error) {
	var source models.Source
	err := r.db.First(&source, id).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *sourceRepository) GetByUUID(uuid string) (*models.Source, error) {
	var source models.Source
	err := r.db.Where("uuid = ?", uuid).First(&source).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *sourceRepository) List(offset, limit int) ([]models.Source, error) {
	var sources []models.Source
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&sources).Error
	return sources, err
}

func (r *sourceRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Source{}).Count(&count).Error
	return count, err
}

func (r *sourceRepository) Search(query string) ([]models.Source, error) {
	var sources []models.Source
	like := "%" + query + "%"
	err := r.db.Where("title LIKE ?", like).
		Order("created_at DESC").Limit(50).Find(&sources).Error
	return sources, err
}

func (r *sourceRepository) GetChunks(sourceID uint) ([]models.SourceChunk, error) {
	var chunks []models.SourceChunk
	err := r.db.Where("source_id = ?", sourceID).Order("position ASC").Find(&chunks).Error
	return chunks, err
}

func (r *sourceRepository) CountChunks(sourceID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.SourceChunk{}).Where("source_id = ?", sourceID).Count(&count).Error
	return count, err
}

// CountPendingChunks counts chunks of a source that have no embedding yet.
func (r *sourceRepository) CountPendingChunks(sourceID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.SourceChunk{}).
		Where("source_id = ? AND embedding_json = ''", sourceID).Count(&count).Error
	return count, err
}
