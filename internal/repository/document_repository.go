package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorat/internal/model"
)

// DocumentRepository is the registry of curriculum documents the pipeline
// ingests from. Maintainers write here; the engine only reads content and
// records indexing bookkeeping.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert creates or replaces a registry entry keyed by document ID.
func (r *DocumentRepository) Upsert(doc *model.Document) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error; err != nil {
		return fmt.Errorf("upsert curriculum document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get curriculum document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListAll() ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list curriculum documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListByLevelAndSubject(level, subject string) ([]model.Document, error) {
	q := r.db.Order("id")
	if level != "" {
		q = q.Where("level = ?", level)
	}
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var list []model.Document
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list curriculum documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.Document{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count curriculum documents failed: %w", err)
	}
	return n, nil
}

// MarkIndexed records the content hash and timestamp of the last successful
// ingestion, which is how the pipeline detects unchanged documents to skip.
func (r *DocumentRepository) MarkIndexed(id, contentHash string, at time.Time) error {
	if err := r.db.Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"content_hash": contentHash, "indexed_at": at}).Error; err != nil {
		return fmt.Errorf("mark document indexed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete curriculum document failed: %w", err)
	}
	return nil
}
