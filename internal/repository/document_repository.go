package repository

import (
	"errors"

	"gorm.io/gorm"

	"support-desk-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	CreateDocument(doc *model.Document) error
	GetDocument(orgID, docID string) (*model.Document, error)
	ListDocuments(orgID string, page, pageSize int) ([]model.Document, int64, error)
	DeleteDocument(orgID, docID string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// CreateDocument 创建一条文档元数据记录。
func (r *documentRepository) CreateDocument(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// GetDocument 按组织与 ID 检索文档元数据。
func (r *documentRepository) GetDocument(orgID, docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("org_id = ? AND id = ?", orgID, docID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments 按组织分页列出文档元数据。
func (r *documentRepository) ListDocuments(orgID string, page, pageSize int) ([]model.Document, int64, error) {
	query := r.db.Model(&model.Document{}).Where("org_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []model.Document
	err := query.Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	return docs, total, err
}

// DeleteDocument 删除一条文档元数据记录。
func (r *documentRepository) DeleteDocument(orgID, docID string) error {
	res := r.db.Where("org_id = ? AND id = ?", orgID, docID).Delete(&model.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
