package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/internal/repository"
	"support-desk-go/pkg/es"
	"support-desk-go/pkg/kafka"
	"support-desk-go/pkg/log"
	"support-desk-go/pkg/storage"
	"support-desk-go/pkg/tasks"
)

// DocumentService 定义了支持文档的业务接口。
type DocumentService interface {
	// Upload 将文件写入对象存储、落库元数据并发布上传事件。
	Upload(ctx context.Context, orgID, uploaderID, fileName, contentType string, size int64, reader io.Reader) (*model.Document, error)
	List(ctx context.Context, orgID string, page, pageSize int) ([]model.DocumentDTO, int64, error)
	// DownloadURL 返回文档的临时下载链接。
	DownloadURL(ctx context.Context, orgID, docID string) (string, error)
	Delete(ctx context.Context, orgID, docID string) error
	Search(ctx context.Context, orgID, query string, size int) ([]model.DocumentSearchDoc, error)
}

type documentService struct {
	repo     repository.DocumentRepository
	minioCfg config.MinIOConfig
	esCfg    config.ElasticsearchConfig
}

// NewDocumentService 创建一个 DocumentService 实例。
func NewDocumentService(repo repository.DocumentRepository, minioCfg config.MinIOConfig, esCfg config.ElasticsearchConfig) DocumentService {
	return &documentService{repo: repo, minioCfg: minioCfg, esCfg: esCfg}
}

// Upload 上传流程：对象存储 -> 元数据落库 -> 发布事件。
// 索引由消费上传事件的管道异步完成，上传路径不直连 Elasticsearch。
func (s *documentService) Upload(ctx context.Context, orgID, uploaderID, fileName, contentType string, size int64, reader io.Reader) (*model.Document, error) {
	docID := uuid.NewString()
	// 对象名按组织隔离，保留原始扩展名便于人工排查
	objectName := fmt.Sprintf("%s/%s%s", orgID, docID, path.Ext(fileName))

	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	doc := &model.Document{
		ID:          docID,
		OrgID:       orgID,
		UploaderID:  uploaderID,
		FileName:    fileName,
		ObjectName:  objectName,
		ContentType: contentType,
		Size:        size,
	}
	if err := s.repo.CreateDocument(doc); err != nil {
		// 元数据落库失败时回收已上传的对象，避免孤儿文件
		if rmErr := storage.RemoveObject(ctx, s.minioCfg.BucketName, objectName); rmErr != nil {
			log.Warnf("回收上传对象失败: object=%s, err=%v", objectName, rmErr)
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	event := tasks.DocumentEvent{
		Type:        tasks.DocumentUploaded,
		DocumentID:  doc.ID,
		OrgID:       orgID,
		UploaderID:  uploaderID,
		FileName:    fileName,
		ObjectName:  objectName,
		ContentType: contentType,
		OccurredAt:  time.Now().UnixMilli(),
	}
	if err := kafka.ProduceDocumentEvent(event); err != nil {
		// 事件丢失意味着索引滞后，不影响上传本身
		log.Warnf("发布文档上传事件失败: docId=%s, err=%v", doc.ID, err)
	}

	return doc, nil
}

// List 分页列出组织的文档元数据。
func (s *documentService) List(ctx context.Context, orgID string, page, pageSize int) ([]model.DocumentDTO, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	docs, total, err := s.repo.ListDocuments(orgID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]model.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, model.DocumentDTO{
			ID:          d.ID,
			FileName:    d.FileName,
			ContentType: d.ContentType,
			Size:        d.Size,
			UploaderID:  d.UploaderID,
			UploadedAt:  model.LocalTime(d.CreatedAt),
		})
	}
	return dtos, total, nil
}

// DownloadURL 生成 15 分钟有效的预签名下载链接。
func (s *documentService) DownloadURL(ctx context.Context, orgID, docID string) (string, error) {
	doc, err := s.repo.GetDocument(orgID, docID)
	if err != nil {
		return "", err
	}
	return storage.GetPresignedURL(s.minioCfg.BucketName, doc.ObjectName, 15*time.Minute)
}

// Delete 删除对象、元数据记录并发布删除事件。
func (s *documentService) Delete(ctx context.Context, orgID, docID string) error {
	doc, err := s.repo.GetDocument(orgID, docID)
	if err != nil {
		return err
	}

	if err := storage.RemoveObject(ctx, s.minioCfg.BucketName, doc.ObjectName); err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	if err := s.repo.DeleteDocument(orgID, docID); err != nil {
		return err
	}

	event := tasks.DocumentEvent{
		Type:       tasks.DocumentDeleted,
		DocumentID: docID,
		OrgID:      orgID,
		ObjectName: doc.ObjectName,
		OccurredAt: time.Now().UnixMilli(),
	}
	if err := kafka.ProduceDocumentEvent(event); err != nil {
		log.Warnf("发布文档删除事件失败: docId=%s, err=%v", docID, err)
	}
	return nil
}

// Search 按文件名在 Elasticsearch 中检索文档元数据。
func (s *documentService) Search(ctx context.Context, orgID, query string, size int) ([]model.DocumentSearchDoc, error) {
	var hits []model.DocumentSearchDoc
	err := es.Search(ctx, s.esCfg.DocumentIndex, orgID, "file_name", query, size, func(raw json.RawMessage) error {
		var doc model.DocumentSearchDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to decode document search hit: %w", err)
		}
		hits = append(hits, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}
