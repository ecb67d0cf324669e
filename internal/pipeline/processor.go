// Package pipeline 实现了文档事件的异步处理管道。
package pipeline

import (
	"context"
	"fmt"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/pkg/es"
	"support-desk-go/pkg/log"
	"support-desk-go/pkg/tasks"
)

// Processor 消费文档事件并维护 Elasticsearch 的文档元数据索引。
// 实现 kafka.EventProcessor 接口。
type Processor struct {
	esCfg config.ElasticsearchConfig
}

// NewProcessor 创建一个事件处理器。
func NewProcessor(esCfg config.ElasticsearchConfig) *Processor {
	return &Processor{esCfg: esCfg}
}

// Process 处理一条文档事件。索引写入是幂等的：重复投递只会覆盖同一文档。
func (p *Processor) Process(ctx context.Context, event tasks.DocumentEvent) error {
	switch event.Type {
	case tasks.DocumentUploaded:
		doc := model.DocumentSearchDoc{
			ID:          event.DocumentID,
			OrgID:       event.OrgID,
			FileName:    event.FileName,
			ContentType: event.ContentType,
			UploaderID:  event.UploaderID,
			CreatedAt:   event.OccurredAt,
		}
		if err := es.IndexDocument(ctx, p.esCfg.DocumentIndex, event.DocumentID, doc); err != nil {
			return fmt.Errorf("failed to index document metadata: %w", err)
		}
		log.Infof("文档元数据已写入索引: docId=%s", event.DocumentID)
		return nil

	case tasks.DocumentDeleted:
		if err := es.DeleteDocument(ctx, p.esCfg.DocumentIndex, event.DocumentID); err != nil {
			return fmt.Errorf("failed to delete document index entry: %w", err)
		}
		log.Infof("文档索引条目已删除: docId=%s", event.DocumentID)
		return nil

	default:
		// 未知事件类型直接丢弃，避免阻塞消费
		log.Warnf("忽略未知的文档事件类型: %s", event.Type)
		return nil
	}
}
