// Package tasks defines the event payloads that are sent through Kafka.
package tasks

// 文档事件类型。
const (
	DocumentUploaded = "document.uploaded"
	DocumentDeleted  = "document.deleted"
)

// DocumentEvent 表示一次文档生命周期变更，供下游索引管道消费。
type DocumentEvent struct {
	Type        string `json:"type"`
	DocumentID  string `json:"document_id"`
	OrgID       string `json:"org_id"`
	UploaderID  string `json:"uploader_id"`
	FileName    string `json:"file_name"`
	ObjectName  string `json:"object_name"`
	ContentType string `json:"content_type"`
	OccurredAt  int64  `json:"occurred_at"`
}
