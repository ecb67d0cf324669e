package model

// TicketSearchDoc 是写入 Elasticsearch 的工单索引文档。
type TicketSearchDoc struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	CreatedAt   int64  `json:"created_at"`
}

// DocumentSearchDoc 是写入 Elasticsearch 的文档元数据索引文档。
type DocumentSearchDoc struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	UploaderID  string `json:"uploader_id"`
	CreatedAt   int64  `json:"created_at"`
}
