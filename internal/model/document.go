package model

import "time"

// Document 代表上传到对象存储的一个支持文档的元数据。
type Document struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OrgID       string    `gorm:"index;size:64;not null" json:"orgId"`
	UploaderID  string    `gorm:"size:64;not null" json:"uploaderId"`
	FileName    string    `gorm:"size:255;not null" json:"fileName"`
	ObjectName  string    `gorm:"size:512;not null" json:"-"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是文档列表接口的响应结构。
type DocumentDTO struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploaderID  string    `json:"uploaderId"`
	UploadedAt  LocalTime `json:"uploadedAt"`
}
