package model

import "time"

// 工单状态枚举。
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusClosed     = "closed"
)

// Ticket 代表一条组织范围内的客服工单。
type Ticket struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OrgID       string    `gorm:"index;size:64;not null" json:"orgId"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"size:32;default:open" json:"status"`
	Priority    string    `gorm:"size:32;default:normal" json:"priority"`
	Reporter    string    `gorm:"size:64" json:"reporter"`
	Assignee    string    `gorm:"size:64" json:"assignee"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// TicketComment 代表工单下的一条评论。
type TicketComment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TicketID  string    `gorm:"index;size:36;not null" json:"ticketId"`
	Author    string    `gorm:"size:64" json:"author"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (TicketComment) TableName() string {
	return "ticket_comments"
}

// TicketCustomField 是组织级别的工单自定义字段定义。
type TicketCustomField struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrgID     string    `gorm:"index:idx_org_field,unique;size:64;not null" json:"orgId"`
	FieldName string    `gorm:"index:idx_org_field,unique;size:64;not null" json:"fieldName"`
	FieldType string    `gorm:"size:32;not null" json:"fieldType"`
	Required  bool      `json:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (TicketCustomField) TableName() string {
	return "ticket_custom_fields"
}
