// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"gorm.io/gorm"

	"support-desk-go/internal/model"
)

// ErrNotFound 表示目标记录不存在或不属于当前组织。
var ErrNotFound = errors.New("record not found")

// TicketRepository 接口定义了工单相关的数据持久化操作。
// 所有查询都以组织 ID 为边界，跨组织的记录视为不存在。
type TicketRepository interface {
	CreateTicket(ticket *model.Ticket) error
	GetTicket(orgID, ticketID string) (*model.Ticket, error)
	UpdateTicket(ticket *model.Ticket) error
	DeleteTicket(orgID, ticketID string) error
	ListTickets(orgID, status string, page, pageSize int) ([]model.Ticket, int64, error)

	CreateComment(comment *model.TicketComment) error
	ListComments(ticketID string) ([]model.TicketComment, error)

	CreateCustomField(field *model.TicketCustomField) error
	ListCustomFields(orgID string) ([]model.TicketCustomField, error)
	DeleteCustomField(orgID string, fieldID uint) error
}

// ticketRepository 是 TicketRepository 接口的 GORM 实现。
type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository 创建一个新的 TicketRepository 实例。
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

// CreateTicket 在数据库中创建一条工单记录。
func (r *ticketRepository) CreateTicket(ticket *model.Ticket) error {
	return r.db.Create(ticket).Error
}

// GetTicket 按组织与 ID 检索工单。
func (r *ticketRepository) GetTicket(orgID, ticketID string) (*model.Ticket, error) {
	var ticket model.Ticket
	err := r.db.Where("org_id = ? AND id = ?", orgID, ticketID).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateTicket 保存工单的全部字段。
func (r *ticketRepository) UpdateTicket(ticket *model.Ticket) error {
	return r.db.Save(ticket).Error
}

// DeleteTicket 删除工单及其全部评论。
func (r *ticketRepository) DeleteTicket(orgID, ticketID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("org_id = ? AND id = ?", orgID, ticketID).Delete(&model.Ticket{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("ticket_id = ?", ticketID).Delete(&model.TicketComment{}).Error
	})
}

// ListTickets 按组织分页列出工单，status 为空时不过滤状态。
func (r *ticketRepository) ListTickets(orgID, status string, page, pageSize int) ([]model.Ticket, int64, error) {
	query := r.db.Model(&model.Ticket{}).Where("org_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tickets []model.Ticket
	err := query.Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tickets).Error
	return tickets, total, err
}

// CreateComment 在工单下追加一条评论。
func (r *ticketRepository) CreateComment(comment *model.TicketComment) error {
	return r.db.Create(comment).Error
}

// ListComments 按时间升序列出工单评论。
func (r *ticketRepository) ListComments(ticketID string) ([]model.TicketComment, error) {
	var comments []model.TicketComment
	err := r.db.Where("ticket_id = ?", ticketID).Order("created_at asc").Find(&comments).Error
	return comments, err
}

// CreateCustomField 创建组织级自定义字段定义，org+field 唯一。
func (r *ticketRepository) CreateCustomField(field *model.TicketCustomField) error {
	return r.db.Create(field).Error
}

// ListCustomFields 列出组织的全部自定义字段定义。
func (r *ticketRepository) ListCustomFields(orgID string) ([]model.TicketCustomField, error) {
	var fields []model.TicketCustomField
	err := r.db.Where("org_id = ?", orgID).Order("id asc").Find(&fields).Error
	return fields, err
}

// DeleteCustomField 删除组织的一个自定义字段定义。
func (r *ticketRepository) DeleteCustomField(orgID string, fieldID uint) error {
	res := r.db.Where("org_id = ? AND id = ?", orgID, fieldID).Delete(&model.TicketCustomField{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
