// Package service 实现了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/internal/repository"
	"support-desk-go/pkg/es"
	"support-desk-go/pkg/log"
)

// CreateTicketRequest 是创建工单的入参。
type CreateTicketRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// UpdateTicketRequest 是更新工单的入参，空字段保持原值。
type UpdateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
}

// TicketService 定义了工单的业务接口。
type TicketService interface {
	Create(ctx context.Context, orgID, reporter string, req CreateTicketRequest) (*model.Ticket, error)
	Get(ctx context.Context, orgID, ticketID string) (*model.Ticket, []model.TicketComment, error)
	Update(ctx context.Context, orgID, ticketID string, req UpdateTicketRequest) (*model.Ticket, error)
	Delete(ctx context.Context, orgID, ticketID string) error
	List(ctx context.Context, orgID, status string, page, pageSize int) ([]model.Ticket, int64, error)
	Search(ctx context.Context, orgID, query string, size int) ([]model.TicketSearchDoc, error)

	AddComment(ctx context.Context, orgID, ticketID, author, body string) (*model.TicketComment, error)

	CreateCustomField(ctx context.Context, orgID, fieldName, fieldType string, required bool) (*model.TicketCustomField, error)
	ListCustomFields(ctx context.Context, orgID string) ([]model.TicketCustomField, error)
	DeleteCustomField(ctx context.Context, orgID string, fieldID uint) error
}

type ticketService struct {
	repo  repository.TicketRepository
	esCfg config.ElasticsearchConfig
}

// NewTicketService 创建一个 TicketService 实例。
func NewTicketService(repo repository.TicketRepository, esCfg config.ElasticsearchConfig) TicketService {
	return &ticketService{repo: repo, esCfg: esCfg}
}

var validStatus = map[string]bool{
	model.TicketStatusOpen:       true,
	model.TicketStatusInProgress: true,
	model.TicketStatusClosed:     true,
}

// Create 创建工单并同步写入检索索引。
// 索引写入失败只记告警：数据库是事实来源，检索结果允许短暂滞后。
func (s *ticketService) Create(ctx context.Context, orgID, reporter string, req CreateTicketRequest) (*model.Ticket, error) {
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	ticket := &model.Ticket{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TicketStatusOpen,
		Priority:    priority,
		Reporter:    reporter,
	}
	if err := s.repo.CreateTicket(ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.indexTicket(ctx, ticket)
	return ticket, nil
}

// Get 返回工单及其评论。
func (s *ticketService) Get(ctx context.Context, orgID, ticketID string) (*model.Ticket, []model.TicketComment, error) {
	ticket, err := s.repo.GetTicket(orgID, ticketID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListComments(ticketID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list ticket comments: %w", err)
	}
	return ticket, comments, nil
}

// Update 部分更新工单字段并刷新检索索引。
func (s *ticketService) Update(ctx context.Context, orgID, ticketID string, req UpdateTicketRequest) (*model.Ticket, error) {
	ticket, err := s.repo.GetTicket(orgID, ticketID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		ticket.Title = req.Title
	}
	if req.Description != "" {
		ticket.Description = req.Description
	}
	if req.Status != "" {
		if !validStatus[req.Status] {
			return nil, fmt.Errorf("invalid ticket status: %s", req.Status)
		}
		ticket.Status = req.Status
	}
	if req.Priority != "" {
		ticket.Priority = req.Priority
	}
	if req.Assignee != "" {
		ticket.Assignee = req.Assignee
	}

	if err := s.repo.UpdateTicket(ticket); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	s.indexTicket(ctx, ticket)
	return ticket, nil
}

// Delete 删除工单、评论及其索引条目。
func (s *ticketService) Delete(ctx context.Context, orgID, ticketID string) error {
	if err := s.repo.DeleteTicket(orgID, ticketID); err != nil {
		return err
	}
	if err := es.DeleteDocument(ctx, s.esCfg.TicketIndex, ticketID); err != nil {
		log.Warnf("删除工单索引失败: ticketId=%s, err=%v", ticketID, err)
	}
	return nil
}

// List 按组织分页列出工单。
func (s *ticketService) List(ctx context.Context, orgID, status string, page, pageSize int) ([]model.Ticket, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListTickets(orgID, status, page, pageSize)
}

// Search 在 Elasticsearch 中对标题与描述执行全文检索。
func (s *ticketService) Search(ctx context.Context, orgID, query string, size int) ([]model.TicketSearchDoc, error) {
	var hits []model.TicketSearchDoc
	err := es.Search(ctx, s.esCfg.TicketIndex, orgID, "title", query, size, func(raw json.RawMessage) error {
		var doc model.TicketSearchDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to decode ticket search hit: %w", err)
		}
		hits = append(hits, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// AddComment 在工单下追加评论，工单必须存在且属于当前组织。
func (s *ticketService) AddComment(ctx context.Context, orgID, ticketID, author, body string) (*model.TicketComment, error) {
	if _, err := s.repo.GetTicket(orgID, ticketID); err != nil {
		return nil, err
	}
	comment := &model.TicketComment{
		ID:       uuid.NewString(),
		TicketID: ticketID,
		Author:   author,
		Body:     body,
	}
	if err := s.repo.CreateComment(comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

// CreateCustomField 创建组织级自定义字段定义。
func (s *ticketService) CreateCustomField(ctx context.Context, orgID, fieldName, fieldType string, required bool) (*model.TicketCustomField, error) {
	field := &model.TicketCustomField{
		OrgID:     orgID,
		FieldName: fieldName,
		FieldType: fieldType,
		Required:  required,
	}
	if err := s.repo.CreateCustomField(field); err != nil {
		return nil, fmt.Errorf("failed to create custom field: %w", err)
	}
	return field, nil
}

func (s *ticketService) ListCustomFields(ctx context.Context, orgID string) ([]model.TicketCustomField, error) {
	return s.repo.ListCustomFields(orgID)
}

func (s *ticketService) DeleteCustomField(ctx context.Context, orgID string, fieldID uint) error {
	return s.repo.DeleteCustomField(orgID, fieldID)
}

// indexTicket 将工单写入检索索引，失败只记告警。
func (s *ticketService) indexTicket(ctx context.Context, ticket *model.Ticket) {
	doc := model.TicketSearchDoc{
		ID:          ticket.ID,
		OrgID:       ticket.OrgID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatedAt:   ticket.CreatedAt.UnixMilli(),
	}
	if err := es.IndexDocument(ctx, s.esCfg.TicketIndex, ticket.ID, doc); err != nil {
		log.Warnf("写入工单索引失败: ticketId=%s, err=%v", ticket.ID, err)
	}
}
