package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-desk-go/internal/middleware"
	"support-desk-go/internal/repository"
	"support-desk-go/internal/service"
)

// TicketHandler 负责工单相关的 HTTP 端点。
type TicketHandler struct {
	ticketService service.TicketService
}

// NewTicketHandler 创建一个新的 TicketHandler。
func NewTicketHandler(ticketService service.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// Create 创建一条工单。
func (h *TicketHandler) Create(c *gin.Context) {
	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	ticket, err := h.ticketService.Create(c.Request.Context(), claims.OrgID, claims.UserID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建工单失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": ticket})
}

// Get 返回工单详情及其评论。
func (h *TicketHandler) Get(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	ticket, comments, err := h.ticketService.Get(c.Request.Context(), claims.OrgID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "工单不存在", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取工单失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"ticket":   ticket,
		"comments": comments,
	}})
}

// Update 部分更新工单字段。
func (h *TicketHandler) Update(c *gin.Context) {
	var req service.UpdateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	claims, _ := middleware.ClaimsFrom(c)

	ticket, err := h.ticketService.Update(c.Request.Context(), claims.OrgID, c.Param("id"), req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "工单不存在", "data": nil})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": ticket})
}

// Delete 删除工单及其评论。
func (h *TicketHandler) Delete(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	if err := h.ticketService.Delete(c.Request.Context(), claims.OrgID, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "工单不存在", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除工单失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// List 分页列出组织的工单。
func (h *TicketHandler) List(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	status := c.Query("status")

	tickets, total, err := h.ticketService.List(c.Request.Context(), claims.OrgID, status, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取工单列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"tickets": tickets,
		"total":   total,
	}})
}

// Search 全文检索工单。
func (h *TicketHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少查询参数 q", "data": nil})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	claims, _ := middleware.ClaimsFrom(c)

	hits, err := h.ticketService.Search(c.Request.Context(), claims.OrgID, query, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "检索工单失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": hits})
}

type addCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddComment 在工单下追加评论。
func (h *TicketHandler) AddComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	claims, _ := middleware.ClaimsFrom(c)

	comment, err := h.ticketService.AddComment(c.Request.Context(), claims.OrgID, c.Param("id"), claims.UserID, req.Body)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "工单不存在", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "添加评论失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": comment})
}

type createCustomFieldRequest struct {
	FieldName string `json:"fieldName" binding:"required"`
	FieldType string `json:"fieldType" binding:"required"`
	Required  bool   `json:"required"`
}

// CreateCustomField 创建组织级自定义字段，仅管理员可用。
func (h *TicketHandler) CreateCustomField(c *gin.Context) {
	var req createCustomFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	claims, _ := middleware.ClaimsFrom(c)

	field, err := h.ticketService.CreateCustomField(c.Request.Context(), claims.OrgID, req.FieldName, req.FieldType, req.Required)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建自定义字段失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": field})
}

// ListCustomFields 列出组织的自定义字段定义。
func (h *TicketHandler) ListCustomFields(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	fields, err := h.ticketService.ListCustomFields(c.Request.Context(), claims.OrgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取自定义字段失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": fields})
}

// DeleteCustomField 删除组织的一个自定义字段，仅管理员可用。
func (h *TicketHandler) DeleteCustomField(c *gin.Context) {
	fieldID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的字段 ID", "data": nil})
		return
	}
	claims, _ := middleware.ClaimsFrom(c)

	if err := h.ticketService.DeleteCustomField(c.Request.Context(), claims.OrgID, uint(fieldID)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "自定义字段不存在", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除自定义字段失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
