// Package promo 提供优惠码管理的 HTTP Handler
package promo

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/song-studio-backend/internal/common/handler"
	"github.com/dumeirei/song-studio-backend/internal/common/response"
	promoService "github.com/dumeirei/song-studio-backend/internal/service/promo"
)

// Handler 优惠码处理器（管理端）
type Handler struct {
	promoService *promoService.Service
}

// NewHandler 创建优惠码处理器
func NewHandler(promoSvc *promoService.Service) *Handler {
	return &Handler{
		promoService: promoSvc,
	}
}

// Create 创建优惠码
// @Summary 创建优惠码
// @Tags 管理-优惠码
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body promoService.CreateRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.PromoCode}
// @Router /api/v1/admin/promo-codes [post]
func (h *Handler) Create(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	var req promoService.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误: "+err.Error())
		return
	}

	code, err := h.promoService.Create(c.Request.Context(), &req)
	handler.MustSucceed(c, err, code)
}

// Update 更新优惠码
// @Summary 更新优惠码
// @Tags 管理-优惠码
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "优惠码ID"
// @Param request body promoService.UpdateRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.PromoCode}
// @Router /api/v1/admin/promo-codes/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	_, codeID, ok := handler.RequireAdminAndParseID(c, "优惠码")
	if !ok {
		return
	}

	var req promoService.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	code, err := h.promoService.Update(c.Request.Context(), codeID, &req)
	handler.MustSucceed(c, err, code)
}

// Delete 删除优惠码
// 已被使用过的优惠码只作停用处理
// @Summary 删除优惠码
// @Tags 管理-优惠码
// @Produce json
// @Security Bearer
// @Param id path int true "优惠码ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/promo-codes/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	_, codeID, ok := handler.RequireAdminAndParseID(c, "优惠码")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.promoService.Delete(c.Request.Context(), codeID), nil)
}

// Get 获取优惠码详情
// @Summary 获取优惠码详情
// @Tags 管理-优惠码
// @Produce json
// @Security Bearer
// @Param id path int true "优惠码ID"
// @Success 200 {object} response.Response{data=models.PromoCode}
// @Router /api/v1/admin/promo-codes/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	_, codeID, ok := handler.RequireAdminAndParseID(c, "优惠码")
	if !ok {
		return
	}

	code, err := h.promoService.Get(c.Request.Context(), codeID)
	handler.MustSucceed(c, err, code)
}

// List 获取优惠码列表
// @Summary 获取优惠码列表
// @Tags 管理-优惠码
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param kind query string false "类型: discount/affiliate"
// @Param is_active query bool false "是否启用"
// @Param keyword query string false "码值或名称关键字"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/promo-codes [get]
func (h *Handler) List(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)

	req := &promoService.ListRequest{
		Page:     p.Page,
		PageSize: p.PageSize,
		Kind:     c.Query("kind"),
		Keyword:  c.Query("keyword"),
	}

	if activeStr := c.Query("is_active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			req.IsActive = &active
		}
	}

	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "推广人")
	if !ok {
		return
	}
	req.AffiliateID = affiliateID

	result, err := h.promoService.List(c.Request.Context(), req)
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// ListUsages 获取优惠码核销记录
// @Summary 获取优惠码核销记录
// @Tags 管理-优惠码
// @Produce json
// @Security Bearer
// @Param id path int true "优惠码ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/promo-codes/{id}/usages [get]
func (h *Handler) ListUsages(c *gin.Context) {
	_, codeID, ok := handler.RequireAdminAndParseID(c, "优惠码")
	if !ok {
		return
	}

	p := handler.BindPagination(c)

	usages, total, err := h.promoService.ListUsages(c.Request.Context(), codeID, p.Page, p.PageSize)
	handler.MustSucceedPage(c, err, usages, total, p.Page, p.PageSize)
}

// RegisterAdminRoutes 注册管理端路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	codes := r.Group("/promo-codes")
	{
		codes.POST("", h.Create)
		codes.GET("", h.List)
		codes.GET("/:id", h.Get)
		codes.PUT("/:id", h.Update)
		codes.DELETE("/:id", h.Delete)
		codes.GET("/:id/usages", h.ListUsages)
	}
}
