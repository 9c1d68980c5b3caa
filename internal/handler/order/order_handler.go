// Package order 提供订单与制作流程相关的 HTTP Handler
package order

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/song-studio-backend/internal/common/handler"
	"github.com/dumeirei/song-studio-backend/internal/common/response"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	orderService "github.com/dumeirei/song-studio-backend/internal/service/order"
)

// Handler 订单处理器
type Handler struct {
	orderService    *orderService.Service
	workflowService *orderService.WorkflowService
	cookieName      string
}

// NewHandler 创建订单处理器
func NewHandler(orderSvc *orderService.Service, workflowSvc *orderService.WorkflowService, cookieName string) *Handler {
	return &Handler{
		orderService:    orderSvc,
		workflowService: workflowSvc,
		cookieName:      cookieName,
	}
}

// ApplyPromoRequest 优惠码试算请求
type ApplyPromoRequest struct {
	Code       string  `json:"code" binding:"required"`
	OrderValue float64 `json:"order_value" binding:"required,gt=0"`
}

// ApplyPromo 优惠码试算
// 只校验不核销，下单前预览折扣
// @Summary 优惠码试算
// @Tags 订单
// @Accept json
// @Produce json
// @Param request body ApplyPromoRequest true "请求参数"
// @Success 200 {object} response.Response{data=orderService.ApplyPromoResponse}
// @Router /api/v1/orders/promo-preview [post]
func (h *Handler) ApplyPromo(c *gin.Context) {
	var req ApplyPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	userID := handler.GetOptionalUserID(c)

	result, err := h.orderService.ApplyPromo(c.Request.Context(), userID, req.Code, req.OrderValue)
	handler.MustSucceed(c, err, result)
}

// Create 创建订单
// @Summary 创建订单
// @Tags 订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body orderService.CreateRequest true "请求参数"
// @Success 200 {object} response.Response{data=orderService.CreateResponse}
// @Router /api/v1/orders [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req orderService.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误: "+err.Error())
		return
	}

	// 携带归因 Cookie 时由下单归因逻辑解析
	if cookie, err := c.Cookie(h.cookieName); err == nil {
		req.AttributionCookie = cookie
	}

	result, err := h.orderService.Create(c.Request.Context(), userID, &req)
	handler.MustSucceed(c, err, result)
}

// Get 获取订单详情
// @Summary 获取订单详情
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	order, err := h.orderService.GetForUser(c.Request.Context(), orderID, userID)
	handler.MustSucceed(c, err, order)
}

// List 获取自己的订单列表
// @Summary 获取订单列表
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "订单状态"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/orders [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)

	result, err := h.orderService.List(c.Request.Context(), &orderService.ListRequest{
		Page:     p.Page,
		PageSize: p.PageSize,
		UserID:   &userID,
		Status:   c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// ReviewRequest 审核意见请求
type ReviewRequest struct {
	Feedback string `json:"feedback"` // 审核意见，要求修改时必填
}

// ApproveLyrics 确认歌词
// @Summary 确认歌词
// @Tags 订单-制作流程
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body ReviewRequest false "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/lyrics/approve [post]
func (h *Handler) ApproveLyrics(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	var req ReviewRequest
	_ = c.ShouldBindJSON(&req)

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}

	handler.MustSucceed(c, h.workflowService.ApproveLyrics(c.Request.Context(), orderID, userID, feedback), nil)
}

// RequestLyricsChanges 要求修改歌词
// @Summary 要求修改歌词
// @Tags 订单-制作流程
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body ReviewRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/lyrics/request-changes [post]
func (h *Handler) RequestLyricsChanges(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	handler.MustSucceed(c, h.workflowService.RequestLyricsChanges(c.Request.Context(), orderID, userID, req.Feedback), nil)
}

// ApproveSongRequest 确认歌曲请求
type ApproveSongRequest struct {
	VersionID int64  `json:"version_id" binding:"required"` // 选定的歌曲版本
	Feedback  string `json:"feedback"`
}

// ApproveSong 确认歌曲并完成订单
// @Summary 确认歌曲
// @Tags 订单-制作流程
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body ApproveSongRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/song/approve [post]
func (h *Handler) ApproveSong(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	var req ApproveSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}

	handler.MustSucceed(c, h.workflowService.ApproveSong(c.Request.Context(), orderID, userID, req.VersionID, feedback), nil)
}

// RequestSongChanges 要求修改歌曲
// @Summary 要求修改歌曲
// @Tags 订单-制作流程
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body ReviewRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/song/request-changes [post]
func (h *Handler) RequestSongChanges(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	handler.MustSucceed(c, h.workflowService.RequestSongChanges(c.Request.Context(), orderID, userID, req.Feedback), nil)
}

// AdminList 获取订单列表（管理端）
// @Summary 获取订单列表
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "订单状态"
// @Param user_id query int false "用户ID"
// @Param assignee_id query int false "制作人ID"
// @Param keyword query string false "订单号关键字"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/orders [get]
func (h *Handler) AdminList(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)

	userID, ok := handler.ParseQueryID(c, "user_id", "用户")
	if !ok {
		return
	}
	assigneeID, ok := handler.ParseQueryID(c, "assignee_id", "制作人")
	if !ok {
		return
	}

	result, err := h.orderService.List(c.Request.Context(), &orderService.ListRequest{
		Page:       p.Page,
		PageSize:   p.PageSize,
		UserID:     userID,
		Status:     c.Query("status"),
		AssigneeID: assigneeID,
		Keyword:    c.Query("keyword"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// AdminGet 获取订单详情（管理端）
// @Summary 获取订单详情
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/admin/orders/{id} [get]
func (h *Handler) AdminGet(c *gin.Context) {
	_, orderID, ok := handler.RequireAdminAndParseID(c, "订单")
	if !ok {
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), orderID)
	handler.MustSucceed(c, err, order)
}

// UpdateStatusRequest 更新订单状态请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"` // 目标状态
}

// AdminUpdateStatus 更新订单状态
// 只允许相邻状态之间流转
// @Summary 更新订单状态
// @Tags 管理-订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body UpdateStatusRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/admin/orders/{id}/status [put]
func (h *Handler) AdminUpdateStatus(c *gin.Context) {
	adminID, orderID, ok := handler.RequireAdminAndParseID(c, "订单")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	order, err := h.workflowService.UpdateStatus(c.Request.Context(), orderID, req.Status, adminID)
	handler.MustSucceed(c, err, order)
}

// UploadLyricsRequest 上传歌词请求
type UploadLyricsRequest struct {
	Lyrics string `json:"lyrics" binding:"required"`
}

// AdminUploadLyrics 上传歌词
// @Summary 上传歌词
// @Tags 管理-订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body UploadLyricsRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/orders/{id}/lyrics [put]
func (h *Handler) AdminUploadLyrics(c *gin.Context) {
	adminID, orderID, ok := handler.RequireAdminAndParseID(c, "订单")
	if !ok {
		return
	}

	var req UploadLyricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	handler.MustSucceed(c, h.workflowService.UploadLyrics(c.Request.Context(), orderID, adminID, req.Lyrics), nil)
}

// UploadVersionRequest 上传歌曲版本请求
type UploadVersionRequest struct {
	FilePath string `json:"file_path" binding:"required,max=256"` // 音频文件路径
}

// AdminUploadSongVersion 上传歌曲版本
// @Summary 上传歌曲版本
// @Tags 管理-订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body UploadVersionRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.SongVersion}
// @Router /api/v1/admin/orders/{id}/versions [post]
func (h *Handler) AdminUploadSongVersion(c *gin.Context) {
	adminID, orderID, ok := handler.RequireAdminAndParseID(c, "订单")
	if !ok {
		return
	}

	var req UploadVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	version, err := h.workflowService.UploadSongVersion(c.Request.Context(), orderID, adminID, req.FilePath)
	handler.MustSucceed(c, err, version)
}

// PatchRequest 订单运营字段调整请求
type PatchRequest struct {
	AssigneeID         *int64  `json:"assignee_id"`          // 指派制作人
	InternalNotes      *string `json:"internal_notes"`       // 内部备注
	AllowMoreRevisions *bool   `json:"allow_more_revisions"` // 豁免修改次数上限
}

// AdminPatch 调整订单运营字段
// @Summary 调整订单运营字段
// @Tags 管理-订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body PatchRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/orders/{id} [patch]
func (h *Handler) AdminPatch(c *gin.Context) {
	adminID, orderID, ok := handler.RequireAdminAndParseID(c, "订单")
	if !ok {
		return
	}

	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	patch := repository.OrderPatch{
		AssigneeID:         req.AssigneeID,
		InternalNotes:      req.InternalNotes,
		AllowMoreRevisions: req.AllowMoreRevisions,
	}

	handler.MustSucceed(c, h.workflowService.PatchOrder(c.Request.Context(), orderID, adminID, patch), nil)
}

// RegisterRoutes 注册用户端路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.POST("/:id/lyrics/approve", h.ApproveLyrics)
		orders.POST("/:id/lyrics/request-changes", h.RequestLyricsChanges)
		orders.POST("/:id/song/approve", h.ApproveSong)
		orders.POST("/:id/song/request-changes", h.RequestSongChanges)
	}
}

// RegisterPublicRoutes 注册无需认证的路由
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/orders/promo-preview", h.ApplyPromo)
}

// RegisterAdminRoutes 注册管理端路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.AdminList)
		orders.GET("/:id", h.AdminGet)
		orders.PATCH("/:id", h.AdminPatch)
		orders.PUT("/:id/status", h.AdminUpdateStatus)
		orders.PUT("/:id/lyrics", h.AdminUploadLyrics)
		orders.POST("/:id/versions", h.AdminUploadSongVersion)
	}
}
