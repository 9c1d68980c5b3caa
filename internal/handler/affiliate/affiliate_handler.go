// Package affiliate 提供推广体系相关的 HTTP Handler
package affiliate

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	"github.com/dumeirei/song-studio-backend/internal/common/handler"
	"github.com/dumeirei/song-studio-backend/internal/common/response"
	affiliateService "github.com/dumeirei/song-studio-backend/internal/service/affiliate"
)

// sessionCookieName 访客会话 Cookie 名称，用于点击去重
const sessionCookieName = "ss_sid"

// Handler 推广处理器
type Handler struct {
	affiliateService   *affiliateService.Service
	attributionService *affiliateService.AttributionService
	commissionService  *affiliateService.CommissionService
	payoutService      *affiliateService.PayoutService
	cfg                config.AffiliateConfig
}

// NewHandler 创建推广处理器
func NewHandler(
	affiliateSvc *affiliateService.Service,
	attributionSvc *affiliateService.AttributionService,
	commissionSvc *affiliateService.CommissionService,
	payoutSvc *affiliateService.PayoutService,
	cfg config.AffiliateConfig,
) *Handler {
	return &Handler{
		affiliateService:   affiliateSvc,
		attributionService: attributionSvc,
		commissionService:  commissionSvc,
		payoutService:      payoutSvc,
		cfg:                cfg,
	}
}

// Apply 申请成为推广人
// @Summary 申请成为推广人
// @Tags 推广
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body affiliateService.ApplyRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /api/v1/affiliate/apply [post]
func (h *Handler) Apply(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req affiliateService.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.affiliateService.Apply(c.Request.Context(), userID, &req)
	handler.MustSucceed(c, err, result)
}

// GetDashboard 获取推广仪表盘
// @Summary 获取推广仪表盘
// @Tags 推广
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=affiliateService.Dashboard}
// @Router /api/v1/affiliate/dashboard [get]
func (h *Handler) GetDashboard(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	dashboard, err := h.affiliateService.GetDashboard(c.Request.Context(), userID)
	handler.MustSucceed(c, err, dashboard)
}

// GetShareQRCode 获取推广二维码
// @Summary 获取推广二维码
// @Tags 推广
// @Produce png
// @Security Bearer
// @Param size query int false "边长（像素）" default(256)
// @Success 200 {file} binary
// @Router /api/v1/affiliate/qrcode [get]
func (h *Handler) GetShareQRCode(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	dashboard, err := h.affiliateService.GetDashboard(c.Request.Context(), userID)
	if handler.HandleError(c, err) {
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := h.affiliateService.ShareQRCode(dashboard.ReferralCode, size)
	if handler.HandleError(c, err) {
		return
	}

	c.Data(200, "image/png", png)
}

// GetCommissions 获取自己的佣金记录
// @Summary 获取佣金记录
// @Tags 推广
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "状态: pending/approved/processing/paid"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/affiliate/commissions [get]
func (h *Handler) GetCommissions(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	aff, err := h.affiliateService.GetByUserID(c.Request.Context(), userID)
	if handler.HandleError(c, err) {
		return
	}

	p := handler.BindPagination(c)

	result, err := h.commissionService.ListCommissions(c.Request.Context(), &affiliateService.CommissionListRequest{
		Page:        p.Page,
		PageSize:    p.PageSize,
		AffiliateID: &aff.ID,
		Status:      c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// RequestPayout 申请提现
// 提现金额为当前全部已确认余额，低于门槛时拒绝
// @Summary 申请提现
// @Tags 推广
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=models.Payout}
// @Router /api/v1/affiliate/payouts [post]
func (h *Handler) RequestPayout(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	payout, err := h.payoutService.Request(c.Request.Context(), userID)
	handler.MustSucceed(c, err, payout)
}

// GetPayouts 获取自己的提现记录
// @Summary 获取提现记录
// @Tags 推广
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/affiliate/payouts [get]
func (h *Handler) GetPayouts(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	aff, err := h.affiliateService.GetByUserID(c.Request.Context(), userID)
	if handler.HandleError(c, err) {
		return
	}

	p := handler.BindPagination(c)

	result, err := h.payoutService.ListPayouts(c.Request.Context(), &affiliateService.PayoutListRequest{
		Page:        p.Page,
		PageSize:    p.PageSize,
		AffiliateID: &aff.ID,
		Status:      c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// TrackClick 推广链接落地
// 记录点击事件、写入签名归因 Cookie 并跳转到站点首页
// @Summary 推广链接落地
// @Tags 推广
// @Param code path string true "推广码"
// @Success 302
// @Router /r/{code} [get]
func (h *Handler) TrackClick(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.BadRequest(c, "推广码不能为空")
		return
	}

	sessionID, _ := c.Cookie(sessionCookieName)

	var userID *int64
	if uid := handler.GetOptionalUserID(c); uid > 0 {
		userID = &uid
	}

	result, err := h.attributionService.TrackClick(
		c.Request.Context(), code, sessionID, c.ClientIP(), c.Request.UserAgent(), userID)
	if err != nil {
		// 无效推广码也跳转，不向访客暴露错误
		c.Redirect(302, h.redirectTarget(c))
		return
	}

	maxAge := int(h.cfg.AttributionWindowDuration().Seconds())
	c.SetCookie(sessionCookieName, result.SessionID, maxAge, "/", "", false, true)
	c.SetCookie(h.cfg.CookieName, result.CookieValue, maxAge, "/", "", false, true)

	c.Redirect(302, h.redirectTarget(c))
}

// redirectTarget 返回落地后的跳转地址，仅允许站内相对路径
func (h *Handler) redirectTarget(c *gin.Context) string {
	target := c.Query("to")
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

// AdminList 获取推广人列表
// @Summary 获取推广人列表
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "状态: pending/approved/denied/suspended"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/affiliates [get]
func (h *Handler) AdminList(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)

	result, err := h.affiliateService.List(c.Request.Context(), &affiliateService.ListRequest{
		Page:     p.Page,
		PageSize: p.PageSize,
		Status:   c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// AdminApprove 审核通过推广人
// 首次通过时签发专属推广码
// @Summary 审核通过推广人
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "推广人ID"
// @Success 200 {object} response.Response{data=models.PromoCode}
// @Router /api/v1/admin/affiliates/{id}/approve [post]
func (h *Handler) AdminApprove(c *gin.Context) {
	_, affiliateID, ok := handler.RequireAdminAndParseID(c, "推广人")
	if !ok {
		return
	}

	code, err := h.affiliateService.Approve(c.Request.Context(), affiliateID)
	handler.MustSucceedWithMessage(c, err, "审核通过", code)
}

// AdminDeny 驳回推广人申请
// @Summary 驳回推广人申请
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "推广人ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/affiliates/{id}/deny [post]
func (h *Handler) AdminDeny(c *gin.Context) {
	_, affiliateID, ok := handler.RequireAdminAndParseID(c, "推广人")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.affiliateService.Deny(c.Request.Context(), affiliateID), nil)
}

// AdminSuspend 停用推广人
// @Summary 停用推广人
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "推广人ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/affiliates/{id}/suspend [post]
func (h *Handler) AdminSuspend(c *gin.Context) {
	_, affiliateID, ok := handler.RequireAdminAndParseID(c, "推广人")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.affiliateService.Suspend(c.Request.Context(), affiliateID), nil)
}

// SetRateRequest 调整佣金比例请求
type SetRateRequest struct {
	Rate float64 `json:"rate" binding:"gte=0"` // 佣金比例（百分比）
}

// AdminSetRate 调整推广人佣金比例
// @Summary 调整推广人佣金比例
// @Tags 管理-推广
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "推广人ID"
// @Param request body SetRateRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/affiliates/{id}/rate [put]
func (h *Handler) AdminSetRate(c *gin.Context) {
	_, affiliateID, ok := handler.RequireAdminAndParseID(c, "推广人")
	if !ok {
		return
	}

	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	handler.MustSucceed(c, h.affiliateService.SetCommissionRate(c.Request.Context(), affiliateID, req.Rate), nil)
}

// AdminListCommissions 获取佣金记录（管理端）
// @Summary 获取佣金记录
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param affiliate_id query int false "推广人ID"
// @Param status query string false "状态"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/commissions [get]
func (h *Handler) AdminListCommissions(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)

	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "推广人")
	if !ok {
		return
	}

	result, err := h.commissionService.ListCommissions(c.Request.Context(), &affiliateService.CommissionListRequest{
		Page:        p.Page,
		PageSize:    p.PageSize,
		AffiliateID: affiliateID,
		Status:      c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// AdminApproveCommission 确认佣金
// @Summary 确认佣金
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "佣金ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/commissions/{id}/approve [post]
func (h *Handler) AdminApproveCommission(c *gin.Context) {
	_, commissionID, ok := handler.RequireAdminAndParseID(c, "佣金")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.commissionService.Approve(c.Request.Context(), commissionID), nil)
}

// AdminListPayouts 获取提现记录（管理端）
// @Summary 获取提现记录
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param affiliate_id query int false "推广人ID"
// @Param status query string false "状态: requested/paid/rejected"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/admin/payouts [get]
func (h *Handler) AdminListPayouts(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)

	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "推广人")
	if !ok {
		return
	}

	result, err := h.payoutService.ListPayouts(c.Request.Context(), &affiliateService.PayoutListRequest{
		Page:        p.Page,
		PageSize:    p.PageSize,
		AffiliateID: affiliateID,
		Status:      c.Query("status"),
	})
	if handler.HandleError(c, err) {
		return
	}

	response.SuccessPage(c, result.List, result.Total, p.Page, p.PageSize)
}

// AdminMarkPayoutPaid 标记提现已打款
// @Summary 标记提现已打款
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "提现ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/payouts/{id}/paid [post]
func (h *Handler) AdminMarkPayoutPaid(c *gin.Context) {
	adminID, payoutID, ok := handler.RequireAdminAndParseID(c, "提现")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.payoutService.MarkPaid(c.Request.Context(), payoutID, adminID), nil)
}

// AdminRejectPayout 驳回提现
// 冻结中的佣金与余额退回
// @Summary 驳回提现
// @Tags 管理-推广
// @Produce json
// @Security Bearer
// @Param id path int true "提现ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/payouts/{id}/reject [post]
func (h *Handler) AdminRejectPayout(c *gin.Context) {
	adminID, payoutID, ok := handler.RequireAdminAndParseID(c, "提现")
	if !ok {
		return
	}

	handler.MustSucceed(c, h.payoutService.Reject(c.Request.Context(), payoutID, adminID), nil)
}

// RegisterRoutes 注册用户端路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	aff := r.Group("/affiliate")
	{
		aff.POST("/apply", h.Apply)
		aff.GET("/dashboard", h.GetDashboard)
		aff.GET("/qrcode", h.GetShareQRCode)
		aff.GET("/commissions", h.GetCommissions)
		aff.POST("/payouts", h.RequestPayout)
		aff.GET("/payouts", h.GetPayouts)
	}
}

// RegisterPublicRoutes 注册公开路由（推广链接落地）
func (h *Handler) RegisterPublicRoutes(r *gin.Engine, mws ...gin.HandlerFunc) {
	handlers := append(mws, h.TrackClick)
	r.GET("/r/:code", handlers...)
}

// RegisterAdminRoutes 注册管理端路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	affiliates := r.Group("/affiliates")
	{
		affiliates.GET("", h.AdminList)
		affiliates.POST("/:id/approve", h.AdminApprove)
		affiliates.POST("/:id/deny", h.AdminDeny)
		affiliates.POST("/:id/suspend", h.AdminSuspend)
		affiliates.PUT("/:id/rate", h.AdminSetRate)
	}

	commissions := r.Group("/commissions")
	{
		commissions.GET("", h.AdminListCommissions)
		commissions.POST("/:id/approve", h.AdminApproveCommission)
	}

	payouts := r.Group("/payouts")
	{
		payouts.GET("", h.AdminListPayouts)
		payouts.POST("/:id/paid", h.AdminMarkPayoutPaid)
		payouts.POST("/:id/reject", h.AdminRejectPayout)
	}
}
