// Package payment 提供支付相关的 HTTP Handler
package payment

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/song-studio-backend/internal/common/handler"
	"github.com/dumeirei/song-studio-backend/internal/common/response"
	paymentService "github.com/dumeirei/song-studio-backend/internal/service/payment"
)

// signatureHeader 支付网关回调签名头
const signatureHeader = "X-Paygate-Signature"

// Handler 支付处理器
type Handler struct {
	paymentService *paymentService.Service
}

// NewHandler 创建支付处理器
func NewHandler(paymentSvc *paymentService.Service) *Handler {
	return &Handler{
		paymentService: paymentSvc,
	}
}

// InitiateRequest 发起支付请求
type InitiateRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

// Initiate 发起支付
// 同一订单存在未过期的待支付单时复用
// @Summary 发起支付
// @Tags 支付
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body InitiateRequest true "请求参数"
// @Success 200 {object} response.Response{data=paymentService.InitiateResponse}
// @Router /api/v1/payment [post]
func (h *Handler) Initiate(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.paymentService.Initiate(c.Request.Context(), userID, req.OrderID)
	handler.MustSucceed(c, err, result)
}

// List 获取自己的支付记录
// @Summary 获取支付记录
// @Tags 支付
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/payment [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)

	payments, total, err := h.paymentService.ListByUser(c.Request.Context(), userID, p.Page, p.PageSize)
	handler.MustSucceedPage(c, err, payments, total, p.Page, p.PageSize)
}

// PaygateCallback 支付网关回调
// 验签失败返回400，处理失败返回500由网关重试
// @Summary 支付网关回调
// @Tags 支付
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/payment/callback/paygate [post]
func (h *Handler) PaygateCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(400, gin.H{"status": "error", "message": "读取请求体失败"})
		return
	}

	signature := c.GetHeader(signatureHeader)

	if err := h.paymentService.HandleNotify(c.Request.Context(), body, signature); err != nil {
		c.JSON(500, gin.H{"status": "error", "message": err.Error()})
		return
	}

	c.JSON(200, gin.H{"status": "ok"})
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payment := r.Group("/payment")
	{
		payment.POST("", h.Initiate)
		payment.GET("", h.List)
	}
}

// RegisterCallbackRoutes 注册回调路由（无需认证）
func (h *Handler) RegisterCallbackRoutes(r *gin.RouterGroup) {
	callback := r.Group("/payment/callback")
	{
		callback.POST("/paygate", h.PaygateCallback)
	}
}
