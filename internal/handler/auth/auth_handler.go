// Package auth 提供认证相关的 HTTP Handler
package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/song-studio-backend/internal/common/handler"
	"github.com/dumeirei/song-studio-backend/internal/common/response"
	authService "github.com/dumeirei/song-studio-backend/internal/service/auth"
)

// Handler 认证处理器
type Handler struct {
	authService *authService.Service
	cookieName  string
}

// NewHandler 创建认证处理器
// cookieName 为归因 Cookie 的名称，注册时从请求中读取
func NewHandler(authSvc *authService.Service, cookieName string) *Handler {
	return &Handler{
		authService: authSvc,
		cookieName:  cookieName,
	}
}

// Register 用户注册
// @Summary 用户注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body authService.RegisterRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.AuthResponse}
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req authService.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	// 携带归因 Cookie 时记录注册事件
	if cookie, err := c.Cookie(h.cookieName); err == nil {
		req.AttributionCookie = cookie
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// Login 用户登录
// @Summary 用户登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body authService.LoginRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.AuthResponse}
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req authService.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// AdminLogin 管理员登录
// @Summary 管理员登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body authService.AdminLoginRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.AuthResponse}
// @Router /api/v1/auth/admin/login [post]
func (h *Handler) AdminLogin(c *gin.Context) {
	var req authService.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.authService.AdminLogin(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 刷新令牌
// @Summary 刷新令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "请求参数"
// @Success 200 {object} response.Response{data=jwt.TokenPair}
// @Router /api/v1/auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	pair, err := h.authService.RefreshToken(req.RefreshToken)
	handler.MustSucceed(c, err, pair)
}

// RegisterRoutes 注册路由（无需认证）
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/admin/login", h.AdminLogin)
		auth.POST("/refresh", h.RefreshToken)
	}
}
