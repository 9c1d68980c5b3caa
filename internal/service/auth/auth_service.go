// Package auth 提供用户与管理员认证服务
package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/crypto"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/jwt"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/internal/service/affiliate"
)

// Service 认证服务
type Service struct {
	db          *gorm.DB
	jwtManager  *jwt.Manager
	userRepo    *repository.UserRepository
	adminRepo   *repository.AdminRepository
	attribution *affiliate.AttributionService
}

// NewService 创建认证服务
func NewService(
	db *gorm.DB,
	jwtManager *jwt.Manager,
	userRepo *repository.UserRepository,
	adminRepo *repository.AdminRepository,
	attribution *affiliate.AttributionService,
) *Service {
	return &Service{
		db:          db,
		jwtManager:  jwtManager,
		userRepo:    userRepo,
		adminRepo:   adminRepo,
		attribution: attribution,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email             string `json:"email" binding:"required,email"`
	Password          string `json:"password" binding:"required,min=8,max=64"`
	Name              string `json:"name" binding:"required,max=64"`
	AttributionCookie string `json:"-"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	UserID int64          `json:"user_id"`
	Name   string         `json:"name"`
	Token  *jwt.TokenPair `json:"token"`
}

// Register 用户注册
// 带归因 Cookie 时追加注册事件
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if !utils.ValidateEmail(req.Email) {
		return nil, apperrors.ErrEmailInvalid
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if exists {
		return nil, apperrors.ErrEmailExists
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Status:       models.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if req.AttributionCookie != "" {
		s.attribution.TrackSignup(ctx, user.ID, req.AttributionCookie)
	}

	pair, err := s.jwtManager.GenerateTokenPair(user.ID, jwt.UserTypeUser, "")
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	logger.Info("user registered", logger.UserID(user.ID))
	return &AuthResponse{UserID: user.ID, Name: user.Name, Token: pair}, nil
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPasswordError
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, apperrors.ErrPasswordError
	}
	if user.Status != models.UserStatusActive {
		return nil, apperrors.ErrAccountDisabled
	}

	_ = s.userRepo.UpdateLastLogin(ctx, user.ID)

	pair, err := s.jwtManager.GenerateTokenPair(user.ID, jwt.UserTypeUser, "")
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	logger.Info("user logged in", logger.UserID(user.ID))
	return &AuthResponse{UserID: user.ID, Name: user.Name, Token: pair}, nil
}

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin 管理员登录
func (s *Service) AdminLogin(ctx context.Context, req *AdminLoginRequest) (*AuthResponse, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPasswordError
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if !crypto.VerifyPassword(req.Password, admin.PasswordHash) {
		return nil, apperrors.ErrPasswordError
	}
	if admin.Status != models.AdminStatusActive {
		return nil, apperrors.ErrAccountDisabled
	}

	pair, err := s.jwtManager.GenerateTokenPair(admin.ID, jwt.UserTypeAdmin, "")
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	logger.Info("admin logged in", logger.AdminID(admin.ID))
	return &AuthResponse{UserID: admin.ID, Name: admin.Name, Token: pair}, nil
}

// RefreshToken 刷新令牌
func (s *Service) RefreshToken(refreshToken string) (*jwt.TokenPair, error) {
	pair, err := s.jwtManager.RefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.ErrTokenRefreshFail.WithError(err)
	}
	return pair, nil
}
