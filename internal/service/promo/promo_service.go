package promo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

// Service 优惠码管理服务（管理端）
type Service struct {
	db        *gorm.DB
	promoRepo *repository.PromoCodeRepository
}

// NewService 创建优惠码管理服务
func NewService(db *gorm.DB, promoRepo *repository.PromoCodeRepository) *Service {
	return &Service{
		db:        db,
		promoRepo: promoRepo,
	}
}

// CreateRequest 创建优惠码请求
type CreateRequest struct {
	Code           string     `json:"code" binding:"required,min=3,max=32"`
	Name           string     `json:"name" binding:"required,max=64"`
	Kind           string     `json:"kind" binding:"required"`
	Value          float64    `json:"value" binding:"required,gt=0"`
	IsPercentage   bool       `json:"is_percentage"`
	MinOrderValue  float64    `json:"min_order_value" binding:"gte=0"`
	MaxUses        int        `json:"max_uses" binding:"gte=0"`
	MaxUsesPerUser int        `json:"max_uses_per_user" binding:"gte=0"`
	StartsAt       *time.Time `json:"starts_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	AffiliateID    *int64     `json:"affiliate_id"`
}

// Create 创建优惠码
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.PromoCode, error) {
	if !models.IsValidPromoKind(req.Kind) {
		return nil, apperrors.ErrInvalidParams.WithMessage("无效的优惠码类型")
	}
	if req.IsPercentage && req.Value > 100 {
		return nil, apperrors.ErrInvalidParams.WithMessage("折扣比例不能超过100")
	}

	code := utils.NormalizeCode(req.Code)
	if existing, err := s.promoRepo.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, apperrors.ErrAlreadyExists.WithMessage("优惠码已存在")
	}

	pc := &models.PromoCode{
		Code:           code,
		Name:           req.Name,
		Kind:           req.Kind,
		Value:          req.Value,
		IsPercentage:   req.IsPercentage,
		MinOrderValue:  req.MinOrderValue,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		StartsAt:       req.StartsAt,
		ExpiresAt:      req.ExpiresAt,
		IsActive:       true,
		AffiliateID:    req.AffiliateID,
	}

	if err := s.promoRepo.Create(ctx, pc); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("promo code created",
		logger.Int64("code_id", pc.ID),
		logger.String("code", pc.Code),
		logger.String("kind", pc.Kind),
	)

	return pc, nil
}

// UpdateRequest 更新优惠码请求
type UpdateRequest struct {
	Name           *string    `json:"name"`
	Value          *float64   `json:"value"`
	MinOrderValue  *float64   `json:"min_order_value"`
	MaxUses        *int       `json:"max_uses"`
	MaxUsesPerUser *int       `json:"max_uses_per_user"`
	StartsAt       *time.Time `json:"starts_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       *bool      `json:"is_active"`
}

// Update 更新优惠码
// 码值和类型创建后不可修改
func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest) (*models.PromoCode, error) {
	pc, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPromoNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Value != nil {
		if *req.Value <= 0 || (pc.IsPercentage && *req.Value > 100) {
			return nil, apperrors.ErrInvalidParams.WithMessage("无效的折扣值")
		}
		updates["value"] = *req.Value
	}
	if req.MinOrderValue != nil {
		updates["min_order_value"] = *req.MinOrderValue
	}
	if req.MaxUses != nil {
		updates["max_uses"] = *req.MaxUses
	}
	if req.MaxUsesPerUser != nil {
		updates["max_uses_per_user"] = *req.MaxUsesPerUser
	}
	if req.StartsAt != nil {
		updates["starts_at"] = *req.StartsAt
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return pc, nil
	}

	if err := s.promoRepo.UpdateFields(ctx, id, updates); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	return s.promoRepo.GetByID(ctx, id)
}

// Delete 删除优惠码
// 已有使用记录的码只停用不删除
func (s *Service) Delete(ctx context.Context, id int64) error {
	pc, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrPromoNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	if pc.CurrentUses > 0 {
		if err := s.promoRepo.UpdateFields(ctx, id, map[string]interface{}{"is_active": false}); err != nil {
			return apperrors.ErrDatabaseError.WithError(err)
		}
		return nil
	}

	if err := s.promoRepo.Delete(ctx, id); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// Get 获取优惠码详情
func (s *Service) Get(ctx context.Context, id int64) (*models.PromoCode, error) {
	pc, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPromoNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return pc, nil
}

// ListRequest 优惠码列表请求
type ListRequest struct {
	Page        int
	PageSize    int
	Kind        string
	IsActive    *bool
	AffiliateID *int64
	Keyword     string
}

// ListResponse 优惠码列表响应
type ListResponse struct {
	List  []*models.PromoCode `json:"list"`
	Total int64               `json:"total"`
}

// List 分页查询优惠码
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	params := repository.PromoCodeListParams{
		Offset:      (req.Page - 1) * req.PageSize,
		Limit:       req.PageSize,
		Kind:        req.Kind,
		IsActive:    req.IsActive,
		AffiliateID: req.AffiliateID,
		Keyword:     req.Keyword,
	}

	codes, total, err := s.promoRepo.List(ctx, params)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	return &ListResponse{List: codes, Total: total}, nil
}

// ListUsages 查询优惠码使用记录
func (s *Service) ListUsages(ctx context.Context, codeID int64, page, pageSize int) ([]*models.PromoCodeUsage, int64, error) {
	return s.promoRepo.ListUsages(ctx, codeID, (page-1)*pageSize, pageSize)
}
