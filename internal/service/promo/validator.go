// Package promo 提供优惠码服务
package promo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

// ValidatorService 优惠码校验服务
type ValidatorService struct {
	db            *gorm.DB
	cfg           config.PromoConfig
	promoRepo     *repository.PromoCodeRepository
	affiliateRepo *repository.AffiliateRepository
}

// NewValidatorService 创建优惠码校验服务
func NewValidatorService(
	db *gorm.DB,
	cfg config.PromoConfig,
	promoRepo *repository.PromoCodeRepository,
	affiliateRepo *repository.AffiliateRepository,
) *ValidatorService {
	return &ValidatorService{
		db:            db,
		cfg:           cfg,
		promoRepo:     promoRepo,
		affiliateRepo: affiliateRepo,
	}
}

// ValidationResult 校验结果
type ValidationResult struct {
	Code           *models.PromoCode `json:"-"`
	CodeID         int64             `json:"code_id"`
	CodeName       string            `json:"code"`
	Kind           string            `json:"kind"`
	DiscountAmount float64           `json:"discount_amount"`
	FinalAmount    float64           `json:"final_amount"`
}

// Validate 校验优惠码能否用于指定订单金额
// 检查按固定顺序执行，返回第一个未通过的原因
func (s *ValidatorService) Validate(ctx context.Context, code string, userID int64, orderValue float64) (*ValidationResult, error) {
	result, err := s.validate(ctx, code, userID, orderValue)
	if err != nil {
		metrics.GetMetrics().RecordPromoValidation("rejected")
		return nil, err
	}
	metrics.GetMetrics().RecordPromoValidation("accepted")
	return result, nil
}

func (s *ValidatorService) validate(ctx context.Context, code string, userID int64, orderValue float64) (*ValidationResult, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrPromoDisabledFeature
	}

	pc, err := s.promoRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPromoNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if !pc.IsActive {
		return nil, apperrors.ErrPromoInactive
	}

	now := time.Now()
	if pc.StartsAt != nil && now.Before(*pc.StartsAt) {
		return nil, apperrors.ErrPromoNotStarted
	}
	if pc.ExpiresAt != nil && now.After(*pc.ExpiresAt) {
		return nil, apperrors.ErrPromoExpired
	}

	if orderValue < pc.MinOrderValue {
		return nil, apperrors.ErrPromoBelowMinimum
	}

	if pc.MaxUses > 0 && pc.CurrentUses >= pc.MaxUses {
		return nil, apperrors.ErrPromoUsageLimit
	}

	if pc.MaxUsesPerUser > 0 && userID > 0 {
		used, err := s.promoRepo.CountUserUsage(ctx, pc.ID, userID)
		if err != nil {
			return nil, apperrors.ErrDatabaseError.WithError(err)
		}
		if used >= int64(pc.MaxUsesPerUser) {
			return nil, apperrors.ErrPromoPerUserLimit
		}
	}

	// 推广码不允许推广者本人使用
	if pc.Kind == models.PromoKindAffiliate && pc.AffiliateID != nil && userID > 0 {
		aff, err := s.affiliateRepo.GetByID(ctx, *pc.AffiliateID)
		if err == nil && aff.UserID == userID {
			return nil, apperrors.ErrSelfReferral
		}
	}

	discount := ComputeDiscount(pc, orderValue)

	return &ValidationResult{
		Code:           pc,
		CodeID:         pc.ID,
		CodeName:       pc.Code,
		Kind:           pc.Kind,
		DiscountAmount: discount,
		FinalAmount:    utils.RoundMoney(orderValue - discount),
	}, nil
}

// ComputeDiscount 计算优惠金额
// 百分比折扣四舍五入到分，固定金额折扣不超过订单金额
func ComputeDiscount(pc *models.PromoCode, orderValue float64) float64 {
	if pc.IsPercentage {
		return utils.RoundMoney(orderValue * pc.Value / 100)
	}
	return utils.RoundMoney(utils.Min(pc.Value, orderValue))
}

// RecordUsage 在事务内记录优惠码使用
// 必须与订单创建在同一事务中调用，计数上限由守卫更新保证
func (s *ValidatorService) RecordUsage(ctx context.Context, tx *gorm.DB, codeID, userID, orderID int64, discountAmount float64) error {
	usage := &models.PromoCodeUsage{
		CodeID:         codeID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discountAmount,
	}
	if err := tx.Create(usage).Error; err != nil {
		return err
	}

	result := tx.Model(&models.PromoCode{}).
		Where("id = ? AND (max_uses = 0 OR current_uses < max_uses)", codeID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrPromoUsageLimit
	}

	logger.Info("promo code used",
		logger.Int64("code_id", codeID),
		logger.Int64("user_id", userID),
		logger.Int64("order_id", orderID),
		logger.Float64("discount", discountAmount),
	)
	metrics.GetMetrics().RecordPromoDiscount(discountAmount)

	return nil
}
