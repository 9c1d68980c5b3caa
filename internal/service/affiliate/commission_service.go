package affiliate

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

// CommissionService 佣金账本服务
// 每笔订单至多产生一条佣金，余额入账只在审核通过时发生一次
type CommissionService struct {
	db             *gorm.DB
	cfg            config.AffiliateConfig
	affiliateRepo  *repository.AffiliateRepository
	commissionRepo *repository.CommissionRepository
	promoRepo      *repository.PromoCodeRepository
	eventRepo      *repository.ReferralEventRepository
}

// NewCommissionService 创建佣金服务
func NewCommissionService(
	db *gorm.DB,
	cfg config.AffiliateConfig,
	affiliateRepo *repository.AffiliateRepository,
	commissionRepo *repository.CommissionRepository,
	promoRepo *repository.PromoCodeRepository,
	eventRepo *repository.ReferralEventRepository,
) *CommissionService {
	return &CommissionService{
		db:             db,
		cfg:            cfg,
		affiliateRepo:  affiliateRepo,
		commissionRepo: commissionRepo,
		promoRepo:      promoRepo,
		eventRepo:      eventRepo,
	}
}

// RecordCommission 为已支付订单记录佣金
// 可安全重复调用：同一 (推广人, 订单) 只会产生一条记录
func (s *CommissionService) RecordCommission(ctx context.Context, order *models.Order) (*models.Commission, error) {
	if !s.cfg.Enabled || order.ReferringAffiliateID == nil {
		return nil, nil
	}
	affiliateID := *order.ReferringAffiliateID

	aff, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("order references unknown affiliate",
				logger.OrderID(order.ID),
				logger.AffiliateID(affiliateID),
			)
			return nil, nil
		}
		return nil, err
	}

	// 未审核通过或已停用的推广人不产生佣金
	if !aff.CanEarn() {
		logger.Info("commission skipped, affiliate cannot earn",
			logger.OrderID(order.ID),
			logger.AffiliateID(affiliateID),
			logger.String("affiliate_status", aff.Status),
		)
		return nil, nil
	}

	// 本人购买不产生佣金
	if aff.UserID == order.UserID {
		return nil, nil
	}

	// 回调重放直接返回已有记录
	if existing, err := s.commissionRepo.GetByAffiliateAndOrder(ctx, affiliateID, order.ID); err == nil {
		return existing, nil
	}

	basis := order.FinalAmount
	if s.cfg.CommissionBasis == models.CommissionBasisPreDiscount {
		basis = order.TotalAmount
	}
	amount := utils.RoundMoney(basis * aff.CommissionRate / 100)

	var codeID *int64
	if order.UsedPromoCode != nil {
		if pc, err := s.promoRepo.GetByCode(ctx, *order.UsedPromoCode); err == nil {
			codeID = &pc.ID
		}
	}

	commission := &models.Commission{
		AffiliateID:    affiliateID,
		OrderID:        order.ID,
		CodeID:         codeID,
		OrderTotal:     order.TotalAmount,
		DiscountAmount: order.PromoDiscountAmount,
		Basis:          basis,
		RateApplied:    aff.CommissionRate,
		Amount:         amount,
		Status:         models.CommissionStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(commission).Error; err != nil {
			return err
		}

		event := &models.ReferralEvent{
			AffiliateID: affiliateID,
			UserID:      &order.UserID,
			OrderID:     &order.ID,
			EventType:   models.ReferralEventPurchase,
		}
		if codeID != nil {
			event.CodeID = *codeID
		}
		return tx.Create(event).Error
	})
	if err != nil {
		// 并发重放撞唯一索引时返回先到的那条
		if existing, getErr := s.commissionRepo.GetByAffiliateAndOrder(ctx, affiliateID, order.ID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	logger.Info("commission recorded",
		logger.OrderID(order.ID),
		logger.AffiliateID(affiliateID),
		logger.Float64("amount", amount),
		logger.String("basis", s.cfg.CommissionBasis),
	)
	metrics.GetMetrics().RecordCommission(models.CommissionStatusPending)
	metrics.GetMetrics().RecordReferralEvent(models.ReferralEventPurchase)

	return commission, nil
}

// Approve 审核通过佣金并入账
// 状态守卫保证重复审核不会重复加余额
func (s *CommissionService) Approve(ctx context.Context, commissionID int64) error {
	commission, err := s.commissionRepo.GetByID(ctx, commissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCommissionNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", commissionID, models.CommissionStatusPending).
			Updates(map[string]interface{}{
				"status":      models.CommissionStatusApproved,
				"approved_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrCommissionStateError
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", commission.AffiliateID).
			UpdateColumn("balance", gorm.Expr("balance + ?", commission.Amount)).Error
	})
	if err != nil {
		return err
	}

	logger.Info("commission approved",
		logger.Int64("commission_id", commissionID),
		logger.AffiliateID(commission.AffiliateID),
		logger.Float64("amount", commission.Amount),
	)
	metrics.GetMetrics().RecordCommission(models.CommissionStatusApproved)

	return nil
}

// AutoApprovePending 批量审核过了留存期的待审佣金
// 由定时任务调用，留存期用于覆盖退款窗口
func (s *CommissionService) AutoApprovePending(ctx context.Context, holdPeriod time.Duration) (int, error) {
	cutoff := time.Now().Add(-holdPeriod)

	var pending []*models.Commission
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.CommissionStatusPending, cutoff).
		Limit(100).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	approved := 0
	for _, c := range pending {
		if err := s.Approve(ctx, c.ID); err != nil {
			logger.Error("auto approve commission failed",
				logger.Int64("commission_id", c.ID),
				logger.Err(err),
			)
			continue
		}
		approved++
	}
	return approved, nil
}

// CommissionListRequest 佣金列表请求
type CommissionListRequest struct {
	Page        int
	PageSize    int
	AffiliateID *int64
	Status      string
}

// CommissionListResponse 佣金列表响应
type CommissionListResponse struct {
	List  []*models.Commission `json:"list"`
	Total int64                `json:"total"`
}

// ListCommissions 分页查询佣金
func (s *CommissionService) ListCommissions(ctx context.Context, req *CommissionListRequest) (*CommissionListResponse, error) {
	list, total, err := s.commissionRepo.List(ctx, repository.CommissionListParams{
		Offset:      (req.Page - 1) * req.PageSize,
		Limit:       req.PageSize,
		AffiliateID: req.AffiliateID,
		Status:      req.Status,
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return &CommissionListResponse{List: list, Total: total}, nil
}
