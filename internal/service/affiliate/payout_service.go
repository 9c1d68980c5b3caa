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

// PayoutService 佣金提现服务
type PayoutService struct {
	db             *gorm.DB
	cfg            config.AffiliateConfig
	affiliateRepo  *repository.AffiliateRepository
	commissionRepo *repository.CommissionRepository
	payoutRepo     *repository.PayoutRepository
}

// NewPayoutService 创建提现服务
func NewPayoutService(
	db *gorm.DB,
	cfg config.AffiliateConfig,
	affiliateRepo *repository.AffiliateRepository,
	commissionRepo *repository.CommissionRepository,
	payoutRepo *repository.PayoutRepository,
) *PayoutService {
	return &PayoutService{
		db:             db,
		cfg:            cfg,
		affiliateRepo:  affiliateRepo,
		commissionRepo: commissionRepo,
		payoutRepo:     payoutRepo,
	}
}

// Request 申请提现
// 余额一次性全额提现，申请时立即扣减余额并冻结对应佣金
func (s *PayoutService) Request(ctx context.Context, userID int64) (*models.Payout, error) {
	aff, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if !aff.CanEarn() {
		return nil, apperrors.ErrAffiliateNotApproved
	}
	amount := utils.RoundMoney(aff.Balance)
	if amount < aff.PayoutThreshold {
		return nil, apperrors.ErrPayoutBelowThreshold
	}

	payout := &models.Payout{
		PayoutNo:    utils.GenerateOrderNo("PO"),
		AffiliateID: aff.ID,
		Amount:      amount,
		Method:      aff.PayoutMethod,
		Account:     aff.PayoutAccount,
		Status:      models.PayoutStatusRequested,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 余额扣减带守卫，并发重复申请只会成功一次
		result := tx.Model(&models.Affiliate{}).
			Where("id = ? AND balance >= ?", aff.ID, amount).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrPayoutBelowThreshold
		}

		if err := tx.Create(payout).Error; err != nil {
			return err
		}

		// 已审核佣金归入本次提现
		return tx.Model(&models.Commission{}).
			Where("affiliate_id = ? AND status = ?", aff.ID, models.CommissionStatusApproved).
			Updates(map[string]interface{}{
				"status":    models.CommissionStatusProcessing,
				"payout_id": payout.ID,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info("payout requested",
		logger.AffiliateID(aff.ID),
		logger.String("payout_no", payout.PayoutNo),
		logger.Float64("amount", amount),
	)
	metrics.GetMetrics().RecordPayout(models.PayoutStatusRequested)

	return payout, nil
}

// MarkPaid 标记提现已打款
func (s *PayoutService) MarkPaid(ctx context.Context, payoutID, operatorID int64) error {
	payout, err := s.getByID(ctx, payoutID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payoutID, models.PayoutStatusRequested).
			Updates(map[string]interface{}{
				"status":       models.PayoutStatusPaid,
				"operator_id":  operatorID,
				"processed_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrOperationFailed.WithMessage("提现状态已变更")
		}

		if err := tx.Model(&models.Commission{}).
			Where("payout_id = ? AND status = ?", payoutID, models.CommissionStatusProcessing).
			Updates(map[string]interface{}{
				"status":  models.CommissionStatusPaid,
				"paid_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", payout.AffiliateID).
			UpdateColumn("total_paid", gorm.Expr("total_paid + ?", payout.Amount)).Error
	})
	if err != nil {
		return err
	}

	logger.Info("payout paid",
		logger.AffiliateID(payout.AffiliateID),
		logger.String("payout_no", payout.PayoutNo),
		logger.Float64("amount", payout.Amount),
	)
	metrics.GetMetrics().RecordPayout(models.PayoutStatusPaid)

	return nil
}

// Reject 驳回提现并回滚余额
func (s *PayoutService) Reject(ctx context.Context, payoutID, operatorID int64) error {
	payout, err := s.getByID(ctx, payoutID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payoutID, models.PayoutStatusRequested).
			Updates(map[string]interface{}{
				"status":       models.PayoutStatusRejected,
				"operator_id":  operatorID,
				"processed_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrOperationFailed.WithMessage("提现状态已变更")
		}

		// 冻结的佣金回到已审核，余额退回
		if err := tx.Model(&models.Commission{}).
			Where("payout_id = ? AND status = ?", payoutID, models.CommissionStatusProcessing).
			Updates(map[string]interface{}{
				"status":    models.CommissionStatusApproved,
				"payout_id": nil,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", payout.AffiliateID).
			UpdateColumn("balance", gorm.Expr("balance + ?", payout.Amount)).Error
	})
	if err != nil {
		return err
	}

	logger.Info("payout rejected",
		logger.AffiliateID(payout.AffiliateID),
		logger.String("payout_no", payout.PayoutNo),
	)
	metrics.GetMetrics().RecordPayout(models.PayoutStatusRejected)

	return nil
}

// PayoutListRequest 提现列表请求
type PayoutListRequest struct {
	Page        int
	PageSize    int
	AffiliateID *int64
	Status      string
}

// PayoutListResponse 提现列表响应
type PayoutListResponse struct {
	List  []*models.Payout `json:"list"`
	Total int64            `json:"total"`
}

// ListPayouts 分页查询提现记录
func (s *PayoutService) ListPayouts(ctx context.Context, req *PayoutListRequest) (*PayoutListResponse, error) {
	list, total, err := s.payoutRepo.List(ctx, repository.PayoutListParams{
		Offset:      (req.Page - 1) * req.PageSize,
		Limit:       req.PageSize,
		AffiliateID: req.AffiliateID,
		Status:      req.Status,
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return &PayoutListResponse{List: list, Total: total}, nil
}

func (s *PayoutService) getByID(ctx context.Context, payoutID int64) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPayoutNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return payout, nil
}
