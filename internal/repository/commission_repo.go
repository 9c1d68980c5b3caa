package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// CommissionRepository 佣金仓储
type CommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓储
func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Create 创建佣金记录
func (r *CommissionRepository) Create(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

// GetByID 根据 ID 获取佣金记录
func (r *CommissionRepository) GetByID(ctx context.Context, id int64) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).First(&commission, id).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// GetByAffiliateAndOrder 根据 (推广人, 订单) 幂等键获取佣金记录
func (r *CommissionRepository) GetByAffiliateAndOrder(ctx context.Context, affiliateID, orderID int64) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND order_id = ?", affiliateID, orderID).
		First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// CommissionListParams 佣金列表查询参数
type CommissionListParams struct {
	Offset      int
	Limit       int
	AffiliateID *int64
	Status      string
	From        *time.Time
	To          *time.Time
}

// List 获取佣金列表
func (r *CommissionRepository) List(ctx context.Context, params CommissionListParams) ([]*models.Commission, int64, error) {
	var commissions []*models.Commission
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Commission{})

	if params.AffiliateID != nil {
		query = query.Where("affiliate_id = ?", *params.AffiliateID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&commissions).Error; err != nil {
		return nil, 0, err
	}

	return commissions, total, nil
}

// AdvanceStatus 状态守卫式推进
// 仅当当前状态等于 from 时才更新为 to，返回是否发生了更新
// 佣金状态单向推进的幂等保证依赖这里的守卫条件
func (r *CommissionRepository) AdvanceStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	fields := map[string]interface{}{"status": to}
	switch to {
	case models.CommissionStatusApproved:
		fields["approved_at"] = time.Now()
	case models.CommissionStatusPaid:
		fields["paid_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SumByAffiliate 按状态汇总推广人的佣金金额
func (r *CommissionRepository) SumByAffiliate(ctx context.Context, affiliateID int64, status string) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, status).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// MarkProcessingForPayout 将推广人全部已批准佣金标记为提现处理中
func (r *CommissionRepository) MarkProcessingForPayout(ctx context.Context, affiliateID, payoutID int64) error {
	return r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, models.CommissionStatusApproved).
		Updates(map[string]interface{}{
			"status":    models.CommissionStatusProcessing,
			"payout_id": payoutID,
		}).Error
}

// MarkPaidByPayout 将某次提现关联的佣金标记为已发放
func (r *CommissionRepository) MarkPaidByPayout(ctx context.Context, payoutID int64) error {
	return r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("payout_id = ? AND status = ?", payoutID, models.CommissionStatusProcessing).
		Updates(map[string]interface{}{
			"status":  models.CommissionStatusPaid,
			"paid_at": time.Now(),
		}).Error
}

// RevertProcessingByPayout 提现被驳回时将佣金退回已批准状态
func (r *CommissionRepository) RevertProcessingByPayout(ctx context.Context, payoutID int64) error {
	return r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("payout_id = ? AND status = ?", payoutID, models.CommissionStatusProcessing).
		Updates(map[string]interface{}{
			"status":    models.CommissionStatusApproved,
			"payout_id": nil,
		}).Error
}
