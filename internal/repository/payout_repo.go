package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// PayoutRepository 提现记录仓储
type PayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建提现记录仓储
func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create 创建提现记录
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// GetByID 根据 ID 获取提现记录
func (r *PayoutRepository) GetByID(ctx context.Context, id int64) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).First(&payout, id).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// PayoutListParams 提现列表查询参数
type PayoutListParams struct {
	Offset      int
	Limit       int
	AffiliateID *int64
	Status      string
}

// List 获取提现列表
func (r *PayoutRepository) List(ctx context.Context, params PayoutListParams) ([]*models.Payout, int64, error) {
	var payouts []*models.Payout
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Payout{})

	if params.AffiliateID != nil {
		query = query.Where("affiliate_id = ?", *params.AffiliateID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&payouts).Error; err != nil {
		return nil, 0, err
	}

	return payouts, total, nil
}

// AdvanceStatus 状态守卫式推进
// 仅当当前状态等于 from 时才更新为 to，返回是否发生了更新
func (r *PayoutRepository) AdvanceStatus(ctx context.Context, id int64, from, to string, operatorID *int64) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if operatorID != nil {
		fields["operator_id"] = *operatorID
	}
	if to == models.PayoutStatusPaid || to == models.PayoutStatusRejected {
		fields["processed_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
