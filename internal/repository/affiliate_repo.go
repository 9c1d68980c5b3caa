package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// AffiliateRepository 推广人仓储
type AffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广人仓储
func NewAffiliateRepository(db *gorm.DB) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

// Create 创建推广人
func (r *AffiliateRepository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

// GetByID 根据 ID 获取推广人
func (r *AffiliateRepository) GetByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).First(&affiliate, id).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetByUserID 根据用户 ID 获取推广人
func (r *AffiliateRepository) GetByUserID(ctx context.Context, userID int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// Update 更新推广人
func (r *AffiliateRepository) Update(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Save(affiliate).Error
}

// UpdateStatus 更新推广人状态
func (r *AffiliateRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	fields := map[string]interface{}{"status": status}
	if status == models.AffiliateStatusApproved {
		fields["approved_at"] = time.Now()
	}
	return r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("id = ?", id).Updates(fields).Error
}

// AffiliateListParams 推广人列表查询参数
type AffiliateListParams struct {
	Offset int
	Limit  int
	Status string
}

// List 获取推广人列表
func (r *AffiliateRepository) List(ctx context.Context, params AffiliateListParams) ([]*models.Affiliate, int64, error) {
	var affiliates []*models.Affiliate
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Affiliate{})

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("User").Order("created_at DESC").
		Offset(params.Offset).Limit(params.Limit).Find(&affiliates).Error; err != nil {
		return nil, 0, err
	}

	return affiliates, total, nil
}

// CreditBalance 原子增加余额
func (r *AffiliateRepository) CreditBalance(ctx context.Context, id int64, amount float64) error {
	return r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ?", id).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error
}

// DebitBalance 原子扣减余额
// 带余额守卫：返回 gorm.ErrRecordNotFound 表示余额不足
func (r *AffiliateRepository) DebitBalance(ctx context.Context, id int64, amount float64) error {
	result := r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ? AND balance >= ?", id, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddTotalPaid 累加历史已发放总额
func (r *AffiliateRepository) AddTotalPaid(ctx context.Context, id int64, amount float64) error {
	return r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ?", id).
		UpdateColumn("total_paid", gorm.Expr("total_paid + ?", amount)).Error
}
