// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
)

// PromoCodeRepository 优惠码仓储
type PromoCodeRepository struct {
	db *gorm.DB
}

// NewPromoCodeRepository 创建优惠码仓储
func NewPromoCodeRepository(db *gorm.DB) *PromoCodeRepository {
	return &PromoCodeRepository{db: db}
}

// Create 创建优惠码
func (r *PromoCodeRepository) Create(ctx context.Context, code *models.PromoCode) error {
	code.Code = utils.NormalizeCode(code.Code)
	return r.db.WithContext(ctx).Create(code).Error
}

// GetByID 根据 ID 获取优惠码
func (r *PromoCodeRepository) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	var code models.PromoCode
	err := r.db.WithContext(ctx).First(&code, id).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// GetByCode 根据编码获取优惠码（大小写不敏感）
func (r *PromoCodeRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ?", utils.NormalizeCode(code)).
		First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// Update 更新优惠码
func (r *PromoCodeRepository) Update(ctx context.Context, code *models.PromoCode) error {
	return r.db.WithContext(ctx).Save(code).Error
}

// UpdateFields 更新指定字段
func (r *PromoCodeRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.PromoCode{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除优惠码
func (r *PromoCodeRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.PromoCode{}, id).Error
}

// PromoCodeListParams 优惠码列表查询参数
type PromoCodeListParams struct {
	Offset      int
	Limit       int
	Kind        string
	IsActive    *bool
	AffiliateID *int64
	Keyword     string
}

// List 获取优惠码列表
func (r *PromoCodeRepository) List(ctx context.Context, params PromoCodeListParams) ([]*models.PromoCode, int64, error) {
	var codes []*models.PromoCode
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PromoCode{})

	// 过滤条件
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}
	if params.AffiliateID != nil {
		query = query.Where("affiliate_id = ?", *params.AffiliateID)
	}
	if params.Keyword != "" {
		query = query.Where("code LIKE ? OR name LIKE ?", "%"+params.Keyword+"%", "%"+params.Keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&codes).Error; err != nil {
		return nil, 0, err
	}

	return codes, total, nil
}

// IncrementUsedCount 原子增加使用次数
// 带全局上限守卫：max_uses = 0 表示不限量；返回 gorm.ErrRecordNotFound 表示额度已满
func (r *PromoCodeRepository) IncrementUsedCount(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("id = ? AND (max_uses = 0 OR current_uses < max_uses)", id).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUserUsage 统计用户对某优惠码的历史使用次数
func (r *PromoCodeRepository) CountUserUsage(ctx context.Context, codeID, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PromoCodeUsage{}).
		Where("code_id = ? AND user_id = ?", codeID, userID).
		Count(&count).Error
	return count, err
}

// CreateUsage 创建使用记录
func (r *PromoCodeRepository) CreateUsage(ctx context.Context, usage *models.PromoCodeUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// ListUsages 获取优惠码的使用记录
func (r *PromoCodeRepository) ListUsages(ctx context.Context, codeID int64, offset, limit int) ([]*models.PromoCodeUsage, int64, error) {
	var usages []*models.PromoCodeUsage
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PromoCodeUsage{}).Where("code_id = ?", codeID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&usages).Error; err != nil {
		return nil, 0, err
	}

	return usages, total, nil
}
