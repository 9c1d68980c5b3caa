package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// OrderRepository 订单仓储
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建订单
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByIDWithDetails 获取订单及其关联明细
func (r *OrderRepository) GetByIDWithDetails(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_no ASC")
		}).
		Preload("Addons").
		First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据订单号获取订单
func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderListParams 订单列表查询参数
type OrderListParams struct {
	Offset     int
	Limit      int
	UserID     *int64
	Status     string
	AssigneeID *int64
	From       *time.Time
	To         *time.Time
	Keyword    string
}

// List 获取订单列表
func (r *OrderRepository) List(ctx context.Context, params OrderListParams) ([]*models.Order, int64, error) {
	var orders []*models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})

	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *params.AssigneeID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}
	if params.Keyword != "" {
		query = query.Where("order_no LIKE ? OR package_name LIKE ?", "%"+params.Keyword+"%", "%"+params.Keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// OrderPatch 订单局部更新（运营侧）
// 只有非 nil 字段会被写入
type OrderPatch struct {
	AssigneeID         *int64
	InternalNotes      *string
	AllowMoreRevisions *bool
	Lyrics             *string
}

// ApplyPatch 应用局部更新
func (r *OrderRepository) ApplyPatch(ctx context.Context, id int64, patch OrderPatch) error {
	fields := map[string]interface{}{}
	if patch.AssigneeID != nil {
		fields["assignee_id"] = *patch.AssigneeID
	}
	if patch.InternalNotes != nil {
		fields["internal_notes"] = *patch.InternalNotes
	}
	if patch.AllowMoreRevisions != nil {
		fields["allow_more_revisions"] = *patch.AllowMoreRevisions
	}
	if patch.Lyrics != nil {
		fields["lyrics"] = *patch.Lyrics
	}
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields).Error
}

// MarkPaid 支付守卫式标记已支付
// 仅当订单尚未支付时更新，返回是否发生了更新（支付回调重放时为 false）
func (r *OrderRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.OrderPaymentUnpaid).
		Updates(map[string]interface{}{
			"payment_status": models.OrderPaymentPaid,
			"paid_at":        paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountByStatus 按状态统计订单数量
func (r *OrderRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
