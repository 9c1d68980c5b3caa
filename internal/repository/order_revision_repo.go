package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// OrderRevisionRepository 订单修改记录仓储
// 记录只追加，仓储不提供更新和删除
type OrderRevisionRepository struct {
	db *gorm.DB
}

// NewOrderRevisionRepository 创建订单修改记录仓储
func NewOrderRevisionRepository(db *gorm.DB) *OrderRevisionRepository {
	return &OrderRevisionRepository{db: db}
}

// Create 追加修改记录
func (r *OrderRevisionRepository) Create(ctx context.Context, revision *models.OrderRevision) error {
	return r.db.WithContext(ctx).Create(revision).Error
}

// ListByOrder 获取订单的修改历史（按时间正序）
func (r *OrderRevisionRepository) ListByOrder(ctx context.Context, orderID int64) ([]*models.OrderRevision, error) {
	var revisions []*models.OrderRevision
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&revisions).Error
	return revisions, err
}

// CountChangeRequests 统计订单某一类别的改稿请求数量
func (r *OrderRevisionRepository) CountChangeRequests(ctx context.Context, orderID int64, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderRevision{}).
		Where("order_id = ? AND kind = ? AND type IN ?", orderID, kind,
			[]string{models.RevisionTypeLyricsChangeRequest, models.RevisionTypeSongChangeRequest}).
		Count(&count).Error
	return count, err
}
