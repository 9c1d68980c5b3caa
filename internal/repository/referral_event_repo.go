package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// ReferralEventRepository 推广事件仓储
// 事件只追加，仓储不提供更新和删除
type ReferralEventRepository struct {
	db *gorm.DB
}

// NewReferralEventRepository 创建推广事件仓储
func NewReferralEventRepository(db *gorm.DB) *ReferralEventRepository {
	return &ReferralEventRepository{db: db}
}

// Create 追加事件
func (r *ReferralEventRepository) Create(ctx context.Context, event *models.ReferralEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FirstClickForUser 获取用户在窗口期内最早的点击事件
// 用于 FIRST_CLICK 归因策略；无记录时返回 gorm.ErrRecordNotFound
func (r *ReferralEventRepository) FirstClickForUser(ctx context.Context, userID int64, since time.Time) (*models.ReferralEvent, error) {
	var event models.ReferralEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ? AND created_at >= ?", userID, models.ReferralEventClick, since).
		Order("created_at ASC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ReferralEventListParams 推广事件列表查询参数
type ReferralEventListParams struct {
	Offset      int
	Limit       int
	AffiliateID *int64
	CodeID      *int64
	EventType   string
	From        *time.Time
	To          *time.Time
}

// List 获取事件列表
func (r *ReferralEventRepository) List(ctx context.Context, params ReferralEventListParams) ([]*models.ReferralEvent, int64, error) {
	var events []*models.ReferralEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ReferralEvent{})

	if params.AffiliateID != nil {
		query = query.Where("affiliate_id = ?", *params.AffiliateID)
	}
	if params.CodeID != nil {
		query = query.Where("code_id = ?", *params.CodeID)
	}
	if params.EventType != "" {
		query = query.Where("event_type = ?", params.EventType)
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

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// CountByAffiliate 统计推广人的事件数量
func (r *ReferralEventRepository) CountByAffiliate(ctx context.Context, affiliateID int64, eventType string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.ReferralEvent{}).
		Where("affiliate_id = ?", affiliateID)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	err := query.Count(&count).Error
	return count, err
}
