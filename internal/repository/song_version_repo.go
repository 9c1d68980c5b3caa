package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// SongVersionRepository 歌曲版本仓储
type SongVersionRepository struct {
	db *gorm.DB
}

// NewSongVersionRepository 创建歌曲版本仓储
func NewSongVersionRepository(db *gorm.DB) *SongVersionRepository {
	return &SongVersionRepository{db: db}
}

// Create 创建歌曲版本
func (r *SongVersionRepository) Create(ctx context.Context, version *models.SongVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

// GetByID 根据 ID 获取歌曲版本
func (r *SongVersionRepository) GetByID(ctx context.Context, id int64) (*models.SongVersion, error) {
	var version models.SongVersion
	err := r.db.WithContext(ctx).First(&version, id).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// ListByOrder 获取订单的全部歌曲版本（按版本号正序）
func (r *SongVersionRepository) ListByOrder(ctx context.Context, orderID int64) ([]*models.SongVersion, error) {
	var versions []*models.SongVersion
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("version_no ASC").
		Find(&versions).Error
	return versions, err
}

// NextVersionNo 计算订单的下一个版本号
func (r *SongVersionRepository) NextVersionNo(ctx context.Context, orderID int64) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.SongVersion{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(MAX(version_no), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// CountByOrder 统计订单的版本数量
func (r *SongVersionRepository) CountByOrder(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SongVersion{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}
