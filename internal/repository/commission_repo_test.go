// Package repository 佣金仓储单元测试
package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/song-studio-backend/internal/models"
)

// setupCommissionTestDB 创建佣金测试数据库
func setupCommissionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Affiliate{},
		&models.Commission{},
		&models.Order{},
	)
	require.NoError(t, err)

	return db
}

func createTestCommission(t *testing.T, db *gorm.DB, affiliateID, orderID int64, opts ...func(*models.Commission)) *models.Commission {
	t.Helper()

	commission := &models.Commission{
		AffiliateID: affiliateID,
		OrderID:     orderID,
		OrderTotal:  199.99,
		Basis:       179.99,
		RateApplied: 10.0,
		Amount:      18.00,
		Status:      models.CommissionStatusPending,
	}

	for _, opt := range opts {
		opt(commission)
	}

	require.NoError(t, db.Create(commission).Error)
	return commission
}

func TestCommissionRepository_UniqueAffiliateOrder(t *testing.T) {
	db := setupCommissionTestDB(t)
	ctx := context.Background()
	repo := NewCommissionRepository(db)

	createTestCommission(t, db, 1, 100)

	// 同一 (推广人, 订单) 重复插入被唯一索引拒绝
	err := repo.Create(ctx, &models.Commission{
		AffiliateID: 1,
		OrderID:     100,
		OrderTotal:  199.99,
		Basis:       179.99,
		RateApplied: 10.0,
		Amount:      18.00,
		Status:      models.CommissionStatusPending,
	})
	assert.Error(t, err)

	// 不同订单可以插入
	err = repo.Create(ctx, &models.Commission{
		AffiliateID: 1,
		OrderID:     101,
		OrderTotal:  50.0,
		Basis:       50.0,
		RateApplied: 10.0,
		Amount:      5.00,
		Status:      models.CommissionStatusPending,
	})
	assert.NoError(t, err)
}

func TestCommissionRepository_GetByAffiliateAndOrder(t *testing.T) {
	db := setupCommissionTestDB(t)
	repo := NewCommissionRepository(db)
	ctx := context.Background()

	created := createTestCommission(t, db, 1, 100)

	found, err := repo.GetByAffiliateAndOrder(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.GetByAffiliateAndOrder(ctx, 1, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommissionRepository_AdvanceStatus(t *testing.T) {
	db := setupCommissionTestDB(t)
	repo := NewCommissionRepository(db)
	ctx := context.Background()

	commission := createTestCommission(t, db, 1, 100)

	t.Run("pending到approved", func(t *testing.T) {
		advanced, err := repo.AdvanceStatus(ctx, commission.ID,
			models.CommissionStatusPending, models.CommissionStatusApproved)
		require.NoError(t, err)
		assert.True(t, advanced)

		var found models.Commission
		db.First(&found, commission.ID)
		assert.Equal(t, models.CommissionStatusApproved, found.Status)
		assert.NotNil(t, found.ApprovedAt)
	})

	t.Run("重放同一推进不生效", func(t *testing.T) {
		advanced, err := repo.AdvanceStatus(ctx, commission.ID,
			models.CommissionStatusPending, models.CommissionStatusApproved)
		require.NoError(t, err)
		assert.False(t, advanced)
	})
}

func TestCommissionRepository_SumByAffiliate(t *testing.T) {
	db := setupCommissionTestDB(t)
	repo := NewCommissionRepository(db)
	ctx := context.Background()

	createTestCommission(t, db, 1, 100, func(c *models.Commission) {
		c.Status = models.CommissionStatusApproved
		c.Amount = 18.00
	})
	createTestCommission(t, db, 1, 101, func(c *models.Commission) {
		c.Status = models.CommissionStatusApproved
		c.Amount = 5.00
	})
	createTestCommission(t, db, 1, 102, func(c *models.Commission) {
		c.Status = models.CommissionStatusPending
		c.Amount = 99.00
	})

	sum, err := repo.SumByAffiliate(ctx, 1, models.CommissionStatusApproved)
	require.NoError(t, err)
	assert.InDelta(t, 23.00, sum, 0.001)

	sum, err = repo.SumByAffiliate(ctx, 2, models.CommissionStatusApproved)
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestCommissionRepository_PayoutFlow(t *testing.T) {
	db := setupCommissionTestDB(t)
	repo := NewCommissionRepository(db)
	ctx := context.Background()

	createTestCommission(t, db, 1, 100, func(c *models.Commission) {
		c.Status = models.CommissionStatusApproved
	})
	createTestCommission(t, db, 1, 101, func(c *models.Commission) {
		c.Status = models.CommissionStatusApproved
	})

	require.NoError(t, repo.MarkProcessingForPayout(ctx, 1, 501))

	var processing int64
	db.Model(&models.Commission{}).
		Where("payout_id = ? AND status = ?", 501, models.CommissionStatusProcessing).
		Count(&processing)
	assert.Equal(t, int64(2), processing)

	t.Run("发放后标记为已支付", func(t *testing.T) {
		require.NoError(t, repo.MarkPaidByPayout(ctx, 501))

		var paid int64
		db.Model(&models.Commission{}).
			Where("payout_id = ? AND status = ?", 501, models.CommissionStatusPaid).
			Count(&paid)
		assert.Equal(t, int64(2), paid)
	})
}

func TestCommissionRepository_RevertProcessingByPayout(t *testing.T) {
	db := setupCommissionTestDB(t)
	repo := NewCommissionRepository(db)
	ctx := context.Background()

	createTestCommission(t, db, 1, 100, func(c *models.Commission) {
		c.Status = models.CommissionStatusApproved
	})
	require.NoError(t, repo.MarkProcessingForPayout(ctx, 1, 601))

	require.NoError(t, repo.RevertProcessingByPayout(ctx, 601))

	var found models.Commission
	db.Where("affiliate_id = ? AND order_id = ?", 1, 100).First(&found)
	assert.Equal(t, models.CommissionStatusApproved, found.Status)
	assert.Nil(t, found.PayoutID)
}
