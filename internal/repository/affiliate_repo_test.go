// Package repository 推广人仓储单元测试
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

// setupAffiliateTestDB 创建推广人测试数据库
func setupAffiliateTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Affiliate{},
		&models.Commission{},
		&models.Payout{},
	)
	require.NoError(t, err)

	return db
}

func createTestAffiliate(t *testing.T, db *gorm.DB, opts ...func(*models.Affiliate)) *models.Affiliate {
	t.Helper()

	user := &models.User{
		Email:        "affiliate@example.com",
		PasswordHash: "hash",
		Name:         "推广人",
		Status:       models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)

	affiliate := &models.Affiliate{
		UserID:          user.ID,
		Status:          models.AffiliateStatusApproved,
		CommissionRate:  10.0,
		Balance:         0,
		PayoutThreshold: 50.0,
	}

	for _, opt := range opts {
		opt(affiliate)
	}

	require.NoError(t, db.Create(affiliate).Error)
	return affiliate
}

func TestAffiliateRepository_GetByUserID(t *testing.T) {
	db := setupAffiliateTestDB(t)
	repo := NewAffiliateRepository(db)
	ctx := context.Background()

	created := createTestAffiliate(t, db)

	found, err := repo.GetByUserID(ctx, created.UserID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.GetByUserID(ctx, created.UserID+99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAffiliateRepository_UpdateStatus(t *testing.T) {
	db := setupAffiliateTestDB(t)
	repo := NewAffiliateRepository(db)
	ctx := context.Background()

	affiliate := createTestAffiliate(t, db, func(a *models.Affiliate) {
		a.Status = models.AffiliateStatusPending
	})

	require.NoError(t, repo.UpdateStatus(ctx, affiliate.ID, models.AffiliateStatusApproved))

	var found models.Affiliate
	db.First(&found, affiliate.ID)
	assert.Equal(t, models.AffiliateStatusApproved, found.Status)
	assert.NotNil(t, found.ApprovedAt)
}

func TestAffiliateRepository_CreditBalance(t *testing.T) {
	db := setupAffiliateTestDB(t)
	repo := NewAffiliateRepository(db)
	ctx := context.Background()

	affiliate := createTestAffiliate(t, db)

	require.NoError(t, repo.CreditBalance(ctx, affiliate.ID, 18.00))
	require.NoError(t, repo.CreditBalance(ctx, affiliate.ID, 7.50))

	var found models.Affiliate
	db.First(&found, affiliate.ID)
	assert.InDelta(t, 25.50, found.Balance, 0.001)
}

func TestAffiliateRepository_DebitBalance(t *testing.T) {
	db := setupAffiliateTestDB(t)
	repo := NewAffiliateRepository(db)
	ctx := context.Background()

	affiliate := createTestAffiliate(t, db, func(a *models.Affiliate) {
		a.Balance = 60.00
	})

	t.Run("余额充足", func(t *testing.T) {
		require.NoError(t, repo.DebitBalance(ctx, affiliate.ID, 50.00))

		var found models.Affiliate
		db.First(&found, affiliate.ID)
		assert.InDelta(t, 10.00, found.Balance, 0.001)
	})

	t.Run("余额不足被守卫拒绝", func(t *testing.T) {
		err := repo.DebitBalance(ctx, affiliate.ID, 50.00)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		var found models.Affiliate
		db.First(&found, affiliate.ID)
		assert.InDelta(t, 10.00, found.Balance, 0.001)
	})
}

func TestAffiliateRepository_List(t *testing.T) {
	db := setupAffiliateTestDB(t)
	repo := NewAffiliateRepository(db)
	ctx := context.Background()

	createTestAffiliate(t, db)

	user2 := &models.User{Email: "second@example.com", PasswordHash: "hash", Status: models.UserStatusActive}
	require.NoError(t, db.Create(user2).Error)
	require.NoError(t, db.Create(&models.Affiliate{
		UserID: user2.ID,
		Status: models.AffiliateStatusPending,
	}).Error)

	t.Run("全部", func(t *testing.T) {
		_, total, err := repo.List(ctx, AffiliateListParams{Offset: 0, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})

	t.Run("按状态过滤", func(t *testing.T) {
		affiliates, total, err := repo.List(ctx, AffiliateListParams{
			Offset: 0, Limit: 10, Status: models.AffiliateStatusPending,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, models.AffiliateStatusPending, affiliates[0].Status)
	})
}
