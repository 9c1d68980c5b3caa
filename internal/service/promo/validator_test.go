// Package promo 优惠码校验服务单元测试
package promo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

func setupValidatorTest(t *testing.T) (*gorm.DB, *ValidatorService) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.PromoCode{},
		&models.PromoCodeUsage{},
		&models.Affiliate{},
		&models.Order{},
	)
	require.NoError(t, err)

	svc := NewValidatorService(
		db,
		config.PromoConfig{Enabled: true},
		repository.NewPromoCodeRepository(db),
		repository.NewAffiliateRepository(db),
	)
	return db, svc
}

func createCode(t *testing.T, db *gorm.DB, opts ...func(*models.PromoCode)) *models.PromoCode {
	t.Helper()

	code := &models.PromoCode{
		Code:           "WELCOME10",
		Name:           "新客九折",
		Kind:           models.PromoKindDiscount,
		Value:          10.0,
		IsPercentage:   true,
		MaxUses:        100,
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(code)
	}
	require.NoError(t, db.Create(code).Error)
	return code
}

func TestValidatorService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("百分比折扣按订单金额计算", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		createCode(t, db)

		result, err := svc.Validate(ctx, "WELCOME10", 1, 199.99)
		require.NoError(t, err)
		assert.InDelta(t, 20.00, result.DiscountAmount, 0.001)
		assert.InDelta(t, 179.99, result.FinalAmount, 0.001)
	})

	t.Run("码不区分大小写", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		createCode(t, db)

		result, err := svc.Validate(ctx, "  welcome10 ", 1, 100)
		require.NoError(t, err)
		assert.Equal(t, "WELCOME10", result.CodeName)
	})

	t.Run("不存在的码", func(t *testing.T) {
		_, svc := setupValidatorTest(t)

		_, err := svc.Validate(ctx, "NOPE", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoNotFound)
	})

	t.Run("停用的码", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		createCode(t, db, func(c *models.PromoCode) {
			c.IsActive = false
		})

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoInactive)
	})

	t.Run("尚未生效的码", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		starts := time.Now().Add(time.Hour)
		createCode(t, db, func(c *models.PromoCode) {
			c.StartsAt = &starts
		})

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoNotStarted)
	})

	t.Run("过期的码", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		expires := time.Now().Add(-time.Hour)
		createCode(t, db, func(c *models.PromoCode) {
			c.ExpiresAt = &expires
		})

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoExpired)
	})

	t.Run("未达最低订单金额", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		createCode(t, db, func(c *models.PromoCode) {
			c.Code = "SAVE25"
			c.Value = 25
			c.IsPercentage = false
			c.MinOrderValue = 100
		})

		_, err := svc.Validate(ctx, "SAVE25", 1, 40.00)
		assert.ErrorIs(t, err, apperrors.ErrPromoBelowMinimum)
	})

	t.Run("总使用次数已满", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		createCode(t, db, func(c *models.PromoCode) {
			c.MaxUses = 5
			c.CurrentUses = 5
		})

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoUsageLimit)
	})

	t.Run("单用户次数已满", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		code := createCode(t, db)
		require.NoError(t, db.Create(&models.PromoCodeUsage{
			CodeID:         code.ID,
			UserID:         1,
			OrderID:        1001,
			DiscountAmount: 10,
		}).Error)

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoPerUserLimit)

		// 其他用户不受影响
		_, err = svc.Validate(ctx, "WELCOME10", 2, 100)
		assert.NoError(t, err)
	})

	t.Run("推广者使用自己的码", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		aff := &models.Affiliate{
			UserID:         7,
			Status:         models.AffiliateStatusApproved,
			CommissionRate: 10,
		}
		require.NoError(t, db.Create(aff).Error)
		createCode(t, db, func(c *models.PromoCode) {
			c.Code = "REF7"
			c.Kind = models.PromoKindAffiliate
			c.AffiliateID = &aff.ID
			c.MaxUsesPerUser = 0
		})

		_, err := svc.Validate(ctx, "REF7", 7, 100)
		assert.ErrorIs(t, err, apperrors.ErrSelfReferral)

		// 其他用户可以正常使用
		_, err = svc.Validate(ctx, "REF7", 8, 100)
		assert.NoError(t, err)
	})

	t.Run("功能开关关闭", func(t *testing.T) {
		db, _ := setupValidatorTest(t)
		createCode(t, db)
		svc := NewValidatorService(
			db,
			config.PromoConfig{Enabled: false},
			repository.NewPromoCodeRepository(db),
			repository.NewAffiliateRepository(db),
		)

		_, err := svc.Validate(ctx, "WELCOME10", 1, 100)
		assert.ErrorIs(t, err, apperrors.ErrPromoDisabledFeature)
	})
}

func TestComputeDiscount(t *testing.T) {
	t.Run("百分比折扣四舍五入到分", func(t *testing.T) {
		pc := &models.PromoCode{Value: 10, IsPercentage: true}
		assert.InDelta(t, 20.00, ComputeDiscount(pc, 199.99), 0.001)
		assert.InDelta(t, 3.33, ComputeDiscount(pc, 33.33), 0.001)
	})

	t.Run("固定金额不超过订单金额", func(t *testing.T) {
		pc := &models.PromoCode{Value: 25, IsPercentage: false}
		assert.InDelta(t, 25.00, ComputeDiscount(pc, 100), 0.001)
		assert.InDelta(t, 15.00, ComputeDiscount(pc, 15), 0.001)
	})
}

func TestValidatorService_RecordUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("记录使用并递增计数", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		code := createCode(t, db)

		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.RecordUsage(ctx, tx, code.ID, 1, 1001, 20.00)
		})
		require.NoError(t, err)

		var reloaded models.PromoCode
		require.NoError(t, db.First(&reloaded, code.ID).Error)
		assert.Equal(t, 1, reloaded.CurrentUses)

		var usageCount int64
		db.Model(&models.PromoCodeUsage{}).Where("code_id = ?", code.ID).Count(&usageCount)
		assert.Equal(t, int64(1), usageCount)
	})

	t.Run("次数已满时整个事务回滚", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		code := createCode(t, db, func(c *models.PromoCode) {
			c.MaxUses = 1
			c.CurrentUses = 1
		})

		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.RecordUsage(ctx, tx, code.ID, 1, 1001, 20.00)
		})
		assert.ErrorIs(t, err, apperrors.ErrPromoUsageLimit)

		var usageCount int64
		db.Model(&models.PromoCodeUsage{}).Where("code_id = ?", code.ID).Count(&usageCount)
		assert.Equal(t, int64(0), usageCount)
	})

	t.Run("同一订单重复记录被唯一索引拒绝", func(t *testing.T) {
		db, svc := setupValidatorTest(t)
		code := createCode(t, db, func(c *models.PromoCode) {
			c.MaxUsesPerUser = 0
		})

		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.RecordUsage(ctx, tx, code.ID, 1, 1001, 20.00)
		})
		require.NoError(t, err)

		err = db.Transaction(func(tx *gorm.DB) error {
			return svc.RecordUsage(ctx, tx, code.ID, 1, 1001, 20.00)
		})
		assert.Error(t, err)
	})
}
