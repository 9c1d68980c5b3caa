package order

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
	"github.com/dumeirei/song-studio-backend/internal/service/affiliate"
	"github.com/dumeirei/song-studio-backend/internal/service/promo"
)

func testBusinessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		Promo: config.PromoConfig{Enabled: true},
		Affiliate: config.AffiliateConfig{
			Enabled:             true,
			AttributionStrategy: "last_click",
			AttributionWindow:   30,
			CommissionBasis:     models.CommissionBasisPostDiscount,
			DefaultRate:         10,
			PayoutThreshold:     50,
			CookieSecret:        "test-secret",
		},
		Workflow: config.WorkflowConfig{MaxRevisions: 5},
	}
}

func setupOrderServiceTest(t *testing.T) (*gorm.DB, *Service, *affiliate.AttributionService) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.OrderRevision{},
		&models.SongVersion{},
		&models.OrderAddon{},
		&models.PromoCode{},
		&models.PromoCodeUsage{},
		&models.Affiliate{},
		&models.ReferralEvent{},
	)
	require.NoError(t, err)

	cfg := testBusinessConfig()
	promoRepo := repository.NewPromoCodeRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	eventRepo := repository.NewReferralEventRepository(db)

	validator := promo.NewValidatorService(db, cfg.Promo, promoRepo, affiliateRepo)
	attribution := affiliate.NewAttributionService(cfg.Affiliate, promoRepo, affiliateRepo, eventRepo)
	svc := NewService(db, cfg, repository.NewOrderRepository(db), validator, attribution)
	return db, svc, attribution
}

func createDiscountCode(t *testing.T, db *gorm.DB, opts ...func(*models.PromoCode)) *models.PromoCode {
	t.Helper()

	pc := &models.PromoCode{
		Code:           "WELCOME10",
		Name:           "新客九折",
		Kind:           models.PromoKindDiscount,
		Value:          10,
		IsPercentage:   true,
		MaxUses:        100,
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(pc)
	}
	require.NoError(t, db.Create(pc).Error)
	return pc
}

func TestService_ApplyPromo(t *testing.T) {
	ctx := context.Background()

	t.Run("试算不消耗额度", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)
		code := createDiscountCode(t, db)

		for i := 0; i < 3; i++ {
			resp, err := svc.ApplyPromo(ctx, 100, "WELCOME10", 199.99)
			require.NoError(t, err)
			assert.InDelta(t, 20.00, resp.DiscountAmount, 0.001)
			assert.InDelta(t, 179.99, resp.FinalTotal, 0.001)
			assert.Equal(t, "新客九折", resp.DiscountName)
		}

		var reloaded models.PromoCode
		require.NoError(t, db.First(&reloaded, code.ID).Error)
		assert.Equal(t, 0, reloaded.CurrentUses)
	})

	t.Run("固定金额未达门槛", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)
		createDiscountCode(t, db, func(c *models.PromoCode) {
			c.Code = "SAVE25"
			c.Value = 25
			c.IsPercentage = false
			c.MinOrderValue = 100
		})

		_, err := svc.ApplyPromo(ctx, 100, "SAVE25", 40.00)
		assert.ErrorIs(t, err, apperrors.ErrPromoBelowMinimum)
	})
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("带优惠码下单", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)
		code := createDiscountCode(t, db)

		resp, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName: "标准定制",
			BasePrice:   199.99,
			PromoCode:   "welcome10",
		})
		require.NoError(t, err)
		assert.InDelta(t, 199.99, resp.TotalAmount, 0.001)
		assert.InDelta(t, 20.00, resp.DiscountApplied, 0.001)
		assert.InDelta(t, 179.99, resp.FinalAmount, 0.001)
		assert.Len(t, resp.OrderNo, 22)

		o := reload(t, db, resp.OrderID)
		assert.Equal(t, models.OrderStatusPending, o.Status)
		assert.Equal(t, models.StagePending, o.WorkflowStage)
		assert.Equal(t, "WELCOME10", *o.UsedPromoCode)

		// 额度与使用记录同事务落库
		var reloaded models.PromoCode
		require.NoError(t, db.First(&reloaded, code.ID).Error)
		assert.Equal(t, 1, reloaded.CurrentUses)

		var usage models.PromoCodeUsage
		require.NoError(t, db.Where("order_id = ?", resp.OrderID).First(&usage).Error)
		assert.Equal(t, code.ID, usage.CodeID)
	})

	t.Run("附加项计入总价", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)

		resp, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName: "标准定制",
			BasePrice:   100,
			Addons: []AddonItem{
				{Name: "加急", Price: 30, Quantity: 1},
				{Name: "额外段落", Price: 10, Quantity: 2},
			},
		})
		require.NoError(t, err)
		assert.InDelta(t, 150.00, resp.TotalAmount, 0.001)

		var addons []models.OrderAddon
		require.NoError(t, db.Where("order_id = ?", resp.OrderID).Find(&addons).Error)
		assert.Len(t, addons, 2)
	})

	t.Run("归因Cookie固化到订单", func(t *testing.T) {
		db, svc, attribution := setupOrderServiceTest(t)

		now := time.Now()
		aff := &models.Affiliate{
			UserID:         7,
			Status:         models.AffiliateStatusApproved,
			CommissionRate: 10,
			ApprovedAt:     &now,
		}
		require.NoError(t, db.Create(aff).Error)
		refCode := createDiscountCode(t, db, func(c *models.PromoCode) {
			c.Code = "REFAAA"
			c.Kind = models.PromoKindAffiliate
			c.Value = 0
			c.IsPercentage = false
			c.MaxUsesPerUser = 0
			c.AffiliateID = &aff.ID
		})

		cookie := attribution.IssueCookie(refCode.ID, "sess-1")
		resp, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName:       "标准定制",
			BasePrice:         199.99,
			AttributionCookie: cookie,
		})
		require.NoError(t, err)

		o := reload(t, db, resp.OrderID)
		require.NotNil(t, o.ReferringAffiliateID)
		assert.Equal(t, aff.ID, *o.ReferringAffiliateID)
	})

	t.Run("无归因时不编造归属", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)

		resp, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName: "标准定制",
			BasePrice:   199.99,
		})
		require.NoError(t, err)

		o := reload(t, db, resp.OrderID)
		assert.Nil(t, o.ReferringAffiliateID)
		assert.Nil(t, o.UsedPromoCode)
	})

	t.Run("优惠码被拒绝时订单不落库", func(t *testing.T) {
		db, svc, _ := setupOrderServiceTest(t)
		createDiscountCode(t, db, func(c *models.PromoCode) {
			c.IsActive = false
		})

		_, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName: "标准定制",
			BasePrice:   199.99,
			PromoCode:   "WELCOME10",
		})
		assert.ErrorIs(t, err, apperrors.ErrPromoInactive)

		var count int64
		db.Model(&models.Order{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})
}

func TestService_GetForUser(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setupOrderServiceTest(t)

	resp, err := svc.Create(ctx, 100, &CreateRequest{
		PackageName: "标准定制",
		BasePrice:   199.99,
	})
	require.NoError(t, err)

	o, err := svc.GetForUser(ctx, resp.OrderID, 100)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderNo, o.OrderNo)

	_, err = svc.GetForUser(ctx, resp.OrderID, 999)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = svc.GetForUser(ctx, 12345, 100)
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	db, svc, _ := setupOrderServiceTest(t)
	_ = db

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, 100, &CreateRequest{
			PackageName: "标准定制",
			BasePrice:   100,
		})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, 200, &CreateRequest{
		PackageName: "豪华定制",
		BasePrice:   300,
	})
	require.NoError(t, err)

	userID := int64(100)
	resp, err := svc.List(ctx, &ListRequest{Page: 1, PageSize: 10, UserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)

	resp, err = svc.List(ctx, &ListRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Total)
	assert.Len(t, resp.List, 2)
}
