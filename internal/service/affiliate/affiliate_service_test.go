package affiliate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

func newAffiliateService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(
		db,
		defaultAffiliateConfig(),
		"https://app.songstudio.example.com",
		repository.NewAffiliateRepository(db),
		repository.NewPromoCodeRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewReferralEventRepository(db),
	)
}

func TestService_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("首次申请", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		aff, err := svc.Apply(ctx, 7, &ApplyRequest{
			PayoutMethod:  "paypal",
			PayoutAccount: "singer@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, models.AffiliateStatusPending, aff.Status)
		assert.InDelta(t, 10.0, aff.CommissionRate, 0.001)
		assert.InDelta(t, 50.0, aff.PayoutThreshold, 0.001)
	})

	t.Run("重复申请被拒绝", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		_, err := svc.Apply(ctx, 7, &ApplyRequest{})
		require.NoError(t, err)
		_, err = svc.Apply(ctx, 7, &ApplyRequest{})
		assert.ErrorIs(t, err, apperrors.ErrAffiliateExists)
	})
}

func TestService_Review(t *testing.T) {
	ctx := context.Background()

	t.Run("通过申请并签发推广码", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		aff, err := svc.Apply(ctx, 7, &ApplyRequest{})
		require.NoError(t, err)

		code, err := svc.Approve(ctx, aff.ID)
		require.NoError(t, err)
		require.NotNil(t, code)
		assert.Len(t, code.Code, 8)
		assert.Equal(t, models.PromoKindAffiliate, code.Kind)
		assert.Equal(t, aff.ID, *code.AffiliateID)

		reloaded, err := svc.GetByUserID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, models.AffiliateStatusApproved, reloaded.Status)
		assert.NotNil(t, reloaded.ApprovedAt)
	})

	t.Run("停用后重新启用沿用原推广码", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		aff, _ := svc.Apply(ctx, 7, &ApplyRequest{})
		first, err := svc.Approve(ctx, aff.ID)
		require.NoError(t, err)

		require.NoError(t, svc.Suspend(ctx, aff.ID))
		second, err := svc.Approve(ctx, aff.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Code, second.Code)

		var codeCount int64
		db.Model(&models.PromoCode{}).Where("affiliate_id = ?", aff.ID).Count(&codeCount)
		assert.Equal(t, int64(1), codeCount)
	})

	t.Run("驳回待审申请", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		aff, _ := svc.Apply(ctx, 7, &ApplyRequest{})
		require.NoError(t, svc.Deny(ctx, aff.ID))

		reloaded, _ := svc.GetByUserID(ctx, 7)
		assert.Equal(t, models.AffiliateStatusDenied, reloaded.Status)
	})

	t.Run("已通过的不能再驳回", func(t *testing.T) {
		db := setupTestDB(t)
		svc := newAffiliateService(t, db)

		aff, _ := svc.Apply(ctx, 7, &ApplyRequest{})
		_, err := svc.Approve(ctx, aff.ID)
		require.NoError(t, err)

		assert.Error(t, svc.Deny(ctx, aff.ID))
	})
}

func TestService_SetCommissionRate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newAffiliateService(t, db)

	aff, _ := svc.Apply(ctx, 7, &ApplyRequest{})

	require.NoError(t, svc.SetCommissionRate(ctx, aff.ID, 15))
	reloaded, _ := svc.GetByUserID(ctx, 7)
	assert.InDelta(t, 15.0, reloaded.CommissionRate, 0.001)

	// 超出上限被拒绝
	assert.Error(t, svc.SetCommissionRate(ctx, aff.ID, 80))
	assert.Error(t, svc.SetCommissionRate(ctx, aff.ID, -1))
}

func TestService_ShareLink(t *testing.T) {
	db := setupTestDB(t)
	svc := newAffiliateService(t, db)

	assert.Equal(t, "https://app.songstudio.example.com/r/REFAAA", svc.ShareLink("REFAAA"))

	png, err := svc.ShareQRCode("REFAAA", 0)
	require.NoError(t, err)
	// PNG 魔数
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
}

func TestService_GetDashboard(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newAffiliateService(t, db)

	aff, _ := svc.Apply(ctx, 7, &ApplyRequest{})
	code, err := svc.Approve(ctx, aff.ID)
	require.NoError(t, err)

	userID := int64(100)
	require.NoError(t, db.Create(&models.ReferralEvent{
		CodeID:      code.ID,
		AffiliateID: aff.ID,
		UserID:      &userID,
		EventType:   models.ReferralEventClick,
	}).Error)

	dashboard, err := svc.GetDashboard(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, code.Code, dashboard.ReferralCode)
	assert.Contains(t, dashboard.ShareLink, "/r/"+code.Code)
	assert.Equal(t, int64(1), dashboard.ClickCount)
	assert.Equal(t, int64(0), dashboard.PurchaseCount)

	_, err = svc.GetDashboard(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrAffiliateNotFound)
}
