// Package payment 支付服务单元测试
package payment

import (
	"context"
	"encoding/json"
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
	"github.com/dumeirei/song-studio-backend/pkg/mailer"
	"github.com/dumeirei/song-studio-backend/pkg/paygate"
)

type testEnv struct {
	db      *gorm.DB
	svc     *Service
	gateway *paygate.Client
	mail    *mailer.MockSender
}

func setupPaymentTest(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.Payment{},
		&models.PromoCode{},
		&models.Affiliate{},
		&models.Commission{},
		&models.ReferralEvent{},
	)
	require.NoError(t, err)

	gateway := paygate.NewClient(&paygate.Config{
		MerchantID:    "m-test",
		APIKey:        "k-test",
		WebhookSecret: "webhook-secret",
		IsSandbox:     true,
	})
	mail := mailer.NewMockSender()

	affCfg := config.AffiliateConfig{
		Enabled:         true,
		CommissionBasis: models.CommissionBasisPostDiscount,
		DefaultRate:     10,
	}
	commissions := affiliate.NewCommissionService(
		db,
		affCfg,
		repository.NewAffiliateRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewPromoCodeRepository(db),
		repository.NewReferralEventRepository(db),
	)

	svc := NewService(
		db,
		repository.NewOrderRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewUserRepository(db),
		commissions,
		gateway,
		mail,
	)
	return &testEnv{db: db, svc: svc, gateway: gateway, mail: mail}
}

func (e *testEnv) createUser(t *testing.T, id int64, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		Name:         "测试用户",
		Status:       models.UserStatusActive,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createUnpaidOrder(t *testing.T, userID int64, affiliateID *int64) *models.Order {
	t.Helper()
	o := &models.Order{
		OrderNo:              "SO20260831120000654321",
		UserID:               userID,
		PackageName:          "标准定制",
		Status:               models.OrderStatusPending,
		WorkflowStage:        models.StagePending,
		TotalAmount:          199.99,
		PromoDiscountAmount:  20.00,
		FinalAmount:          179.99,
		ReferringAffiliateID: affiliateID,
		PaymentStatus:        models.OrderPaymentUnpaid,
	}
	require.NoError(t, e.db.Create(o).Error)
	return o
}

// notify 构造一条签名合法的回调并投递
func (e *testEnv) notify(t *testing.T, eventType, outTradeNo string) error {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event_type":     eventType,
		"intent_id":      "pi_test_1",
		"transaction_id": "txn_test_1",
		"out_trade_no":   outTradeNo,
		"amount":         17999,
		"occurred_at":    time.Now().Unix(),
	})
	require.NoError(t, err)
	return e.svc.HandleNotify(context.Background(), body, e.gateway.SignNotify(body))
}

func TestService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("创建支付单并拿到支付意向", func(t *testing.T) {
		env := setupPaymentTest(t)
		env.createUser(t, 100, "buyer@example.com")
		o := env.createUnpaidOrder(t, 100, nil)

		resp, err := env.svc.Initiate(ctx, 100, o.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.PaymentNo)
		assert.NotEmpty(t, resp.IntentID)
		assert.InDelta(t, 179.99, resp.Amount, 0.001)

		// 重复发起复用未过期的待支付记录
		again, err := env.svc.Initiate(ctx, 100, o.ID)
		require.NoError(t, err)
		assert.Equal(t, resp.PaymentNo, again.PaymentNo)

		var count int64
		env.db.Model(&models.Payment{}).Where("order_id = ?", o.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("别人的订单不能支付", func(t *testing.T) {
		env := setupPaymentTest(t)
		o := env.createUnpaidOrder(t, 100, nil)

		_, err := env.svc.Initiate(ctx, 999, o.ID)
		assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	})

	t.Run("已支付订单不能再发起", func(t *testing.T) {
		env := setupPaymentTest(t)
		o := env.createUnpaidOrder(t, 100, nil)
		require.NoError(t, env.db.Model(o).Update("payment_status", models.OrderPaymentPaid).Error)

		_, err := env.svc.Initiate(ctx, 100, o.ID)
		assert.Error(t, err)
	})
}

func TestService_HandleNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("验签失败被拒绝", func(t *testing.T) {
		env := setupPaymentTest(t)

		err := env.svc.HandleNotify(ctx, []byte(`{"event_type":"payment.succeeded"}`), "deadbeef")
		assert.Error(t, err)
	})

	t.Run("支付成功落账并发确认邮件", func(t *testing.T) {
		env := setupPaymentTest(t)
		env.createUser(t, 100, "buyer@example.com")
		o := env.createUnpaidOrder(t, 100, nil)

		resp, err := env.svc.Initiate(ctx, 100, o.ID)
		require.NoError(t, err)

		require.NoError(t, env.notify(t, paygate.EventPaymentSucceeded, resp.PaymentNo))

		var reloaded models.Order
		require.NoError(t, env.db.First(&reloaded, o.ID).Error)
		assert.Equal(t, models.OrderPaymentPaid, reloaded.PaymentStatus)
		assert.NotNil(t, reloaded.PaidAt)

		var payment models.Payment
		require.NoError(t, env.db.Where("order_id = ?", o.ID).First(&payment).Error)
		assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
		assert.Equal(t, "txn_test_1", *payment.TransactionID)

		require.Len(t, env.mail.Sent, 1)
		assert.Equal(t, "buyer@example.com", env.mail.Sent[0].To)
	})

	t.Run("回调重放只产生一条佣金一次入账", func(t *testing.T) {
		env := setupPaymentTest(t)
		env.createUser(t, 100, "buyer@example.com")

		now := time.Now()
		aff := &models.Affiliate{
			UserID:         7,
			Status:         models.AffiliateStatusApproved,
			CommissionRate: 10,
			ApprovedAt:     &now,
		}
		require.NoError(t, env.db.Create(aff).Error)
		o := env.createUnpaidOrder(t, 100, &aff.ID)

		resp, err := env.svc.Initiate(ctx, 100, o.ID)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, env.notify(t, paygate.EventPaymentSucceeded, resp.PaymentNo))
		}

		var commissionCount int64
		env.db.Model(&models.Commission{}).Where("order_id = ?", o.ID).Count(&commissionCount)
		assert.Equal(t, int64(1), commissionCount)

		// 审核入账后余额恰好一笔
		var commission models.Commission
		require.NoError(t, env.db.Where("order_id = ?", o.ID).First(&commission).Error)
		assert.InDelta(t, 18.00, commission.Amount, 0.001)

		// 确认邮件也只发一封
		assert.Len(t, env.mail.Sent, 1)
	})

	t.Run("支付失败标记失败", func(t *testing.T) {
		env := setupPaymentTest(t)
		env.createUser(t, 100, "buyer@example.com")
		o := env.createUnpaidOrder(t, 100, nil)

		resp, err := env.svc.Initiate(ctx, 100, o.ID)
		require.NoError(t, err)

		require.NoError(t, env.notify(t, paygate.EventPaymentFailed, resp.PaymentNo))

		var payment models.Payment
		require.NoError(t, env.db.Where("order_id = ?", o.ID).First(&payment).Error)
		assert.Equal(t, models.PaymentStatusFailed, payment.Status)

		var reloaded models.Order
		require.NoError(t, env.db.First(&reloaded, o.ID).Error)
		assert.Equal(t, models.OrderPaymentUnpaid, reloaded.PaymentStatus)
	})

	t.Run("未知支付单的成功回调报错", func(t *testing.T) {
		env := setupPaymentTest(t)

		err := env.notify(t, paygate.EventPaymentSucceeded, "PM00000000000000000000")
		assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
	})
}

func TestService_CloseExpiredPayments(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentTest(t)
	env.createUser(t, 100, "buyer@example.com")
	o := env.createUnpaidOrder(t, 100, nil)

	stale := &models.Payment{
		PaymentNo: "PM20260830120000111111",
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    100,
		Amount:    179.99,
		Method:    models.PaymentMethodCard,
		Status:    models.PaymentStatusPending,
	}
	require.NoError(t, env.db.Create(stale).Error)
	require.NoError(t, env.db.Model(stale).
		UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)

	require.NoError(t, env.svc.CloseExpiredPayments(ctx))

	var reloaded models.Payment
	require.NoError(t, env.db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, models.PaymentStatusClosed, reloaded.Status)
}
