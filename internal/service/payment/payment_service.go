// Package payment 提供支付发起与回调处理服务
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/internal/service/affiliate"
	"github.com/dumeirei/song-studio-backend/pkg/mailer"
	"github.com/dumeirei/song-studio-backend/pkg/paygate"
)

// 待支付超时时长
const pendingPaymentTTL = 30 * time.Minute

// Service 支付服务
// 回调可能重复送达，落账路径全部幂等
type Service struct {
	db          *gorm.DB
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
	userRepo    *repository.UserRepository
	commissions *affiliate.CommissionService
	gateway     *paygate.Client
	mail        mailer.Sender
}

// NewService 创建支付服务
func NewService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	paymentRepo *repository.PaymentRepository,
	userRepo *repository.UserRepository,
	commissions *affiliate.CommissionService,
	gateway *paygate.Client,
	mail mailer.Sender,
) *Service {
	return &Service{
		db:          db,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		commissions: commissions,
		gateway:     gateway,
		mail:        mail,
	}
}

// InitiateResponse 支付发起响应
type InitiateResponse struct {
	PaymentNo    string  `json:"payment_no"`
	IntentID     string  `json:"intent_id"`
	ClientSecret string  `json:"client_secret"`
	Amount       float64 `json:"amount"`
}

// Initiate 为订单发起支付
func (s *Service) Initiate(ctx context.Context, userID, orderID int64) (*InitiateResponse, error) {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if o.UserID != userID {
		return nil, apperrors.ErrPermissionDenied
	}
	if o.PaymentStatus != models.OrderPaymentUnpaid {
		return nil, apperrors.ErrOrderStatusError.WithMessage("订单已支付")
	}

	// 已有未过期的待支付记录直接复用
	if pending, err := s.paymentRepo.GetPendingByOrderID(ctx, orderID); err == nil && pending.IntentID != nil {
		if time.Since(pending.CreatedAt) < pendingPaymentTTL {
			return &InitiateResponse{
				PaymentNo:    pending.PaymentNo,
				IntentID:     *pending.IntentID,
				ClientSecret: "",
				Amount:       pending.Amount,
			}, nil
		}
	}

	payment := &models.Payment{
		PaymentNo: utils.GenerateOrderNo("PM"),
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    userID,
		Amount:    o.FinalAmount,
		Method:    models.PaymentMethodCard,
		Status:    models.PaymentStatusPending,
	}

	charge, err := s.gateway.CreateCharge(ctx, &paygate.ChargeRequest{
		OutTradeNo:  payment.PaymentNo,
		Description: fmt.Sprintf("定制歌曲订单 %s", o.OrderNo),
		Amount:      int64(math.Round(o.FinalAmount * 100)),
		Currency:    "USD",
		Metadata:    map[string]string{"order_no": o.OrderNo},
	})
	if err != nil {
		return nil, apperrors.ErrExternalService.WithError(err)
	}
	payment.IntentID = &charge.IntentID

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("payment initiated",
		logger.OrderID(o.ID),
		logger.String("payment_no", payment.PaymentNo),
		logger.Float64("amount", payment.Amount),
	)

	return &InitiateResponse{
		PaymentNo:    payment.PaymentNo,
		IntentID:     charge.IntentID,
		ClientSecret: charge.ClientSecret,
		Amount:       payment.Amount,
	}, nil
}

// HandleNotify 处理支付网关回调
// 验签失败直接拒绝，已处理过的事件安静返回
func (s *Service) HandleNotify(ctx context.Context, body []byte, signature string) error {
	event, err := s.gateway.ParseNotify(body, signature)
	if err != nil {
		logger.Warn("payment notify rejected", logger.Err(err))
		return apperrors.ErrPaymentCallbackError.WithError(err)
	}

	switch event.EventType {
	case paygate.EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case paygate.EventPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		logger.Info("payment notify ignored", logger.String("event_type", event.EventType))
		return nil
	}
}

// handlePaymentSucceeded 支付成功落账
// 同一事件重放时，支付、订单、佣金每一步都有各自的幂等守卫
func (s *Service) handlePaymentSucceeded(ctx context.Context, event *paygate.NotifyEvent) error {
	payment, err := s.paymentRepo.GetByPaymentNo(ctx, event.OutTradeNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("notify for unknown payment", logger.String("out_trade_no", event.OutTradeNo))
			return apperrors.ErrPaymentNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	paidAt := time.Now()
	if event.OccurredAt > 0 {
		paidAt = time.Unix(event.OccurredAt, 0)
	}

	firstPayment, err := s.paymentRepo.MarkSuccess(ctx, payment.ID, event.TransactionID, paidAt, models.JSON{
		"intent_id":      event.IntentID,
		"transaction_id": event.TransactionID,
		"amount":         event.Amount,
	})
	if err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	firstOrder, err := s.orderRepo.MarkPaid(ctx, payment.OrderID, paidAt)
	if err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	o, err := s.orderRepo.GetByID(ctx, payment.OrderID)
	if err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	// 佣金失败不回滚已成功的支付，留给补偿任务重试
	if _, err := s.commissions.RecordCommission(ctx, o); err != nil {
		logger.Error("commission recording failed",
			logger.OrderID(o.ID),
			logger.Err(err),
		)
	}

	if firstOrder {
		metrics.GetMetrics().RecordPayment(payment.Method, "success")
		s.sendPaymentConfirmation(ctx, o)
		logger.Info("order paid",
			logger.OrderID(o.ID),
			logger.OrderNo(o.OrderNo),
			logger.Float64("amount", payment.Amount),
		)
	} else if !firstPayment {
		logger.Info("duplicate payment notify", logger.String("payment_no", payment.PaymentNo))
	}

	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *paygate.NotifyEvent) error {
	payment, err := s.paymentRepo.GetByPaymentNo(ctx, event.OutTradeNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	if err := s.paymentRepo.MarkFailed(ctx, payment.ID, "gateway reported failure"); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	metrics.GetMetrics().RecordPayment(payment.Method, "failed")
	logger.Warn("payment failed",
		logger.OrderID(payment.OrderID),
		logger.String("payment_no", payment.PaymentNo),
	)
	return nil
}

// sendPaymentConfirmation 发送支付确认邮件
// 只记录失败，不影响主流程
func (s *Service) sendPaymentConfirmation(ctx context.Context, o *models.Order) {
	user, err := s.userRepo.GetByID(ctx, o.UserID)
	if err != nil {
		logger.Warn("confirmation mail skipped, user not found", logger.OrderID(o.ID))
		return
	}

	subject := fmt.Sprintf("订单 %s 支付成功", o.OrderNo)
	body := fmt.Sprintf("您的定制歌曲订单 %s 已支付 %s，我们会尽快开始制作。",
		o.OrderNo, utils.FormatMoney(int64(math.Round(o.FinalAmount*100))))
	if err := s.mail.Send(ctx, user.Email, subject, body); err != nil {
		logger.Warn("confirmation mail failed",
			logger.OrderID(o.ID),
			logger.Err(err),
		)
	}
}

// CloseExpiredPayments 关闭超时未支付的记录
// 由定时任务调用
func (s *Service) CloseExpiredPayments(ctx context.Context) error {
	expiredBefore := time.Now().Add(-pendingPaymentTTL)

	result := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, expiredBefore).
		Update("status", models.PaymentStatusClosed)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		logger.Info("expired payments closed", logger.Int64("count", result.RowsAffected))
	}
	return nil
}

// ListByUser 查询用户支付记录
func (s *Service) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*models.Payment, int64, error) {
	return s.paymentRepo.ListByUser(ctx, userID, (page-1)*pageSize, pageSize)
}
