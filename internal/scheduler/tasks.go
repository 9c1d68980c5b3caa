// Package scheduler 提供定时任务
package scheduler

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/models"
	affiliateService "github.com/dumeirei/song-studio-backend/internal/service/affiliate"
	paymentService "github.com/dumeirei/song-studio-backend/internal/service/payment"
)

// commissionHoldPeriod 佣金自动确认前的持有期
const commissionHoldPeriod = 7 * 24 * time.Hour

// TaskHandler 任务处理器
type TaskHandler struct {
	db                *gorm.DB
	paymentService    *paymentService.Service
	commissionService *affiliateService.CommissionService
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(
	db *gorm.DB,
	paymentSvc *paymentService.Service,
	commissionSvc *affiliateService.CommissionService,
) *TaskHandler {
	return &TaskHandler{
		db:                db,
		paymentService:    paymentSvc,
		commissionService: commissionSvc,
	}
}

// CloseExpiredPayments 关闭过期支付
func (h *TaskHandler) CloseExpiredPayments(ctx context.Context) error {
	if h.paymentService == nil {
		return nil
	}
	return h.paymentService.CloseExpiredPayments(ctx)
}

// AutoApproveCommissions 自动确认超过持有期的待确认佣金
func (h *TaskHandler) AutoApproveCommissions(ctx context.Context) error {
	if h.commissionService == nil {
		return nil
	}

	approved, err := h.commissionService.AutoApprovePending(ctx, commissionHoldPeriod)
	if err != nil {
		return err
	}

	if approved > 0 {
		log.Printf("[Task] Auto-approved %d commissions", approved)
	}

	return nil
}

// DeactivateExpiredPromoCodes 停用已过期的优惠码
func (h *TaskHandler) DeactivateExpiredPromoCodes(ctx context.Context) error {
	result := h.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("is_active = ?", true).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Update("is_active", false)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("[Task] Deactivated %d expired promo codes", result.RowsAffected)
	}

	return nil
}

// SetupTasks 设置所有任务
func SetupTasks(scheduler *Scheduler, handler *TaskHandler) {
	// 每分钟关闭过期支付
	scheduler.AddTask("CloseExpiredPayments", 1*time.Minute, handler.CloseExpiredPayments)

	// 每小时确认一批到期佣金
	scheduler.AddTask("AutoApproveCommissions", 1*time.Hour, handler.AutoApproveCommissions)

	// 每小时停用过期优惠码
	scheduler.AddTask("DeactivateExpiredPromoCodes", 1*time.Hour, handler.DeactivateExpiredPromoCodes)
}
