package affiliate

import (
	"context"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

// Service 推广人账号服务
type Service struct {
	db             *gorm.DB
	cfg            config.AffiliateConfig
	baseURL        string
	affiliateRepo  *repository.AffiliateRepository
	promoRepo      *repository.PromoCodeRepository
	commissionRepo *repository.CommissionRepository
	eventRepo      *repository.ReferralEventRepository
}

// NewService 创建推广人账号服务
func NewService(
	db *gorm.DB,
	cfg config.AffiliateConfig,
	baseURL string,
	affiliateRepo *repository.AffiliateRepository,
	promoRepo *repository.PromoCodeRepository,
	commissionRepo *repository.CommissionRepository,
	eventRepo *repository.ReferralEventRepository,
) *Service {
	return &Service{
		db:             db,
		cfg:            cfg,
		baseURL:        baseURL,
		affiliateRepo:  affiliateRepo,
		promoRepo:      promoRepo,
		commissionRepo: commissionRepo,
		eventRepo:      eventRepo,
	}
}

// ApplyRequest 推广人申请请求
type ApplyRequest struct {
	PayoutMethod  string `json:"payout_method" binding:"max=32"`
	PayoutAccount string `json:"payout_account" binding:"max=128"`
}

// Apply 申请成为推广人
func (s *Service) Apply(ctx context.Context, userID int64, req *ApplyRequest) (*models.Affiliate, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrPromoDisabledFeature
	}

	if _, err := s.affiliateRepo.GetByUserID(ctx, userID); err == nil {
		return nil, apperrors.ErrAffiliateExists
	}

	aff := &models.Affiliate{
		UserID:          userID,
		Status:          models.AffiliateStatusPending,
		CommissionRate:  s.cfg.DefaultRate,
		PayoutThreshold: s.cfg.PayoutThreshold,
	}
	if req.PayoutMethod != "" {
		aff.PayoutMethod = &req.PayoutMethod
	}
	if req.PayoutAccount != "" {
		aff.PayoutAccount = &req.PayoutAccount
	}

	if err := s.affiliateRepo.Create(ctx, aff); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("affiliate application submitted",
		logger.UserID(userID),
		logger.AffiliateID(aff.ID),
	)
	return aff, nil
}

// Approve 审核通过推广申请并签发专属推广码
func (s *Service) Approve(ctx context.Context, affiliateID int64) (*models.PromoCode, error) {
	aff, err := s.getByID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if aff.Status != models.AffiliateStatusPending && aff.Status != models.AffiliateStatusSuspended {
		return nil, apperrors.ErrOperationFailed.WithMessage("当前状态不可审核通过")
	}

	// 重新启用时沿用已有推广码
	if existing := s.findReferralCode(ctx, affiliateID); existing != nil {
		if err := s.affiliateRepo.UpdateStatus(ctx, affiliateID, models.AffiliateStatusApproved); err != nil {
			return nil, apperrors.ErrDatabaseError.WithError(err)
		}
		return existing, nil
	}

	code := &models.PromoCode{
		Code:        utils.GenerateReferralCode(8),
		Name:        "专属推广码",
		Kind:        models.PromoKindAffiliate,
		Value:       0,
		IsActive:    true,
		AffiliateID: &affiliateID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Affiliate{}).
			Where("id = ?", affiliateID).
			Updates(map[string]interface{}{
				"status":      models.AffiliateStatusApproved,
				"approved_at": gorm.Expr("CURRENT_TIMESTAMP"),
			})
		if result.Error != nil {
			return result.Error
		}
		return tx.Create(code).Error
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("affiliate approved",
		logger.AffiliateID(affiliateID),
		logger.String("referral_code", code.Code),
	)
	return code, nil
}

// Deny 驳回推广申请
func (s *Service) Deny(ctx context.Context, affiliateID int64) error {
	aff, err := s.getByID(ctx, affiliateID)
	if err != nil {
		return err
	}
	if aff.Status != models.AffiliateStatusPending {
		return apperrors.ErrOperationFailed.WithMessage("只能驳回待审申请")
	}
	return s.affiliateRepo.UpdateStatus(ctx, affiliateID, models.AffiliateStatusDenied)
}

// Suspend 停用推广人
// 停用后不再产生新佣金，已入账余额保留
func (s *Service) Suspend(ctx context.Context, affiliateID int64) error {
	aff, err := s.getByID(ctx, affiliateID)
	if err != nil {
		return err
	}
	if aff.Status != models.AffiliateStatusApproved {
		return apperrors.ErrOperationFailed.WithMessage("只能停用已通过的推广人")
	}

	if err := s.affiliateRepo.UpdateStatus(ctx, affiliateID, models.AffiliateStatusSuspended); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	logger.Info("affiliate suspended", logger.AffiliateID(affiliateID))
	return nil
}

// SetCommissionRate 调整佣金比例
func (s *Service) SetCommissionRate(ctx context.Context, affiliateID int64, rate float64) error {
	if rate < 0 || rate > models.MaxCommissionRate {
		return apperrors.ErrInvalidParams.WithMessage(
			fmt.Sprintf("佣金比例须在 0 到 %.0f 之间", models.MaxCommissionRate))
	}

	aff, err := s.getByID(ctx, affiliateID)
	if err != nil {
		return err
	}

	aff.CommissionRate = rate
	return s.affiliateRepo.Update(ctx, aff)
}

// Dashboard 推广人仪表盘
type Dashboard struct {
	Affiliate       *models.Affiliate `json:"affiliate"`
	ReferralCode    string            `json:"referral_code"`
	ShareLink       string            `json:"share_link"`
	ClickCount      int64             `json:"click_count"`
	SignupCount     int64             `json:"signup_count"`
	PurchaseCount   int64             `json:"purchase_count"`
	PendingAmount   float64           `json:"pending_amount"`
	ApprovedBalance float64           `json:"approved_balance"`
	TotalPaid       float64           `json:"total_paid"`
}

// GetDashboard 获取推广人仪表盘数据
func (s *Service) GetDashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	aff, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	dashboard := &Dashboard{
		Affiliate:       aff,
		ApprovedBalance: aff.Balance,
		TotalPaid:       aff.TotalPaid,
	}

	if code := s.findReferralCode(ctx, aff.ID); code != nil {
		dashboard.ReferralCode = code.Code
		dashboard.ShareLink = s.ShareLink(code.Code)
	}

	dashboard.ClickCount, _ = s.eventRepo.CountByAffiliate(ctx, aff.ID, models.ReferralEventClick)
	dashboard.SignupCount, _ = s.eventRepo.CountByAffiliate(ctx, aff.ID, models.ReferralEventSignup)
	dashboard.PurchaseCount, _ = s.eventRepo.CountByAffiliate(ctx, aff.ID, models.ReferralEventPurchase)
	dashboard.PendingAmount, _ = s.commissionRepo.SumByAffiliate(ctx, aff.ID, models.CommissionStatusPending)

	return dashboard, nil
}

// ShareLink 构造推广链接
func (s *Service) ShareLink(code string) string {
	return fmt.Sprintf("%s/r/%s", s.baseURL, code)
}

// ShareQRCode 生成推广链接二维码 PNG
func (s *Service) ShareQRCode(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(s.ShareLink(code), qrcode.Medium, size)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}
	return png, nil
}

// ListRequest 推广人列表请求
type ListRequest struct {
	Page     int
	PageSize int
	Status   string
}

// ListResponse 推广人列表响应
type ListResponse struct {
	List  []*models.Affiliate `json:"list"`
	Total int64               `json:"total"`
}

// List 分页查询推广人（管理端）
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	list, total, err := s.affiliateRepo.List(ctx, repository.AffiliateListParams{
		Offset: (req.Page - 1) * req.PageSize,
		Limit:  req.PageSize,
		Status: req.Status,
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return &ListResponse{List: list, Total: total}, nil
}

// GetByUserID 按用户查询推广人账号
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*models.Affiliate, error) {
	aff, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return aff, nil
}

func (s *Service) getByID(ctx context.Context, affiliateID int64) (*models.Affiliate, error) {
	aff, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return aff, nil
}

// findReferralCode 查找推广人的专属推广码
func (s *Service) findReferralCode(ctx context.Context, affiliateID int64) *models.PromoCode {
	codes, _, err := s.promoRepo.List(ctx, repository.PromoCodeListParams{
		Limit:       1,
		Kind:        models.PromoKindAffiliate,
		AffiliateID: &affiliateID,
	})
	if err != nil || len(codes) == 0 {
		return nil
	}
	return codes[0]
}
