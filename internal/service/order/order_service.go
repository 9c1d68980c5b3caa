package order

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/internal/service/affiliate"
	"github.com/dumeirei/song-studio-backend/internal/service/promo"
)

// Service 订单服务
// 下单是唯一消耗优惠码额度并固化归因的入口
type Service struct {
	db          *gorm.DB
	cfg         config.BusinessConfig
	orderRepo   *repository.OrderRepository
	validator   *promo.ValidatorService
	attribution *affiliate.AttributionService
}

// NewService 创建订单服务
func NewService(
	db *gorm.DB,
	cfg config.BusinessConfig,
	orderRepo *repository.OrderRepository,
	validator *promo.ValidatorService,
	attribution *affiliate.AttributionService,
) *Service {
	return &Service{
		db:          db,
		cfg:         cfg,
		orderRepo:   orderRepo,
		validator:   validator,
		attribution: attribution,
	}
}

// ApplyPromoResponse 优惠码试算响应
type ApplyPromoResponse struct {
	DiscountAmount float64 `json:"discount_amount"`
	DiscountName   string  `json:"discount_name"`
	FinalTotal     float64 `json:"final_total"`
}

// ApplyPromo 下单前的价格试算
// 只校验不落库，可匿名调用
func (s *Service) ApplyPromo(ctx context.Context, userID int64, code string, orderValue float64) (*ApplyPromoResponse, error) {
	result, err := s.validator.Validate(ctx, code, userID, orderValue)
	if err != nil {
		return nil, err
	}
	return &ApplyPromoResponse{
		DiscountAmount: result.DiscountAmount,
		DiscountName:   result.Code.Name,
		FinalTotal:     result.FinalAmount,
	}, nil
}

// AddonItem 订单附加项
type AddonItem struct {
	Name     string  `json:"name" binding:"required,max=64"`
	Price    float64 `json:"price" binding:"gte=0"`
	Quantity int     `json:"quantity" binding:"gte=1"`
}

// CreateRequest 下单请求
type CreateRequest struct {
	PackageName       string      `json:"package_name" binding:"required,max=64"`
	BasePrice         float64     `json:"base_price" binding:"required,gt=0"`
	Addons            []AddonItem `json:"addons"`
	Lyrics            *string     `json:"lyrics"`
	PromoCode         string      `json:"promo_code"`
	AttributionCookie string      `json:"-"`
}

// CreateResponse 下单响应
type CreateResponse struct {
	OrderID         int64   `json:"order_id"`
	OrderNo         string  `json:"order_no"`
	TotalAmount     float64 `json:"total_amount"`
	DiscountApplied float64 `json:"discount_applied"`
	FinalAmount     float64 `json:"final_amount"`
}

// Create 创建订单
// 订单落库、优惠码用量记录和归因标记在同一事务内完成
func (s *Service) Create(ctx context.Context, userID int64, req *CreateRequest) (*CreateResponse, error) {
	total := req.BasePrice
	for _, addon := range req.Addons {
		if addon.Quantity <= 0 {
			return nil, apperrors.ErrInvalidParams.WithMessage("附加项数量无效")
		}
		total += addon.Price * float64(addon.Quantity)
	}
	total = utils.RoundMoney(total)

	var promoResult *promo.ValidationResult
	if req.PromoCode != "" {
		var err error
		promoResult, err = s.validator.Validate(ctx, req.PromoCode, userID, total)
		if err != nil {
			return nil, err
		}
	}

	attribution, err := s.attribution.Resolve(ctx, userID, req.AttributionCookie)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	o := &models.Order{
		OrderNo:       utils.GenerateOrderNo("SO"),
		UserID:        userID,
		PackageName:   req.PackageName,
		Status:        models.OrderStatusPending,
		WorkflowStage: models.StagePending,
		TotalAmount:   total,
		FinalAmount:   total,
		Lyrics:        req.Lyrics,
	}
	if promoResult != nil {
		o.UsedPromoCode = &promoResult.CodeName
		o.PromoDiscountAmount = promoResult.DiscountAmount
		o.FinalAmount = promoResult.FinalAmount
		// 推广码本身也携带归因
		if promoResult.Code.AffiliateID != nil {
			o.ReferringAffiliateID = promoResult.Code.AffiliateID
		}
	}
	if o.ReferringAffiliateID == nil && attribution != nil {
		o.ReferringAffiliateID = &attribution.AffiliateID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}

		for _, addon := range req.Addons {
			if err := tx.Create(&models.OrderAddon{
				OrderID:  o.ID,
				Name:     addon.Name,
				Price:    addon.Price,
				Quantity: addon.Quantity,
			}).Error; err != nil {
				return err
			}
		}

		if promoResult != nil {
			return s.validator.RecordUsage(ctx, tx, promoResult.CodeID, userID, o.ID, promoResult.DiscountAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order created",
		logger.OrderID(o.ID),
		logger.OrderNo(o.OrderNo),
		logger.UserID(userID),
		logger.Float64("final_amount", o.FinalAmount),
	)
	metrics.GetMetrics().RecordOrder(o.Status)

	return &CreateResponse{
		OrderID:         o.ID,
		OrderNo:         o.OrderNo,
		TotalAmount:     o.TotalAmount,
		DiscountApplied: o.PromoDiscountAmount,
		FinalAmount:     o.FinalAmount,
	}, nil
}

// Get 获取订单详情（带修改记录、版本和附加项）
func (s *Service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	o, err := s.orderRepo.GetByIDWithDetails(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return o, nil
}

// GetForUser 获取客户自己的订单详情
func (s *Service) GetForUser(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperrors.ErrPermissionDenied
	}
	return o, nil
}

// ListRequest 订单列表请求
type ListRequest struct {
	Page       int
	PageSize   int
	UserID     *int64
	Status     string
	AssigneeID *int64
	Keyword    string
}

// ListResponse 订单列表响应
type ListResponse struct {
	List  []*models.Order `json:"list"`
	Total int64           `json:"total"`
}

// List 分页查询订单
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	list, total, err := s.orderRepo.List(ctx, repository.OrderListParams{
		Offset:     (req.Page - 1) * req.PageSize,
		Limit:      req.PageSize,
		UserID:     req.UserID,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		Keyword:    req.Keyword,
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return &ListResponse{List: list, Total: total}, nil
}
