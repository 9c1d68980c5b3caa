// Package affiliate 提供推广分销服务
package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/cache"
	"github.com/dumeirei/song-studio-backend/internal/common/config"
	"github.com/dumeirei/song-studio-backend/internal/common/crypto"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
)

// 归因策略
const (
	StrategyLastClick  = "last_click"
	StrategyFirstClick = "first_click"
)

// CookiePayload 归因 Cookie 负载
// 点击推广链接时签发，签名防篡改
type CookiePayload struct {
	CodeID    int64  `json:"code_id"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// Attribution 归因结果
type Attribution struct {
	AffiliateID int64 `json:"affiliate_id"`
	CodeID      int64 `json:"code_id"`
}

// AttributionService 购买归因服务
type AttributionService struct {
	cfg           config.AffiliateConfig
	signer        *crypto.HMACSigner
	promoRepo     *repository.PromoCodeRepository
	affiliateRepo *repository.AffiliateRepository
	eventRepo     *repository.ReferralEventRepository
}

// NewAttributionService 创建归因服务
func NewAttributionService(
	cfg config.AffiliateConfig,
	promoRepo *repository.PromoCodeRepository,
	affiliateRepo *repository.AffiliateRepository,
	eventRepo *repository.ReferralEventRepository,
) *AttributionService {
	return &AttributionService{
		cfg:           cfg,
		signer:        crypto.NewHMACSigner(cfg.CookieSecret),
		promoRepo:     promoRepo,
		affiliateRepo: affiliateRepo,
		eventRepo:     eventRepo,
	}
}

// IssueCookie 签发归因 Cookie 值
func (s *AttributionService) IssueCookie(codeID int64, sessionID string) string {
	payload, _ := json.Marshal(&CookiePayload{
		CodeID:    codeID,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
	})
	return s.signer.Sign(payload)
}

// DecodeCookie 校验并解析归因 Cookie
// 签名不匹配或超出归因窗口的 Cookie 都会被拒绝，过期判断不依赖签名结果
func (s *AttributionService) DecodeCookie(value string) (*CookiePayload, error) {
	raw, err := s.signer.Verify(value)
	if err != nil {
		return nil, err
	}

	var payload CookiePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, crypto.ErrMalformedPayload
	}

	issuedAt := time.Unix(payload.Timestamp, 0)
	if time.Since(issuedAt) > s.cfg.AttributionWindowDuration() {
		return nil, apperrors.ErrTokenExpired
	}
	return &payload, nil
}

// Resolve 解析一次购买应归属的推广人
// 找不到归因时返回 nil，绝不凭空编造归属
func (s *AttributionService) Resolve(ctx context.Context, userID int64, cookieValue string) (*Attribution, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}

	var codeID, affiliateID int64

	switch s.cfg.AttributionStrategy {
	case StrategyFirstClick:
		since := time.Now().Add(-s.cfg.AttributionWindowDuration())
		event, err := s.eventRepo.FirstClickForUser(ctx, userID, since)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		codeID = event.CodeID
		affiliateID = event.AffiliateID

	default: // last_click
		if cookieValue == "" {
			return nil, nil
		}
		payload, err := s.DecodeCookie(cookieValue)
		if err != nil {
			logger.Debug("attribution cookie rejected", logger.Err(err))
			return nil, nil
		}
		pc, err := s.promoRepo.GetByID(ctx, payload.CodeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if pc.AffiliateID == nil {
			return nil, nil
		}
		codeID = pc.ID
		affiliateID = *pc.AffiliateID
	}

	aff, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// 本人购买不产生归属
	if aff.UserID == userID {
		return nil, nil
	}

	return &Attribution{
		AffiliateID: affiliateID,
		CodeID:      codeID,
	}, nil
}

// ClickResult 点击记录结果
type ClickResult struct {
	CodeID      int64  `json:"code_id"`
	SessionID   string `json:"session_id"`
	CookieValue string `json:"-"`
}

// TrackClick 记录推广链接点击并签发归因 Cookie
// 同一会话短时间内的重复点击只记录一次事件
func (s *AttributionService) TrackClick(ctx context.Context, code, sessionID, ip, userAgent string, userID *int64) (*ClickResult, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrPromoDisabledFeature
	}

	pc, err := s.promoRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPromoNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if pc.AffiliateID == nil || !pc.IsActive {
		return nil, apperrors.ErrPromoInactive
	}

	if sessionID == "" {
		sessionID = utils.GenerateSessionID()
	}

	fresh := true
	if cache.GetClient() != nil {
		key := cache.BuildKey(cache.KeyPrefixClickDedupe, pc.Code, sessionID)
		ok, err := cache.SetNX(ctx, key, 1, time.Hour)
		if err != nil {
			logger.Warn("click dedupe unavailable", logger.Err(err))
		} else {
			fresh = ok
		}
	}

	if fresh {
		event := &models.ReferralEvent{
			CodeID:      pc.ID,
			AffiliateID: *pc.AffiliateID,
			UserID:      userID,
			EventType:   models.ReferralEventClick,
			SessionID:   &sessionID,
			IP:          utils.StringPtr(ip),
			UserAgent:   utils.StringPtr(userAgent),
		}
		if err := s.eventRepo.Create(ctx, event); err != nil {
			return nil, apperrors.ErrDatabaseError.WithError(err)
		}
		metrics.GetMetrics().RecordReferralEvent(models.ReferralEventClick)
	}

	return &ClickResult{
		CodeID:      pc.ID,
		SessionID:   sessionID,
		CookieValue: s.IssueCookie(pc.ID, sessionID),
	}, nil
}

// TrackSignup 记录带归因 Cookie 的注册事件
func (s *AttributionService) TrackSignup(ctx context.Context, userID int64, cookieValue string) {
	if !s.cfg.Enabled || cookieValue == "" {
		return
	}

	payload, err := s.DecodeCookie(cookieValue)
	if err != nil {
		return
	}

	pc, err := s.promoRepo.GetByID(ctx, payload.CodeID)
	if err != nil || pc.AffiliateID == nil {
		return
	}

	event := &models.ReferralEvent{
		CodeID:      pc.ID,
		AffiliateID: *pc.AffiliateID,
		UserID:      &userID,
		EventType:   models.ReferralEventSignup,
		SessionID:   &payload.SessionID,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		logger.Warn("failed to record signup event", logger.UserID(userID), logger.Err(err))
		return
	}
	metrics.GetMetrics().RecordReferralEvent(models.ReferralEventSignup)
}
