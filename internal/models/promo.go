package models

import (
	"time"
)

// PromoCode 优惠码模型
// current_uses 只允许通过带守卫的原子自增更新，不得直接赋值
type PromoCode struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code           string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name           string     `gorm:"type:varchar(100);not null" json:"name"`
	Kind           string     `gorm:"type:varchar(20);not null" json:"kind"`
	Value          float64    `gorm:"type:decimal(10,2);not null" json:"value"`
	IsPercentage   bool       `gorm:"not null;default:false" json:"is_percentage"`
	MinOrderValue  float64    `gorm:"type:decimal(10,2);not null;default:0" json:"min_order_value"`
	MaxUses        int        `gorm:"not null;default:0" json:"max_uses"`
	MaxUsesPerUser int        `gorm:"not null;default:0" json:"max_uses_per_user"`
	CurrentUses    int        `gorm:"not null;default:0" json:"current_uses"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	AffiliateID    *int64     `gorm:"index" json:"affiliate_id,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Affiliate *Affiliate       `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Usages    []PromoCodeUsage `gorm:"foreignKey:CodeID" json:"usages,omitempty"`
}

// TableName 表名
func (PromoCode) TableName() string {
	return "promo_codes"
}

// PromoKind 优惠码类型
const (
	PromoKindDiscount  = "discount"  // 普通折扣码
	PromoKindAffiliate = "affiliate" // 推广码
)

// IsValidPromoKind 判断是否为合法优惠码类型
func IsValidPromoKind(kind string) bool {
	return kind == PromoKindDiscount || kind == PromoKindAffiliate
}

// PromoCodeUsage 优惠码使用记录
// (code_id, user_id, order_id) 唯一，保证同一订单不会重复消耗使用额度
type PromoCodeUsage struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CodeID         int64     `gorm:"uniqueIndex:uq_promo_usage;not null" json:"code_id"`
	UserID         int64     `gorm:"uniqueIndex:uq_promo_usage;index;not null" json:"user_id"`
	OrderID        int64     `gorm:"uniqueIndex:uq_promo_usage;not null" json:"order_id"`
	DiscountAmount float64   `gorm:"type:decimal(10,2);not null" json:"discount_amount"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Code  *PromoCode `gorm:"foreignKey:CodeID" json:"code,omitempty"`
	User  *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Order *Order     `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 表名
func (PromoCodeUsage) TableName() string {
	return "promo_code_usages"
}

// ReferralEvent 推广事件（只追加日志，插入后不再修改）
type ReferralEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CodeID      int64     `gorm:"index;not null" json:"code_id"`
	AffiliateID int64     `gorm:"index;not null" json:"affiliate_id"`
	UserID      *int64    `gorm:"index" json:"user_id,omitempty"`
	OrderID     *int64    `json:"order_id,omitempty"`
	EventType   string    `gorm:"type:varchar(20);not null" json:"event_type"`
	SessionID   *string   `gorm:"type:varchar(64);index" json:"session_id,omitempty"`
	IP          *string   `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent   *string   `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// 关联
	Code      *PromoCode `gorm:"foreignKey:CodeID" json:"code,omitempty"`
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

// TableName 表名
func (ReferralEvent) TableName() string {
	return "referral_events"
}

// ReferralEventType 推广事件类型
const (
	ReferralEventClick    = "click"    // 点击
	ReferralEventSignup   = "signup"   // 注册
	ReferralEventPurchase = "purchase" // 购买
)
