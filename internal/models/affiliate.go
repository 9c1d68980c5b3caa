package models

import (
	"time"
)

// Affiliate 推广人模型
// balance 等于已批准未支付佣金之和减去已发放提现，只允许通过原子增减更新
type Affiliate struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CommissionRate  float64    `gorm:"type:decimal(5,2);not null;default:10" json:"commission_rate"`
	Balance         float64    `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	TotalPaid       float64    `gorm:"type:decimal(12,2);not null;default:0" json:"total_paid"`
	PayoutThreshold float64    `gorm:"type:decimal(10,2);not null;default:50" json:"payout_threshold"`
	PayoutMethod    *string    `gorm:"type:varchar(20)" json:"payout_method,omitempty"`
	PayoutAccount   *string    `gorm:"type:varchar(100)" json:"payout_account,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	User        *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Codes       []PromoCode  `gorm:"foreignKey:AffiliateID" json:"codes,omitempty"`
	Commissions []Commission `gorm:"foreignKey:AffiliateID" json:"commissions,omitempty"`
}

// TableName 表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// AffiliateStatus 推广人状态
const (
	AffiliateStatusPending   = "pending"   // 待审核
	AffiliateStatusApproved  = "approved"  // 已批准
	AffiliateStatusDenied    = "denied"    // 已拒绝
	AffiliateStatusSuspended = "suspended" // 已冻结
)

// CanEarn 判断推广人当前是否可以获得佣金
func (a *Affiliate) CanEarn() bool {
	return a.Status == AffiliateStatusApproved
}

// MaxCommissionRate 佣金比例上限（百分比）
const MaxCommissionRate = 50.0

// Commission 佣金记录
// (affiliate_id, order_id) 唯一，作为支付回调重放时的幂等键
type Commission struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID    int64      `gorm:"uniqueIndex:uq_affiliate_order;index;not null" json:"affiliate_id"`
	OrderID        int64      `gorm:"uniqueIndex:uq_affiliate_order;not null" json:"order_id"`
	CodeID         *int64     `json:"code_id,omitempty"`
	OrderTotal     float64    `gorm:"type:decimal(12,2);not null" json:"order_total"`
	DiscountAmount float64    `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	Basis          float64    `gorm:"type:decimal(12,2);not null" json:"basis"`
	RateApplied    float64    `gorm:"type:decimal(5,2);not null" json:"rate_applied"`
	Amount         float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	PayoutID       *int64     `gorm:"index" json:"payout_id,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Order     *Order     `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Code      *PromoCode `gorm:"foreignKey:CodeID" json:"code,omitempty"`
}

// TableName 表名
func (Commission) TableName() string {
	return "commissions"
}

// CommissionStatus 佣金状态（单向推进，不允许回退）
const (
	CommissionStatusPending    = "pending"    // 待批准
	CommissionStatusApproved   = "approved"   // 已批准（入账）
	CommissionStatusProcessing = "processing" // 提现处理中
	CommissionStatusPaid       = "paid"       // 已发放
)

// CommissionBasis 佣金计算基准
const (
	CommissionBasisPreDiscount  = "pre_discount"  // 折前金额
	CommissionBasisPostDiscount = "post_discount" // 折后金额
)

// Payout 提现记录
type Payout struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	AffiliateID int64      `gorm:"index;not null" json:"affiliate_id"`
	Amount      float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method      *string    `gorm:"type:varchar(20)" json:"method,omitempty"`
	Account     *string    `gorm:"type:varchar(100)" json:"account,omitempty"`
	Status      string     `gorm:"type:varchar(20);not null;default:'requested'" json:"status"`
	OperatorID  *int64     `json:"operator_id,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Operator  *Admin     `gorm:"foreignKey:OperatorID" json:"operator,omitempty"`
}

// TableName 表名
func (Payout) TableName() string {
	return "payouts"
}

// PayoutStatus 提现状态
const (
	PayoutStatusRequested = "requested" // 已申请
	PayoutStatusPaid      = "paid"      // 已发放
	PayoutStatusRejected  = "rejected"  // 已驳回
)
