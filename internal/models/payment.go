package models

import (
	"time"
)

// Payment 支付记录
type Payment struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	OrderID       int64      `gorm:"index;not null" json:"order_id"`
	OrderNo       string     `gorm:"type:varchar(64);not null" json:"order_no"`
	UserID        int64      `gorm:"index;not null" json:"user_id"`
	Amount        float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method        string     `gorm:"type:varchar(20);not null" json:"method"`
	IntentID      *string    `gorm:"type:varchar(64);index" json:"intent_id,omitempty"`
	TransactionID *string    `gorm:"type:varchar(64)" json:"transaction_id,omitempty"`
	Status        int8       `gorm:"type:smallint;not null;default:0" json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CallbackData  JSON       `gorm:"type:jsonb" json:"callback_data,omitempty"`
	ErrorMessage  *string    `gorm:"type:varchar(255)" json:"error_message,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 表名
func (Payment) TableName() string {
	return "payments"
}

// PaymentMethod 支付方式
const (
	PaymentMethodCard    = "card"    // 银行卡
	PaymentMethodBalance = "balance" // 余额
)

// PaymentStatus 支付状态
const (
	PaymentStatusPending int8 = 0 // 待支付
	PaymentStatusSuccess int8 = 1 // 支付成功
	PaymentStatusFailed  int8 = 2 // 支付失败
	PaymentStatusClosed  int8 = 3 // 已关闭
)
