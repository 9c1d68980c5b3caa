// Package errors 定义业务错误码和错误处理
package errors

import (
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = New(1001, "参数错误")
	ErrNotFound        = New(1002, "资源不存在")
	ErrAlreadyExists   = New(1003, "资源已存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrExternalService = New(1007, "外部服务错误")
	ErrRateLimitExceed = New(1008, "请求过于频繁")
	ErrOperationFailed = New(1009, "操作失败")
	ErrRetryLater      = New(1010, "系统繁忙，请稍后重试")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized     = New(2000, "未登录")
	ErrTokenExpired     = New(2001, "登录已过期")
	ErrTokenInvalid     = New(2002, "无效的令牌")
	ErrTokenRefreshFail = New(2003, "刷新令牌失败")
	ErrPermissionDenied = New(2004, "权限不足")
	ErrAccountDisabled  = New(2005, "账号已禁用")
	ErrPasswordError    = New(2006, "密码错误")
)

// 用户错误码 (3000-3999)
var (
	ErrUserNotFound = New(3000, "用户不存在")
	ErrUserExists   = New(3001, "用户已存在")
	ErrEmailExists  = New(3002, "邮箱已被注册")
	ErrEmailInvalid = New(3003, "无效的邮箱")
)

// 订单与工作流错误码 (5000-5999)
var (
	ErrOrderNotFound        = New(5000, "订单不存在")
	ErrOrderStatusError     = New(5001, "订单状态异常")
	ErrInvalidTransition    = New(5002, "非法的状态流转")
	ErrRedundantTransition  = New(5003, "订单已处于该状态")
	ErrMissingLyrics        = New(5004, "进入歌词审阅前需要先有歌词")
	ErrFeedbackRequired     = New(5005, "请填写修改意见")
	ErrRevisionLimitReached = New(5006, "修改次数已达上限")
	ErrVersionNotFound      = New(5007, "歌曲版本不存在")
	ErrVersionRequired      = New(5008, "请选择一个歌曲版本")
	ErrOrderNotPaid         = New(5009, "订单尚未支付")
)

// 支付错误码 (6000-6999)
var (
	ErrPaymentNotFound      = New(6000, "支付记录不存在")
	ErrPaymentFailed        = New(6001, "支付失败")
	ErrPaymentExpired       = New(6002, "支付已过期")
	ErrPaymentMethodError   = New(6003, "支付方式错误")
	ErrPaymentCallbackError = New(6004, "支付回调错误")
	ErrPaymentAmountError   = New(6005, "支付金额不匹配")
)

// 推广分销错误码 (7000-7999)
var (
	ErrAffiliateNotFound    = New(7000, "推广账号不存在")
	ErrAffiliateExists      = New(7001, "已申请过推广账号")
	ErrAffiliateNotApproved = New(7002, "推广账号尚未审核通过")
	ErrAffiliateSuspended   = New(7003, "推广账号已停用")
	ErrSelfReferral         = New(7004, "不能使用自己的推广码")
	ErrCommissionNotFound   = New(7005, "佣金记录不存在")
	ErrCommissionStateError = New(7006, "佣金状态异常")
	ErrPayoutBelowThreshold = New(7007, "余额未达到提现门槛")
	ErrPayoutNotFound       = New(7008, "提现记录不存在")
)

// 优惠码错误码 (9000-9999)
var (
	ErrPromoNotFound         = New(9000, "优惠码不存在")
	ErrPromoInactive         = New(9001, "优惠码未启用")
	ErrPromoNotStarted       = New(9002, "优惠码尚未生效")
	ErrPromoExpired          = New(9003, "优惠码已过期")
	ErrPromoBelowMinimum     = New(9004, "未达到最低订单金额")
	ErrPromoUsageLimit       = New(9005, "优惠码使用次数已达上限")
	ErrPromoPerUserLimit     = New(9006, "您已用过该优惠码")
	ErrPromoDisabledFeature  = New(9007, "优惠码功能未开启")
	ErrPromoAlreadyRecorded  = New(9008, "优惠码已在该订单使用")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrUnknown.WithError(err)
}
