// Package paygate 支付网关 SDK 封装
// 负责发起支付意图和验签解析回调通知，不包含任何业务语义
package paygate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config 支付网关配置
type Config struct {
	MerchantID    string `mapstructure:"merchant_id"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	NotifyURL     string `mapstructure:"notify_url"`
	IsSandbox     bool   `mapstructure:"is_sandbox"`
}

// Client 支付网关客户端
type Client struct {
	config *Config
}

// NewClient 创建支付网关客户端
func NewClient(config *Config) *Client {
	return &Client{config: config}
}

// ChargeRequest 支付意图请求
type ChargeRequest struct {
	OutTradeNo  string `json:"out_trade_no"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"` // 单位：分
	Currency    string `json:"currency,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChargeResponse 支付意图响应
type ChargeResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	ExpiresAt    int64  `json:"expires_at"`
}

// CreateCharge 创建支付意图
func (c *Client) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	// TODO: 调用网关下单接口
	// 当前返回模拟数据，沙箱与生产环境接入后替换

	now := time.Now()
	resp := &ChargeResponse{
		IntentID:     fmt.Sprintf("pi_%d", now.UnixNano()),
		ClientSecret: fmt.Sprintf("pi_%d_secret", now.UnixNano()),
		ExpiresAt:    now.Add(30 * time.Minute).Unix(),
	}

	return resp, nil
}

// NotifyEvent 回调通知事件
type NotifyEvent struct {
	EventType     string            `json:"event_type"`
	IntentID      string            `json:"intent_id"`
	TransactionID string            `json:"transaction_id"`
	OutTradeNo    string            `json:"out_trade_no"`
	Amount        int64             `json:"amount"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    int64             `json:"occurred_at"`
}

// 回调事件类型
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// 验签错误
var (
	ErrInvalidSignature = errors.New("paygate: invalid webhook signature")
	ErrMalformedPayload = errors.New("paygate: malformed webhook payload")
)

// ParseNotify 验签并解析回调通知
// 签名为 HMAC-SHA256(body, webhook_secret) 的十六进制编码，不匹配时拒绝
func (c *Client) ParseNotify(body []byte, signature string) (*NotifyEvent, error) {
	mac := hmac.New(sha256.New, []byte(c.config.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	expectedBytes, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedBytes) {
		return nil, ErrInvalidSignature
	}

	var event NotifyEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrMalformedPayload
	}

	return &event, nil
}

// SignNotify 对回调报文签名（测试与沙箱联调用）
func (c *Client) SignNotify(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.config.WebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
