// Package mailer 邮件通知服务
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender 邮件发送器接口
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config 邮件配置
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Enabled  bool   `mapstructure:"enabled"`
}

// SMTPSender SMTP 邮件发送器
type SMTPSender struct {
	config *Config
}

// NewSMTPSender 创建 SMTP 邮件发送器
func NewSMTPSender(config *Config) *SMTPSender {
	return &SMTPSender{config: config}
}

// Send 发送邮件
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if !s.config.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	msg := strings.Join([]string{
		"From: " + s.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("发送邮件失败: %w", err)
		}
		return nil
	}
}

// MockSender 测试用邮件发送器，记录发送过的邮件
type MockSender struct {
	Sent []MockMessage
	Err  error
}

// MockMessage 记录的邮件
type MockMessage struct {
	To      string
	Subject string
	Body    string
}

// NewMockSender 创建测试用邮件发送器
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send 记录邮件
func (m *MockSender) Send(ctx context.Context, to, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, MockMessage{To: to, Subject: subject, Body: body})
	return nil
}
