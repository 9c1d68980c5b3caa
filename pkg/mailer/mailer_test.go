// Package mailer 邮件服务单元测试
package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSender_Disabled(t *testing.T) {
	sender := NewSMTPSender(&Config{Enabled: false})

	// 未启用时直接返回，不尝试连接
	err := sender.Send(context.Background(), "user@example.com", "订单更新", "订单已进入制作阶段")
	assert.NoError(t, err)
}

func TestMockSender_Send(t *testing.T) {
	sender := NewMockSender()

	err := sender.Send(context.Background(), "user@example.com", "订单完成", "您的定制歌曲已完成")
	require.NoError(t, err)

	require.Len(t, sender.Sent, 1)
	assert.Equal(t, "user@example.com", sender.Sent[0].To)
	assert.Equal(t, "订单完成", sender.Sent[0].Subject)
}

func TestMockSender_Error(t *testing.T) {
	sender := NewMockSender()
	sender.Err = errors.New("smtp unavailable")

	err := sender.Send(context.Background(), "user@example.com", "subject", "body")
	assert.Error(t, err)
	assert.Empty(t, sender.Sent)
}
