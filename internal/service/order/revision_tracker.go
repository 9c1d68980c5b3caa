// Package order 提供订单、制作工作流与修改治理服务
package order

import (
	"github.com/dumeirei/song-studio-backend/internal/common/config"
	"github.com/dumeirei/song-studio-backend/internal/models"
)

// DefaultMaxRevisions 每类修改的默认上限
const DefaultMaxRevisions = 5

// RevisionTracker 修改次数治理
// 歌词和歌曲各自独立计数，共用同一个上限
type RevisionTracker struct {
	maxRevisions int
}

// NewRevisionTracker 创建修改次数治理器
func NewRevisionTracker(cfg config.WorkflowConfig) *RevisionTracker {
	max := cfg.MaxRevisions
	if max <= 0 {
		max = DefaultMaxRevisions
	}
	return &RevisionTracker{maxRevisions: max}
}

// MaxRevisions 返回生效的修改上限
func (t *RevisionTracker) MaxRevisions() int {
	return t.maxRevisions
}

// Count 返回指定类别已用的修改次数
func (t *RevisionTracker) Count(o *models.Order, kind string) int {
	if kind == models.RevisionKindSong {
		return o.SongRevisions
	}
	return o.LyricsRevisions
}

// CanRevise 判断订单是否还允许指定类别的修改
// 达到上限后仍可通过订单级豁免放行
func (t *RevisionTracker) CanRevise(o *models.Order, kind string) bool {
	if !models.IsValidRevisionKind(kind) {
		return false
	}
	return t.Count(o, kind) < t.maxRevisions || o.AllowMoreRevisions
}

// Remaining 返回剩余修改次数，豁免时返回 -1 表示不限
func (t *RevisionTracker) Remaining(o *models.Order, kind string) int {
	if o.AllowMoreRevisions {
		return -1
	}
	remaining := t.maxRevisions - t.Count(o, kind)
	if remaining < 0 {
		return 0
	}
	return remaining
}
