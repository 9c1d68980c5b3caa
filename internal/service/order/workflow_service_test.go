// Package order 工作流状态机单元测试
package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/utils"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/pkg/mailer"
)

func setupWorkflowTest(t *testing.T) (*gorm.DB, *WorkflowService) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.OrderRevision{},
		&models.SongVersion{},
		&models.OrderAddon{},
	)
	require.NoError(t, err)

	svc := NewWorkflowService(
		db,
		repository.NewOrderRepository(db),
		repository.NewOrderRevisionRepository(db),
		repository.NewSongVersionRepository(db),
		repository.NewUserRepository(db),
		NewRevisionTracker(config.WorkflowConfig{MaxRevisions: 5}),
		mailer.NewMockSender(),
	)
	return db, svc
}

func createWorkflowOrder(t *testing.T, db *gorm.DB, opts ...func(*models.Order)) *models.Order {
	t.Helper()

	o := &models.Order{
		OrderNo:       utils.GenerateOrderNo("SO"),
		UserID:        100,
		PackageName:   "标准定制",
		Status:        models.OrderStatusPending,
		WorkflowStage: models.StagePending,
		TotalAmount:   199.99,
		FinalAmount:   199.99,
		PaymentStatus: models.OrderPaymentPaid,
	}
	for _, opt := range opts {
		opt(o)
	}
	require.NoError(t, db.Create(o).Error)
	return o
}

func reload(t *testing.T, db *gorm.DB, id int64) *models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, db.First(&o, id).Error)
	return &o
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.OrderStatusPending, models.OrderStatusInProduction))
	assert.True(t, CanTransition(models.OrderStatusLyricsReview, models.OrderStatusInProduction))
	assert.True(t, CanTransition(models.OrderStatusSongReview, models.OrderStatusSongProduction))

	// 不允许跳级
	assert.False(t, CanTransition(models.OrderStatusPending, models.OrderStatusCompleted))
	assert.False(t, CanTransition(models.OrderStatusInProduction, models.OrderStatusSongReview))
	assert.False(t, CanTransition(models.OrderStatusCompleted, models.OrderStatusPending))
}

func TestWorkflowService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("状态与阶段一起更新", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db)

		updated, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusInProduction, 1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusInProduction, updated.Status)
		assert.Equal(t, models.StageInProduction, updated.WorkflowStage)
	})

	t.Run("同状态流转被拒绝", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db)

		_, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusPending, 1)
		assert.ErrorIs(t, err, apperrors.ErrRedundantTransition)
	})

	t.Run("跳级流转被拒绝", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db)

		_, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusCompleted, 1)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	})

	t.Run("没有歌词不能进歌词审阅", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db, func(o *models.Order) {
			o.Status = models.OrderStatusInProduction
			o.WorkflowStage = models.StageInProduction
		})

		_, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusLyricsReview, 1)
		assert.ErrorIs(t, err, apperrors.ErrMissingLyrics)

		// 有歌词后放行
		require.NoError(t, svc.UploadLyrics(ctx, o.ID, 1, "第一句歌词"))
		updated, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusLyricsReview, 1)
		require.NoError(t, err)
		assert.Equal(t, models.StageLyricsReview, updated.WorkflowStage)
	})

	t.Run("员工直推歌曲制作也强制歌词已确认", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		lyrics := "歌词"
		o := createWorkflowOrder(t, db, func(o *models.Order) {
			o.Status = models.OrderStatusLyricsReview
			o.WorkflowStage = models.StageLyricsReview
			o.Lyrics = &lyrics
		})

		updated, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusSongProduction, 1)
		require.NoError(t, err)
		assert.True(t, updated.LyricsApproved)
	})

	t.Run("不存在的订单", func(t *testing.T) {
		_, svc := setupWorkflowTest(t)

		_, err := svc.UpdateStatus(ctx, 999, models.OrderStatusInProduction, 1)
		assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	})

	t.Run("未知状态被拒绝", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db)

		_, err := svc.UpdateStatus(ctx, o.ID, "archived", 1)
		assert.Error(t, err)
	})
}

func TestWorkflowService_LyricsReview(t *testing.T) {
	ctx := context.Background()

	lyricsReviewOrder := func(t *testing.T, db *gorm.DB, opts ...func(*models.Order)) *models.Order {
		lyrics := "样例歌词"
		base := func(o *models.Order) {
			o.Status = models.OrderStatusLyricsReview
			o.WorkflowStage = models.StageLyricsReview
			o.Lyrics = &lyrics
		}
		return createWorkflowOrder(t, db, append([]func(*models.Order){base}, opts...)...)
	}

	t.Run("确认歌词进入歌曲制作", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := lyricsReviewOrder(t, db)

		require.NoError(t, svc.ApproveLyrics(ctx, o.ID, 100, nil))

		updated := reload(t, db, o.ID)
		assert.Equal(t, models.OrderStatusSongProduction, updated.Status)
		assert.Equal(t, models.StageSongProduction, updated.WorkflowStage)
		assert.True(t, updated.LyricsApproved)

		var revision models.OrderRevision
		require.NoError(t, db.Where("order_id = ?", o.ID).First(&revision).Error)
		assert.Equal(t, models.RevisionTypeLyricsApproved, revision.Type)
		assert.Equal(t, models.RevisionOriginCustomer, revision.Origin)
	})

	t.Run("要求修改必须填意见", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := lyricsReviewOrder(t, db)

		err := svc.RequestLyricsChanges(ctx, o.ID, 100, "")
		assert.ErrorIs(t, err, apperrors.ErrFeedbackRequired)
	})

	t.Run("要求修改退回制作并计数", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := lyricsReviewOrder(t, db)

		require.NoError(t, svc.RequestLyricsChanges(ctx, o.ID, 100, "副歌太平淡"))

		updated := reload(t, db, o.ID)
		assert.Equal(t, models.OrderStatusInProduction, updated.Status)
		assert.Equal(t, models.StageInProduction, updated.WorkflowStage)
		assert.Equal(t, 1, updated.LyricsRevisions)
	})

	t.Run("到达上限后拒绝，豁免后放行", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := lyricsReviewOrder(t, db, func(o *models.Order) {
			o.LyricsRevisions = 5
		})

		err := svc.RequestLyricsChanges(ctx, o.ID, 100, "再改一次")
		assert.ErrorIs(t, err, apperrors.ErrRevisionLimitReached)

		allow := true
		require.NoError(t, svc.PatchOrder(ctx, o.ID, 1, repository.OrderPatch{AllowMoreRevisions: &allow}))
		require.NoError(t, svc.RequestLyricsChanges(ctx, o.ID, 100, "再改一次"))

		updated := reload(t, db, o.ID)
		assert.Equal(t, 6, updated.LyricsRevisions)
	})

	t.Run("非本人订单被拒绝", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := lyricsReviewOrder(t, db)

		err := svc.ApproveLyrics(ctx, o.ID, 999, nil)
		assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	})

	t.Run("不在歌词审阅阶段被拒绝", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db)

		err := svc.ApproveLyrics(ctx, o.ID, 100, nil)
		assert.Error(t, err)
	})
}

func TestWorkflowService_SongReview(t *testing.T) {
	ctx := context.Background()

	songReviewOrder := func(t *testing.T, db *gorm.DB, opts ...func(*models.Order)) *models.Order {
		lyrics := "样例歌词"
		base := func(o *models.Order) {
			o.Status = models.OrderStatusSongReview
			o.WorkflowStage = models.StageSongReview
			o.Lyrics = &lyrics
			o.LyricsApproved = true
		}
		return createWorkflowOrder(t, db, append([]func(*models.Order){base}, opts...)...)
	}

	createVersion := func(t *testing.T, db *gorm.DB, orderID int64, versionNo int) *models.SongVersion {
		uploaderID := int64(1)
		v := &models.SongVersion{
			OrderID:    orderID,
			VersionNo:  versionNo,
			FilePath:   "songs/demo.mp3",
			UploaderID: &uploaderID,
		}
		require.NoError(t, db.Create(v).Error)
		return v
	}

	t.Run("确认歌曲只选中一个版本并完成订单", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := songReviewOrder(t, db)
		v1 := createVersion(t, db, o.ID, 1)
		v2 := createVersion(t, db, o.ID, 2)
		require.NoError(t, db.Model(v1).Update("selected", true).Error)

		require.NoError(t, svc.ApproveSong(ctx, o.ID, 100, v2.ID, nil))

		updated := reload(t, db, o.ID)
		assert.Equal(t, models.OrderStatusCompleted, updated.Status)
		assert.Equal(t, models.StageCompleted, updated.WorkflowStage)
		assert.NotNil(t, updated.CompletedAt)

		var selected []models.SongVersion
		require.NoError(t, db.Where("order_id = ? AND selected = ?", o.ID, true).Find(&selected).Error)
		require.Len(t, selected, 1)
		assert.Equal(t, v2.ID, selected[0].ID)
	})

	t.Run("必须指定版本", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := songReviewOrder(t, db)

		err := svc.ApproveSong(ctx, o.ID, 100, 0, nil)
		assert.ErrorIs(t, err, apperrors.ErrVersionRequired)
	})

	t.Run("别的订单的版本不可选", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := songReviewOrder(t, db)
		other := createWorkflowOrder(t, db, func(o *models.Order) {
			o.UserID = 200
		})
		v := createVersion(t, db, other.ID, 1)

		err := svc.ApproveSong(ctx, o.ID, 100, v.ID, nil)
		assert.ErrorIs(t, err, apperrors.ErrVersionNotFound)
	})

	t.Run("连续两次要求修改不会跳到完成", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := songReviewOrder(t, db)

		require.NoError(t, svc.RequestSongChanges(ctx, o.ID, 100, "鼓点太重"))
		updated := reload(t, db, o.ID)
		assert.Equal(t, models.OrderStatusSongProduction, updated.Status)
		assert.Equal(t, 1, updated.SongRevisions)

		// 回到审阅再次要求修改
		require.NoError(t, db.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
			"status":         models.OrderStatusSongReview,
			"workflow_stage": models.StageSongReview,
		}).Error)

		require.NoError(t, svc.RequestSongChanges(ctx, o.ID, 100, "前奏太长"))
		updated = reload(t, db, o.ID)
		assert.Equal(t, models.OrderStatusSongProduction, updated.Status)
		assert.Equal(t, 2, updated.SongRevisions)
	})
}

func TestWorkflowService_UploadSongVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("版本号递增", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db, func(o *models.Order) {
			o.Status = models.OrderStatusSongProduction
			o.WorkflowStage = models.StageSongProduction
		})

		v1, err := svc.UploadSongVersion(ctx, o.ID, 1, "songs/v1.mp3")
		require.NoError(t, err)
		assert.Equal(t, 1, v1.VersionNo)

		v2, err := svc.UploadSongVersion(ctx, o.ID, 1, "songs/v2.mp3")
		require.NoError(t, err)
		assert.Equal(t, 2, v2.VersionNo)
	})

	t.Run("修改上限同样约束后续版本上传", func(t *testing.T) {
		db, svc := setupWorkflowTest(t)
		o := createWorkflowOrder(t, db, func(o *models.Order) {
			o.Status = models.OrderStatusSongProduction
			o.WorkflowStage = models.StageSongProduction
			o.SongRevisions = 5
		})

		// 首个版本不受限
		_, err := svc.UploadSongVersion(ctx, o.ID, 1, "songs/v1.mp3")
		require.NoError(t, err)

		_, err = svc.UploadSongVersion(ctx, o.ID, 1, "songs/v2.mp3")
		assert.ErrorIs(t, err, apperrors.ErrRevisionLimitReached)

		allow := true
		require.NoError(t, svc.PatchOrder(ctx, o.ID, 1, repository.OrderPatch{AllowMoreRevisions: &allow}))
		_, err = svc.UploadSongVersion(ctx, o.ID, 1, "songs/v2.mp3")
		require.NoError(t, err)
	})
}

func TestRevisionTracker(t *testing.T) {
	tracker := NewRevisionTracker(config.WorkflowConfig{MaxRevisions: 5})

	t.Run("独立计数", func(t *testing.T) {
		o := &models.Order{LyricsRevisions: 5, SongRevisions: 0}
		assert.False(t, tracker.CanRevise(o, models.RevisionKindLyrics))
		assert.True(t, tracker.CanRevise(o, models.RevisionKindSong))
	})

	t.Run("豁免覆盖上限", func(t *testing.T) {
		o := &models.Order{LyricsRevisions: 5, AllowMoreRevisions: true}
		assert.True(t, tracker.CanRevise(o, models.RevisionKindLyrics))
		assert.Equal(t, -1, tracker.Remaining(o, models.RevisionKindLyrics))
	})

	t.Run("未知类别不放行", func(t *testing.T) {
		o := &models.Order{}
		assert.False(t, tracker.CanRevise(o, "mix"))
	})

	t.Run("零值配置回落默认上限", func(t *testing.T) {
		zero := NewRevisionTracker(config.WorkflowConfig{})
		assert.Equal(t, DefaultMaxRevisions, zero.MaxRevisions())
	})
}
