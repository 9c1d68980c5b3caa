package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/song-studio-backend/internal/common/errors"
	"github.com/dumeirei/song-studio-backend/internal/common/logger"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	"github.com/dumeirei/song-studio-backend/internal/models"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/pkg/mailer"
)

// transitions 状态机邻接表
// 只允许相邻的前进，以及审阅态退回对应制作态
var transitions = map[string][]string{
	models.OrderStatusPending:        {models.OrderStatusInProduction},
	models.OrderStatusInProduction:   {models.OrderStatusLyricsReview},
	models.OrderStatusLyricsReview:   {models.OrderStatusSongProduction, models.OrderStatusInProduction},
	models.OrderStatusSongProduction: {models.OrderStatusSongReview},
	models.OrderStatusSongReview:     {models.OrderStatusCompleted, models.OrderStatusSongProduction},
}

// CanTransition 判断两个状态是否相邻可达
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WorkflowService 订单工作流状态机
// 员工按钮和客户审批动作都从这里经过，status 与 workflow_stage 永远一起写
type WorkflowService struct {
	db           *gorm.DB
	orderRepo    *repository.OrderRepository
	revisionRepo *repository.OrderRevisionRepository
	versionRepo  *repository.SongVersionRepository
	userRepo     *repository.UserRepository
	tracker      *RevisionTracker
	mail         mailer.Sender
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	revisionRepo *repository.OrderRevisionRepository,
	versionRepo *repository.SongVersionRepository,
	userRepo *repository.UserRepository,
	tracker *RevisionTracker,
	mail mailer.Sender,
) *WorkflowService {
	return &WorkflowService{
		db:           db,
		orderRepo:    orderRepo,
		revisionRepo: revisionRepo,
		versionRepo:  versionRepo,
		userRepo:     userRepo,
		tracker:      tracker,
		mail:         mail,
	}
}

// UpdateStatus 员工推动订单状态
func (s *WorkflowService) UpdateStatus(ctx context.Context, orderID int64, target string, adminID int64) (*models.Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.transition(tx, o, target, nil)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order status updated",
		logger.OrderID(orderID),
		logger.AdminID(adminID),
		logger.String("status", target),
	)
	return s.getOrder(ctx, orderID)
}

// transition 在事务内执行一次状态流转及其附带副作用
// extra 中的字段与状态在同一条 UPDATE 里落库
func (s *WorkflowService) transition(tx *gorm.DB, o *models.Order, target string, extra map[string]interface{}) error {
	if !models.IsValidOrderStatus(target) {
		return apperrors.ErrInvalidParams.WithMessage("未知的订单状态")
	}
	if o.Status == target {
		return apperrors.ErrRedundantTransition
	}
	if !CanTransition(o.Status, target) {
		return apperrors.ErrInvalidTransition
	}

	// 进入歌词审阅前必须已有歌词
	if target == models.OrderStatusLyricsReview && (o.Lyrics == nil || *o.Lyrics == "") {
		return apperrors.ErrMissingLyrics
	}

	updates := map[string]interface{}{
		"status":         target,
		"workflow_stage": models.StageForStatus(target),
	}
	// 进入歌曲制作即视为歌词已确认，无论由谁触发
	if target == models.OrderStatusSongProduction {
		updates["lyrics_approved"] = true
	}
	if target == models.OrderStatusCompleted {
		updates["completed_at"] = time.Now()
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 并发下订单状态已被他人推进
		return apperrors.ErrOrderStatusError
	}

	metrics.GetMetrics().RecordOrderTransition(o.Status, target)
	return nil
}

// ApproveLyrics 客户确认歌词
// 流转到歌曲制作并追加审批记录，意见可不填
func (s *WorkflowService) ApproveLyrics(ctx context.Context, orderID, userID int64, feedback *string) error {
	o, err := s.getUserOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderStatusLyricsReview {
		return apperrors.ErrOrderStatusError.WithMessage("当前不在歌词审阅阶段")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, o, models.OrderStatusSongProduction, nil); err != nil {
			return err
		}
		return tx.Create(&models.OrderRevision{
			OrderID:  orderID,
			Kind:     models.RevisionKindLyrics,
			Origin:   models.RevisionOriginCustomer,
			Type:     models.RevisionTypeLyricsApproved,
			Feedback: feedback,
			AuthorID: &userID,
		}).Error
	})
}

// RequestLyricsChanges 客户要求修改歌词
// 意见必填，计数受上限约束，退回制作中
func (s *WorkflowService) RequestLyricsChanges(ctx context.Context, orderID, userID int64, feedback string) error {
	if feedback == "" {
		return apperrors.ErrFeedbackRequired
	}

	o, err := s.getUserOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderStatusLyricsReview {
		return apperrors.ErrOrderStatusError.WithMessage("当前不在歌词审阅阶段")
	}
	if !s.tracker.CanRevise(o, models.RevisionKindLyrics) {
		return apperrors.ErrRevisionLimitReached
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		extra := map[string]interface{}{
			"lyrics_revisions": gorm.Expr("lyrics_revisions + 1"),
		}
		if err := s.transition(tx, o, models.OrderStatusInProduction, extra); err != nil {
			return err
		}
		return tx.Create(&models.OrderRevision{
			OrderID:  orderID,
			Kind:     models.RevisionKindLyrics,
			Origin:   models.RevisionOriginCustomer,
			Type:     models.RevisionTypeLyricsChangeRequest,
			Feedback: &feedback,
			AuthorID: &userID,
		}).Error
	})
	if err != nil {
		return err
	}

	metrics.GetMetrics().RecordRevisionRequest(models.RevisionKindLyrics)
	return nil
}

// ApproveSong 客户确认歌曲
// 原子地把所选版本设为唯一选中版本，然后完成订单
func (s *WorkflowService) ApproveSong(ctx context.Context, orderID, userID, selectedVersionID int64, feedback *string) error {
	if selectedVersionID <= 0 {
		return apperrors.ErrVersionRequired
	}

	o, err := s.getUserOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderStatusSongReview {
		return apperrors.ErrOrderStatusError.WithMessage("当前不在歌曲审阅阶段")
	}

	version, err := s.versionRepo.GetByID(ctx, selectedVersionID)
	if err != nil || version.OrderID != orderID {
		return apperrors.ErrVersionNotFound
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SongVersion{}).
			Where("order_id = ?", orderID).
			Update("selected", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.SongVersion{}).
			Where("id = ?", selectedVersionID).
			Update("selected", true).Error; err != nil {
			return err
		}

		if err := s.transition(tx, o, models.OrderStatusCompleted, nil); err != nil {
			return err
		}
		return tx.Create(&models.OrderRevision{
			OrderID:  orderID,
			Kind:     models.RevisionKindSong,
			Origin:   models.RevisionOriginCustomer,
			Type:     models.RevisionTypeSongApproved,
			Feedback: feedback,
			AuthorID: &userID,
		}).Error
	}); err != nil {
		return err
	}

	s.sendCompletionNotice(ctx, o)
	return nil
}

// sendCompletionNotice 发送订单完成邮件
// 只记录失败，不影响主流程
func (s *WorkflowService) sendCompletionNotice(ctx context.Context, o *models.Order) {
	if s.mail == nil || s.userRepo == nil {
		return
	}
	user, err := s.userRepo.GetByID(ctx, o.UserID)
	if err != nil {
		logger.Warn("completion mail skipped, user not found", logger.OrderID(o.ID))
		return
	}

	subject := fmt.Sprintf("订单 %s 已完成", o.OrderNo)
	body := fmt.Sprintf("您的定制歌曲订单 %s 已完成，最终版本可在订单详情中下载。", o.OrderNo)
	if err := s.mail.Send(ctx, user.Email, subject, body); err != nil {
		logger.Warn("completion mail failed",
			logger.OrderID(o.ID),
			logger.Err(err),
		)
	}
}

// RequestSongChanges 客户要求修改歌曲
func (s *WorkflowService) RequestSongChanges(ctx context.Context, orderID, userID int64, feedback string) error {
	if feedback == "" {
		return apperrors.ErrFeedbackRequired
	}

	o, err := s.getUserOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderStatusSongReview {
		return apperrors.ErrOrderStatusError.WithMessage("当前不在歌曲审阅阶段")
	}
	if !s.tracker.CanRevise(o, models.RevisionKindSong) {
		return apperrors.ErrRevisionLimitReached
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		extra := map[string]interface{}{
			"song_revisions": gorm.Expr("song_revisions + 1"),
		}
		if err := s.transition(tx, o, models.OrderStatusSongProduction, extra); err != nil {
			return err
		}
		return tx.Create(&models.OrderRevision{
			OrderID:  orderID,
			Kind:     models.RevisionKindSong,
			Origin:   models.RevisionOriginCustomer,
			Type:     models.RevisionTypeSongChangeRequest,
			Feedback: &feedback,
			AuthorID: &userID,
		}).Error
	})
	if err != nil {
		return err
	}

	metrics.GetMetrics().RecordRevisionRequest(models.RevisionKindSong)
	return nil
}

// UploadLyrics 员工填写或更新歌词
func (s *WorkflowService) UploadLyrics(ctx context.Context, orderID, adminID int64, lyrics string) error {
	if lyrics == "" {
		return apperrors.ErrInvalidParams.WithMessage("歌词不能为空")
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == models.OrderStatusCompleted {
		return apperrors.ErrOrderStatusError.WithMessage("订单已完成")
	}

	if err := s.orderRepo.ApplyPatch(ctx, orderID, repository.OrderPatch{Lyrics: &lyrics}); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("lyrics updated",
		logger.OrderID(orderID),
		logger.AdminID(adminID),
	)
	return nil
}

// UploadSongVersion 员工上传新的歌曲版本
// 首个版本不受限，后续版本受修改上限约束
func (s *WorkflowService) UploadSongVersion(ctx context.Context, orderID, adminID int64, filePath string) (*models.SongVersion, error) {
	if filePath == "" {
		return nil, apperrors.ErrInvalidParams.WithMessage("文件路径不能为空")
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.OrderStatusCompleted {
		return nil, apperrors.ErrOrderStatusError.WithMessage("订单已完成")
	}

	existing, err := s.versionRepo.CountByOrder(ctx, orderID)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if existing > 0 && !s.tracker.CanRevise(o, models.RevisionKindSong) {
		return nil, apperrors.ErrRevisionLimitReached
	}

	versionNo, err := s.versionRepo.NextVersionNo(ctx, orderID)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	version := &models.SongVersion{
		OrderID:    orderID,
		VersionNo:  versionNo,
		FilePath:   filePath,
		UploaderID: &adminID,
	}
	if err := s.versionRepo.Create(ctx, version); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("song version uploaded",
		logger.OrderID(orderID),
		logger.AdminID(adminID),
		logger.Int("version_no", versionNo),
	)
	return version, nil
}

// PatchOrder 员工更新订单管理字段
func (s *WorkflowService) PatchOrder(ctx context.Context, orderID, adminID int64, patch repository.OrderPatch) error {
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return err
	}
	if err := s.orderRepo.ApplyPatch(ctx, orderID, patch); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("order patched",
		logger.OrderID(orderID),
		logger.AdminID(adminID),
	)
	return nil
}

func (s *WorkflowService) getOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return o, nil
}

func (s *WorkflowService) getUserOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperrors.ErrPermissionDenied
	}
	return o, nil
}
