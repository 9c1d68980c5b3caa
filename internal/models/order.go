package models

import (
	"time"
)

// Order 定制歌曲订单模型
// status 与 workflow_stage 必须始终一致，且只允许通过工作流服务一起更新
type Order struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo              string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID               int64      `gorm:"index;not null" json:"user_id"`
	PackageName          string     `gorm:"type:varchar(100);not null" json:"package_name"`
	Status               string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	WorkflowStage        int        `gorm:"type:smallint;not null;default:1" json:"workflow_stage"`
	TotalAmount          float64    `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	PromoDiscountAmount  float64    `gorm:"type:decimal(12,2);not null;default:0" json:"promo_discount_amount"`
	FinalAmount          float64    `gorm:"type:decimal(12,2);not null" json:"final_amount"`
	UsedPromoCode        *string    `gorm:"type:varchar(50)" json:"used_promo_code,omitempty"`
	ReferringAffiliateID *int64     `gorm:"index" json:"referring_affiliate_id,omitempty"`
	Lyrics               *string    `gorm:"type:text" json:"lyrics,omitempty"`
	LyricsApproved       bool       `gorm:"not null;default:false" json:"lyrics_approved"`
	LyricsRevisions      int        `gorm:"not null;default:0" json:"lyrics_revisions"`
	SongRevisions        int        `gorm:"not null;default:0" json:"song_revisions"`
	AllowMoreRevisions   bool       `gorm:"not null;default:false" json:"allow_more_revisions"`
	AssigneeID           *int64     `gorm:"index" json:"assignee_id,omitempty"`
	InternalNotes        *string    `gorm:"type:text" json:"internal_notes,omitempty"`
	PaymentStatus        int8       `gorm:"type:smallint;not null;default:0" json:"payment_status"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	User      *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Affiliate *Affiliate      `gorm:"foreignKey:ReferringAffiliateID" json:"affiliate,omitempty"`
	Assignee  *Admin          `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Revisions []OrderRevision `gorm:"foreignKey:OrderID" json:"revisions,omitempty"`
	Versions  []SongVersion   `gorm:"foreignKey:OrderID" json:"versions,omitempty"`
	Addons    []OrderAddon    `gorm:"foreignKey:OrderID" json:"addons,omitempty"`
	Payments  []Payment       `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// OrderStatus 订单状态（文本）
const (
	OrderStatusPending        = "pending"         // 待制作
	OrderStatusInProduction   = "in_production"   // 制作中
	OrderStatusLyricsReview   = "lyrics_review"   // 歌词审核
	OrderStatusSongProduction = "song_production" // 歌曲制作
	OrderStatusSongReview     = "song_review"     // 歌曲审核
	OrderStatusCompleted      = "completed"       // 已完成
)

// WorkflowStage 工作流阶段（数字，与文本状态一一对应）
const (
	StagePending        = 1
	StageInProduction   = 2
	StageLyricsReview   = 3
	StageSongProduction = 4
	StageSongReview     = 5
	StageCompleted      = 6
)

// statusStages 状态到阶段的映射
var statusStages = map[string]int{
	OrderStatusPending:        StagePending,
	OrderStatusInProduction:   StageInProduction,
	OrderStatusLyricsReview:   StageLyricsReview,
	OrderStatusSongProduction: StageSongProduction,
	OrderStatusSongReview:     StageSongReview,
	OrderStatusCompleted:      StageCompleted,
}

// StageForStatus 返回状态对应的工作流阶段
// 未知状态返回 0
func StageForStatus(status string) int {
	return statusStages[status]
}

// IsValidOrderStatus 判断是否为合法订单状态
func IsValidOrderStatus(status string) bool {
	_, ok := statusStages[status]
	return ok
}

// OrderPaymentStatus 订单支付状态
const (
	OrderPaymentUnpaid   int8 = 0 // 未支付
	OrderPaymentPaid     int8 = 1 // 已支付
	OrderPaymentRefunded int8 = 2 // 已退款
)

// OrderRevision 订单修改记录（只追加，不修改）
type OrderRevision struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	Kind      string    `gorm:"type:varchar(10);not null" json:"kind"`
	Origin    string    `gorm:"type:varchar(10);not null" json:"origin"`
	Type      string    `gorm:"type:varchar(30);not null" json:"type"`
	Feedback  *string   `gorm:"type:text" json:"feedback,omitempty"`
	AuthorID  *int64    `json:"author_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 表名
func (OrderRevision) TableName() string {
	return "order_revisions"
}

// RevisionKind 修改类别（封闭枚举，创建时必填）
const (
	RevisionKindLyrics = "lyrics" // 歌词
	RevisionKindSong   = "song"   // 歌曲
)

// RevisionOrigin 修改来源
const (
	RevisionOriginCustomer = "customer" // 客户
	RevisionOriginAdmin    = "admin"    // 运营
)

// RevisionType 修改记录类型
const (
	RevisionTypeLyricsApproved      = "lyrics_approved"       // 歌词通过
	RevisionTypeLyricsChangeRequest = "lyrics_change_request" // 歌词改稿请求
	RevisionTypeSongApproved        = "song_approved"         // 歌曲通过
	RevisionTypeSongChangeRequest   = "song_change_request"   // 歌曲改稿请求
	RevisionTypeNote                = "note"                  // 备注
)

// IsValidRevisionKind 判断是否为合法修改类别
func IsValidRevisionKind(kind string) bool {
	return kind == RevisionKindLyrics || kind == RevisionKindSong
}

// SongVersion 歌曲版本
// 同一订单在任意时刻最多只有一个版本被选中
type SongVersion struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64     `gorm:"index;not null" json:"order_id"`
	VersionNo  int       `gorm:"not null" json:"version_no"`
	FilePath   string    `gorm:"type:varchar(255);not null" json:"file_path"`
	Selected   bool      `gorm:"not null;default:false" json:"selected"`
	UploaderID *int64    `json:"uploader_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 表名
func (SongVersion) TableName() string {
	return "song_versions"
}

// OrderAddon 订单附加项
type OrderAddon struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Price     float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 表名
func (OrderAddon) TableName() string {
	return "order_addons"
}
