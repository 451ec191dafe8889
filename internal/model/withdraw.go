package model

import (
	"time"
)

const (
	WithdrawStatusPending   = "PENDING"
	WithdrawStatusCompleted = "COMPLETED"
	WithdrawStatusRejected  = "REJECTED"
)

// 系统自动拒绝（超时）时记录的处理人
const WithdrawProcessorSystem = "system"

var validWithdrawTransitions = map[string][]string{
	WithdrawStatusPending: {WithdrawStatusCompleted, WithdrawStatusRejected},
}

// CanWithdrawTransitionTo 校验提现状态迁移是否合法
// COMPLETED / REJECTED 都是终态，不允许再迁出
func CanWithdrawTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := validWithdrawTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// WithdrawRequest 提现申请表
//
// 【关键点】资金预留：创建申请的同时从对应余额桶扣款，
// 申请只要存在，就说明资金已经被冻结，审批通过时不再发生余额变动。
// 被拒绝（包括超时自动拒绝）时必须退款，refunded 字段保证退款只发生一次。
type WithdrawRequest struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"` // 申请单号
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	Amount      int64      `gorm:"not null" json:"amount"`                          // 提现金额（单位：分），创建时已从余额扣除
	BucketType  string     `gorm:"type:varchar(20);not null" json:"bucket_type"`    // 提现来源：BALANCE / COMMISSION
	Status      string     `gorm:"type:varchar(20);index;not null" json:"status"`   // PENDING / COMPLETED / REJECTED
	ExpiredAt   time.Time  `gorm:"index;not null" json:"expired_at"`                // 超过该时间未处理则自动拒绝
	ProcessedAt *time.Time `json:"processed_at"`                                    // 处理时间
	ProcessedBy string     `gorm:"type:varchar(64)" json:"processed_by"`            // 处理人：管理员用户名或 system
	Refunded    bool       `gorm:"not null;default:false" json:"refunded"`          // 是否已退款（仅拒绝时为 true）
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawRequest) TableName() string {
	return "withdraw_request"
}

// ExpiredBy 判断申请在 now 时刻是否已超时
// 只有 PENDING 状态存在超时概念，终态申请永远返回 false
func (w *WithdrawRequest) ExpiredBy(now time.Time) bool {
	return w.Status == WithdrawStatusPending && now.After(w.ExpiredAt)
}

// EffectiveStatus 返回申请在 now 时刻的有效状态
//
// 【关键点】超时是存储状态 + 墙上时钟的纯函数，不依赖任何定时器：
// PENDING 且已过期的申请对外表现为 REJECTED，实际落库（退款 + 流水）
// 由下一次写操作或后台扫描任务完成。
func (w *WithdrawRequest) EffectiveStatus(now time.Time) string {
	if w.ExpiredBy(now) {
		return WithdrawStatusRejected
	}
	return w.Status
}
