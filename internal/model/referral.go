package model

import (
	"time"
)

// Referral 邀请关系主表，每个邀请人一条
type Referral struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"uniqueIndex;not null" json:"user_id"`                    // 邀请人用户ID
	ReferralCode   string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code"` // 邀请码
	TotalEarnings  int64     `gorm:"not null;default:0" json:"total_earnings"`               // 累计佣金（单位：分）
	TotalReferrals int       `gorm:"not null;default:0" json:"total_referrals"`              // 累计邀请人数
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Referral) TableName() string {
	return "referral"
}

// ReferredUser 被邀请用户表
//
// user_id 上的唯一索引有两个作用：
// 1. 一个用户只能被邀请一次
// 2. 首充回调按被邀请人ID反查邀请关系时走索引，佣金幂等判断是一次单行查询
type ReferredUser struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferralID       int64      `gorm:"index;not null" json:"referral_id"`           // 所属邀请关系
	UserID           int64      `gorm:"uniqueIndex;not null" json:"user_id"`         // 被邀请人用户ID
	HasDeposited     bool       `gorm:"not null;default:false" json:"has_deposited"` // 是否已完成首充
	CommissionPaid   bool       `gorm:"not null;default:false" json:"commission_paid"` // 佣金是否已发放（至多一次）
	FirstDepositAt   *time.Time `json:"first_deposit_at"`
	CommissionPaidAt *time.Time `json:"commission_paid_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ReferredUser) TableName() string {
	return "referral_user"
}
