package model

import (
	"time"
)

// 余额桶类型：可用余额 / 佣金余额
const (
	BucketBalance    = "BALANCE"
	BucketCommission = "COMMISSION"
)

// ValidBucket 校验桶类型是否合法
func ValidBucket(bucket string) bool {
	return bucket == BucketBalance || bucket == BucketCommission
}

// Account 用户账户表
// 记录用户的可用余额和佣金余额，是整个资金系统的核心数据
// 两个余额字段永远不允许为负，所有变更必须通过带条件的 UPDATE 完成
type Account struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64     `gorm:"uniqueIndex;not null" json:"user_id"`          // 用户ID，业务方传入
	Balance           int64     `gorm:"not null;default:0" json:"balance"`            // 可用余额（单位：分）
	CommissionBalance int64     `gorm:"not null;default:0" json:"commission_balance"` // 佣金余额（单位：分）
	Version           int       `gorm:"not null;default:0" json:"version"`            // 乐观锁版本号
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// BucketBalance 返回指定桶的当前余额
func (a *Account) BucketBalance(bucket string) int64 {
	if bucket == BucketCommission {
		return a.CommissionBalance
	}
	return a.Balance
}

// UpdateBucket 更新内存副本中指定桶的余额，不落库
func (a *Account) UpdateBucket(bucket string, value int64) {
	if bucket == BucketCommission {
		a.CommissionBalance = value
		return
	}
	a.Balance = value
}
