package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit        = "DEPOSIT"         // 充值（PIX入金）
	TransactionTypeWithdraw       = "WITHDRAW"        // 提现
	TransactionTypeCryptoBuy      = "CRYPTO_BUY"      // 购买加密货币
	TransactionTypeCryptoSell     = "CRYPTO_SELL"     // 出售加密货币
	TransactionTypeReferralBonus  = "REFERRAL_BONUS"  // 邀请佣金
	TransactionTypeAdminAdjust    = "ADMIN_ADJUST"    // 管理员调账
	TransactionTypeWithdrawRefund = "WITHDRAW_REFUND" // 提现被拒后的退款
)

// 流水状态
const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction 账户流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 金额永远记录为非负数，进出方向由 Type 决定
// 3. 状态只允许发生一次 PENDING -> COMPLETED/FAILED 的迁移
// 4. 网关发起的充值通过 ExternalID 关联外部交易号，用于回调幂等
type Transaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                       // 交易类型
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（非负，单位：分）
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`               // 流水状态
	ExternalID    string    `gorm:"type:varchar(64);index" json:"external_id,omitempty"`         // 外部交易号（支付网关）
	Description   string    `gorm:"type:varchar(256)" json:"description"`                        // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "account_transaction"
}
