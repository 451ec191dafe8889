package model

import (
	"time"
)

// CryptoHolding 加密货币持仓表，每个用户每种币一条
type CryptoHolding struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"uniqueIndex:uk_user_symbol;not null" json:"user_id"`
	Symbol        string    `gorm:"type:varchar(16);uniqueIndex:uk_user_symbol;not null" json:"symbol"`
	Amount        float64   `gorm:"not null;default:0" json:"amount"`         // 持仓数量（币本位）
	PurchasePrice int64     `gorm:"not null;default:0" json:"purchase_price"` // 平均买入价（单位：分）
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CryptoHolding) TableName() string {
	return "crypto_holding"
}

// DustThreshold 卖出后小于该数量的持仓直接清掉，避免浮点残渣
const DustThreshold = 0.00000001
