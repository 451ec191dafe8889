package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/gateway"
	"coinbank/internal/model"
	"coinbank/internal/repository"
	"coinbank/pkg/idgen"
)

// 网关回调里表示支付成功的状态值
const gatewayStatusPaid = "PAID"

// 网关的终态失败状态，只有这些状态才把流水终结为 FAILED。
// 其余状态（WAITING_PAYMENT 等）是中间态，网关后续还会推送终态回调，
// 不能提前终结，否则之后的 PAID 回调会撞上终态屏障导致用户资金不入账
var gatewayFailureStatuses = map[string]bool{
	"CANCELED": true,
	"EXPIRED":  true,
	"REFUSED":  true,
	"FAILED":   true,
}

// DepositService 充值服务
//
// 两阶段模型：发起充值时调用网关生成 PIX 收款码并落一条 PENDING 流水，
// 网关回调确认支付后才把流水终结为 COMPLETED 并给余额入账。
// 回调按网关交易号幂等，重复回调不会重复入账。
type DepositService struct {
	store        repository.Store
	pix          gateway.PixClient
	referral     *ReferralService
	cfg          *config.BusinessConfig
	depositTopic string
}

func NewDepositService(store repository.Store, pix gateway.PixClient, referral *ReferralService, cfg *config.BusinessConfig, depositTopic string) *DepositService {
	return &DepositService{
		store:        store,
		pix:          pix,
		referral:     referral,
		cfg:          cfg,
		depositTopic: depositTopic,
	}
}

// PixDeposit 发起充值的返回结果
type PixDeposit struct {
	TransactionNo string `json:"transaction_no"`
	ExternalID    string `json:"external_id"`
	QRCode        string `json:"qr_code"`
	Amount        int64  `json:"amount"`
}

// CreatePixDeposit 发起 PIX 充值
// 先请求网关生成收款码，成功后才落 PENDING 流水，网关失败不留垃圾数据
func (s *DepositService) CreatePixDeposit(ctx context.Context, userID int64, amount int64, payerEmail string) (*PixDeposit, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.store.Accounts().GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	depositNo := idgen.GenerateDepositNo()
	charge, err := s.pix.GeneratePixCharge(ctx, amount, payerEmail, depositNo)
	if err != nil {
		return nil, fmt.Errorf("生成PIX收款码失败: %w", err)
	}

	trans := &model.Transaction{
		TransactionNo: depositNo,
		UserID:        userID,
		Type:          model.TransactionTypeDeposit,
		Amount:        amount,
		Status:        model.TransactionStatusPending,
		ExternalID:    charge.TransactionID,
		Description:   "PIX充值",
	}
	if err := s.store.Transactions().Create(ctx, trans); err != nil {
		return nil, err
	}

	log.Printf("[DepositService] PIX充值发起: transactionNo=%s userID=%d amount=%d externalID=%s",
		depositNo, userID, amount, charge.TransactionID)
	return &PixDeposit{
		TransactionNo: depositNo,
		ExternalID:    charge.TransactionID,
		QRCode:        charge.QRCode,
		Amount:        amount,
	}, nil
}

// DepositStatus 充值状态查询结果
type DepositStatus struct {
	TransactionNo string    `json:"transaction_no"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// GetStatus 按充值单号查询支付状态，供前端在回调到达前轮询
func (s *DepositService) GetStatus(ctx context.Context, transactionNo string) (*DepositStatus, error) {
	trans, err := s.store.Transactions().GetByTransactionNo(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	return &DepositStatus{
		TransactionNo: trans.TransactionNo,
		Status:        trans.Status,
		Amount:        trans.Amount,
		CreatedAt:     trans.CreatedAt,
	}, nil
}

// HandleCallback 处理网关支付回调
//
// 幂等性：
//   - 流水已 COMPLETED 时直接返回成功（重复回调）
//   - Finalize 的条件更新只允许一次 PENDING -> 终态迁移，并发回调
//     只有一个能完成入账
//   - 中间态回调直接忽略，流水保持 PENDING 等待终态回调
//
// 入账与发件箱消息同事务，到账事件保证投递。佣金结算在入账事务
// 提交后单独执行，结算失败只记日志不影响回调结果，后续充值回调
// 会再次触发结算（首充资格未消耗）。
func (s *DepositService) HandleCallback(ctx context.Context, externalID string, gatewayStatus string) error {
	trans, err := s.store.Transactions().GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if trans == nil {
		return repository.ErrTransactionNotFound
	}
	if trans.Status == model.TransactionStatusCompleted {
		log.Printf("[DepositService] 重复回调忽略: externalID=%s", externalID)
		return nil
	}

	if gatewayStatus != gatewayStatusPaid {
		if !gatewayFailureStatuses[gatewayStatus] {
			log.Printf("[DepositService] 中间态回调忽略: externalID=%s status=%s", externalID, gatewayStatus)
			return nil
		}
		err := s.store.Transactions().Finalize(ctx, trans.TransactionNo, model.TransactionStatusFailed)
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return nil
		}
		return err
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Transactions().Finalize(ctx, trans.TransactionNo, model.TransactionStatusCompleted); err != nil {
			return err
		}
		if err := tx.Accounts().Increase(ctx, trans.UserID, model.BucketBalance, trans.Amount); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]interface{}{
			"transaction_no": trans.TransactionNo,
			"external_id":    externalID,
			"user_id":        trans.UserID,
			"amount":         trans.Amount,
			"status":         model.TransactionStatusCompleted,
		})
		if err != nil {
			return err
		}
		return tx.Outbox().Create(ctx, &model.OutboxMessage{
			MessageKey: trans.TransactionNo,
			Topic:      s.depositTopic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			// 并发回调竞争失败，入账已由另一个请求完成
			return nil
		}
		return err
	}

	log.Printf("[DepositService] 充值到账: transactionNo=%s userID=%d amount=%d",
		trans.TransactionNo, trans.UserID, trans.Amount)

	// 佣金结算独立于入账事务，失败不回滚已到账的资金
	if err := s.referral.ProcessFirstDepositCommission(ctx, trans.UserID, trans.Amount); err != nil {
		log.Printf("[DepositService] 佣金结算失败: userID=%d err=%v", trans.UserID, err)
	}
	return nil
}
