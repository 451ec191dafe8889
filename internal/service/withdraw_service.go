package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coinbank/internal/config"
	"coinbank/internal/infrastructure/lock"
	"coinbank/internal/model"
	"coinbank/internal/repository"
	"coinbank/pkg/idgen"
)

// WithdrawService 提现服务
//
// 状态机：PENDING -> COMPLETED（审批通过）/ REJECTED（驳回或超时）
//
// 资金预留模型：创建申请时立即从余额扣款。审批通过只改状态不动钱；
// 驳回和超时走同一条退款路径，refunded 标记保证退款至多一次。
//
// 超时不依赖定时器：EffectiveStatus 把"PENDING 且已过期"视为 REJECTED，
// 每个写操作执行前先做超时检查，后台扫描任务兜底落库。
type WithdrawService struct {
	store         repository.Store
	locker        lock.Locker
	cfg           *config.BusinessConfig
	withdrawTopic string

	// 可注入时钟，测试时控制超时判定
	now func() time.Time
}

func NewWithdrawService(store repository.Store, locker lock.Locker, cfg *config.BusinessConfig, withdrawTopic string) *WithdrawService {
	return &WithdrawService{
		store:         store,
		locker:        locker,
		cfg:           cfg,
		withdrawTopic: withdrawTopic,
		now:           time.Now,
	}
}

// Create 创建提现申请，同时从指定余额桶预留资金
// 余额不足返回 repository.ErrBalanceNotEnough，此时不会产生任何变更
func (s *WithdrawService) Create(ctx context.Context, userID int64, bucket string, amount int64) (*model.WithdrawRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !model.ValidBucket(bucket) {
		return nil, ErrInvalidBucket
	}

	var request *model.WithdrawRequest
	err := s.locker.WithLock(ctx, lock.BalanceKey(userID), func() error {
		// 版本号 CAS 是第二道防线，锁失效导致的并发写在这里重试
		return retryOnConflict(s.cfg.BalanceRetryCount, func() error {
			return s.store.Transaction(ctx, func(tx repository.Store) error {
				account, err := tx.Accounts().GetByUserID(ctx, userID)
				if err != nil {
					return err
				}
				if err := tx.Accounts().Deduct(ctx, userID, bucket, amount, account.Version); err != nil {
					return err
				}

				now := s.now()
				req := &model.WithdrawRequest{
					RequestNo:  idgen.GenerateWithdrawNo(),
					UserID:     userID,
					Amount:     amount,
					BucketType: bucket,
					Status:     model.WithdrawStatusPending,
					ExpiredAt:  now.Add(time.Duration(s.cfg.WithdrawExpireMinutes) * time.Minute),
				}
				if err := tx.Withdrawals().Create(ctx, req); err != nil {
					return err
				}

				// 提现流水创建即 PENDING，终态跟随申请的处理结果
				trans := &model.Transaction{
					TransactionNo: idgen.GenerateTransactionNo(),
					UserID:        userID,
					Type:          model.TransactionTypeWithdraw,
					Amount:        amount,
					Status:        model.TransactionStatusPending,
					ExternalID:    req.RequestNo,
					Description:   fmt.Sprintf("提现申请 %s", req.RequestNo),
				}
				if err := tx.Transactions().Create(ctx, trans); err != nil {
					return err
				}

				request = req
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WithdrawService] 提现申请创建: requestNo=%s userID=%d bucket=%s amount=%d",
		request.RequestNo, userID, bucket, amount)
	return request, nil
}

// Complete 管理员审批通过
//
// 申请已超时的情况：先把系统自动拒绝（含退款）落库提交，再返回
// ErrRequestExpired。调用方收到该错误时退款已经生效。
// 申请已处于终态时返回 repository.ErrAlreadyProcessed。
func (s *WithdrawService) Complete(ctx context.Context, requestNo string, actor string) error {
	req, err := s.store.Withdrawals().GetByRequestNo(ctx, requestNo)
	if err != nil {
		return err
	}

	now := s.now()
	if req.ExpiredBy(now) {
		if err := s.rejectAndRefund(ctx, requestNo, model.WithdrawProcessorSystem, now); err != nil &&
			!errors.Is(err, repository.ErrAlreadyProcessed) {
			return err
		}
		return ErrRequestExpired
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		// 行锁重读，避免基于事务外的过期快照决策
		locked, err := tx.Withdrawals().GetByRequestNoForUpdate(ctx, requestNo)
		if err != nil {
			return err
		}
		if !model.CanWithdrawTransitionTo(locked.Status, model.WithdrawStatusCompleted) {
			return repository.ErrAlreadyProcessed
		}
		if err := tx.Withdrawals().MarkCompleted(ctx, requestNo, actor, now); err != nil {
			return err
		}
		trans, err := tx.Transactions().GetByExternalID(ctx, requestNo)
		if err != nil {
			return err
		}
		if trans != nil {
			if err := tx.Transactions().Finalize(ctx, trans.TransactionNo, model.TransactionStatusCompleted); err != nil {
				return err
			}
		}
		return s.enqueueResult(ctx, tx, locked, model.WithdrawStatusCompleted)
	})
	if err != nil {
		return err
	}

	log.Printf("[WithdrawService] 提现审批通过: requestNo=%s by=%s", requestNo, actor)
	return nil
}

// Reject 管理员驳回，退款回原余额桶
// 申请已超时的，系统自动拒绝先行落库，同样保证退款发生
func (s *WithdrawService) Reject(ctx context.Context, requestNo string, actor string) error {
	req, err := s.store.Withdrawals().GetByRequestNo(ctx, requestNo)
	if err != nil {
		return err
	}

	now := s.now()
	if req.ExpiredBy(now) {
		if err := s.rejectAndRefund(ctx, requestNo, model.WithdrawProcessorSystem, now); err != nil &&
			!errors.Is(err, repository.ErrAlreadyProcessed) {
			return err
		}
		return ErrRequestExpired
	}

	if err := s.rejectAndRefund(ctx, requestNo, actor, now); err != nil {
		return err
	}
	log.Printf("[WithdrawService] 提现驳回: requestNo=%s by=%s", requestNo, actor)
	return nil
}

// rejectAndRefund 驳回并退款，驳回的唯一入口
//
// 申请在事务内行锁重读，退款金额和目标桶以锁定行为准。
// MarkRejected 在单条语句内完成 status 与 refunded 的检查和写入，
// 管理员驳回和超时扫描并发执行时只有一方能成功，退款不会重复。
func (s *WithdrawService) rejectAndRefund(ctx context.Context, requestNo string, actor string, now time.Time) error {
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		req, err := tx.Withdrawals().GetByRequestNoForUpdate(ctx, requestNo)
		if err != nil {
			return err
		}
		if !model.CanWithdrawTransitionTo(req.Status, model.WithdrawStatusRejected) {
			return repository.ErrAlreadyProcessed
		}
		if err := tx.Withdrawals().MarkRejected(ctx, req.RequestNo, actor, now); err != nil {
			return err
		}
		if err := tx.Accounts().Increase(ctx, req.UserID, req.BucketType, req.Amount); err != nil {
			return err
		}

		trans, err := tx.Transactions().GetByExternalID(ctx, req.RequestNo)
		if err != nil {
			return err
		}
		if trans != nil {
			if err := tx.Transactions().Finalize(ctx, trans.TransactionNo, model.TransactionStatusFailed); err != nil {
				return err
			}
		}

		refund := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        req.UserID,
			Type:          model.TransactionTypeWithdrawRefund,
			Amount:        req.Amount,
			Status:        model.TransactionStatusCompleted,
			ExternalID:    req.RequestNo,
			Description:   fmt.Sprintf("提现 %s 被拒绝，退款至 %s", req.RequestNo, req.BucketType),
		}
		if err := tx.Transactions().Create(ctx, refund); err != nil {
			return err
		}

		return s.enqueueResult(ctx, tx, req, model.WithdrawStatusRejected)
	})
}

// enqueueResult 处理结果写入发件箱，与业务变更同事务
func (s *WithdrawService) enqueueResult(ctx context.Context, tx repository.Store, req *model.WithdrawRequest, status string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"request_no": req.RequestNo,
		"user_id":    req.UserID,
		"amount":     req.Amount,
		"bucket":     req.BucketType,
		"status":     status,
	})
	if err != nil {
		return err
	}
	return tx.Outbox().Create(ctx, &model.OutboxMessage{
		MessageKey: req.RequestNo,
		Topic:      s.withdrawTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// ExpireDueRequests 扫描并落库所有已超时的 PENDING 申请，返回处理数量
// 供后台任务周期调用，与管理员操作竞争时以先提交者为准
func (s *WithdrawService) ExpireDueRequests(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.store.Withdrawals().GetExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, req := range expired {
		err := s.rejectAndRefund(ctx, req.RequestNo, model.WithdrawProcessorSystem, now)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyProcessed) {
				continue
			}
			log.Printf("[WithdrawService] 超时处理失败: requestNo=%s err=%v", req.RequestNo, err)
			continue
		}
		count++
		log.Printf("[WithdrawService] 提现超时自动拒绝: requestNo=%s userID=%d amount=%d",
			req.RequestNo, req.UserID, req.Amount)
	}
	return count, nil
}

// PurgeProcessed 清理保留期之前已退款的被拒申请，返回删除行数
func (s *WithdrawService) PurgeProcessed(ctx context.Context, limit int) (int64, error) {
	before := s.now().Add(-time.Duration(s.cfg.WithdrawRetentionHours) * time.Hour)
	return s.store.Withdrawals().PurgeRefunded(ctx, before, limit)
}

// Get 查询单个申请，状态按当前时刻折算（已超时未落库的显示为 REJECTED）
func (s *WithdrawService) Get(ctx context.Context, requestNo string) (*model.WithdrawRequest, error) {
	req, err := s.store.Withdrawals().GetByRequestNo(ctx, requestNo)
	if err != nil {
		return nil, err
	}
	req.Status = req.EffectiveStatus(s.now())
	return req, nil
}

// ListByUser 查询用户的提现申请，状态同样按当前时刻折算
func (s *WithdrawService) ListByUser(ctx context.Context, userID int64) ([]*model.WithdrawRequest, error) {
	list, err := s.store.Withdrawals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, req := range list {
		req.Status = req.EffectiveStatus(now)
	}
	return list, nil
}

// ListByStatus 管理后台按状态分页查询
func (s *WithdrawService) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.WithdrawRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.Withdrawals().ListByStatus(ctx, status, page, pageSize)
}
