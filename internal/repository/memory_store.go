package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"coinbank/internal/model"
)

// 内存实现中模拟唯一索引冲突
var errDuplicateKey = errors.New("唯一索引冲突")

// MemoryStore 纯内存仓储实现
// 条件更新的语义和 MySQL 实现逐条对齐（CAS 扣减、状态守卫、幂等屏障），
// 用于在没有数据库的环境下测试服务层的资金一致性
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	nextID        int64
	accounts      map[int64]*model.Account         // key: user_id
	transactions  []*model.Transaction             // 追加顺序即创建顺序
	withdrawals   map[string]*model.WithdrawRequest // key: request_no
	referrals     map[int64]*model.Referral        // key: referral id
	referredUsers map[int64]*model.ReferredUser    // key: 被邀请人 user_id（对应唯一索引）
	holdings      map[int64]*model.CryptoHolding   // key: holding id
	outbox        map[int64]*model.OutboxMessage   // key: message id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			accounts:      make(map[int64]*model.Account),
			withdrawals:   make(map[string]*model.WithdrawRequest),
			referrals:     make(map[int64]*model.Referral),
			referredUsers: make(map[int64]*model.ReferredUser),
			holdings:      make(map[int64]*model.CryptoHolding),
			outbox:        make(map[int64]*model.OutboxMessage),
		},
	}
}

func (s *MemoryStore) Accounts() AccountRepo         { return &memAccountRepo{s} }
func (s *MemoryStore) Transactions() TransactionRepo { return &memTransactionRepo{s} }
func (s *MemoryStore) Withdrawals() WithdrawRepo     { return &memWithdrawRepo{s} }
func (s *MemoryStore) Referrals() ReferralRepo       { return &memReferralRepo{s} }
func (s *MemoryStore) Holdings() HoldingRepo         { return &memHoldingRepo{s} }
func (s *MemoryStore) Outbox() OutboxRepo            { return &memOutboxRepo{s} }

// Transaction 用互斥锁串行化事务，出错时整体回退到事务前的快照
func (s *MemoryStore) Transaction(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.data.clone()
	txStore := &MemoryStore{data: s.data, inTx: true}
	if err := fn(txStore); err != nil {
		*s.data = *backup
		return err
	}
	return nil
}

// lock 事务内的操作已持有锁，直接放行
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) nextID() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:        d.nextID,
		accounts:      make(map[int64]*model.Account, len(d.accounts)),
		transactions:  make([]*model.Transaction, 0, len(d.transactions)),
		withdrawals:   make(map[string]*model.WithdrawRequest, len(d.withdrawals)),
		referrals:     make(map[int64]*model.Referral, len(d.referrals)),
		referredUsers: make(map[int64]*model.ReferredUser, len(d.referredUsers)),
		holdings:      make(map[int64]*model.CryptoHolding, len(d.holdings)),
		outbox:        make(map[int64]*model.OutboxMessage, len(d.outbox)),
	}
	for k, v := range d.accounts {
		cp := *v
		c.accounts[k] = &cp
	}
	for _, v := range d.transactions {
		cp := *v
		c.transactions = append(c.transactions, &cp)
	}
	for k, v := range d.withdrawals {
		cp := *v
		c.withdrawals[k] = &cp
	}
	for k, v := range d.referrals {
		cp := *v
		c.referrals[k] = &cp
	}
	for k, v := range d.referredUsers {
		cp := *v
		c.referredUsers[k] = &cp
	}
	for k, v := range d.holdings {
		cp := *v
		c.holdings[k] = &cp
	}
	for k, v := range d.outbox {
		cp := *v
		c.outbox[k] = &cp
	}
	return c
}

// ============================================================
// 账户
// ============================================================

type memAccountRepo struct {
	s *MemoryStore
}

func (r *memAccountRepo) Create(ctx context.Context, account *model.Account) error {
	defer r.s.lock()()
	account.ID = r.s.nextID()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	cp := *account
	r.s.data.accounts[account.UserID] = &cp
	return nil
}

func (r *memAccountRepo) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	defer r.s.lock()()
	return r.getLocked(userID)
}

func (r *memAccountRepo) getLocked(userID int64) (*model.Account, error) {
	account, ok := r.s.data.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *memAccountRepo) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *memAccountRepo) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	defer r.s.lock()()
	if account, ok := r.s.data.accounts[userID]; ok {
		cp := *account
		return &cp, nil
	}
	account := &model.Account{
		ID:        r.s.nextID(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	r.s.data.accounts[userID] = account
	cp := *account
	return &cp, nil
}

func (r *memAccountRepo) Deduct(ctx context.Context, userID int64, bucket string, amount int64, version int) error {
	defer r.s.lock()()
	account, ok := r.s.data.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.BucketBalance(bucket) < amount {
		return ErrBalanceNotEnough
	}
	if account.Version != version {
		return ErrOptimisticLock
	}
	if bucket == model.BucketCommission {
		account.CommissionBalance -= amount
	} else {
		account.Balance -= amount
	}
	account.Version++
	return nil
}

func (r *memAccountRepo) Increase(ctx context.Context, userID int64, bucket string, amount int64) error {
	defer r.s.lock()()
	account, ok := r.s.data.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if bucket == model.BucketCommission {
		account.CommissionBalance += amount
	} else {
		account.Balance += amount
	}
	account.Version++
	return nil
}

func (r *memAccountRepo) SetBucket(ctx context.Context, userID int64, bucket string, target int64) error {
	defer r.s.lock()()
	account, ok := r.s.data.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if bucket == model.BucketCommission {
		account.CommissionBalance = target
	} else {
		account.Balance = target
	}
	account.Version++
	return nil
}

func (r *memAccountRepo) SumBalances(ctx context.Context) (int64, error) {
	defer r.s.lock()()
	var total int64
	for _, account := range r.s.data.accounts {
		total += account.Balance + account.CommissionBalance
	}
	return total, nil
}

func (r *memAccountRepo) CountAccounts(ctx context.Context) (int64, error) {
	defer r.s.lock()()
	return int64(len(r.s.data.accounts)), nil
}

// ============================================================
// 流水
// ============================================================

type memTransactionRepo struct {
	s *MemoryStore
}

func (r *memTransactionRepo) Create(ctx context.Context, trans *model.Transaction) error {
	defer r.s.lock()()
	trans.ID = r.s.nextID()
	if trans.CreatedAt.IsZero() {
		trans.CreatedAt = time.Now()
	}
	cp := *trans
	r.s.data.transactions = append(r.s.data.transactions, &cp)
	return nil
}

func (r *memTransactionRepo) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	defer r.s.lock()()
	for _, trans := range r.s.data.transactions {
		if trans.TransactionNo == transactionNo {
			cp := *trans
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (r *memTransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	defer r.s.lock()()
	for _, trans := range r.s.data.transactions {
		if trans.ExternalID == externalID {
			cp := *trans
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTransactionRepo) Finalize(ctx context.Context, transactionNo string, toStatus string) error {
	defer r.s.lock()()
	if toStatus != model.TransactionStatusCompleted && toStatus != model.TransactionStatusFailed {
		return ErrAlreadyFinalized
	}
	for _, trans := range r.s.data.transactions {
		if trans.TransactionNo == transactionNo {
			if trans.Status != model.TransactionStatusPending {
				return ErrAlreadyFinalized
			}
			trans.Status = toStatus
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (r *memTransactionRepo) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	defer r.s.lock()()
	var matched []*model.Transaction
	// 逆序遍历实现 created_at DESC
	for i := len(r.s.data.transactions) - 1; i >= 0; i-- {
		if r.s.data.transactions[i].UserID == userID {
			cp := *r.s.data.transactions[i]
			matched = append(matched, &cp)
		}
	}
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memTransactionRepo) SumCompletedByType(ctx context.Context, transType string) (int64, error) {
	defer r.s.lock()()
	var total int64
	for _, trans := range r.s.data.transactions {
		if trans.Type == transType && trans.Status == model.TransactionStatusCompleted {
			total += trans.Amount
		}
	}
	return total, nil
}

// ============================================================
// 提现申请
// ============================================================

type memWithdrawRepo struct {
	s *MemoryStore
}

func (r *memWithdrawRepo) Create(ctx context.Context, req *model.WithdrawRequest) error {
	defer r.s.lock()()
	req.ID = r.s.nextID()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	cp := *req
	r.s.data.withdrawals[req.RequestNo] = &cp
	return nil
}

func (r *memWithdrawRepo) GetByRequestNo(ctx context.Context, requestNo string) (*model.WithdrawRequest, error) {
	defer r.s.lock()()
	req, ok := r.s.data.withdrawals[requestNo]
	if !ok {
		return nil, ErrWithdrawNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memWithdrawRepo) GetByRequestNoForUpdate(ctx context.Context, requestNo string) (*model.WithdrawRequest, error) {
	return r.GetByRequestNo(ctx, requestNo)
}

func (r *memWithdrawRepo) MarkCompleted(ctx context.Context, requestNo string, actor string, processedAt time.Time) error {
	defer r.s.lock()()
	req, ok := r.s.data.withdrawals[requestNo]
	if !ok {
		return ErrWithdrawNotFound
	}
	if req.Status != model.WithdrawStatusPending {
		return ErrAlreadyProcessed
	}
	req.Status = model.WithdrawStatusCompleted
	req.ProcessedAt = &processedAt
	req.ProcessedBy = actor
	return nil
}

func (r *memWithdrawRepo) MarkRejected(ctx context.Context, requestNo string, actor string, processedAt time.Time) error {
	defer r.s.lock()()
	req, ok := r.s.data.withdrawals[requestNo]
	if !ok {
		return ErrWithdrawNotFound
	}
	if req.Status != model.WithdrawStatusPending || req.Refunded {
		return ErrAlreadyProcessed
	}
	req.Status = model.WithdrawStatusRejected
	req.Refunded = true
	req.ProcessedAt = &processedAt
	req.ProcessedBy = actor
	return nil
}

func (r *memWithdrawRepo) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.WithdrawRequest, error) {
	defer r.s.lock()()
	var requests []*model.WithdrawRequest
	for _, req := range r.s.data.withdrawals {
		if req.Status == model.WithdrawStatusPending && req.ExpiredAt.Before(now) {
			cp := *req
			requests = append(requests, &cp)
			if len(requests) >= limit {
				break
			}
		}
	}
	return requests, nil
}

func (r *memWithdrawRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.WithdrawRequest, error) {
	defer r.s.lock()()
	var requests []*model.WithdrawRequest
	for _, req := range r.s.data.withdrawals {
		if req.UserID == userID {
			cp := *req
			requests = append(requests, &cp)
		}
	}
	sortWithdrawalsDesc(requests)
	return requests, nil
}

func (r *memWithdrawRepo) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.WithdrawRequest, int64, error) {
	defer r.s.lock()()
	var matched []*model.WithdrawRequest
	for _, req := range r.s.data.withdrawals {
		if req.Status == status {
			cp := *req
			matched = append(matched, &cp)
		}
	}
	sortWithdrawalsDesc(matched)
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memWithdrawRepo) PurgeRefunded(ctx context.Context, before time.Time, limit int) (int64, error) {
	defer r.s.lock()()
	var purged int64
	for no, req := range r.s.data.withdrawals {
		if purged >= int64(limit) {
			break
		}
		if req.Status == model.WithdrawStatusRejected && req.Refunded &&
			req.ProcessedAt != nil && req.ProcessedAt.Before(before) {
			delete(r.s.data.withdrawals, no)
			purged++
		}
	}
	return purged, nil
}

func sortWithdrawalsDesc(requests []*model.WithdrawRequest) {
	for i := 1; i < len(requests); i++ {
		for j := i; j > 0 && requests[j].CreatedAt.After(requests[j-1].CreatedAt); j-- {
			requests[j], requests[j-1] = requests[j-1], requests[j]
		}
	}
}

// ============================================================
// 邀请关系
// ============================================================

type memReferralRepo struct {
	s *MemoryStore
}

func (r *memReferralRepo) Create(ctx context.Context, referral *model.Referral) error {
	defer r.s.lock()()
	// 与 MySQL 的唯一索引对齐：user_id 和 referral_code 都不允许重复
	for _, existing := range r.s.data.referrals {
		if existing.UserID == referral.UserID || existing.ReferralCode == referral.ReferralCode {
			return errDuplicateKey
		}
	}
	referral.ID = r.s.nextID()
	if referral.CreatedAt.IsZero() {
		referral.CreatedAt = time.Now()
	}
	cp := *referral
	r.s.data.referrals[referral.ID] = &cp
	return nil
}

func (r *memReferralRepo) GetByUserID(ctx context.Context, userID int64) (*model.Referral, error) {
	defer r.s.lock()()
	for _, referral := range r.s.data.referrals {
		if referral.UserID == userID {
			cp := *referral
			return &cp, nil
		}
	}
	return nil, ErrReferralNotFound
}

func (r *memReferralRepo) GetByCode(ctx context.Context, code string) (*model.Referral, error) {
	defer r.s.lock()()
	for _, referral := range r.s.data.referrals {
		if referral.ReferralCode == code {
			cp := *referral
			return &cp, nil
		}
	}
	return nil, ErrReferralNotFound
}

func (r *memReferralRepo) GetByID(ctx context.Context, id int64) (*model.Referral, error) {
	defer r.s.lock()()
	referral, ok := r.s.data.referrals[id]
	if !ok {
		return nil, ErrReferralNotFound
	}
	cp := *referral
	return &cp, nil
}

func (r *memReferralRepo) AddReferredUser(ctx context.Context, referred *model.ReferredUser) error {
	defer r.s.lock()()
	if _, ok := r.s.data.referredUsers[referred.UserID]; ok {
		return ErrAlreadyReferred
	}
	referred.ID = r.s.nextID()
	if referred.CreatedAt.IsZero() {
		referred.CreatedAt = time.Now()
	}
	cp := *referred
	r.s.data.referredUsers[referred.UserID] = &cp
	if referral, ok := r.s.data.referrals[referred.ReferralID]; ok {
		referral.TotalReferrals++
	}
	return nil
}

func (r *memReferralRepo) GetReferredUser(ctx context.Context, userID int64) (*model.ReferredUser, error) {
	defer r.s.lock()()
	referred, ok := r.s.data.referredUsers[userID]
	if !ok {
		return nil, nil
	}
	cp := *referred
	return &cp, nil
}

func (r *memReferralRepo) MarkCommissionPaid(ctx context.Context, referredUserID int64, paidAt time.Time) error {
	defer r.s.lock()()
	referred, ok := r.s.data.referredUsers[referredUserID]
	if !ok || referred.CommissionPaid {
		return ErrAlreadyProcessed
	}
	referred.HasDeposited = true
	referred.CommissionPaid = true
	referred.FirstDepositAt = &paidAt
	referred.CommissionPaidAt = &paidAt
	return nil
}

func (r *memReferralRepo) AddEarnings(ctx context.Context, referralID int64, amount int64) error {
	defer r.s.lock()()
	referral, ok := r.s.data.referrals[referralID]
	if !ok {
		return ErrReferralNotFound
	}
	referral.TotalEarnings += amount
	return nil
}

func (r *memReferralRepo) ListReferredUsers(ctx context.Context, referralID int64) ([]*model.ReferredUser, error) {
	defer r.s.lock()()
	var referred []*model.ReferredUser
	for _, ru := range r.s.data.referredUsers {
		if ru.ReferralID == referralID {
			cp := *ru
			referred = append(referred, &cp)
		}
	}
	return referred, nil
}

func (r *memReferralRepo) TopByEarnings(ctx context.Context, limit int) ([]*model.Referral, error) {
	defer r.s.lock()()
	var referrals []*model.Referral
	for _, referral := range r.s.data.referrals {
		cp := *referral
		referrals = append(referrals, &cp)
	}
	for i := 1; i < len(referrals); i++ {
		for j := i; j > 0 && referrals[j].TotalEarnings > referrals[j-1].TotalEarnings; j-- {
			referrals[j], referrals[j-1] = referrals[j-1], referrals[j]
		}
	}
	if len(referrals) > limit {
		referrals = referrals[:limit]
	}
	return referrals, nil
}

func (r *memReferralRepo) SumReferrals(ctx context.Context) (int64, error) {
	defer r.s.lock()()
	var total int64
	for _, referral := range r.s.data.referrals {
		total += int64(referral.TotalReferrals)
	}
	return total, nil
}

// ============================================================
// 加密货币持仓
// ============================================================

type memHoldingRepo struct {
	s *MemoryStore
}

func (r *memHoldingRepo) GetByUserAndSymbol(ctx context.Context, userID int64, symbol string) (*model.CryptoHolding, error) {
	defer r.s.lock()()
	for _, holding := range r.s.data.holdings {
		if holding.UserID == userID && holding.Symbol == symbol {
			cp := *holding
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memHoldingRepo) Save(ctx context.Context, holding *model.CryptoHolding) error {
	defer r.s.lock()()
	if holding.ID == 0 {
		holding.ID = r.s.nextID()
		holding.CreatedAt = time.Now()
	}
	cp := *holding
	r.s.data.holdings[holding.ID] = &cp
	return nil
}

func (r *memHoldingRepo) Delete(ctx context.Context, id int64) error {
	defer r.s.lock()()
	delete(r.s.data.holdings, id)
	return nil
}

func (r *memHoldingRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.CryptoHolding, error) {
	defer r.s.lock()()
	var holdings []*model.CryptoHolding
	for _, holding := range r.s.data.holdings {
		if holding.UserID == userID {
			cp := *holding
			holdings = append(holdings, &cp)
		}
	}
	return holdings, nil
}

// ============================================================
// 发件箱
// ============================================================

type memOutboxRepo struct {
	s *MemoryStore
}

func (r *memOutboxRepo) Create(ctx context.Context, msg *model.OutboxMessage) error {
	defer r.s.lock()()
	msg.ID = r.s.nextID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	cp := *msg
	r.s.data.outbox[msg.ID] = &cp
	return nil
}

func (r *memOutboxRepo) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	defer r.s.lock()()
	var messages []*model.OutboxMessage
	for _, msg := range r.s.data.outbox {
		if msg.Status == model.OutboxStatusPending {
			cp := *msg
			messages = append(messages, &cp)
			if len(messages) >= limit {
				break
			}
		}
	}
	return messages, nil
}

func (r *memOutboxRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	defer r.s.lock()()
	if msg, ok := r.s.data.outbox[id]; ok {
		msg.Status = status
	}
	return nil
}

func (r *memOutboxRepo) IncrementRetryCount(ctx context.Context, id int64) error {
	defer r.s.lock()()
	if msg, ok := r.s.data.outbox[id]; ok {
		msg.RetryCount++
	}
	return nil
}

func (r *memOutboxRepo) MarkAsFailed(ctx context.Context, id int64) error {
	defer r.s.lock()()
	if msg, ok := r.s.data.outbox[id]; ok {
		msg.Status = model.OutboxStatusFailed
		msg.RetryCount++
	}
	return nil
}
