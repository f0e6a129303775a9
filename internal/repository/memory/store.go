package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"
)

type txKey struct {
	accountID int64
	txType    string
	reference string
}

// Store 内存存储，用于单机调试和测试
//
// mu 只保护 map 本身，单次读写即释放，不会跨越整个事务持有；
// 同一账户/外呼任务的读改写由上层 Locker 串行化。
// 事务通过 undo 日志实现回滚：fn 返回错误时逆序撤销已做的写入。
type Store struct {
	mu  sync.RWMutex
	seq int64

	destinations map[int64]*model.Destination
	rateCards    map[int64]*model.RateCard
	rates        map[int64]*model.Rate
	accounts     map[int64]*model.Account
	transactions map[int64]*model.AccountTransaction
	txByRef      map[txKey]int64
	txByNo       map[string]int64
	callRecords  map[string]*model.CallRecord
	sessions     map[string]*model.CallSession
	campaigns    map[int64]*model.CampaignAniState
	outbox       map[int64]*model.OutboxMessage

	*scope
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{
		destinations: make(map[int64]*model.Destination),
		rateCards:    make(map[int64]*model.RateCard),
		rates:        make(map[int64]*model.Rate),
		accounts:     make(map[int64]*model.Account),
		transactions: make(map[int64]*model.AccountTransaction),
		txByRef:      make(map[txKey]int64),
		txByNo:       make(map[string]int64),
		callRecords:  make(map[string]*model.CallRecord),
		sessions:     make(map[string]*model.CallSession),
		campaigns:    make(map[int64]*model.CampaignAniState),
		outbox:       make(map[int64]*model.OutboxMessage),
	}
	s.scope = newScope(s, nil)
	return s
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	log := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(log)
			panic(p)
		}
	}()

	if err = fn(newScope(s, log)); err != nil {
		s.rollback(log)
		return err
	}
	return nil
}

func (s *Store) rollback(log *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(log.fns) - 1; i >= 0; i-- {
		log.fns[i]()
	}
}

func (s *Store) nextID() int64 {
	return atomic.AddInt64(&s.seq, 1)
}

// undoLog 为 nil 时表示非事务写入，直接生效
type undoLog struct {
	fns []func()
}

func (l *undoLog) push(fn func()) {
	if l != nil {
		l.fns = append(l.fns, fn)
	}
}

// scope 一组共享同一 undo 日志的仓储
type scope struct {
	destinations *destinationRepo
	rateCards    *rateCardRepo
	rates        *rateRepo
	accounts     *accountRepo
	transactions *transactionRepo
	callRecords  *callRecordRepo
	callSessions *callSessionRepo
	campaigns    *campaignRepo
	outbox       *outboxRepo
}

func newScope(s *Store, log *undoLog) *scope {
	b := base{s: s, log: log}
	return &scope{
		destinations: &destinationRepo{b},
		rateCards:    &rateCardRepo{b},
		rates:        &rateRepo{b},
		accounts:     &accountRepo{b},
		transactions: &transactionRepo{b},
		callRecords:  &callRecordRepo{b},
		callSessions: &callSessionRepo{b},
		campaigns:    &campaignRepo{b},
		outbox:       &outboxRepo{b},
	}
}

func (c *scope) Destinations() repository.DestinationRepository { return c.destinations }
func (c *scope) RateCards() repository.RateCardRepository       { return c.rateCards }
func (c *scope) Rates() repository.RateRepository               { return c.rates }
func (c *scope) Accounts() repository.AccountRepository         { return c.accounts }
func (c *scope) Transactions() repository.TransactionRepository { return c.transactions }
func (c *scope) CallRecords() repository.CallRecordRepository   { return c.callRecords }
func (c *scope) CallSessions() repository.CallSessionRepository { return c.callSessions }
func (c *scope) Campaigns() repository.CampaignRepository       { return c.campaigns }
func (c *scope) Outbox() repository.OutboxRepository            { return c.outbox }

type base struct {
	s   *Store
	log *undoLog
}

func now() time.Time {
	return time.Now()
}
