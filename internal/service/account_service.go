package service

import (
	"context"
	"errors"
	"fmt"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"
	"voipbilling/pkg/money"

	"github.com/shopspring/decimal"
)

// AccountService 账户配置，余额只能通过 LedgerService 变动
type AccountService struct {
	store           repository.Store
	defaultCallsCap int
}

func NewAccountService(store repository.Store) *AccountService {
	return &AccountService{store: store}
}

// WithDefaultCallsCap 新建账户未指定并发上限时使用 n
func (s *AccountService) WithDefaultCallsCap(n int) *AccountService {
	s.defaultCallsCap = n
	return s
}

type AccountRequest struct {
	UserID             int64           `json:"user_id"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	ConcurrentCallsCap int             `json:"concurrent_calls_cap"`
	RateCardID         *int64          `json:"rate_card_id"`
}

func (s *AccountService) validate(ctx context.Context, req *AccountRequest) error {
	if req.CreditLimit.IsNegative() {
		return invalidArg("授信额度不能为负")
	}
	if !req.CreditLimit.Equal(money.Round(req.CreditLimit)) {
		return invalidArg("授信额度最多 %d 位小数", money.Scale)
	}
	if req.ConcurrentCallsCap < 1 {
		return invalidArg("并发呼叫上限必须 >= 1")
	}
	if req.RateCardID != nil {
		if _, err := s.store.RateCards().GetByID(ctx, *req.RateCardID); err != nil {
			if errors.Is(err, repository.ErrRateCardNotFound) {
				return fmt.Errorf("%w: 费率卡 %d", ErrNotFound, *req.RateCardID)
			}
			return storageErr("查询费率卡失败", err)
		}
	}
	return nil
}

// CreateAccount 新账户余额为 0
func (s *AccountService) CreateAccount(ctx context.Context, req *AccountRequest) (*model.Account, error) {
	if req.UserID <= 0 {
		return nil, invalidArg("user_id 无效")
	}
	if req.ConcurrentCallsCap == 0 && s.defaultCallsCap > 0 {
		req.ConcurrentCallsCap = s.defaultCallsCap
	}
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	account := &model.Account{
		UserID:             req.UserID,
		Balance:            money.Zero,
		CreditLimit:        req.CreditLimit,
		ConcurrentCallsCap: req.ConcurrentCallsCap,
		RateCardID:         req.RateCardID,
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: 用户 %d 已有账户", ErrConflict, req.UserID)
		}
		return nil, storageErr("创建账户失败", err)
	}
	return account, nil
}

// UpdateAccount 修改授信额度、并发上限和费率卡
func (s *AccountService) UpdateAccount(ctx context.Context, id int64, req *AccountRequest) (*model.Account, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	account.CreditLimit = req.CreditLimit
	account.ConcurrentCallsCap = req.ConcurrentCallsCap
	account.RateCardID = req.RateCardID
	if err := s.store.Accounts().UpdateConfig(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageErr("更新账户失败", err)
	}
	return s.GetAccount(ctx, id)
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageErr("查询账户失败", err)
	}
	return account, nil
}
