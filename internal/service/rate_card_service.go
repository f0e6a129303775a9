package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
	"voipbilling/pkg/money"

	"github.com/shopspring/decimal"
)

type RateCardService struct {
	store  repository.Store
	locker lock.Locker
}

func NewRateCardService(store repository.Store, locker lock.Locker) *RateCardService {
	return &RateCardService{store: store, locker: locker}
}

type RateCardRequest struct {
	Name      string `json:"name" binding:"required"`
	Currency  string `json:"currency" binding:"required"`
	PriceUnit string `json:"price_unit"`
}

// CreateCard 新建费率卡为 DRAFT，激活后才参与计费
func (s *RateCardService) CreateCard(ctx context.Context, req *RateCardRequest) (*model.RateCard, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidArg("费率卡名称不能为空")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, invalidArg("币种必须为 3 位 ISO 代码: %q", req.Currency)
	}
	unit := req.PriceUnit
	if unit == "" {
		unit = model.PriceUnitPerMinute
	}
	if unit != model.PriceUnitPerMinute && unit != model.PriceUnitPerSecond {
		return nil, invalidArg("未知的价格单位: %s", req.PriceUnit)
	}

	card := &model.RateCard{
		Name:      name,
		Currency:  currency,
		Status:    model.RateCardStatusDraft,
		PriceUnit: unit,
	}
	if err := s.store.RateCards().Create(ctx, card); err != nil {
		return nil, storageErr("创建费率卡失败", err)
	}
	return card, nil
}

func (s *RateCardService) GetCard(ctx context.Context, id int64) (*model.RateCard, error) {
	card, err := s.store.RateCards().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRateCardNotFound) {
			return nil, fmt.Errorf("%w: 费率卡 %d", ErrNotFound, id)
		}
		return nil, storageErr("查询费率卡失败", err)
	}
	return card, nil
}

func (s *RateCardService) ListCards(ctx context.Context) ([]*model.RateCard, error) {
	list, err := s.store.RateCards().List(ctx)
	if err != nil {
		return nil, storageErr("查询费率卡失败", err)
	}
	return list, nil
}

// ChangeStatus 状态机：DRAFT->ACTIVE, ACTIVE->INACTIVE, INACTIVE->ACTIVE
func (s *RateCardService) ChangeStatus(ctx context.Context, id int64, toStatus string) (*model.RateCard, error) {
	card, err := s.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanRateCardTransitionTo(card.Status, toStatus) {
		return nil, fmt.Errorf("%w: 费率卡状态不能从 %s 变更为 %s", ErrConflict, card.Status, toStatus)
	}
	if err := s.store.RateCards().UpdateStatus(ctx, id, card.Status, toStatus); err != nil {
		if errors.Is(err, repository.ErrRateCardStatusInvalid) {
			return nil, fmt.Errorf("%w: 费率卡状态已被修改，请重试", ErrConflict)
		}
		return nil, storageErr("更新费率卡状态失败", err)
	}
	log.Printf("[RateCard] 状态变更: id=%d, %s -> %s", id, card.Status, toStatus)
	card.Status = toStatus
	return card, nil
}

type RateRequest struct {
	DestinationCode  string          `json:"destination_code" binding:"required"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	BillingIncrement int             `json:"billing_increment"`
	MinimumDuration  int             `json:"minimum_duration"`
	EffectiveFrom    *time.Time      `json:"effective_from"`
	EffectiveTo      *time.Time      `json:"effective_to"`
}

func validateRate(req *RateRequest) error {
	if req.CostPrice.IsNegative() || req.SellPrice.IsNegative() {
		return invalidArg("价格不能为负")
	}
	if !req.CostPrice.Equal(money.Round(req.CostPrice)) || !req.SellPrice.Equal(money.Round(req.SellPrice)) {
		return invalidArg("价格最多 %d 位小数", money.Scale)
	}
	if req.BillingIncrement <= 0 {
		return invalidArg("计费步长必须大于 0")
	}
	if req.MinimumDuration < 0 {
		return invalidArg("最短计费时长不能为负")
	}
	if req.EffectiveFrom != nil && req.EffectiveTo != nil && !req.EffectiveFrom.Before(*req.EffectiveTo) {
		return invalidArg("生效开始时间必须早于结束时间")
	}
	return nil
}

// AddRate 新增费率，同一费率卡同一目的地的生效区间不允许重叠
func (s *RateCardService) AddRate(ctx context.Context, cardID int64, req *RateRequest) (*model.Rate, error) {
	if err := validateRate(req); err != nil {
		return nil, err
	}
	if _, err := s.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	dest, err := s.store.Destinations().GetByCode(ctx, strings.TrimSpace(req.DestinationCode))
	if err != nil {
		if errors.Is(err, repository.ErrDestinationNotFound) {
			return nil, fmt.Errorf("%w: 目的地编码 %s", ErrNotFound, req.DestinationCode)
		}
		return nil, storageErr("查询目的地失败", err)
	}

	rate := &model.Rate{
		RateCardID:       cardID,
		DestinationID:    dest.ID,
		CostPrice:        req.CostPrice,
		SellPrice:        req.SellPrice,
		BillingIncrement: req.BillingIncrement,
		MinimumDuration:  req.MinimumDuration,
		EffectiveFrom:    req.EffectiveFrom,
		EffectiveTo:      req.EffectiveTo,
	}

	err = withLock(ctx, s.locker, "ratecard", lock.RateCardKey(cardID), func() error {
		existing, err := s.store.Rates().ListByCardAndDestination(ctx, cardID, dest.ID)
		if err != nil {
			return storageErr("查询费率失败", err)
		}
		for _, e := range existing {
			if e.Overlaps(rate) {
				return fmt.Errorf("%w: 与费率 %d 的生效区间重叠", ErrConflict, e.ID)
			}
		}
		if err := s.store.Rates().Create(ctx, rate); err != nil {
			return storageErr("创建费率失败", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("新增费率失败", err)
	}
	rate.Destination = dest
	return rate, nil
}

func (s *RateCardService) ListRates(ctx context.Context, cardID int64) ([]*model.Rate, error) {
	if _, err := s.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	list, err := s.store.Rates().ListByCard(ctx, cardID)
	if err != nil {
		return nil, storageErr("查询费率失败", err)
	}
	return list, nil
}
