package service

import (
	"voipbilling/internal/model"
	"voipbilling/pkg/money"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// MaxCallSeconds 单次通话可计费的最长时长（31 天），超过视为非法话单
const MaxCallSeconds int64 = 31 * 24 * 3600

// Charge 单通话的计费结果
type Charge struct {
	BillableSeconds int64           `json:"billable_seconds"`
	Cost            decimal.Decimal `json:"cost"` // 成本价，用于毛利审计
	Sell            decimal.Decimal `json:"sell"` // 销售价，实际向客户扣费
}

// IsZero 零费用通话不入账
func (c Charge) IsZero() bool {
	return c.Sell.IsZero()
}

// Compute 计算计费时长和金额
//
//	billable = max(minimumDuration, ceil(raw / increment) * increment)
//	PER_MINUTE: amount = price * billable / 60
//	PER_SECOND: amount = price * billable
//
// 金额四舍五入（远离零）到 4 位小数。raw == 0 时全部为零，不受最短时长影响。
func Compute(rawSeconds int64, rate *model.Rate, priceUnit string) (Charge, error) {
	if rawSeconds < 0 {
		return Charge{}, invalidArg("通话时长不能为负: %d", rawSeconds)
	}
	if rawSeconds > MaxCallSeconds {
		return Charge{}, invalidArg("通话时长超出上限: %d > %d", rawSeconds, MaxCallSeconds)
	}
	if rate == nil || rate.BillingIncrement <= 0 {
		return Charge{}, ErrConfiguration
	}
	if rate.MinimumDuration < 0 {
		return Charge{}, ErrConfiguration
	}
	if rawSeconds == 0 {
		return Charge{Cost: money.Zero, Sell: money.Zero}, nil
	}

	inc := int64(rate.BillingIncrement)
	billable := rawSeconds / inc * inc
	if rawSeconds%inc != 0 {
		billable += inc
	}
	if m := int64(rate.MinimumDuration); billable < m {
		billable = m
	}

	cost, err := amountFor(rate.CostPrice, billable, priceUnit)
	if err != nil {
		return Charge{}, err
	}
	sell, err := amountFor(rate.SellPrice, billable, priceUnit)
	if err != nil {
		return Charge{}, err
	}
	return Charge{BillableSeconds: billable, Cost: cost, Sell: sell}, nil
}

func amountFor(price decimal.Decimal, billable int64, priceUnit string) (decimal.Decimal, error) {
	secs := decimal.NewFromInt(billable)
	switch priceUnit {
	case model.PriceUnitPerMinute, "":
		// 先乘后除，避免中间结果被截断
		return money.Round(price.Mul(secs).DivRound(sixty, 16)), nil
	case model.PriceUnitPerSecond:
		return money.Round(price.Mul(secs)), nil
	default:
		return decimal.Zero, ErrConfiguration
	}
}
