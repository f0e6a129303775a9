package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"
)

// maxPrefixDigits E.164 号码最长 15 位
const maxPrefixDigits = 15

// Resolution 命中的费率及其上下文
type Resolution struct {
	Card        *model.RateCard
	Rate        *model.Rate
	Destination *model.Destination
}

type RateResolver struct {
	repos repository.Repositories
}

func NewRateResolver(repos repository.Repositories) *RateResolver {
	return &RateResolver{repos: repos}
}

// Resolve 最长前缀匹配
//
// 只在 ACTIVE 费率卡上查找；同一最长前缀下出现多条生效费率视为配置错误，
// 不做任何默认费率兜底。
func (r *RateResolver) Resolve(ctx context.Context, rateCardID int64, dialedNumber string, at time.Time) (*Resolution, error) {
	digits := normalizeNumber(dialedNumber)
	if digits == "" {
		return nil, ErrRateNotFound
	}

	card, err := r.repos.RateCards().GetByID(ctx, rateCardID)
	if err != nil {
		if errors.Is(err, repository.ErrRateCardNotFound) {
			return nil, ErrRateNotFound
		}
		return nil, storageErr("查询费率卡失败", err)
	}
	if card.Status != model.RateCardStatusActive {
		return nil, ErrRateNotFound
	}

	rates, err := r.repos.Rates().FindByCodes(ctx, card.ID, candidatePrefixes(digits))
	if err != nil {
		return nil, storageErr("查询费率失败", err)
	}

	var (
		best    []*model.Rate
		bestLen int
	)
	for _, rate := range rates {
		if rate.Destination == nil || !rate.ActiveAt(at) {
			continue
		}
		n := len(rate.Destination.Code)
		switch {
		case n > bestLen:
			best, bestLen = []*model.Rate{rate}, n
		case n == bestLen:
			best = append(best, rate)
		}
	}

	switch len(best) {
	case 0:
		return nil, ErrRateNotFound
	case 1:
		return &Resolution{Card: card, Rate: best[0], Destination: best[0].Destination}, nil
	default:
		return nil, fmt.Errorf("%w: 费率卡 %d 前缀 %s 在 %s 有 %d 条生效费率",
			ErrConfiguration, card.ID, best[0].Destination.Code, at.Format(time.RFC3339), len(best))
	}
}

// normalizeNumber 只保留数字，去掉 +、空格、横线等
func normalizeNumber(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, c := range number {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// candidatePrefixes "1212555" => ["1", "12", "121", ...]
func candidatePrefixes(digits string) []string {
	n := len(digits)
	if n > maxPrefixDigits {
		n = maxPrefixDigits
	}
	prefixes := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		prefixes = append(prefixes, digits[:i])
	}
	return prefixes
}
