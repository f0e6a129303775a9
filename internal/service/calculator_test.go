package service

import (
	"errors"
	"math"
	"testing"

	"voipbilling/internal/model"
	"voipbilling/pkg/money"
)

func TestComputeBillableSeconds(t *testing.T) {
	rate := &model.Rate{
		CostPrice:        money.MustParse("0.5"),
		SellPrice:        money.MustParse("1.2"),
		BillingIncrement: 60,
		MinimumDuration:  60,
	}

	tests := []struct {
		raw      int64
		billable int64
		sell     string
		cost     string
	}{
		{0, 0, "0.0000", "0.0000"},
		{1, 60, "1.2000", "0.5000"},
		{45, 60, "1.2000", "0.5000"},
		{60, 60, "1.2000", "0.5000"},
		{61, 120, "2.4000", "1.0000"},
		{3600, 3600, "72.0000", "30.0000"},
	}
	for _, tt := range tests {
		charge, err := Compute(tt.raw, rate, model.PriceUnitPerMinute)
		if err != nil {
			t.Fatalf("raw=%d: %v", tt.raw, err)
		}
		if charge.BillableSeconds != tt.billable {
			t.Errorf("raw=%d: billable = %d, want %d", tt.raw, charge.BillableSeconds, tt.billable)
		}
		if got := money.Format(charge.Sell); got != tt.sell {
			t.Errorf("raw=%d: sell = %s, want %s", tt.raw, got, tt.sell)
		}
		if got := money.Format(charge.Cost); got != tt.cost {
			t.Errorf("raw=%d: cost = %s, want %s", tt.raw, got, tt.cost)
		}
	}
}

func TestComputeMinimumAboveIncrement(t *testing.T) {
	rate := &model.Rate{SellPrice: money.MustParse("0.6"), BillingIncrement: 6, MinimumDuration: 30}

	charge, err := Compute(7, rate, model.PriceUnitPerMinute)
	if err != nil {
		t.Fatal(err)
	}
	if charge.BillableSeconds != 30 {
		t.Fatalf("billable = %d, want 30", charge.BillableSeconds)
	}
	if got := money.Format(charge.Sell); got != "0.3000" {
		t.Fatalf("sell = %s, want 0.3000", got)
	}

	charge, _ = Compute(31, rate, model.PriceUnitPerMinute)
	if charge.BillableSeconds != 36 {
		t.Fatalf("billable = %d, want 36", charge.BillableSeconds)
	}
}

func TestComputePerSecond(t *testing.T) {
	rate := &model.Rate{SellPrice: money.MustParse("0.0015"), BillingIncrement: 1}

	charge, err := Compute(125, rate, model.PriceUnitPerSecond)
	if err != nil {
		t.Fatal(err)
	}
	if got := money.Format(charge.Sell); got != "0.1875" {
		t.Fatalf("sell = %s, want 0.1875", got)
	}
}

func TestComputeRoundsHalfAwayFromZero(t *testing.T) {
	// 0.0333 * 10 / 60 = 0.00555
	rate := &model.Rate{SellPrice: money.MustParse("0.0333"), BillingIncrement: 1}

	charge, err := Compute(10, rate, model.PriceUnitPerMinute)
	if err != nil {
		t.Fatal(err)
	}
	if got := money.Format(charge.Sell); got != "0.0056" {
		t.Fatalf("sell = %s, want 0.0056", got)
	}
}

func TestComputeErrors(t *testing.T) {
	good := &model.Rate{SellPrice: money.MustParse("1"), BillingIncrement: 60}

	if _, err := Compute(-1, good, model.PriceUnitPerMinute); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("负时长 err = %v, want ErrInvalidArgument", err)
	}
	if _, err := Compute(10, &model.Rate{BillingIncrement: 0}, model.PriceUnitPerMinute); !errors.Is(err, ErrConfiguration) {
		t.Errorf("步长 0 err = %v, want ErrConfiguration", err)
	}
	if _, err := Compute(10, good, "PER_HOUR"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("未知单位 err = %v, want ErrConfiguration", err)
	}
	if _, err := Compute(math.MaxInt64, good, model.PriceUnitPerMinute); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("超长时长 err = %v, want ErrInvalidArgument", err)
	}
}

func TestComputeAtDurationCap(t *testing.T) {
	rate := &model.Rate{SellPrice: money.MustParse("0.01"), BillingIncrement: 7}

	charge, err := Compute(MaxCallSeconds, rate, model.PriceUnitPerSecond)
	if err != nil {
		t.Fatal(err)
	}
	// 2678400 不是 7 的倍数，向上取整到下一个步长
	if charge.BillableSeconds != 2678403 {
		t.Fatalf("billable = %d, want 2678403", charge.BillableSeconds)
	}
	if money.Format(charge.Sell) != "26784.0300" {
		t.Fatalf("sell = %s, want 26784.0300", money.Format(charge.Sell))
	}
}
