package lendingpool

import (
	"math/big"
	"testing"
)

func newAccruingReserve(last uint64) *ReserveData {
	reserve := &ReserveData{
		Config: ReserveConfiguration{Active: true},
	}
	ensureReserveDefaults(reserve)
	reserve.CurrentLiquidityRate = rayFraction(1, 10)
	reserve.CurrentVariableBorrowRate = rayFraction(2, 10)
	reserve.LastUpdateTimestamp = last
	return reserve
}

func TestUpdateStateAdvancesIndexes(t *testing.T) {
	start := uint64(1_700_000_000)
	reserve := newAccruingReserve(start)

	updateState(reserve, start+secondsPerYear)

	// Liquidity accrues linearly: 10% over one year.
	if want := rayFraction(11, 10); reserve.LiquidityIndex.Cmp(want) != 0 {
		t.Fatalf("liquidity index = %s, want %s", reserve.LiquidityIndex, want)
	}
	// Variable debt compounds, so it lands above the linear 20%.
	if linearBound := rayFraction(12, 10); reserve.VariableBorrowIndex.Cmp(linearBound) <= 0 {
		t.Fatalf("variable index = %s, want above %s", reserve.VariableBorrowIndex, linearBound)
	}
	if reserve.LastUpdateTimestamp != start+secondsPerYear {
		t.Fatalf("timestamp = %d, want %d", reserve.LastUpdateTimestamp, start+secondsPerYear)
	}
}

func TestUpdateStateIdempotentAtSameTimestamp(t *testing.T) {
	start := uint64(1_700_000_000)
	reserve := newAccruingReserve(start)

	updateState(reserve, start+1000)
	liquidityIndex := new(big.Int).Set(reserve.LiquidityIndex)
	variableIndex := new(big.Int).Set(reserve.VariableBorrowIndex)

	updateState(reserve, start+1000)
	if reserve.LiquidityIndex.Cmp(liquidityIndex) != 0 {
		t.Fatalf("second update moved liquidity index to %s", reserve.LiquidityIndex)
	}
	if reserve.VariableBorrowIndex.Cmp(variableIndex) != 0 {
		t.Fatalf("second update moved variable index to %s", reserve.VariableBorrowIndex)
	}

	// A stale timestamp is also a no-op.
	updateState(reserve, start)
	if reserve.LiquidityIndex.Cmp(liquidityIndex) != 0 {
		t.Fatalf("stale update moved liquidity index to %s", reserve.LiquidityIndex)
	}
}

func TestUpdateStateIndexesNeverDecrease(t *testing.T) {
	start := uint64(1_700_000_000)
	reserve := newAccruingReserve(start)

	previous := new(big.Int).Set(reserve.LiquidityIndex)
	for i := uint64(1); i <= 5; i++ {
		updateState(reserve, start+i*86_400)
		if reserve.LiquidityIndex.Cmp(previous) < 0 {
			t.Fatalf("liquidity index decreased: %s -> %s", previous, reserve.LiquidityIndex)
		}
		previous.Set(reserve.LiquidityIndex)
	}
}

func TestNormalizedIncome(t *testing.T) {
	start := uint64(1_700_000_000)
	reserve := newAccruingReserve(start)

	// Without elapsed time the stored index is returned untouched.
	if got := normalizedIncome(reserve, start); got.Cmp(reserve.LiquidityIndex) != 0 {
		t.Fatalf("normalized income at rest = %s, want %s", got, reserve.LiquidityIndex)
	}

	got := normalizedIncome(reserve, start+secondsPerYear)
	if want := rayFraction(11, 10); got.Cmp(want) != 0 {
		t.Fatalf("normalized income after a year = %s, want %s", got, want)
	}
	// Reads never mutate the stored state.
	if reserve.LiquidityIndex.Cmp(ray) != 0 {
		t.Fatalf("read mutated stored index to %s", reserve.LiquidityIndex)
	}
	if reserve.LastUpdateTimestamp != start {
		t.Fatalf("read mutated timestamp to %d", reserve.LastUpdateTimestamp)
	}
}

func TestUpdateInterestRates(t *testing.T) {
	reserve := &ReserveData{Config: ReserveConfiguration{Active: true}}
	ensureReserveDefaults(reserve)
	strategy := exactStrategy()

	// 1000 available, 200 taken by the action, 200 variable debt outstanding:
	// post-action utilisation 200/1000 = 0.2.
	updateInterestRates(reserve, strategy,
		big.NewInt(1000), nil, big.NewInt(200),
		big.NewInt(0), big.NewInt(200), big.NewInt(0))

	if want := rayFraction(36, 1000); reserve.CurrentVariableBorrowRate.Cmp(want) != 0 {
		t.Fatalf("variable rate = %s, want %s", reserve.CurrentVariableBorrowRate, want)
	}
	if want := rayFraction(76, 1000); reserve.CurrentStableBorrowRate.Cmp(want) != 0 {
		t.Fatalf("stable rate = %s, want %s", reserve.CurrentStableBorrowRate, want)
	}
	if want := rayFraction(72, 10_000); reserve.CurrentLiquidityRate.Cmp(want) != 0 {
		t.Fatalf("liquidity rate = %s, want %s", reserve.CurrentLiquidityRate, want)
	}
}

func TestUpdateInterestRatesClampsNegativeLiquidity(t *testing.T) {
	reserve := &ReserveData{Config: ReserveConfiguration{Active: true}}
	ensureReserveDefaults(reserve)
	strategy := exactStrategy()

	// Taking more than is available clamps the post-action liquidity to zero,
	// which drives utilisation to one and the rate to the top of the curve:
	// 0.02 + 0.08*0.8 + 0.75*0.2 = 0.234.
	updateInterestRates(reserve, strategy,
		big.NewInt(100), nil, big.NewInt(500),
		big.NewInt(0), big.NewInt(500), big.NewInt(0))

	if want := rayFraction(234, 1000); reserve.CurrentVariableBorrowRate.Cmp(want) != 0 {
		t.Fatalf("variable rate = %s, want %s", reserve.CurrentVariableBorrowRate, want)
	}
}
