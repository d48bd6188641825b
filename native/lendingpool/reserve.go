package lendingpool

import "math/big"

// updateState advances the liquidity and variable borrow indexes by the
// interest accrued since the last update at the rates current over that
// window, then stamps the update time. It must run before any rate-affecting
// mutation and exactly once per action; calling it again at the same
// timestamp is a no-op, so accrual is never skipped and never double-applied.
func updateState(reserve *ReserveData, now uint64) {
	if reserve == nil {
		return
	}
	ensureReserveDefaults(reserve)
	if now <= reserve.LastUpdateTimestamp {
		return
	}
	delta := now - reserve.LastUpdateTimestamp

	if reserve.CurrentLiquidityRate.Sign() > 0 {
		factor := linearInterest(reserve.CurrentLiquidityRate, delta)
		reserve.LiquidityIndex = rayMul(reserve.LiquidityIndex, factor)
	}
	if reserve.CurrentVariableBorrowRate.Sign() > 0 {
		factor := compoundedInterest(reserve.CurrentVariableBorrowRate, delta)
		reserve.VariableBorrowIndex = rayMul(reserve.VariableBorrowIndex, factor)
	}
	reserve.LastUpdateTimestamp = now
}

// updateInterestRates recomputes the three current rates from the post-action
// utilisation. It must run after the liquidity-affecting mutation, with the
// liquidity delta of the action, so the new totals drive the curve.
func updateInterestRates(reserve *ReserveData, strategy RateStrategy, availableLiquidity, liquidityAdded, liquidityTaken, totalStableDebt, totalVariableDebt, avgStableRate *big.Int) {
	if reserve == nil || strategy == nil {
		return
	}
	ensureReserveDefaults(reserve)

	liquidity := cloneBigInt(availableLiquidity)
	if liquidityAdded != nil {
		liquidity.Add(liquidity, liquidityAdded)
	}
	if liquidityTaken != nil {
		liquidity.Sub(liquidity, liquidityTaken)
	}
	if liquidity.Sign() < 0 {
		liquidity = big.NewInt(0)
	}

	liquidityRate, variableRate, stableRate := strategy.ComputeRates(
		liquidity, totalStableDebt, totalVariableDebt, avgStableRate, reserve.Config.ReserveFactorBps)

	reserve.CurrentLiquidityRate = cloneBigInt(liquidityRate)
	reserve.CurrentVariableBorrowRate = cloneBigInt(variableRate)
	reserve.CurrentStableBorrowRate = cloneBigInt(stableRate)
}

// normalizedIncome returns the reserve's liquidity index as of now, including
// any interest accrued since the last stored update. Balance presentation
// always goes through this value; the stored index alone would lag between
// touches.
func normalizedIncome(reserve *ReserveData, now uint64) *big.Int {
	if reserve == nil {
		return new(big.Int).Set(ray)
	}
	ensureReserveDefaults(reserve)
	if now <= reserve.LastUpdateTimestamp {
		return new(big.Int).Set(reserve.LiquidityIndex)
	}
	delta := now - reserve.LastUpdateTimestamp
	factor := linearInterest(reserve.CurrentLiquidityRate, delta)
	return rayMul(reserve.LiquidityIndex, factor)
}
