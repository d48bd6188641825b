package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// ReservePosition is a point-in-time snapshot of one user position in one
// reserve, assembled by the pool for cross-reserve solvency checks.
type ReservePosition struct {
	Asset crypto.Address
	// Collateral is the user's deposit balance in underlying units, zero when
	// the deposit is not flagged as collateral.
	Collateral *big.Int
	// Debt is the user's outstanding debt in underlying units.
	Debt                    *big.Int
	LTVBps                  uint64
	LiquidationThresholdBps uint64
}

// validateDeposit gates a deposit: the amount must be positive and the
// reserve active and not frozen. Frozen reserves keep accruing and keep
// serving withdrawals and repayments, they just accept no new exposure.
func validateDeposit(reserve *ReserveData, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if reserve == nil || !reserve.Config.Active {
		return ErrInactiveReserve
	}
	if reserve.Config.Frozen {
		return ErrFrozenReserve
	}
	return nil
}

// validateWithdraw gates a withdrawal: positive amount, covered by the user's
// current balance, an active reserve, and the decrease must not push the
// user's aggregate health factor below the liquidation threshold.
func validateWithdraw(asset crypto.Address, amount, userBalance *big.Int, reserve *ReserveData, positions []ReservePosition, oracle PriceOracle) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if userBalance == nil || amount.Cmp(userBalance) > 0 {
		return ErrInsufficientBalance
	}
	if reserve == nil || !reserve.Config.Active {
		return ErrInactiveReserve
	}
	allowed, err := balanceDecreaseAllowed(asset, amount, positions, oracle)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrTransferNotAllowed
	}
	return nil
}

// validateBorrow gates a borrow: active unfrozen reserve with borrowing
// enabled, positive amount covered by pool liquidity, collateral-adjusted
// borrowing power covering the resulting debt, and for stable-rate borrows an
// enabled stable mode with the amount capped at a configured share of the
// available liquidity.
func validateBorrow(asset crypto.Address, amount, availableLiquidity *big.Int, reserve *ReserveData, positions []ReservePosition, oracle PriceOracle, stable bool, maxStableLoanPercentBps uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if reserve == nil || !reserve.Config.Active {
		return ErrInactiveReserve
	}
	if reserve.Config.Frozen {
		return ErrFrozenReserve
	}
	if !reserve.Config.BorrowingEnabled {
		return ErrBorrowingDisabled
	}
	if availableLiquidity == nil || availableLiquidity.Cmp(amount) < 0 {
		return ErrNotEnoughLiquidity
	}
	if stable {
		if !reserve.Config.StableBorrowingEnabled {
			return ErrStableBorrowingDisabled
		}
		maxLoan := percentMul(availableLiquidity, maxStableLoanPercentBps)
		if amount.Cmp(maxLoan) > 0 {
			return ErrStableLoanTooLarge
		}
	}

	borrowPower, totalDebtValue, err := collateralTotals(positions, oracle, true)
	if err != nil {
		return err
	}
	price, err := oracle.PriceOf(asset)
	if err != nil {
		return err
	}
	requestedValue := new(big.Int).Mul(amount, price)
	projectedDebt := new(big.Int).Add(totalDebtValue, requestedValue)
	if borrowPower.Cmp(projectedDebt) < 0 {
		return ErrBorrowPowerExceeded
	}
	return nil
}

// validateRepay gates a repayment: positive amount, outstanding debt of the
// matching rate mode, and an amount within the live compounded balance. Full
// settlement resolves the live balance first (RepayAll) rather than
// overshooting here.
func validateRepay(amount, currentDebt *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if currentDebt == nil || currentDebt.Sign() == 0 {
		return ErrNoDebt
	}
	if amount.Cmp(currentDebt) > 0 {
		return ErrInvalidAmount
	}
	return nil
}

// balanceDecreaseAllowed reports whether removing amount of asset from the
// user's collateral keeps the aggregate health factor at or above one. Users
// with no debt can always decrease.
func balanceDecreaseAllowed(asset crypto.Address, amount *big.Int, positions []ReservePosition, oracle PriceOracle) (bool, error) {
	if oracle == nil {
		return false, errOracleNotWired
	}
	weightedCollateral := big.NewInt(0)
	totalDebtValue := big.NewInt(0)
	for _, position := range positions {
		price, err := oracle.PriceOf(position.Asset)
		if err != nil {
			return false, err
		}
		collateral := cloneBigInt(position.Collateral)
		if position.Asset.Equal(asset) {
			collateral.Sub(collateral, amount)
			if collateral.Sign() < 0 {
				collateral = big.NewInt(0)
			}
		}
		value := new(big.Int).Mul(collateral, price)
		weightedCollateral.Add(weightedCollateral, percentMul(value, position.LiquidationThresholdBps))
		if position.Debt != nil && position.Debt.Sign() > 0 {
			totalDebtValue.Add(totalDebtValue, new(big.Int).Mul(position.Debt, price))
		}
	}
	if totalDebtValue.Sign() == 0 {
		return true, nil
	}
	// Health factor >= 1 expressed without division.
	return weightedCollateral.Cmp(totalDebtValue) >= 0, nil
}

// collateralTotals sums the user's LTV-weighted collateral value (borrowing
// power) and outstanding debt value across all positions. When useLTV is
// false the liquidation threshold weights the collateral instead.
func collateralTotals(positions []ReservePosition, oracle PriceOracle, useLTV bool) (*big.Int, *big.Int, error) {
	if oracle == nil {
		return nil, nil, errOracleNotWired
	}
	weightedCollateral := big.NewInt(0)
	totalDebtValue := big.NewInt(0)
	for _, position := range positions {
		price, err := oracle.PriceOf(position.Asset)
		if err != nil {
			return nil, nil, err
		}
		if position.Collateral != nil && position.Collateral.Sign() > 0 {
			value := new(big.Int).Mul(position.Collateral, price)
			bps := position.LiquidationThresholdBps
			if useLTV {
				bps = position.LTVBps
			}
			weightedCollateral.Add(weightedCollateral, percentMul(value, bps))
		}
		if position.Debt != nil && position.Debt.Sign() > 0 {
			totalDebtValue.Add(totalDebtValue, new(big.Int).Mul(position.Debt, price))
		}
	}
	return weightedCollateral, totalDebtValue, nil
}
