package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// ReserveConfiguration captures the governance-controlled switches and risk
// limits for a single reserve.
type ReserveConfiguration struct {
	// Active gates every action against the reserve.
	Active bool
	// Frozen blocks new deposits and borrows while still allowing
	// withdrawals and repayments, and does not stop interest accrual.
	Frozen bool
	// BorrowingEnabled gates borrow actions of any rate mode.
	BorrowingEnabled bool
	// StableBorrowingEnabled gates stable-rate borrows specifically.
	StableBorrowingEnabled bool
	// LTVBps is the maximum loan-to-value ratio in basis points.
	LTVBps uint64
	// LiquidationThresholdBps is the LTV at which positions become unhealthy,
	// in basis points.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the collateral discount granted to liquidators,
	// in basis points. Carried for parity with reserve configuration even
	// though liquidation flows live outside this module.
	LiquidationBonusBps uint64
	// ReserveFactorBps is the share of accrued interest routed to the
	// treasury, in basis points.
	ReserveFactorBps uint64
}

// ReserveData is the aggregate accounting state for one underlying asset.
// Index and rate values are expressed in ray (27-decimal fixed point).
type ReserveData struct {
	Config ReserveConfiguration

	// LiquidityIndex is the cumulative interest accumulator applied to
	// depositor balances. Monotonically non-decreasing.
	LiquidityIndex *big.Int
	// VariableBorrowIndex is the cumulative interest accumulator applied to
	// variable-rate debt. Monotonically non-decreasing.
	VariableBorrowIndex *big.Int

	// CurrentLiquidityRate is the per-year deposit rate, recomputed from
	// utilisation after every liquidity-affecting action.
	CurrentLiquidityRate *big.Int
	// CurrentVariableBorrowRate is the per-year variable debt rate.
	CurrentVariableBorrowRate *big.Int
	// CurrentStableBorrowRate is the per-year rate locked in by new stable
	// borrows.
	CurrentStableBorrowRate *big.Int

	// LastUpdateTimestamp records when the indexes were last advanced.
	LastUpdateTimestamp uint64

	// Linked collaborator identifiers. Opaque to the accounting logic.
	DepositToken    crypto.Address
	StableDebtToken crypto.Address
	VariableDebt    crypto.Address
	RateStrategy    crypto.Address

	// ID is the position of the reserve in the active reserves list.
	ID uint8
}

// UserReserveData tracks the per-(user, reserve) position. Records are created
// lazily on first deposit or borrow and never deleted; a zero balance is a
// valid terminal state.
type UserReserveData struct {
	Address crypto.Address
	// CumulatedLiquidityInterest is the deposit interest folded into the
	// record across touches, measured as index growth over the scaled balance.
	CumulatedLiquidityInterest *big.Int
	// CumulatedStableBorrowInterest is the stable-debt interest folded into
	// the record across touches, sampled before each principal change.
	CumulatedStableBorrowInterest *big.Int
	// LastLiquidityIndex is the liquidity index at the user's previous deposit
	// or withdrawal. Zero until the first touch.
	LastLiquidityIndex  *big.Int
	LastUpdateTimestamp uint64
	// UseAsCollateral marks the deposit as counting towards borrowing power.
	// Set on first deposit, cleared when a withdrawal empties the balance.
	UseAsCollateral bool
	// Borrowing marks the user as holding outstanding debt on this reserve.
	// Set on first borrow, cleared when a repayment closes the position.
	Borrowing bool
}

// Clone returns a deep copy of the reserve data.
func (r *ReserveData) Clone() *ReserveData {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LiquidityIndex = cloneBigInt(r.LiquidityIndex)
	clone.VariableBorrowIndex = cloneBigInt(r.VariableBorrowIndex)
	clone.CurrentLiquidityRate = cloneBigInt(r.CurrentLiquidityRate)
	clone.CurrentVariableBorrowRate = cloneBigInt(r.CurrentVariableBorrowRate)
	clone.CurrentStableBorrowRate = cloneBigInt(r.CurrentStableBorrowRate)
	return &clone
}

// Clone returns a deep copy of the user reserve data.
func (u *UserReserveData) Clone() *UserReserveData {
	if u == nil {
		return nil
	}
	clone := *u
	clone.CumulatedLiquidityInterest = cloneBigInt(u.CumulatedLiquidityInterest)
	clone.CumulatedStableBorrowInterest = cloneBigInt(u.CumulatedStableBorrowInterest)
	clone.LastLiquidityIndex = cloneBigInt(u.LastLiquidityIndex)
	return &clone
}

func ensureReserveDefaults(r *ReserveData) {
	if r == nil {
		return
	}
	if r.LiquidityIndex == nil || r.LiquidityIndex.Sign() == 0 {
		r.LiquidityIndex = new(big.Int).Set(ray)
	}
	if r.VariableBorrowIndex == nil || r.VariableBorrowIndex.Sign() == 0 {
		r.VariableBorrowIndex = new(big.Int).Set(ray)
	}
	if r.CurrentLiquidityRate == nil {
		r.CurrentLiquidityRate = big.NewInt(0)
	}
	if r.CurrentVariableBorrowRate == nil {
		r.CurrentVariableBorrowRate = big.NewInt(0)
	}
	if r.CurrentStableBorrowRate == nil {
		r.CurrentStableBorrowRate = big.NewInt(0)
	}
}

func ensureUserDefaults(u *UserReserveData) {
	if u == nil {
		return
	}
	if u.CumulatedLiquidityInterest == nil {
		u.CumulatedLiquidityInterest = big.NewInt(0)
	}
	if u.CumulatedStableBorrowInterest == nil {
		u.CumulatedStableBorrowInterest = big.NewInt(0)
	}
	if u.LastLiquidityIndex == nil {
		u.LastLiquidityIndex = big.NewInt(0)
	}
}
