package lendingpool

import (
	"math/big"
	"time"

	"lendpool/crypto"
)

// StableDebtLedger tracks stable-rate borrow positions: each borrower's
// principal, the personal rate locked in at borrow time, and the last accrual
// timestamp, together with the pool-wide weighted-average rate and total
// supply. Interest accrues lazily: a position is only reconciled when it is
// next touched, by compounding the personal rate over the elapsed time.
//
// The aggregate average rate and total supply are recomputed, not nudged, on
// every mint and burn so they stay consistent under rounding. Both collapse to
// exactly zero when the last position exits.
type StableDebtLedger struct {
	balances   map[string]*big.Int
	userRate   map[string]*big.Int
	timestamps map[string]uint64
	allowances map[string]*big.Int

	totalSupply          *big.Int
	avgRate              *big.Int
	totalSupplyTimestamp uint64

	nowFn func() uint64
}

// NewStableDebtLedger constructs an empty stable-debt ledger.
func NewStableDebtLedger() *StableDebtLedger {
	return &StableDebtLedger{
		balances:    make(map[string]*big.Int),
		userRate:    make(map[string]*big.Int),
		timestamps:  make(map[string]uint64),
		allowances:  make(map[string]*big.Int),
		totalSupply: big.NewInt(0),
		avgRate:     big.NewInt(0),
		nowFn:       func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the time source used for accrual. Primarily intended
// for tests to provide deterministic timestamps.
func (l *StableDebtLedger) SetNowFunc(now func() uint64) {
	if now == nil {
		l.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	l.nowFn = now
}

func allowanceKey(owner, delegatee crypto.Address) string {
	return string(owner.Bytes()) + "|" + string(delegatee.Bytes())
}

// ApproveDelegation grants delegatee the right to draw stable debt against the
// owner's collateral up to amount.
func (l *StableDebtLedger) ApproveDelegation(owner, delegatee crypto.Address, amount *big.Int) {
	l.allowances[allowanceKey(owner, delegatee)] = cloneBigInt(amount)
}

// BorrowAllowance returns the remaining delegated borrowing power from owner
// to delegatee.
func (l *StableDebtLedger) BorrowAllowance(owner, delegatee crypto.Address) *big.Int {
	if allowance, ok := l.allowances[allowanceKey(owner, delegatee)]; ok {
		return new(big.Int).Set(allowance)
	}
	return big.NewInt(0)
}

func (l *StableDebtLedger) decreaseBorrowAllowance(owner, delegatee crypto.Address, amount *big.Int) error {
	current := l.BorrowAllowance(owner, delegatee)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	l.allowances[allowanceKey(owner, delegatee)] = current.Sub(current, amount)
	return nil
}

// PrincipalBalanceOf returns the principal debt booked for the user since the
// last mint or burn touch, before any pending accrual.
func (l *StableDebtLedger) PrincipalBalanceOf(user crypto.Address) *big.Int {
	if balance, ok := l.balances[balanceKey(user)]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

/// BalanceOf returns the user's current debt: principal compounded at the
// personal stable rate since the user's last touch.
func (l *StableDebtLedger) BalanceOf(user crypto.Address) *big.Int {
	principal := l.PrincipalBalanceOf(user)
	if principal.Sign() == 0 {
		return big.NewInt(0)
	}
	rate := l.userRate[balanceKey(user)]
	last := l.timestamps[balanceKey(user)]
	now := l.nowFn()
	var delta uint64
	if now > last {
		delta = now - last
	}
	return mulRayFactor(principal, compoundedInterest(rate, delta))
}

// GetUserStableRate returns the personal rate locked in for the user, in ray.
func (l *StableDebtLedger) GetUserStableRate(user crypto.Address) *big.Int {
	if rate, ok := l.userRate[balanceKey(user)]; ok {
		return new(big.Int).Set(rate)
	}
	return big.NewInt(0)
}

// GetUserLastUpdated returns the timestamp of the user's last accrual touch.
func (l *StableDebtLedger) GetUserLastUpdated(user crypto.Address) uint64 {
	return l.timestamps[balanceKey(user)]
}

// AvgStableRate returns the pool-wide weighted average stable rate in ray.
func (l *StableDebtLedger) AvgStableRate() *big.Int {
	return new(big.Int).Set(l.avgRate)
}

// PrincipalTotalSupply returns the booked principal supply.
func (l *StableDebtLedger) PrincipalTotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

// TotalSupply returns the supply with interest: the booked principal
// compounded at the average rate since the last supply touch.
func (l *StableDebtLedger) TotalSupply() *big.Int {
	return l.calcTotalSupply(l.avgRate)
}

// GetTotalSupplyAndAvgRate returns the supply with interest and the average
// stable rate.
func (l *StableDebtLedger) GetTotalSupplyAndAvgRate() (*big.Int, *big.Int) {
	return l.TotalSupply(), l.AvgStableRate()
}

// GetTotalSupplyLastUpdated returns the timestamp of the last supply touch.
func (l *StableDebtLedger) GetTotalSupplyLastUpdated() uint64 {
	return l.totalSupplyTimestamp
}

// GetSupplyData returns the principal supply, the supply with interest, the
// average stable rate and the last supply update timestamp.
func (l *StableDebtLedger) GetSupplyData() (*big.Int, *big.Int, *big.Int, uint64) {
	avgRate := l.AvgStableRate()
	return l.PrincipalTotalSupply(), l.calcTotalSupply(avgRate), avgRate, l.totalSupplyTimestamp
}

func (l *StableDebtLedger) calcTotalSupply(avgRate *big.Int) *big.Int {
	if l.totalSupply.Sign() == 0 {
		return big.NewInt(0)
	}
	now := l.nowFn()
	var delta uint64
	if now > l.totalSupplyTimestamp {
		delta = now - l.totalSupplyTimestamp
	}
	return mulRayFactor(l.totalSupply, compoundedInterest(avgRate, delta))
}

// calculateBalanceIncrease reconciles the user's pending accrual and returns
// the previous principal, the current balance and the increase between them.
// A user with no principal accrues nothing.
func (l *StableDebtLedger) calculateBalanceIncrease(user crypto.Address) (*big.Int, *big.Int, *big.Int) {
	previous := l.PrincipalBalanceOf(user)
	if previous.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	current := l.BalanceOf(user)
	increase := new(big.Int).Sub(current, previous)
	if increase.Sign() < 0 {
		increase = big.NewInt(0)
		current = new(big.Int).Set(previous)
	}
	return previous, current, increase
}

// Mint books new stable debt against onBehalfOf at the given rate (ray) and
// reports whether the position was previously empty. When user differs from
// onBehalfOf the delegated borrow allowance is drawn down first.
//
// The accrued-but-unbooked interest of the position is folded into principal
// here, so idle positions never need storage writes between touches. The
// personal rate becomes the weighted average of the prior balance at its old
// rate and the new amount at the new rate; the pool average is recomputed the
// same way over the previous supply.
func (l *StableDebtLedger) Mint(user, onBehalfOf crypto.Address, amount, rate *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	if rate == nil {
		rate = big.NewInt(0)
	}
	if !user.Equal(onBehalfOf) {
		if err := l.decreaseBorrowAllowance(onBehalfOf, user, amount); err != nil {
			return false, err
		}
	}

	previousBalance, currentBalance, balanceIncrease := l.calculateBalanceIncrease(onBehalfOf)

	previousSupply := l.TotalSupply()
	nextSupply := new(big.Int).Add(previousSupply, amount)
	if nextSupply.Cmp(maxSupply) > 0 {
		return false, ErrInsufficientSupply
	}

	// New personal rate: weighted average of the prior balance at its old
	// rate and the minted amount at the new rate.
	oldRate := l.GetUserStableRate(onBehalfOf)
	numerator := new(big.Int).Mul(oldRate, currentBalance)
	numerator.Add(numerator, new(big.Int).Mul(rate, amount))
	denominator := new(big.Int).Add(currentBalance, amount)
	l.userRate[balanceKey(onBehalfOf)] = new(big.Int).Quo(numerator, denominator)

	// New pool average: weighted average of the previous supply at the old
	// average and the minted amount at the new rate.
	avgNumerator := new(big.Int).Mul(l.avgRate, previousSupply)
	avgNumerator.Add(avgNumerator, new(big.Int).Mul(rate, amount))
	l.avgRate = avgNumerator.Quo(avgNumerator, nextSupply)

	now := l.nowFn()
	l.timestamps[balanceKey(onBehalfOf)] = now
	l.totalSupplyTimestamp = now
	l.totalSupply = nextSupply

	credited := new(big.Int).Add(amount, balanceIncrease)
	l.balances[balanceKey(onBehalfOf)] = new(big.Int).Add(previousBalance, credited)

	return previousBalance.Sign() == 0, nil
}

// Burn removes stable debt from the user. The pending accrual is reconciled
// first; if the accrued interest exceeds the burnt amount the surplus is
// booked back into principal, otherwise the shortfall is burnt from it.
func (l *StableDebtLedger) Burn(user crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	previousBalance, currentBalance, balanceIncrease := l.calculateBalanceIncrease(user)
	previousSupply := l.TotalSupply()
	userRate := l.GetUserStableRate(user)

	// Reject before touching any aggregate so a failed burn has no side
	// effects.
	if balanceIncrease.Cmp(amount) <= 0 {
		shortfall := new(big.Int).Sub(amount, balanceIncrease)
		if previousBalance.Cmp(shortfall) < 0 {
			return ErrInsufficientBalance
		}
	}

	// The total supply and each position accrue separately, so the last
	// borrower repaying may try to burn more than the remaining supply. The
	// aggregates are reset to exactly zero rather than left to converge,
	// which also removes the division below.
	if previousSupply.Cmp(amount) <= 0 {
		l.avgRate = big.NewInt(0)
		l.totalSupply = big.NewInt(0)
	} else {
		nextSupply := new(big.Int).Sub(previousSupply, amount)
		firstTerm := new(big.Int).Mul(l.avgRate, previousSupply)
		secondTerm := new(big.Int).Mul(userRate, amount)
		// Rounding can make the user's share exceed the booked aggregate;
		// resetting the average avoids an underflowing subtraction.
		if secondTerm.Cmp(firstTerm) >= 0 {
			l.avgRate = big.NewInt(0)
		} else {
			diff := firstTerm.Sub(firstTerm, secondTerm)
			l.avgRate = diff.Quo(diff, nextSupply)
		}
		l.totalSupply = nextSupply
	}

	now := l.nowFn()
	if amount.Cmp(currentBalance) == 0 {
		l.userRate[balanceKey(user)] = big.NewInt(0)
		l.timestamps[balanceKey(user)] = 0
	} else {
		l.timestamps[balanceKey(user)] = now
	}
	l.totalSupplyTimestamp = now

	if balanceIncrease.Cmp(amount) > 0 {
		surplus := new(big.Int).Sub(balanceIncrease, amount)
		prior := l.PrincipalBalanceOf(user)
		l.balances[balanceKey(user)] = prior.Add(prior, surplus)
		return nil
	}
	shortfall := new(big.Int).Sub(amount, balanceIncrease)
	prior := l.PrincipalBalanceOf(user)
	l.balances[balanceKey(user)] = prior.Sub(prior, shortfall)
	return nil
}
