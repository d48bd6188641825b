package lendingpool

import "math/big"

// RateStrategy computes the reserve rates from post-action liquidity and debt
// totals. Implementations receive totals in underlying units and the current
// pool-wide average stable rate in ray, and return the liquidity, variable and
// stable rates in ray.
type RateStrategy interface {
	ComputeRates(availableLiquidity, totalStableDebt, totalVariableDebt, avgStableRate *big.Int, reserveFactorBps uint64) (liquidityRate, variableRate, stableRate *big.Int)
}

// DefaultRateStrategy is a kinked interest rate curve: the variable rate rises
// from BaseRate by Slope1 per unit of utilisation up to OptimalUtilisation and
// by Slope2 beyond it. The stable rate tracks the variable rate plus a fixed
// offset, and the liquidity rate redistributes the overall borrow rate to
// depositors proportionally to utilisation, net of the reserve factor.
type DefaultRateStrategy struct {
	// BaseRate is the minimum variable borrow APR applied at zero
	// utilisation.
	BaseRate *big.Rat
	// Slope1 is the APR increase per unit of utilisation below the optimal
	// point.
	Slope1 *big.Rat
	// Slope2 governs the additional APR increase beyond the optimal point.
	Slope2 *big.Rat
	// OptimalUtilisation is the utilisation ratio where the slope changes.
	OptimalUtilisation *big.Rat
	// StableOffset is the premium added on top of the variable rate for
	// stable-rate borrows.
	StableOffset *big.Rat
}

// NewDefaultRateStrategy constructs a strategy from decimal inputs, e.g. a 2%
// base rate is expressed as 0.02 and an 80% optimal utilisation as 0.8.
func NewDefaultRateStrategy(baseRate, slope1, slope2, optimal, stableOffset float64) *DefaultRateStrategy {
	s := &DefaultRateStrategy{
		BaseRate:           new(big.Rat),
		Slope1:             new(big.Rat),
		Slope2:             new(big.Rat),
		OptimalUtilisation: new(big.Rat),
		StableOffset:       new(big.Rat),
	}
	s.BaseRate.SetFloat64(baseRate)
	s.Slope1.SetFloat64(slope1)
	s.Slope2.SetFloat64(slope2)
	s.OptimalUtilisation.SetFloat64(optimal)
	s.StableOffset.SetFloat64(stableOffset)
	return s
}

// Clone returns a deep copy of the strategy.
func (s *DefaultRateStrategy) Clone() *DefaultRateStrategy {
	if s == nil {
		return nil
	}
	return &DefaultRateStrategy{
		BaseRate:           cloneRat(s.BaseRate),
		Slope1:             cloneRat(s.Slope1),
		Slope2:             cloneRat(s.Slope2),
		OptimalUtilisation: cloneRat(s.OptimalUtilisation),
		StableOffset:       cloneRat(s.StableOffset),
	}
}

// Utilisation computes U = totalDebt / (availableLiquidity + totalDebt). With
// no debt the utilisation is defined as zero.
func (s *DefaultRateStrategy) Utilisation(availableLiquidity, totalDebt *big.Int) *big.Rat {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return new(big.Rat)
	}
	denom := new(big.Int).Set(totalDebt)
	if availableLiquidity != nil && availableLiquidity.Sign() > 0 {
		denom.Add(denom, availableLiquidity)
	}
	return new(big.Rat).SetFrac(totalDebt, denom)
}

// ComputeRates implements the RateStrategy interface.
func (s *DefaultRateStrategy) ComputeRates(availableLiquidity, totalStableDebt, totalVariableDebt, avgStableRate *big.Int, reserveFactorBps uint64) (*big.Int, *big.Int, *big.Int) {
	totalDebt := new(big.Int).Add(cloneBigInt(totalStableDebt), cloneBigInt(totalVariableDebt))
	utilisation := s.Utilisation(availableLiquidity, totalDebt)

	variable := cloneRat(s.BaseRate)
	optimal := cloneRat(s.OptimalUtilisation)
	if optimal.Sign() == 0 || utilisation.Cmp(optimal) <= 0 {
		variable.Add(variable, new(big.Rat).Mul(cloneRat(s.Slope1), utilisation))
	} else {
		variable.Add(variable, new(big.Rat).Mul(cloneRat(s.Slope1), optimal))
		excess := new(big.Rat).Sub(utilisation, optimal)
		variable.Add(variable, new(big.Rat).Mul(cloneRat(s.Slope2), excess))
	}

	stable := new(big.Rat).Add(variable, cloneRat(s.StableOffset))

	// Overall borrow rate: weighted average of the stable side at the pool
	// average rate and the variable side at the freshly computed rate.
	overall := new(big.Rat)
	if totalDebt.Sign() > 0 {
		weighted := new(big.Rat).Mul(variable, new(big.Rat).SetInt(cloneBigInt(totalVariableDebt)))
		stableRateRat := ratFromRay(avgStableRate)
		weighted.Add(weighted, new(big.Rat).Mul(stableRateRat, new(big.Rat).SetInt(cloneBigInt(totalStableDebt))))
		overall = weighted.Quo(weighted, new(big.Rat).SetInt(totalDebt))
	}

	reserveFactor := new(big.Rat).SetFrac(new(big.Int).SetUint64(reserveFactorBps), basisPoints)
	oneMinusReserve := new(big.Rat).Sub(big.NewRat(1, 1), reserveFactor)
	if oneMinusReserve.Sign() < 0 {
		oneMinusReserve.SetInt64(0)
	}
	liquidity := new(big.Rat).Mul(overall, utilisation)
	liquidity.Mul(liquidity, oneMinusReserve)

	return ratToRay(liquidity), ratToRay(variable), ratToRay(stable)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

func ratToRay(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(ray))
	num := scaled.Num()
	den := scaled.Denom()
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	// Round half up; exact rationals normalise to denominator one and must
	// pass through unchanged.
	result := new(big.Int).Add(num, new(big.Int).Rsh(den, 1))
	return result.Quo(result, den)
}

func ratFromRay(v *big.Int) *big.Rat {
	if v == nil || v.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(v, ray)
}

// DefaultStrategy provides a reasonable starting configuration featuring a
// kinked curve with a modest base rate and a 4% stable premium.
var DefaultStrategy = NewDefaultRateStrategy(0.02, 0.08, 0.75, 0.8, 0.04)
