package lendingpool

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
	halfRay     = new(big.Int).Rsh(ray, 1)
	maxSupply   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

const secondsPerYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

func rayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	numerator.Add(numerator, halfUp(b))
	numerator.Quo(numerator, b)
	return numerator
}

// scaledFromAmount converts an underlying amount into its scaled
// representation at the given index. Dust amounts round up to one scaled unit
// so a positive deposit or debt can never vanish.
func scaledFromAmount(amount, index *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, ray)
	scaled.Add(scaled, halfUp(index))
	scaled.Quo(scaled, index)
	if scaled.Sign() == 0 && amount.Sign() > 0 {
		return big.NewInt(1)
	}
	return scaled
}

// amountFromScaled converts a scaled principal back into underlying units at
// the given index.
func amountFromScaled(scaled, index *big.Int) *big.Int {
	if scaled == nil || scaled.Sign() == 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	actual := new(big.Int).Mul(scaled, index)
	actual.Add(actual, halfRay)
	actual.Quo(actual, ray)
	return actual
}

// mulRayFactor applies a ray interest factor to a plain amount.
func mulRayFactor(amount, factor *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || factor == nil || factor.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, factor)
	scaled.Add(scaled, halfRay)
	scaled.Quo(scaled, ray)
	return scaled
}

func percentMul(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	share.Add(share, halfUp(basisPoints))
	share.Quo(share, basisPoints)
	return share
}

// linearInterest computes the factor 1 + rate*delta/secondsPerYear in ray.
// Used for the liquidity index: depositor interest accrues linearly between
// touches.
func linearInterest(rate *big.Int, delta uint64) *big.Int {
	if rate == nil || rate.Sign() == 0 || delta == 0 {
		return new(big.Int).Set(ray)
	}
	accrued := new(big.Int).Mul(rate, new(big.Int).SetUint64(delta))
	accrued.Quo(accrued, big.NewInt(secondsPerYear))
	return accrued.Add(accrued, ray)
}

// compoundedInterest approximates (1+rate/secondsPerYear)^delta in ray using
// the cubic binomial expansion. Debt indexes and stable-debt accrual compound;
// the approximation error is negligible for realistic rates and slightly
// undershoots, which is conservative for borrowers.
func compoundedInterest(rate *big.Int, delta uint64) *big.Int {
	if rate == nil || rate.Sign() == 0 || delta == 0 {
		return new(big.Int).Set(ray)
	}
	exp := new(big.Int).SetUint64(delta)
	expMinusOne := new(big.Int).SetUint64(delta - 1)
	expMinusTwo := big.NewInt(0)
	if delta > 2 {
		expMinusTwo.SetUint64(delta - 2)
	}

	ratePerSecond := new(big.Int).Quo(rate, big.NewInt(secondsPerYear))
	basePowerTwo := rayMul(ratePerSecond, ratePerSecond)
	basePowerThree := rayMul(basePowerTwo, ratePerSecond)

	firstTerm := new(big.Int).Mul(ratePerSecond, exp)

	secondTerm := new(big.Int).Mul(exp, expMinusOne)
	secondTerm.Mul(secondTerm, basePowerTwo)
	secondTerm.Quo(secondTerm, big.NewInt(2))

	thirdTerm := new(big.Int).Mul(exp, expMinusOne)
	thirdTerm.Mul(thirdTerm, expMinusTwo)
	thirdTerm.Mul(thirdTerm, basePowerThree)
	thirdTerm.Quo(thirdTerm, big.NewInt(6))

	result := new(big.Int).Set(ray)
	result.Add(result, firstTerm)
	result.Add(result, secondTerm)
	return result.Add(result, thirdTerm)
}

func halfUp(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	if x.Sign() <= 0 {
		return big.NewInt(0)
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
