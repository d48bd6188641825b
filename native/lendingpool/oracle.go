package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// PriceOracle supplies per-asset prices for solvency checks. Prices are
// quoted in a common unit of account per whole underlying unit; the engine
// only ever compares oracle-priced values against each other, so the quote
// currency is opaque to it.
type PriceOracle interface {
	PriceOf(asset crypto.Address) (*big.Int, error)
}

// StaticOracle is a fixed price table. Useful for tests and single-asset
// deployments where the unit of account is the asset itself.
type StaticOracle struct {
	prices map[string]*big.Int
}

// NewStaticOracle constructs an empty static oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]*big.Int)}
}

// SetPrice fixes the price for an asset.
func (o *StaticOracle) SetPrice(asset crypto.Address, price *big.Int) {
	o.prices[string(asset.Bytes())] = cloneBigInt(price)
}

// PriceOf implements the PriceOracle interface. Unknown assets are priced at
// one so same-asset comparisons stay meaningful.
func (o *StaticOracle) PriceOf(asset crypto.Address) (*big.Int, error) {
	if price, ok := o.prices[string(asset.Bytes())]; ok {
		return new(big.Int).Set(price), nil
	}
	return big.NewInt(1), nil
}
