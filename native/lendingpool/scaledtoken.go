package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// ScaledToken is the interest-bearing deposit token ledger. It stores scaled
// principal amounts only; the real balance of a holder is the stored scaled
// amount multiplied by the reserve's current liquidity index, computed one
// layer up. Keeping the index out of this ledger is what lets interest accrue
// for every holder at once without touching each holder's storage.
//
// Mutations are only reachable through the pool, which performs the
// authorization and index bookkeeping; the ledger never calls back into it.
type ScaledToken struct {
	balances    map[string]*big.Int
	totalSupply *big.Int
}

// NewScaledToken constructs an empty scaled-balance ledger.
func NewScaledToken() *ScaledToken {
	return &ScaledToken{
		balances:    make(map[string]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

func balanceKey(addr crypto.Address) string {
	return string(addr.Bytes())
}

// Mint credits scaledAmount to the account and reports whether the account's
// prior balance was zero. The only failure mode is overflow of the total
// supply, reported as ErrInsufficientSupply.
func (t *ScaledToken) Mint(account crypto.Address, scaledAmount *big.Int) (bool, error) {
	if scaledAmount == nil || scaledAmount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	nextSupply := new(big.Int).Add(t.totalSupply, scaledAmount)
	if nextSupply.Cmp(maxSupply) > 0 {
		return false, ErrInsufficientSupply
	}
	prior := t.balances[balanceKey(account)]
	isFirst := prior == nil || prior.Sign() == 0
	if prior == nil {
		prior = big.NewInt(0)
	}
	t.balances[balanceKey(account)] = new(big.Int).Add(prior, scaledAmount)
	t.totalSupply = nextSupply
	return isFirst, nil
}

// Burn removes scaledAmount from the account. Burning more than the stored
// balance fails with ErrInsufficientBalance and leaves the ledger untouched.
func (t *ScaledToken) Burn(account crypto.Address, scaledAmount *big.Int) error {
	if scaledAmount == nil || scaledAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	prior := t.balances[balanceKey(account)]
	if prior == nil || prior.Cmp(scaledAmount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[balanceKey(account)] = new(big.Int).Sub(prior, scaledAmount)
	t.totalSupply = new(big.Int).Sub(t.totalSupply, scaledAmount)
	return nil
}

// BalanceOf returns the stored scaled principal of the account, not the
// index-adjusted real balance.
func (t *ScaledToken) BalanceOf(account crypto.Address) *big.Int {
	if balance, ok := t.balances[balanceKey(account)]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// TotalSupply returns the scaled total supply.
func (t *ScaledToken) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

// ScaledBalanceAndSupply returns the scaled balance of the account alongside
// the scaled total supply.
func (t *ScaledToken) ScaledBalanceAndSupply(account crypto.Address) (*big.Int, *big.Int) {
	return t.BalanceOf(account), t.TotalSupply()
}
