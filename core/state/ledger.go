package state

import (
	"errors"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendpool/crypto"
	"lendpool/native/lendingpool"
	"lendpool/storage"
)

var (
	// ErrBalanceOverflow is returned when a credit would push an account
	// balance past 2^256-1.
	ErrBalanceOverflow = errors.New("state: balance overflow")
	// ErrInsufficientFunds is returned when a debit exceeds the account
	// balance.
	ErrInsufficientFunds = errors.New("state: insufficient funds")
)

var (
	reservePrefix  = []byte("lendingpool/reserve/")
	userPrefix     = []byte("lendingpool/user/")
	balancePrefix  = []byte("lendingpool/balance/")
	reserveListKey = gethcrypto.Keccak256([]byte("lendingpool/reserves"))
)

// storedReserve is the wire form of a reserve record. Address-typed fields
// are flattened to raw bytes so the record stays a plain RLP list.
type storedReserve struct {
	Active                 bool
	Frozen                 bool
	BorrowingEnabled       bool
	StableBorrowingEnabled bool

	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	ReserveFactorBps        uint64

	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int

	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int
	CurrentStableBorrowRate   *big.Int

	LastUpdateTimestamp uint64

	DepositToken    []byte
	StableDebtToken []byte
	VariableDebt    []byte
	RateStrategy    []byte

	ID uint8
}

type storedUser struct {
	Address                       []byte
	CumulatedLiquidityInterest    *big.Int
	CumulatedStableBorrowInterest *big.Int
	LastLiquidityIndex            *big.Int
	LastUpdateTimestamp           uint64
	UseAsCollateral               bool
	Borrowing                     bool
}

// Ledger persists reserve and user records in a key-value store. Keys are
// keccak hashes of a domain prefix plus the raw address bytes, so records of
// different kinds can never collide.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps the given database as the lending pool state store.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func reserveKey(asset crypto.Address) []byte {
	return gethcrypto.Keccak256(reservePrefix, asset.Bytes())
}

func userKey(asset, user crypto.Address) []byte {
	return gethcrypto.Keccak256(userPrefix, asset.Bytes(), user.Bytes())
}

func balanceKey(asset, account crypto.Address) []byte {
	return gethcrypto.Keccak256(balancePrefix, asset.Bytes(), account.Bytes())
}

// GetReserve loads the reserve record for an asset, or nil when the asset has
// no reserve.
func (l *Ledger) GetReserve(asset crypto.Address) (*lendingpool.ReserveData, error) {
	raw, err := l.db.Get(reserveKey(asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedReserve
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode reserve: %w", err)
	}
	reserve := &lendingpool.ReserveData{
		Config: lendingpool.ReserveConfiguration{
			Active:                  stored.Active,
			Frozen:                  stored.Frozen,
			BorrowingEnabled:        stored.BorrowingEnabled,
			StableBorrowingEnabled:  stored.StableBorrowingEnabled,
			LTVBps:                  stored.LTVBps,
			LiquidationThresholdBps: stored.LiquidationThresholdBps,
			LiquidationBonusBps:     stored.LiquidationBonusBps,
			ReserveFactorBps:        stored.ReserveFactorBps,
		},
		LiquidityIndex:            stored.LiquidityIndex,
		VariableBorrowIndex:       stored.VariableBorrowIndex,
		CurrentLiquidityRate:      stored.CurrentLiquidityRate,
		CurrentVariableBorrowRate: stored.CurrentVariableBorrowRate,
		CurrentStableBorrowRate:   stored.CurrentStableBorrowRate,
		LastUpdateTimestamp:       stored.LastUpdateTimestamp,
		ID:                        stored.ID,
	}
	reserve.DepositToken = decodeAddress(stored.DepositToken)
	reserve.StableDebtToken = decodeAddress(stored.StableDebtToken)
	reserve.VariableDebt = decodeAddress(stored.VariableDebt)
	reserve.RateStrategy = decodeAddress(stored.RateStrategy)
	return reserve, nil
}

// PutReserve writes the reserve record and registers the asset in the reserve
// list on first sight.
func (l *Ledger) PutReserve(asset crypto.Address, reserve *lendingpool.ReserveData) error {
	if reserve == nil {
		return errors.New("state: nil reserve")
	}
	stored := storedReserve{
		Active:                  reserve.Config.Active,
		Frozen:                  reserve.Config.Frozen,
		BorrowingEnabled:        reserve.Config.BorrowingEnabled,
		StableBorrowingEnabled:  reserve.Config.StableBorrowingEnabled,
		LTVBps:                  reserve.Config.LTVBps,
		LiquidationThresholdBps: reserve.Config.LiquidationThresholdBps,
		LiquidationBonusBps:     reserve.Config.LiquidationBonusBps,
		ReserveFactorBps:        reserve.Config.ReserveFactorBps,

		LiquidityIndex:            nonNil(reserve.LiquidityIndex),
		VariableBorrowIndex:       nonNil(reserve.VariableBorrowIndex),
		CurrentLiquidityRate:      nonNil(reserve.CurrentLiquidityRate),
		CurrentVariableBorrowRate: nonNil(reserve.CurrentVariableBorrowRate),
		CurrentStableBorrowRate:   nonNil(reserve.CurrentStableBorrowRate),

		LastUpdateTimestamp: reserve.LastUpdateTimestamp,

		DepositToken:    reserve.DepositToken.Bytes(),
		StableDebtToken: reserve.StableDebtToken.Bytes(),
		VariableDebt:    reserve.VariableDebt.Bytes(),
		RateStrategy:    reserve.RateStrategy.Bytes(),

		ID: reserve.ID,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode reserve: %w", err)
	}
	known, err := l.db.Has(reserveKey(asset))
	if err != nil {
		return err
	}
	if err := l.db.Put(reserveKey(asset), raw); err != nil {
		return err
	}
	if !known {
		return l.appendReserveAsset(asset)
	}
	return nil
}

// GetUserReserve loads the user's record on a reserve, or nil when the user
// has never touched it.
func (l *Ledger) GetUserReserve(asset, user crypto.Address) (*lendingpool.UserReserveData, error) {
	raw, err := l.db.Get(userKey(asset, user))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedUser
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode user reserve: %w", err)
	}
	return &lendingpool.UserReserveData{
		Address:                       decodeAddress(stored.Address),
		CumulatedLiquidityInterest:    stored.CumulatedLiquidityInterest,
		CumulatedStableBorrowInterest: stored.CumulatedStableBorrowInterest,
		LastLiquidityIndex:            stored.LastLiquidityIndex,
		LastUpdateTimestamp:           stored.LastUpdateTimestamp,
		UseAsCollateral:               stored.UseAsCollateral,
		Borrowing:                     stored.Borrowing,
	}, nil
}

// PutUserReserve writes the user's record on a reserve.
func (l *Ledger) PutUserReserve(asset crypto.Address, user *lendingpool.UserReserveData) error {
	if user == nil {
		return errors.New("state: nil user reserve")
	}
	stored := storedUser{
		Address:                       user.Address.Bytes(),
		CumulatedLiquidityInterest:    nonNil(user.CumulatedLiquidityInterest),
		CumulatedStableBorrowInterest: nonNil(user.CumulatedStableBorrowInterest),
		LastLiquidityIndex:            nonNil(user.LastLiquidityIndex),
		LastUpdateTimestamp:           user.LastUpdateTimestamp,
		UseAsCollateral:               user.UseAsCollateral,
		Borrowing:                     user.Borrowing,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode user reserve: %w", err)
	}
	return l.db.Put(userKey(asset, user.Address), raw)
}

// ReserveAssets returns the list of initialised reserve assets in
// registration order.
func (l *Ledger) ReserveAssets() ([]crypto.Address, error) {
	raw, err := l.db.Get(reserveListKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries [][]byte
	if err := rlp.DecodeBytes(raw, &entries); err != nil {
		return nil, fmt.Errorf("state: decode reserve list: %w", err)
	}
	assets := make([]crypto.Address, 0, len(entries))
	for _, entry := range entries {
		assets = append(assets, decodeAddress(entry))
	}
	return assets, nil
}

func (l *Ledger) appendReserveAsset(asset crypto.Address) error {
	assets, err := l.ReserveAssets()
	if err != nil {
		return err
	}
	entries := make([][]byte, 0, len(assets)+1)
	for _, known := range assets {
		if known.Equal(asset) {
			return nil
		}
		entries = append(entries, known.Bytes())
	}
	entries = append(entries, asset.Bytes())
	raw, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return fmt.Errorf("state: encode reserve list: %w", err)
	}
	return l.db.Put(reserveListKey, raw)
}

func decodeAddress(b []byte) crypto.Address {
	if len(b) != 20 {
		return crypto.Address{}
	}
	return crypto.NewAddress(crypto.PoolPrefix, b)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// TokenLedger is a minimal fungible-token ledger for one underlying asset,
// backed by the same key-value store as the pool state. Balances are bounded
// to 256 bits, matching the widest amount the pool accepts.
type TokenLedger struct {
	db    storage.Database
	asset crypto.Address
}

// NewTokenLedger creates a balance ledger for the given asset.
func NewTokenLedger(db storage.Database, asset crypto.Address) *TokenLedger {
	return &TokenLedger{db: db, asset: asset}
}

// BalanceOf returns the account's balance; unknown accounts hold zero.
func (t *TokenLedger) BalanceOf(account crypto.Address) (*big.Int, error) {
	raw, err := t.db.Get(balanceKey(t.asset, account))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	var balance big.Int
	if err := rlp.DecodeBytes(raw, &balance); err != nil {
		return nil, fmt.Errorf("state: decode balance: %w", err)
	}
	return &balance, nil
}

func (t *TokenLedger) setBalance(account crypto.Address, balance *big.Int) error {
	raw, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("state: encode balance: %w", err)
	}
	return t.db.Put(balanceKey(t.asset, account), raw)
}

// Mint credits freshly issued units to the account. Intended for genesis and
// faucet flows; the pool itself never mints underlying.
func (t *TokenLedger) Mint(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("state: mint amount must be positive")
	}
	balance, err := t.BalanceOf(account)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, amount)
	if _, overflow := uint256.FromBig(next); overflow {
		return ErrBalanceOverflow
	}
	return t.setBalance(account, next)
}

// Transfer debits from and credits to.
func (t *TokenLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

// TransferFrom moves amount from the owner to the recipient. The ledger is
// only reachable through the pool, which enforces who may spend whose
// balance, so no extra allowance accounting happens here.
func (t *TokenLedger) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

func (t *TokenLedger) move(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: transfer amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(toBalance, amount)
	if _, overflow := uint256.FromBig(next); overflow {
		return ErrBalanceOverflow
	}
	if err := t.setBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return t.setBalance(to, next)
}
