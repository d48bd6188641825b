package lendingpool

import (
	"math/big"
	"time"

	"lendpool/core/events"
	"lendpool/core/types"
	"lendpool/crypto"
	"lendpool/observability"
)

// poolState is the persistence boundary for reserve and user records. The
// pool never assumes a storage substrate; anything that can round-trip these
// records satisfies it.
type poolState interface {
	GetReserve(asset crypto.Address) (*ReserveData, error)
	PutReserve(asset crypto.Address, reserve *ReserveData) error
	GetUserReserve(asset, user crypto.Address) (*UserReserveData, error)
	PutUserReserve(asset crypto.Address, user *UserReserveData) error
	ReserveAssets() ([]crypto.Address, error)
}

// BalanceToken moves units of an underlying asset between accounts. The pool
// uses it to take custody of deposits and repayments and to release
// withdrawals and borrows; its internals are opaque.
type BalanceToken interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(from, to crypto.Address, amount *big.Int) error
	BalanceOf(addr crypto.Address) (*big.Int, error)
}

type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e poolEvent) Event() *types.Event { return e.evt }

// reserveLedgers bundles the in-memory collaborators of one reserve. The
// token ledgers are owned by the pool and only mutated through it, which is
// the authorization boundary the ledgers themselves do not re-check; they
// never call back into the pool.
type reserveLedgers struct {
	depositToken *ScaledToken
	stableDebt   *StableDebtLedger
	strategy     RateStrategy
	underlying   BalanceToken
}

// Pool sequences the lending pool actions. Every action follows the same
// fixed order: validate, accrue reserve state, recompute rates around the
// ledger mutation, move underlying value, emit events. Any failed check
// aborts before persistent state is written, so a failed action has no side
// effects.
type Pool struct {
	state   poolState
	emitter events.Emitter
	oracle  PriceOracle

	custody  crypto.Address
	treasury crypto.Address

	maxStableLoanPercentBps uint64

	ledgers map[string]*reserveLedgers
	nowFn   func() uint64
}

// NewPool constructs a lending pool with the custody account that holds
// underlying liquidity. Events default to a no-op emitter.
func NewPool(custody crypto.Address) *Pool {
	return &Pool{
		emitter:                 events.NoopEmitter{},
		custody:                 custody,
		maxStableLoanPercentBps: 2500,
		ledgers:                 make(map[string]*reserveLedgers),
		nowFn:                   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the pool to the external persistence layer.
func (p *Pool) SetState(state poolState) { p.state = state }

// SetOracle configures the price oracle used by solvency checks.
func (p *Pool) SetOracle(oracle PriceOracle) { p.oracle = oracle }

// SetTreasury configures the account receiving reserve-factor interest.
func (p *Pool) SetTreasury(addr crypto.Address) { p.treasury = addr }

// SetMaxStableLoanPercent bounds a single stable borrow to the given share of
// available liquidity, in basis points.
func (p *Pool) SetMaxStableLoanPercent(bps uint64) {
	if p == nil {
		return
	}
	p.maxStableLoanPercentBps = bps
}

// SetEmitter configures the event emitter used by the pool. Passing nil
// resets the emitter to a no-op implementation.
func (p *Pool) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetNowFunc overrides the time source used by the pool and its ledgers.
// Primarily intended for tests to provide deterministic timestamps.
func (p *Pool) SetNowFunc(now func() uint64) {
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	p.nowFn = now
	for _, ledgers := range p.ledgers {
		ledgers.stableDebt.SetNowFunc(now)
	}
}

func (p *Pool) emit(event *types.Event) {
	if p == nil || p.emitter == nil || event == nil {
		return
	}
	p.emitter.Emit(poolEvent{evt: event})
}

// InitReserve registers a new reserve for the given underlying asset,
// creating its deposit-token and stable-debt ledgers. The reserve keeps its
// position in the active reserves list as its identifier.
func (p *Pool) InitReserve(asset crypto.Address, underlying BalanceToken, strategy RateStrategy, config ReserveConfiguration) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if underlying == nil {
		return errUnderlyingNotWired
	}
	if strategy == nil {
		strategy = DefaultStrategy
	}
	existing, err := p.state.GetReserve(asset)
	if err != nil {
		return err
	}
	if existing != nil {
		// The record survives restarts; rebind the in-memory collaborators so
		// the reserve stays serviceable, but keep the stored state.
		if _, bound := p.ledgers[string(asset.Bytes())]; !bound {
			stableDebt := NewStableDebtLedger()
			stableDebt.SetNowFunc(p.nowFn)
			p.ledgers[string(asset.Bytes())] = &reserveLedgers{
				depositToken: NewScaledToken(),
				stableDebt:   stableDebt,
				strategy:     strategy,
				underlying:   underlying,
			}
		}
		return ErrReserveExists
	}
	assets, err := p.state.ReserveAssets()
	if err != nil {
		return err
	}
	reserve := &ReserveData{
		Config:       config,
		ID:           uint8(len(assets)),
		DepositToken: asset,
	}
	ensureReserveDefaults(reserve)
	reserve.LastUpdateTimestamp = p.nowFn()

	stableDebt := NewStableDebtLedger()
	stableDebt.SetNowFunc(p.nowFn)
	p.ledgers[string(asset.Bytes())] = &reserveLedgers{
		depositToken: NewScaledToken(),
		stableDebt:   stableDebt,
		strategy:     strategy,
		underlying:   underlying,
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return err
	}
	p.emit(NewReserveInitializedEvent(asset, reserve.ID))
	return nil
}

// Deposit moves amount of the underlying asset from the caller into pool
// custody and mints interest-bearing deposit tokens to the beneficiary. The
// first deposit of a beneficiary marks the reserve as collateral for them.
func (p *Pool) Deposit(caller crypto.Address, asset crypto.Address, amount *big.Int, onBehalfOf crypto.Address) (err error) {
	defer recordAction("deposit", time.Now(), &err)

	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := validateDeposit(reserve, amount); err != nil {
		return err
	}
	now := p.nowFn()
	updateState(reserve, now)

	scaledAmount := scaledFromAmount(amount, reserve.LiquidityIndex)
	next := new(big.Int).Add(ledgers.depositToken.TotalSupply(), scaledAmount)
	if next.Cmp(maxSupply) > 0 {
		return ErrInsufficientSupply
	}
	priorScaled := ledgers.depositToken.BalanceOf(onBehalfOf)

	available, err := ledgers.underlying.BalanceOf(p.custody)
	if err != nil {
		return err
	}
	stableSupply, avgRate := ledgers.stableDebt.GetTotalSupplyAndAvgRate()
	updateInterestRates(reserve, ledgers.strategy, available, amount, nil, stableSupply, nil, avgRate)

	if err := ledgers.underlying.TransferFrom(caller, p.custody, amount); err != nil {
		return err
	}
	isFirstDeposit, err := ledgers.depositToken.Mint(onBehalfOf, scaledAmount)
	if err != nil {
		return err
	}

	user, err := p.loadUserReserve(asset, onBehalfOf)
	if err != nil {
		return err
	}
	user.LastUpdateTimestamp = now
	accrueDepositInterest(user, priorScaled, reserve.LiquidityIndex)
	if isFirstDeposit {
		user.UseAsCollateral = true
	}
	if err := p.state.PutUserReserve(asset, user); err != nil {
		return err
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return err
	}

	if isFirstDeposit {
		p.emit(NewCollateralEnabledEvent(asset, onBehalfOf))
	}
	p.emit(NewDepositEvent(asset, caller, onBehalfOf, amount))
	return nil
}

// Withdraw burns the caller's deposit tokens for amount of underlying and
// releases it to the recipient. Emptying the position clears the collateral
// flag.
func (p *Pool) Withdraw(caller crypto.Address, asset crypto.Address, amount *big.Int, to crypto.Address) (withdrawn *big.Int, err error) {
	defer recordAction("withdraw", time.Now(), &err)

	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	now := p.nowFn()
	income := normalizedIncome(reserve, now)
	scaledBalance := ledgers.depositToken.BalanceOf(caller)
	userBalance := amountFromScaled(scaledBalance, income)

	positions, err := p.userPositions(caller)
	if err != nil {
		return nil, err
	}
	if err := validateWithdraw(asset, amount, userBalance, reserve, positions, p.oracle); err != nil {
		return nil, err
	}
	available, err := ledgers.underlying.BalanceOf(p.custody)
	if err != nil {
		return nil, err
	}
	if available.Cmp(amount) < 0 {
		return nil, ErrNotEnoughLiquidity
	}

	updateState(reserve, now)
	stableSupply, avgRate := ledgers.stableDebt.GetTotalSupplyAndAvgRate()
	updateInterestRates(reserve, ledgers.strategy, available, nil, amount, stableSupply, nil, avgRate)

	scaledBurn := scaledFromAmount(amount, reserve.LiquidityIndex)
	if amount.Cmp(userBalance) == 0 || scaledBurn.Cmp(scaledBalance) > 0 {
		scaledBurn = scaledBalance
	}
	if err := ledgers.depositToken.Burn(caller, scaledBurn); err != nil {
		return nil, err
	}

	user, err := p.loadUserReserve(asset, caller)
	if err != nil {
		return nil, err
	}
	user.LastUpdateTimestamp = now
	accrueDepositInterest(user, scaledBalance, reserve.LiquidityIndex)
	// Rounding can route a partial withdrawal through the entire scaled
	// balance; the flag follows the position, not the requested amount.
	positionClosed := scaledBurn.Cmp(scaledBalance) == 0
	collateralCleared := false
	if positionClosed && user.UseAsCollateral {
		user.UseAsCollateral = false
		collateralCleared = true
	}

	if err := ledgers.underlying.Transfer(p.custody, to, amount); err != nil {
		return nil, err
	}

	if err := p.state.PutUserReserve(asset, user); err != nil {
		return nil, err
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return nil, err
	}

	if collateralCleared {
		p.emit(NewCollateralDisabledEvent(asset, caller))
	}
	p.emit(NewWithdrawEvent(asset, caller, to, amount))
	return new(big.Int).Set(amount), nil
}

// WithdrawAll withdraws the caller's entire current balance, resolving the
// live index-adjusted amount first.
func (p *Pool) WithdrawAll(caller crypto.Address, asset crypto.Address, to crypto.Address) (*big.Int, error) {
	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	income := normalizedIncome(reserve, p.nowFn())
	balance := amountFromScaled(ledgers.depositToken.BalanceOf(caller), income)
	return p.Withdraw(caller, asset, balance, to)
}

// Borrow draws amount of underlying against onBehalfOf's collateral at the
// reserve's current stable rate and transfers it to the caller. When caller
// and beneficiary differ the caller spends delegated borrowing power.
func (p *Pool) Borrow(caller crypto.Address, asset crypto.Address, amount *big.Int, onBehalfOf crypto.Address) (err error) {
	defer recordAction("borrow", time.Now(), &err)

	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return err
	}
	available, err := ledgers.underlying.BalanceOf(p.custody)
	if err != nil {
		return err
	}
	positions, err := p.userPositions(onBehalfOf)
	if err != nil {
		return err
	}
	if err := validateBorrow(asset, amount, available, reserve, positions, p.oracle, true, p.maxStableLoanPercentBps); err != nil {
		return err
	}

	now := p.nowFn()
	updateState(reserve, now)

	rate := new(big.Int).Set(reserve.CurrentStableBorrowRate)
	pendingInterest := pendingStableInterest(ledgers.stableDebt, onBehalfOf)
	isFirstBorrow, err := ledgers.stableDebt.Mint(caller, onBehalfOf, amount, rate)
	if err != nil {
		return err
	}

	stableSupply, avgRate := ledgers.stableDebt.GetTotalSupplyAndAvgRate()
	updateInterestRates(reserve, ledgers.strategy, available, nil, amount, stableSupply, nil, avgRate)

	user, err := p.loadUserReserve(asset, onBehalfOf)
	if err != nil {
		return err
	}
	user.LastUpdateTimestamp = now
	user.CumulatedStableBorrowInterest = new(big.Int).Add(user.CumulatedStableBorrowInterest, pendingInterest)
	if isFirstBorrow {
		user.Borrowing = true
	}

	if err := ledgers.underlying.Transfer(p.custody, caller, amount); err != nil {
		return err
	}

	if err := p.state.PutUserReserve(asset, user); err != nil {
		return err
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return err
	}

	p.emit(NewBorrowEvent(asset, caller, onBehalfOf, amount, rate))
	return nil
}

// Repay burns amount of onBehalfOf's stable debt, pulling the repaid
// underlying from the caller into custody. Repaying more than owed is
// rejected; RepayAll settles the live compounded balance.
func (p *Pool) Repay(caller crypto.Address, asset crypto.Address, amount *big.Int, onBehalfOf crypto.Address) (repaid *big.Int, err error) {
	defer recordAction("repay", time.Now(), &err)

	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	debt := ledgers.stableDebt.BalanceOf(onBehalfOf)
	if err := validateRepay(amount, debt); err != nil {
		return nil, err
	}

	now := p.nowFn()
	updateState(reserve, now)

	available, err := ledgers.underlying.BalanceOf(p.custody)
	if err != nil {
		return nil, err
	}
	// Pull the repayment into custody before touching the debt ledger, so a
	// failed transfer aborts with the position intact. The burn below cannot
	// fail once the amount is validated against the live balance.
	if err := ledgers.underlying.TransferFrom(caller, p.custody, amount); err != nil {
		return nil, err
	}

	pendingInterest := pendingStableInterest(ledgers.stableDebt, onBehalfOf)
	if err := ledgers.stableDebt.Burn(onBehalfOf, amount); err != nil {
		return nil, err
	}

	stableSupply, avgRate := ledgers.stableDebt.GetTotalSupplyAndAvgRate()
	updateInterestRates(reserve, ledgers.strategy, available, amount, nil, stableSupply, nil, avgRate)

	user, err := p.loadUserReserve(asset, onBehalfOf)
	if err != nil {
		return nil, err
	}
	user.LastUpdateTimestamp = now
	user.CumulatedStableBorrowInterest = new(big.Int).Add(user.CumulatedStableBorrowInterest, pendingInterest)
	if amount.Cmp(debt) == 0 {
		user.Borrowing = false
	}

	if err := p.state.PutUserReserve(asset, user); err != nil {
		return nil, err
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return nil, err
	}

	p.emit(NewRepayEvent(asset, onBehalfOf, caller, amount))
	return new(big.Int).Set(amount), nil
}

// RepayAll settles onBehalfOf's entire outstanding stable debt, resolving
// the live compounded amount first.
func (p *Pool) RepayAll(caller crypto.Address, asset crypto.Address, onBehalfOf crypto.Address) (*big.Int, error) {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	debt := ledgers.stableDebt.BalanceOf(onBehalfOf)
	return p.Repay(caller, asset, debt, onBehalfOf)
}

// ApproveDelegation grants delegatee borrowing power against the owner's
// collateral on the given reserve's stable debt.
func (p *Pool) ApproveDelegation(owner crypto.Address, asset crypto.Address, delegatee crypto.Address, amount *big.Int) error {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return err
	}
	ledgers.stableDebt.ApproveDelegation(owner, delegatee, amount)
	return nil
}

// BorrowAllowance returns the remaining delegated borrowing power from owner
// to delegatee on the given reserve.
func (p *Pool) BorrowAllowance(owner crypto.Address, asset crypto.Address, delegatee crypto.Address) (*big.Int, error) {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return ledgers.stableDebt.BorrowAllowance(owner, delegatee), nil
}

// MintToTreasury mints deposit tokens for accrued reserve-factor interest to
// the configured treasury.
func (p *Pool) MintToTreasury(asset crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if p.treasury.IsZero() {
		return errTreasuryNotConfigured
	}
	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return err
	}
	now := p.nowFn()
	updateState(reserve, now)
	scaled := scaledFromAmount(amount, reserve.LiquidityIndex)
	if _, err := ledgers.depositToken.Mint(p.treasury, scaled); err != nil {
		return err
	}
	if err := p.state.PutReserve(asset, reserve); err != nil {
		return err
	}
	p.emit(NewTreasuryMintEvent(asset, amount))
	return nil
}

// DepositBalanceOf returns the user's current deposit balance: the stored
// scaled principal multiplied by the reserve's normalised income as of now.
func (p *Pool) DepositBalanceOf(asset, user crypto.Address) (*big.Int, error) {
	reserve, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	income := normalizedIncome(reserve, p.nowFn())
	return amountFromScaled(ledgers.depositToken.BalanceOf(user), income), nil
}

// ScaledDepositBalanceOf returns the stored scaled principal of the user.
func (p *Pool) ScaledDepositBalanceOf(asset, user crypto.Address) (*big.Int, error) {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return ledgers.depositToken.BalanceOf(user), nil
}

// StableDebtOf returns the user's current stable debt including pending
// accrual.
func (p *Pool) StableDebtOf(asset, user crypto.Address) (*big.Int, error) {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return ledgers.stableDebt.BalanceOf(user), nil
}

// StableDebtLedgerOf exposes the reserve's stable-debt ledger for read-side
// supply queries.
func (p *Pool) StableDebtLedgerOf(asset crypto.Address) (*StableDebtLedger, error) {
	_, ledgers, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return ledgers.stableDebt, nil
}

// GetReserveData returns a copy of the reserve's aggregate state.
func (p *Pool) GetReserveData(asset crypto.Address) (*ReserveData, error) {
	reserve, _, err := p.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return reserve, nil
}

// GetUserReserveData returns a copy of the user's position record.
func (p *Pool) GetUserReserveData(asset, user crypto.Address) (*UserReserveData, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	record, err := p.loadUserReserve(asset, user)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (p *Pool) loadReserve(asset crypto.Address) (*ReserveData, *reserveLedgers, error) {
	if p == nil || p.state == nil {
		return nil, nil, errNilState
	}
	reserve, err := p.state.GetReserve(asset)
	if err != nil {
		return nil, nil, err
	}
	ledgers, ok := p.ledgers[string(asset.Bytes())]
	if reserve == nil || !ok {
		return nil, nil, errReserveNotFound
	}
	ensureReserveDefaults(reserve)
	return reserve.Clone(), ledgers, nil
}

func (p *Pool) loadUserReserve(asset, user crypto.Address) (*UserReserveData, error) {
	record, err := p.state.GetUserReserve(asset, user)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &UserReserveData{Address: user}
	}
	ensureUserDefaults(record)
	return record.Clone(), nil
}

// userPositions assembles the cross-reserve snapshot used by solvency
// checks: collateral-flagged deposit balances and outstanding debt for every
// initialised reserve, each valued at the current index.
func (p *Pool) userPositions(user crypto.Address) ([]ReservePosition, error) {
	assets, err := p.state.ReserveAssets()
	if err != nil {
		return nil, err
	}
	now := p.nowFn()
	positions := make([]ReservePosition, 0, len(assets))
	for _, asset := range assets {
		reserve, err := p.state.GetReserve(asset)
		if err != nil {
			return nil, err
		}
		ledgers, ok := p.ledgers[string(asset.Bytes())]
		if reserve == nil || !ok {
			continue
		}
		ensureReserveDefaults(reserve)
		record, err := p.loadUserReserve(asset, user)
		if err != nil {
			return nil, err
		}
		collateral := big.NewInt(0)
		if record.UseAsCollateral {
			income := normalizedIncome(reserve, now)
			collateral = amountFromScaled(ledgers.depositToken.BalanceOf(user), income)
		}
		debt := big.NewInt(0)
		if record.Borrowing {
			debt = ledgers.stableDebt.BalanceOf(user)
		}
		positions = append(positions, ReservePosition{
			Asset:                   asset,
			Collateral:              collateral,
			Debt:                    debt,
			LTVBps:                  reserve.Config.LTVBps,
			LiquidationThresholdBps: reserve.Config.LiquidationThresholdBps,
		})
	}
	return positions, nil
}

// accrueDepositInterest folds the deposit interest earned since the user's
// previous touch into their running counter and records the index the fold
// happened at. A zero stored index means the position was never touched.
func accrueDepositInterest(user *UserReserveData, scaledBalance, index *big.Int) {
	if user.LastLiquidityIndex != nil && user.LastLiquidityIndex.Sign() > 0 && scaledBalance.Sign() > 0 {
		accrued := new(big.Int).Sub(amountFromScaled(scaledBalance, index), amountFromScaled(scaledBalance, user.LastLiquidityIndex))
		if accrued.Sign() > 0 {
			user.CumulatedLiquidityInterest = new(big.Int).Add(user.CumulatedLiquidityInterest, accrued)
		}
	}
	user.LastLiquidityIndex = cloneBigInt(index)
}

// pendingStableInterest returns the interest compounded onto the user's
// stable debt since their last principal touch. The next mint or burn folds
// that amount into the principal, so it is sampled just before the touch.
func pendingStableInterest(ledger *StableDebtLedger, user crypto.Address) *big.Int {
	pending := ledger.BalanceOf(user)
	pending.Sub(pending, ledger.PrincipalBalanceOf(user))
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}

func recordAction(action string, start time.Time, err *error) {
	var actionErr error
	if err != nil {
		actionErr = *err
	}
	observability.Pool().Observe(action, actionErr, time.Since(start).Seconds())
}
