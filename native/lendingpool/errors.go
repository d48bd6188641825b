package lendingpool

import "errors"

var (
	errNilState              = errors.New("lending pool: state not configured")
	errReserveNotFound       = errors.New("lending pool: reserve not initialised")
	errUnderlyingNotWired    = errors.New("lending pool: underlying token not configured")
	errOracleNotWired        = errors.New("lending pool: price oracle not configured")
	errTreasuryNotConfigured = errors.New("lending pool: treasury not configured")

	// ErrReserveExists signals an attempt to initialise a reserve that is
	// already registered. The existing reserve keeps its stored state.
	ErrReserveExists = errors.New("lending pool: reserve already initialised")
	// ErrInvalidAmount rejects zero or out-of-range action amounts.
	ErrInvalidAmount = errors.New("lending pool: amount must be positive")
	// ErrInactiveReserve rejects actions against a reserve that has not been
	// activated or has been decommissioned.
	ErrInactiveReserve = errors.New("lending pool: reserve not active")
	// ErrFrozenReserve rejects new deposits and borrows while the reserve is
	// frozen. Withdrawals and repayments remain allowed.
	ErrFrozenReserve = errors.New("lending pool: reserve frozen")
	// ErrBorrowingDisabled rejects borrows on reserves without borrowing
	// enabled.
	ErrBorrowingDisabled = errors.New("lending pool: borrowing not enabled")
	// ErrStableBorrowingDisabled rejects stable-rate borrows on reserves that
	// only support variable debt.
	ErrStableBorrowingDisabled = errors.New("lending pool: stable borrowing not enabled")
	// ErrInsufficientBalance signals an attempted burn or transfer exceeding
	// the stored balance.
	ErrInsufficientBalance = errors.New("lending pool: insufficient balance")
	// ErrInsufficientAllowance signals a credit-delegation draw exceeding the
	// granted borrow allowance.
	ErrInsufficientAllowance = errors.New("lending pool: insufficient borrow allowance")
	// ErrInsufficientSupply signals integer overflow of a token total supply.
	ErrInsufficientSupply = errors.New("lending pool: total supply overflow")
	// ErrTransferNotAllowed signals that a balance decrease would push the
	// user's health factor below the liquidation threshold.
	ErrTransferNotAllowed = errors.New("lending pool: transfer not allowed by health factor")
	// ErrNotEnoughLiquidity signals that the pool cannot cover the requested
	// outflow.
	ErrNotEnoughLiquidity = errors.New("lending pool: not enough available liquidity")
	// ErrNoDebt rejects repayments when the borrower has no outstanding debt
	// of the matching rate mode.
	ErrNoDebt = errors.New("lending pool: no outstanding debt to repay")
	// ErrBorrowPowerExceeded signals that the requested borrow exceeds the
	// user's collateral-adjusted borrowing power.
	ErrBorrowPowerExceeded = errors.New("lending pool: collateral cannot cover new borrow")
	// ErrStableLoanTooLarge signals a stable borrow above the configured
	// share of available liquidity.
	ErrStableLoanTooLarge = errors.New("lending pool: stable loan exceeds allowed liquidity share")
)
