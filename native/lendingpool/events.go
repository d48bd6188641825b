package lendingpool

import (
	"math/big"

	"lendpool/core/types"
	"lendpool/crypto"
)

const (
	EventTypeDeposit                   = "lendingpool.deposit"
	EventTypeWithdraw                  = "lendingpool.withdraw"
	EventTypeBorrow                    = "lendingpool.borrow"
	EventTypeRepay                     = "lendingpool.repay"
	EventTypeReserveCollateralEnabled  = "lendingpool.reserve.collateral_enabled"
	EventTypeReserveCollateralDisabled = "lendingpool.reserve.collateral_disabled"
	EventTypeReserveInitialized        = "lendingpool.reserve.initialized"
	EventTypeReserveTreasuryMint       = "lendingpool.reserve.treasury_mint"
)

// NewDepositEvent returns the canonical payload emitted when underlying is
// deposited into a reserve.
func NewDepositEvent(asset, user, onBehalfOf crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"reserve":    asset.String(),
			"user":       user.String(),
			"onBehalfOf": onBehalfOf.String(),
			"amount":     amount.String(),
		},
	}
}

// NewWithdrawEvent returns the canonical payload emitted when underlying is
// withdrawn from a reserve.
func NewWithdrawEvent(asset, user, to crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"user":    user.String(),
			"to":      to.String(),
			"amount":  amount.String(),
		},
	}
}

// NewBorrowEvent returns the canonical payload emitted when stable debt is
// drawn, carrying the rate locked in for the new debt.
func NewBorrowEvent(asset, user, onBehalfOf crypto.Address, amount, rate *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBorrow,
		Attributes: map[string]string{
			"reserve":    asset.String(),
			"user":       user.String(),
			"onBehalfOf": onBehalfOf.String(),
			"amount":     amount.String(),
			"rate":       rate.String(),
		},
	}
}

// NewRepayEvent returns the canonical payload emitted when debt is repaid.
func NewRepayEvent(asset, user, repayer crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRepay,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"user":    user.String(),
			"repayer": repayer.String(),
			"amount":  amount.String(),
		},
	}
}

// NewCollateralEnabledEvent signals that a user's deposit in the reserve now
// counts towards borrowing power.
func NewCollateralEnabledEvent(asset, user crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeReserveCollateralEnabled,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"user":    user.String(),
		},
	}
}

// NewCollateralDisabledEvent signals that a user's deposit in the reserve no
// longer counts towards borrowing power.
func NewCollateralDisabledEvent(asset, user crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeReserveCollateralDisabled,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"user":    user.String(),
		},
	}
}

// NewReserveInitializedEvent signals that a reserve has been created.
func NewReserveInitializedEvent(asset crypto.Address, id uint8) *types.Event {
	return &types.Event{
		Type: EventTypeReserveInitialized,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"id":      new(big.Int).SetUint64(uint64(id)).String(),
		},
	}
}

// NewTreasuryMintEvent signals deposit tokens minted to the treasury from
// reserve-factor interest.
func NewTreasuryMintEvent(asset crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeReserveTreasuryMint,
		Attributes: map[string]string{
			"reserve": asset.String(),
			"amount":  amount.String(),
		},
	}
}
