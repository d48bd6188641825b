package lendingpool

import (
	"errors"
	"math/big"
	"testing"

	"lendpool/crypto"
)

// testClock is a manually advanced time source shared by a test and the
// ledger under test.
type testClock struct {
	now uint64
}

func newTestClock() *testClock { return &testClock{now: 1_700_000_000} }

func (c *testClock) Now() uint64        { return c.now }
func (c *testClock) Advance(sec uint64) { c.now += sec }

func newTestLedger(clock *testClock) *StableDebtLedger {
	ledger := NewStableDebtLedger()
	ledger.SetNowFunc(clock.Now)
	return ledger
}

func TestStableDebtMintLocksPersonalRate(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	isFirst, err := ledger.Mint(alice, alice, big.NewInt(100), rate)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !isFirst {
		t.Fatalf("expected first borrow to be reported")
	}
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal = %s, want 100", got)
	}
	if got := ledger.GetUserStableRate(alice); got.Cmp(rate) != 0 {
		t.Fatalf("personal rate = %s, want %s", got, rate)
	}
	if got := ledger.AvgStableRate(); got.Cmp(rate) != 0 {
		t.Fatalf("avg rate = %s, want %s", got, rate)
	}
}

func TestStableDebtWeightedAverageRates(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)
	tenPercent := rayFraction(1, 10)
	twentyPercent := rayFraction(2, 10)

	// 100 at 10% plus 50 at 20% averages to 40/3 percent.
	if _, err := ledger.Mint(alice, alice, big.NewInt(100), tenPercent); err != nil {
		t.Fatalf("mint alice: %v", err)
	}
	if _, err := ledger.Mint(bob, bob, big.NewInt(50), twentyPercent); err != nil {
		t.Fatalf("mint bob: %v", err)
	}

	wantAvg := new(big.Int).Mul(tenPercent, big.NewInt(100))
	wantAvg.Add(wantAvg, new(big.Int).Mul(twentyPercent, big.NewInt(50)))
	wantAvg.Quo(wantAvg, big.NewInt(150))
	if got := ledger.AvgStableRate(); got.Cmp(wantAvg) != 0 {
		t.Fatalf("avg rate = %s, want %s", got, wantAvg)
	}

	// A repeat borrow re-averages the personal rate over the whole position.
	if _, err := ledger.Mint(alice, alice, big.NewInt(100), twentyPercent); err != nil {
		t.Fatalf("remint alice: %v", err)
	}
	wantPersonal := rayFraction(15, 100)
	if got := ledger.GetUserStableRate(alice); got.Cmp(wantPersonal) != 0 {
		t.Fatalf("personal rate = %s, want %s", got, wantPersonal)
	}
}

func TestStableDebtAvgRateBoundedByPersonalRates(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	low := rayFraction(5, 100)
	high := rayFraction(25, 100)

	if _, err := ledger.Mint(testAddr(0x0a), testAddr(0x0a), big.NewInt(333), low); err != nil {
		t.Fatalf("mint low: %v", err)
	}
	if _, err := ledger.Mint(testAddr(0x0b), testAddr(0x0b), big.NewInt(777), high); err != nil {
		t.Fatalf("mint high: %v", err)
	}
	avg := ledger.AvgStableRate()
	if avg.Cmp(low) < 0 || avg.Cmp(high) > 0 {
		t.Fatalf("avg rate %s outside [%s, %s]", avg, low, high)
	}
}

func TestStableDebtAccrualCompounds(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	if _, err := ledger.Mint(alice, alice, big.NewInt(1_000_000), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(secondsPerYear)

	balance := ledger.BalanceOf(alice)
	// Compounded 10% over one year lands just above 10.51%.
	if balance.Cmp(big.NewInt(1_105_100)) < 0 || balance.Cmp(big.NewInt(1_105_200)) > 0 {
		t.Fatalf("balance after a year = %s, want ~1105170", balance)
	}
	// Principal stays untouched until the next mint or burn.
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("principal = %s, want 1000000", got)
	}
	// The supply accrues at the average rate over the same window.
	if got := ledger.TotalSupply(); got.Cmp(balance) != 0 {
		t.Fatalf("total supply = %s, want %s", got, balance)
	}
}

func TestStableDebtMintFoldsAccruedInterest(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	if _, err := ledger.Mint(alice, alice, big.NewInt(1_000_000), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(secondsPerYear)
	balanceBefore := ledger.BalanceOf(alice)

	isFirst, err := ledger.Mint(alice, alice, big.NewInt(500_000), rate)
	if err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if isFirst {
		t.Fatalf("mint on live position reported as first")
	}
	want := new(big.Int).Add(balanceBefore, big.NewInt(500_000))
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(want) != 0 {
		t.Fatalf("principal after fold = %s, want %s", got, want)
	}
}

func TestStableDebtConservationAtFixedTime(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	users := []crypto.Address{testAddr(0x0a), testAddr(0x0b), testAddr(0x0c)}
	rates := []*big.Int{rayFraction(5, 100), rayFraction(10, 100), rayFraction(15, 100)}
	amounts := []int64{1000, 2500, 70}

	for i, user := range users {
		if _, err := ledger.Mint(user, user, big.NewInt(amounts[i]), rates[i]); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}
	if err := ledger.Burn(users[1], big.NewInt(500)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	sum := big.NewInt(0)
	for _, user := range users {
		sum.Add(sum, ledger.BalanceOf(user))
	}
	if sum.Cmp(ledger.TotalSupply()) != 0 {
		t.Fatalf("sum of balances %s != total supply %s", sum, ledger.TotalSupply())
	}
}

func TestStableDebtDelegation(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)
	rate := rayFraction(1, 10)

	// Without an allowance bob cannot borrow on alice's behalf.
	if _, err := ledger.Mint(bob, alice, big.NewInt(10), rate); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("undelegated mint: got %v, want ErrInsufficientAllowance", err)
	}

	ledger.ApproveDelegation(alice, bob, big.NewInt(100))
	if _, err := ledger.Mint(bob, alice, big.NewInt(60), rate); err != nil {
		t.Fatalf("delegated mint: %v", err)
	}
	if got := ledger.BorrowAllowance(alice, bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("allowance after draw = %s, want 40", got)
	}
	// The debt lands on the delegator.
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("alice principal = %s, want 60", got)
	}
	if got := ledger.PrincipalBalanceOf(bob); got.Sign() != 0 {
		t.Fatalf("bob principal = %s, want 0", got)
	}

	if _, err := ledger.Mint(bob, alice, big.NewInt(50), rate); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientAllowance", err)
	}
}

func TestStableDebtBurnFullPositionResetsUser(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	if _, err := ledger.Mint(alice, alice, big.NewInt(100), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(alice, big.NewInt(100)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := ledger.BalanceOf(alice); got.Sign() != 0 {
		t.Fatalf("balance after close = %s, want 0", got)
	}
	if got := ledger.GetUserStableRate(alice); got.Sign() != 0 {
		t.Fatalf("rate after close = %s, want 0", got)
	}
	if got := ledger.GetUserLastUpdated(alice); got != 0 {
		t.Fatalf("timestamp after close = %d, want 0", got)
	}
	// Last position out zeroes the aggregates exactly.
	if got := ledger.TotalSupply(); got.Sign() != 0 {
		t.Fatalf("supply after close = %s, want 0", got)
	}
	if got := ledger.AvgStableRate(); got.Sign() != 0 {
		t.Fatalf("avg rate after close = %s, want 0", got)
	}
}

func TestStableDebtBurnRecomputesAverage(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)

	if _, err := ledger.Mint(alice, alice, big.NewInt(100), rayFraction(1, 10)); err != nil {
		t.Fatalf("mint alice: %v", err)
	}
	if _, err := ledger.Mint(bob, bob, big.NewInt(100), rayFraction(2, 10)); err != nil {
		t.Fatalf("mint bob: %v", err)
	}
	if err := ledger.Burn(alice, big.NewInt(100)); err != nil {
		t.Fatalf("burn alice: %v", err)
	}
	// Only bob's 20% position remains.
	if got := ledger.AvgStableRate(); got.Cmp(rayFraction(2, 10)) != 0 {
		t.Fatalf("avg rate = %s, want %s", got, rayFraction(2, 10))
	}
	if got := ledger.PrincipalTotalSupply(); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", got)
	}
}

func TestStableDebtBurnInsufficientLeavesStateUntouched(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	if _, err := ledger.Mint(alice, alice, big.NewInt(100), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(alice, big.NewInt(150)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overburn: got %v, want ErrInsufficientBalance", err)
	}
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal changed by failed burn: %s", got)
	}
	if got := ledger.PrincipalTotalSupply(); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply changed by failed burn: %s", got)
	}
	if got := ledger.AvgStableRate(); got.Cmp(rate) != 0 {
		t.Fatalf("avg rate changed by failed burn: %s", got)
	}
}

func TestStableDebtBurnRepaysLessThanAccrued(t *testing.T) {
	clock := newTestClock()
	ledger := newTestLedger(clock)
	alice := testAddr(0x0a)
	rate := rayFraction(1, 10)

	if _, err := ledger.Mint(alice, alice, big.NewInt(1_000_000), rate); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(secondsPerYear)
	balance := ledger.BalanceOf(alice)
	accrued := new(big.Int).Sub(balance, big.NewInt(1_000_000))
	if accrued.Cmp(big.NewInt(1000)) <= 0 {
		t.Fatalf("expected meaningful accrual, got %s", accrued)
	}

	// Repaying less than the accrued interest grows the booked principal by
	// the surplus.
	if err := ledger.Burn(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	want := new(big.Int).Sub(balance, big.NewInt(1000))
	if got := ledger.PrincipalBalanceOf(alice); got.Cmp(want) != 0 {
		t.Fatalf("principal = %s, want %s", got, want)
	}
}
