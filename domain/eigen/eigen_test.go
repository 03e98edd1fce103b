package eigen

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingFunding, StatusActive, true},
		{StatusActive, StatusSuspended, true},
		{StatusSuspended, StatusActive, true},
		{StatusActive, StatusLiquidated, false},
		{StatusLiquidated, StatusActive, false},
		{StatusClosed, StatusActive, false},
		{StatusTerminated, StatusClosed, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestValidateTransitionSameStateIsNoop(t *testing.T) {
	if err := ValidateTransition(StatusActive, StatusActive); err != nil {
		t.Fatalf("same-state transition should be a no-op, got %v", err)
	}
}

func TestValidateTransitionRejectsIllegal(t *testing.T) {
	if err := ValidateTransition(StatusClosed, StatusActive); err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusLiquidated, StatusTerminated, StatusClosed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPendingFunding, StatusActive, StatusSuspended, StatusLiquidating} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	p := Position{}
	p.ApplyBuy("100", "10")  // 100 units @ price 10
	p.ApplyBuy("100", "20")  // 100 units @ price 20

	if p.TokenBalance != "200" {
		t.Fatalf("TokenBalance = %s, want 200", p.TokenBalance)
	}
	if p.AverageEntryWei != "15" {
		t.Fatalf("AverageEntryWei = %s, want 15", p.AverageEntryWei)
	}
	if p.BuyCount != 2 || p.TradeCount != 2 {
		t.Fatalf("counts wrong: buy=%d trade=%d", p.BuyCount, p.TradeCount)
	}
}

func TestApplySellRealizesAgainstAverage(t *testing.T) {
	p := Position{}
	p.ApplyBuy("100", "10")

	delta := p.ApplySell("40", "15")
	if delta != "200" { // (15-10)*40
		t.Fatalf("realized delta = %s, want 200", delta)
	}
	if p.TokenBalance != "60" {
		t.Fatalf("TokenBalance = %s, want 60", p.TokenBalance)
	}
	if p.AverageEntryWei != "10" {
		t.Fatalf("average entry should be undisturbed by a sell, got %s", p.AverageEntryWei)
	}
}

func TestSellCannotExceedHeldQuantity(t *testing.T) {
	p := Position{}
	p.ApplyBuy("10", "5")
	p.ApplySell("1000", "5")
	if p.TokenBalance != "0" {
		t.Fatalf("TokenBalance = %s, want 0 (sell clipped to held quantity)", p.TokenBalance)
	}
}

func TestBudgetReserveSettle(t *testing.T) {
	b := Budget{DepositedWei: "1000", BalanceWei: "1000", ReservedWei: "0"}

	if err := b.Reserve("300"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.BalanceWei != "700" || b.ReservedWei != "300" {
		t.Fatalf("after reserve: balance=%s reserved=%s", b.BalanceWei, b.ReservedWei)
	}

	b.Settle("300", "250")
	if b.ReservedWei != "0" {
		t.Fatalf("reserved should be drained after settle, got %s", b.ReservedWei)
	}
	if b.BalanceWei != "750" { // 700 + (300-250) refund
		t.Fatalf("balance after settle = %s, want 750", b.BalanceWei)
	}
}

func TestBudgetReserveInsufficientFunds(t *testing.T) {
	b := Budget{DepositedWei: "100", BalanceWei: "100", ReservedWei: "0"}
	if err := b.Reserve("200"); err == nil {
		t.Fatal("expected insufficient-funds error")
	}
}

func TestBudgetCheckInvariant(t *testing.T) {
	b := Budget{DepositedWei: "1000", BalanceWei: "400", ReservedWei: "100"}
	// 400 + 100 + 500(outflows) == 1000 + 0(inflows)
	if err := b.CheckInvariant("500", "0"); err != nil {
		t.Fatalf("expected invariant to hold, got %v", err)
	}
	if err := b.CheckInvariant("0", "0"); err == nil {
		t.Fatal("expected invariant violation")
	}
}

func TestValidatePatchRejectsOutOfRange(t *testing.T) {
	bad := 50
	patch := ConfigPatch{WalletCount: &bad}
	if field := ValidatePatch(patch); field != "walletCount" {
		t.Fatalf("ValidatePatch = %q, want walletCount", field)
	}
}

func TestPatchIsNoop(t *testing.T) {
	cfg := Config{TradeFrequencyPerHour: 2, WalletCount: 3}
	same := 2.0
	patch := ConfigPatch{TradeFrequencyPerHour: &same}
	if !patch.IsNoop(cfg) {
		t.Fatal("expected patch equal to current config to be a no-op")
	}

	changed := 5.0
	patch2 := ConfigPatch{TradeFrequencyPerHour: &changed}
	if patch2.IsNoop(cfg) {
		t.Fatal("expected changed patch to not be a no-op")
	}
}

func TestNewIDFormat(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if len(id) != 9 || id[:3] != "ES-" {
		t.Fatalf("NewID() = %q, want ES-xxxxxx form", id)
	}
}

func TestUpgradeOnlyUpward(t *testing.T) {
	if !Upgrade(ClassLite, ClassCore) {
		t.Fatal("lite -> core should be an upgrade")
	}
	if Upgrade(ClassPro, ClassLite) {
		t.Fatal("pro -> lite should not be an upgrade")
	}
	if Upgrade(ClassCore, ClassCore) {
		t.Fatal("same class should not be an upgrade")
	}
}
