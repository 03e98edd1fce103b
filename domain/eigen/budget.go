package eigen

import (
	"math/big"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// Reserve moves sizeWei from free balance into reserved, failing if the
// eigen's free balance cannot cover it.
func (b *Budget) Reserve(sizeWei string) error {
	size := weiOrZero(sizeWei)
	balance := weiOrZero(b.BalanceWei)
	if size.Sign() <= 0 {
		return svcerrors.InvalidInput("sizeWei", "must be positive")
	}
	if balance.Cmp(size) < 0 {
		return svcerrors.InsufficientFunds(sizeWei, b.BalanceWei)
	}
	b.BalanceWei = new(big.Int).Sub(balance, size).String()
	b.ReservedWei = new(big.Int).Add(weiOrZero(b.ReservedWei), size).String()
	return nil
}

// Release returns a previously reserved amount to free balance, e.g. when a
// planned action is abandoned before execution.
func (b *Budget) Release(sizeWei string) {
	size := weiOrZero(sizeWei)
	reserved := weiOrZero(b.ReservedWei)
	if size.Cmp(reserved) > 0 {
		size = reserved
	}
	b.ReservedWei = new(big.Int).Sub(reserved, size).String()
	b.BalanceWei = new(big.Int).Add(weiOrZero(b.BalanceWei), size).String()
}

// Settle consumes a reserved amount as a settled outflow: actualSpentWei
// leaves reserved permanently, and any difference between sizeWei
// originally reserved and actualSpentWei is returned to free balance.
func (b *Budget) Settle(sizeWeiReserved, actualSpentWei string) {
	reserved := weiOrZero(b.ReservedWei)
	size := weiOrZero(sizeWeiReserved)
	if size.Cmp(reserved) > 0 {
		size = reserved
	}
	b.ReservedWei = new(big.Int).Sub(reserved, size).String()

	refund := new(big.Int).Sub(size, weiOrZero(actualSpentWei))
	if refund.Sign() > 0 {
		b.BalanceWei = new(big.Int).Add(weiOrZero(b.BalanceWei), refund).String()
	}
}

// Deposit adds funds to both deposited and free balance.
func (b *Budget) Deposit(amountWei string) {
	b.DepositedWei = AddWei(b.DepositedWei, amountWei)
	b.BalanceWei = AddWei(b.BalanceWei, amountWei)
}

// Credit adds a settled inflow (sale proceeds) to free balance without
// touching deposited (deposits track only externally paid-in funds).
func (b *Budget) Credit(amountWei string) {
	b.BalanceWei = AddWei(b.BalanceWei, amountWei)
}

// CheckInvariant verifies balanceWei + reservedWei + settledOutflows ==
// depositedWei + settledInflows.
func (b *Budget) CheckInvariant(settledOutflowsWei, settledInflowsWei string) error {
	lhs := new(big.Int).Add(weiOrZero(b.BalanceWei), weiOrZero(b.ReservedWei))
	lhs = lhs.Add(lhs, weiOrZero(settledOutflowsWei))

	rhs := new(big.Int).Add(weiOrZero(b.DepositedWei), weiOrZero(settledInflowsWei))

	if lhs.Cmp(rhs) != 0 {
		return svcerrors.InvariantViolation("", "balance+reserved+outflows == deposited+inflows")
	}
	return nil
}
