package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/database"
)

// runReconcile audits one eigen: it replays the trade log into settled
// outflows and inflows and checks the ledger invariant
// balance + reserved + outflows == deposited + inflows.
func runReconcile(eigenID string) int {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "keeper reconcile: DATABASE_URL is required")
		return exitConfig
	}
	db, err := database.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper reconcile: %v\n", err)
		return exitRuntime
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eigenStore := database.NewEigenStore(db)
	tradeStore := database.NewTradeLogStore(db)

	e, err := eigenStore.Get(ctx, eigenID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper reconcile: %v\n", err)
		return exitRuntime
	}

	outflows := big.NewInt(0) // buys spent + gas + withdrawals
	inflows := big.NewInt(0)  // sell proceeds
	offset := 0
	for {
		trades, listErr := tradeStore.ListByEigen(ctx, eigenID, 500, offset)
		if listErr != nil {
			fmt.Fprintf(os.Stderr, "keeper reconcile: %v\n", listErr)
			return exitRuntime
		}
		for _, t := range trades {
			gas, _ := new(big.Int).SetString(t.GasUsedWei, 10)
			if gas != nil {
				outflows.Add(outflows, gas)
			}
			if t.Outcome != tradelog.OutcomeFilled {
				continue
			}
			amountIn, _ := new(big.Int).SetString(t.AmountInWei, 10)
			if amountIn == nil {
				continue
			}
			switch t.Direction {
			case "buy", "withdraw":
				outflows.Add(outflows, amountIn)
			case "sell":
				// AmountInWei holds the quote-side proceeds for sells.
				inflows.Add(inflows, amountIn)
			}
		}
		if len(trades) < 500 {
			break
		}
		offset += len(trades)
	}

	balance := mustBig(e.Budget.BalanceWei)
	reserved := mustBig(e.Budget.ReservedWei)
	deposited := mustBig(e.Budget.DepositedWei)

	lhs := new(big.Int).Add(balance, reserved)
	lhs.Add(lhs, outflows)
	rhs := new(big.Int).Add(deposited, inflows)

	fmt.Printf("eigen %s (%s)\n", e.ID, e.Status)
	fmt.Printf("  deposited: %s\n", deposited)
	fmt.Printf("  balance:   %s\n", balance)
	fmt.Printf("  reserved:  %s\n", reserved)
	fmt.Printf("  outflows:  %s\n", outflows)
	fmt.Printf("  inflows:   %s\n", inflows)

	drift := new(big.Int).Sub(lhs, rhs)
	if drift.Sign() == 0 {
		fmt.Println("  ledger: OK")
		return exitOK
	}
	fmt.Printf("  ledger: DRIFT %s wei (balance+reserved+outflows - deposited-inflows)\n", drift)
	return exitRuntime
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
