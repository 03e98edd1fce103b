package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Fees carries the EIP-1559 fee caps the signer needs for one transaction.
type Fees struct {
	TipCap *big.Int
	FeeCap *big.Int
}

// SuggestFees asks the current endpoint for a tip cap and derives a fee
// cap of 2×baseFee + tip, leaving headroom for base-fee growth while the
// transaction is pending.
func (c *Client) SuggestFees(ctx context.Context) (Fees, error) {
	var fees Fees
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		tip, tipErr := ethc.SuggestGasTipCap(ctx)
		if tipErr != nil {
			return tipErr
		}
		head, headErr := ethc.HeaderByNumber(ctx, nil)
		if headErr != nil {
			return headErr
		}
		base := head.BaseFee
		if base == nil {
			base = big.NewInt(0)
		}
		feeCap := new(big.Int).Mul(base, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		fees = Fees{TipCap: tip, FeeCap: feeCap}
		return nil
	})
	return fees, err
}
