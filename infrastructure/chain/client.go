// Package chain is a thin adapter over an EVM JSON-RPC endpoint: call,
// estimate gas, send raw transaction, wait for receipt, read logs, and
// batch multiple reads into one HTTP request. It speaks only the handful
// of eth_* methods the keeper needs.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/resilience"
)

// maxLogBlockRange is the largest block range observed to be accepted by
// providers in one eth_getLogs call; wider ranges are split into
// contiguous sub-ranges.
const maxLogBlockRange = uint64(49000)

// Client adapts a rotating pool of JSON-RPC endpoints to the operations the
// keeper needs. It never signs; callers hand it an already-signed raw
// transaction.
type Client struct {
	pool    *Pool
	chainID int64
	retry   resilience.RetryConfig
	logger  *logging.Logger
}

// NewClient builds a Client over the given endpoint pool.
func NewClient(pool *Pool, chainID int64, logger *logging.Logger) *Client {
	return &Client{
		pool:    pool,
		chainID: chainID,
		retry:   resilience.DefaultRetryConfig(),
		logger:  logger,
	}
}

// withClient runs fn against the pool's current best endpoint, rotating and
// retrying per the client failure policy: network errors get jittered
// backoff up to 3 attempts; RPC errors matching a rate/block-range pattern
// rotate to the next endpoint instead of retrying the same one; a decoded
// *RevertError is returned as is, without retry.
func (c *Client) withClient(ctx context.Context, fn func(*ethclient.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < c.pool.Len(); attempt++ {
		ep, ethc, err := c.pool.Acquire(ctx)
		if err != nil {
			return svcerrors.UpstreamUnavailable(c.chainID, err)
		}

		var terminal error
		retryErr := resilience.Retry(ctx, c.retry, func() error {
			callErr := fn(ethc)
			var rev *RevertError
			if callErr != nil && (errors.As(callErr, &rev) || isRotatePattern(callErr)) {
				terminal = callErr
				return nil
			}
			return callErr
		})
		if retryErr == nil {
			retryErr = terminal
		}
		if retryErr == nil {
			c.pool.ReportSuccess(ep)
			return nil
		}
		var rev *RevertError
		if errors.As(retryErr, &rev) {
			return rev
		}

		lastErr = retryErr
		if isRotatePattern(retryErr) {
			c.pool.ReportFailure(ep, retryErr)
			continue
		}
		c.pool.ReportFailure(ep, retryErr)
		return svcerrors.UpstreamUnavailable(c.chainID, retryErr)
	}
	return svcerrors.UpstreamUnavailable(c.chainID, lastErr)
}

// Call performs eth_call against `to` with `data`, never signing.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		msg := ethereum.CallMsg{To: &to, Data: data}
		out, callErr := ethc.CallContract(ctx, msg, blockNumber)
		if callErr != nil {
			return callErr
		}
		result = out
		return nil
	})
	return result, err
}

// EstimateGas estimates gas for msg and scales by 1.3, floored at 2e6 for
// known-expensive entrypoints.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg, expensiveEntrypoint bool) (uint64, error) {
	var gas uint64
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		est, estErr := ethc.EstimateGas(ctx, msg)
		if estErr != nil {
			return estErr
		}
		gas = est
		return nil
	})
	if err != nil {
		return 0, err
	}

	scaled := uint64(float64(gas) * 1.3)
	if expensiveEntrypoint && scaled < 2_000_000 {
		scaled = 2_000_000
	}
	return scaled, nil
}

// SendRaw broadcasts a signed transaction and returns its hash.
func (c *Client) SendRaw(ctx context.Context, signedTx *types.Transaction) (common.Hash, error) {
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		return ethc.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return common.Hash{}, err
	}
	return signedTx.Hash(), nil
}

// ReceiptStatus reports whether a confirmed receipt's on-chain status was
// success (as opposed to a mined-but-reverted transaction).
type ReceiptStatus int

const (
	ReceiptPending ReceiptStatus = iota
	ReceiptSuccess
	ReceiptReverted
)

// WaitReceipt polls for a transaction receipt until timeout, returning
// ReceiptPending if the deadline is reached first.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, ReceiptStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := c.withClient(ctx, func(ethc *ethclient.Client) error {
			r, recErr := ethc.TransactionReceipt(ctx, txHash)
			if recErr != nil {
				return recErr
			}
			receipt = r
			return nil
		})
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, ReceiptSuccess, nil
			}
			return receipt, ReceiptReverted, nil
		}

		if time.Now().After(deadline) {
			return nil, ReceiptPending, svcerrors.Timeout("waitReceipt")
		}
		select {
		case <-ctx.Done():
			return nil, ReceiptPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetBalance reads the native balance of addr at the latest block.
func (c *Client) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		b, balErr := ethc.BalanceAt(ctx, addr, nil)
		if balErr != nil {
			return balErr
		}
		balance = b
		return nil
	})
	return balance, err
}

// GetTransactionCount reads addr's current confirmed nonce from the chain,
// used only to seed the local nonce tracker; ordinary nonce assignment
// reads from the tracker, not from this call.
func (c *Client) GetTransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		n, nErr := ethc.NonceAt(ctx, addr, nil)
		if nErr != nil {
			return nErr
		}
		nonce = n
		return nil
	})
	return nonce, err
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var num uint64
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		n, err := ethc.BlockNumber(ctx)
		if err != nil {
			return err
		}
		num = n
		return nil
	})
	return num, err
}

// GetLogs fetches logs matching q, splitting the block range into
// contiguous sub-ranges of at most maxLogBlockRange blocks.
func (c *Client) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if q.FromBlock == nil || q.ToBlock == nil {
		var logs []types.Log
		err := c.withClient(ctx, func(ethc *ethclient.Client) error {
			out, err := ethc.FilterLogs(ctx, q)
			if err != nil {
				return err
			}
			logs = out
			return nil
		})
		return logs, err
	}

	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	if to < from {
		return nil, fmt.Errorf("chain: toBlock %d before fromBlock %d", to, from)
	}

	var all []types.Log
	for start := from; start <= to; start += maxLogBlockRange {
		end := start + maxLogBlockRange - 1
		if end > to {
			end = to
		}
		sub := q
		sub.FromBlock = new(big.Int).SetUint64(start)
		sub.ToBlock = new(big.Int).SetUint64(end)

		var logs []types.Log
		err := c.withClient(ctx, func(ethc *ethclient.Client) error {
			out, err := ethc.FilterLogs(ctx, sub)
			if err != nil {
				return err
			}
			logs = out
			return nil
		})
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
	}
	return all, nil
}
