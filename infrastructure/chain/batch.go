package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// BatchCall is one JSON-RPC method call to include in a Batch invocation.
type BatchCall struct {
	Method string
	Args   []interface{}
	Result interface{}
}

// Batch executes calls as a single JSON-RPC batch request when the
// endpoint supports it, falling back to sequential calls when the
// provider rejects or doesn't implement the batch form. Results land in
// each BatchCall's Result field in input order.
func (c *Client) Batch(ctx context.Context, calls []BatchCall) error {
	if len(calls) == 0 {
		return nil
	}

	var batchErr error
	err := c.withClient(ctx, func(ethc *ethclient.Client) error {
		rc := ethc.Client()
		elems := make([]rpc.BatchElem, len(calls))
		for i, call := range calls {
			elems[i] = rpc.BatchElem{Method: call.Method, Args: call.Args, Result: call.Result}
		}
		if err := rc.BatchCallContext(ctx, elems); err != nil {
			batchErr = err
			return err
		}
		for _, elem := range elems {
			if elem.Error != nil {
				batchErr = elem.Error
				break
			}
		}
		return nil
	})
	if err == nil && batchErr == nil {
		return nil
	}

	return c.sequentialFallback(ctx, calls)
}

// sequentialFallback issues each batch call as its own JSON-RPC request,
// used both when the provider omits the batch form and when a batch call
// is rejected outright (treated the same as an endpoint that never
// supported batching).
func (c *Client) sequentialFallback(ctx context.Context, calls []BatchCall) error {
	for _, call := range calls {
		call := call
		err := c.withClient(ctx, func(ethc *ethclient.Client) error {
			return ethc.Client().CallContext(ctx, call.Result, call.Method, call.Args...)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
