package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Simulate runs an eth_call with the exact from/to/value/data a pending
// transaction would carry, so a revert is caught before gas is spent. A
// nil error means the call would succeed; a *RevertError carries the
// decoded reason when the node returned revert data.
func (c *Client) Simulate(ctx context.Context, from, to common.Address, value *big.Int, data []byte) error {
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}
	return c.withClient(ctx, func(ethc *ethclient.Client) error {
		_, callErr := ethc.CallContract(ctx, msg, nil)
		if callErr == nil {
			return nil
		}
		if rev := DecodeRevert(callErr); rev != nil {
			return rev
		}
		return callErr
	})
}

// RevertError is a decoded on-chain revert, matching the structured
// {errorName, args} shape the trade log records.
type RevertError struct {
	ErrorName string
	Args      []string
	Raw       string
}

func (e *RevertError) Error() string {
	if len(e.Args) > 0 {
		return "revert " + e.ErrorName + "(" + strings.Join(e.Args, ", ") + ")"
	}
	return "revert " + e.ErrorName
}

// errorStringABI unpacks the standard Error(string) revert payload.
var errorStringABI = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "message", Type: t}}
}()

// routerErrorNames maps known router custom-error selectors to names so a
// revert can be reported as {errorName, args} instead of raw hex. The
// selectors cover the shared swap-router error surface; anything unknown
// is reported under its selector hex.
var routerErrorNames = map[string]string{
	"0x08c379a0": "Error",
	"0x4e487b71": "Panic",
	"0x675cae38": "InsufficientOutputAmount",
	"0x8b063d73": "SlippageExceeded",
	"0xf4d678b8": "InsufficientBalance",
	"0x1f2a2005": "ZeroAmount",
	"0xd81b2f2e": "DeadlineExpired",
}

// revertDataFrom pulls the hex revert payload out of a JSON-RPC error, if
// the node attached one. Different providers nest it differently, so both
// the rpc.DataError interface and the message text are checked.
func revertDataFrom(err error) []byte {
	type dataError interface {
		ErrorData() interface{}
	}
	var de dataError
	if asDE, ok := err.(dataError); ok {
		de = asDE
	}
	if de != nil {
		if s, ok := de.ErrorData().(string); ok {
			if raw, decErr := hex.DecodeString(strings.TrimPrefix(s, "0x")); decErr == nil {
				return raw
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "0x"); idx >= 0 {
		candidate := msg[idx:]
		if end := strings.IndexAny(candidate, " \t\"',)"); end > 0 {
			candidate = candidate[:end]
		}
		if raw, decErr := hex.DecodeString(strings.TrimPrefix(candidate, "0x")); decErr == nil && len(raw) >= 4 {
			return raw
		}
	}
	return nil
}

// DecodeRevert turns an eth_call / estimateGas error into a *RevertError
// when the node reported execution reverting. It returns nil for plain
// transport errors so callers can distinguish upstream failure (retry)
// from a genuine revert (terminal for this call, not retried).
func DecodeRevert(err error) *RevertError {
	if err == nil {
		return nil
	}
	var decoded *RevertError
	if errors.As(err, &decoded) {
		return decoded
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "revert") && !strings.Contains(msg, "execution reverted") {
		return nil
	}

	data := revertDataFrom(err)
	if len(data) < 4 {
		return &RevertError{ErrorName: "Unknown", Raw: err.Error()}
	}

	selector := "0x" + hex.EncodeToString(data[:4])
	name, known := routerErrorNames[selector]
	if !known {
		return &RevertError{ErrorName: selector, Raw: err.Error()}
	}

	rev := &RevertError{ErrorName: name, Raw: err.Error()}
	if name == "Error" {
		if values, unpackErr := errorStringABI.Unpack(data[4:]); unpackErr == nil && len(values) == 1 {
			if s, ok := values[0].(string); ok {
				rev.Args = []string{s}
			}
		}
	}
	return rev
}
