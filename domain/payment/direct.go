package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)"),
// used to find the stablecoin transfer among a receipt's logs.
var erc20TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

var transferDataArg = mustTransferArg()

func mustTransferArg() abi.Arguments {
	t, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "value", Type: t}}
}

// DirectTxHashPaymentID derives the content-addressed payment id for the
// direct scheme: hash of (tx hash, chain id).
func DirectTxHashPaymentID(chainID int64, txHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("direct:%d:%s", chainID, txHash)))
	return "pay_" + hex.EncodeToString(sum[:16])
}

// VerifyDirectTransfer checks a claimed stablecoin transfer against the
// on-chain receipt: chain id, recipient, token contract, amount, success
// status, and that the receipt's block sits at least
// requiredConfirmations below the head (the operator's finality policy).
// It does not check prior consumption; that is the caller's
// (Gateway.Verify's) job via Store.Upsert idempotence.
func VerifyDirectTransfer(ctx context.Context, cl *chain.Client, req Requirements, txHash string, requiredConfirmations int) (*Payment, error) {
	hash := common.HexToHash(txHash)

	var receipt *types.Receipt
	var status chain.ReceiptStatus
	var err error
	receipt, status, err = cl.WaitReceipt(ctx, hash, 2*time.Second)
	if err != nil {
		return nil, svcerrors.PaymentInvalid("receipt not yet available: " + err.Error())
	}
	if status != chain.ReceiptSuccess {
		return nil, svcerrors.PaymentInvalid("transaction reverted on chain")
	}

	head, err := cl.BlockNumber(ctx)
	if err != nil {
		return nil, svcerrors.BlockchainError("blockNumber", err)
	}
	if receipt.BlockNumber == nil {
		return nil, svcerrors.PaymentInvalid("receipt missing block number")
	}
	var confirmations uint64
	if block := receipt.BlockNumber.Uint64(); head >= block {
		confirmations = head - block
	}
	if requiredConfirmations > 0 && confirmations < uint64(requiredConfirmations) {
		// Not final yet. The payment is not recorded, so the client may
		// retry the same proof once more blocks have landed.
		return nil, svcerrors.PaymentInvalid(
			fmt.Sprintf("transaction has %d confirmations, %d required", confirmations, requiredConfirmations))
	}

	token := common.HexToAddress(req.Token)
	recipient := common.HexToAddress(req.Recipient)
	required, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return nil, svcerrors.Internal("payment: invalid required amount", nil)
	}

	var payer common.Address
	var amount *big.Int
	found := false
	for _, l := range receipt.Logs {
		if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != erc20TransferTopic {
			continue
		}
		to := common.BytesToAddress(l.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		values, decErr := transferDataArg.Unpack(l.Data)
		if decErr != nil || len(values) == 0 {
			continue
		}
		v, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		payer = common.BytesToAddress(l.Topics[1].Bytes())
		amount = v
		found = true
		break
	}
	if !found {
		return nil, svcerrors.PaymentInvalid("no matching transfer log to recipient found")
	}
	if amount.Cmp(required) < 0 {
		return nil, svcerrors.PaymentInvalid(fmt.Sprintf("amount %s below required %s", amount, required))
	}

	return &Payment{
		ID:          DirectTxHashPaymentID(req.Chain, txHash),
		Payer:       payer.Hex(),
		Recipient:   recipient.Hex(),
		AmountMinor: amount.String(),
		ChainID:     req.Chain,
		Scheme:      SchemeDirect,
		State:       StateVerified,
		TxHash:      txHash,
		CreatedAt:   time.Now().UTC(),
		VerifiedAt:  time.Now().UTC(),
	}, nil
}
