// Package launch creates a new token through the bonding-curve router
// and binds a freshly minted eigen to it. The contracts are opaque: the
// keeper only packs the fixed createToken entrypoint, funds the dev
// wallet, and reads the TokenCreated event back out of the receipt.
package launch

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/wallet"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
)

// treasuryScope is the derivation scope of the keeper's own gas wallet,
// which fronts launch gas before the eigen's budget takes over.
const treasuryScope = "treasury"

// tokenCreatedTopic is the event the bonding-curve factory emits:
// TokenCreated(address token, bytes32 poolId, address creator).
var tokenCreatedTopic = crypto.Keccak256Hash([]byte("TokenCreated(address,bytes32,address)"))

var createTokenMethod = func() abi.Method {
	str, _ := abi.NewType("string", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	inputs := abi.Arguments{
		{Name: "name", Type: str},
		{Name: "symbol", Type: str},
		{Name: "creator", Type: addr},
	}
	return abi.NewMethod("createToken", "createToken", abi.Function, "payable", false, true, inputs, nil)
}()

// Params describes one launch request after validation.
type Params struct {
	ChainID       int64
	Name          string
	Symbol        string
	Description   string
	OwnerAddress  string
	AllocationWei string // initial buy placed at creation, from the paid budget
	EigenID       string // pre-minted so the dev wallet can be derived
}

// Result reports what the launch produced.
type Result struct {
	TokenAddress string
	PoolID       string
	TxHashes     []string
}

// Launcher drives token creation transactions.
type Launcher struct {
	chains       *chainconfig.Registry
	clientFor    func(chainID int64) *chain.Client
	nonces       *chain.NonceTracker
	masterSecret []byte
	logger       *logging.Logger
}

// New builds a Launcher.
func New(chains *chainconfig.Registry, clientFor func(int64) *chain.Client, nonces *chain.NonceTracker, masterSecret []byte, logger *logging.Logger) *Launcher {
	return &Launcher{chains: chains, clientFor: clientFor, nonces: nonces, masterSecret: masterSecret, logger: logger}
}

// launchGasWei is the native amount fronted to the dev wallet for the
// creation transaction's gas, on top of the allocation.
var launchGasWei = big.NewInt(5_000_000_000_000_000) // 0.005

// Launch funds the eigen's dev wallet from the keeper treasury, submits
// createToken with the allocation as value, and decodes the resulting
// token address and pool id.
func (l *Launcher) Launch(ctx context.Context, p Params) (*Result, error) {
	chainCfg := l.chains.Get(p.ChainID)
	if chainCfg == nil {
		return nil, svcerrors.InvalidInput("chainId", "unconfigured chain")
	}
	if chainCfg.BondingCurveRouter == "" {
		return nil, svcerrors.InvalidInput("chainId", "no bonding-curve router configured for this chain")
	}
	cl := l.clientFor(p.ChainID)
	if cl == nil {
		return nil, svcerrors.UpstreamUnavailable(p.ChainID, nil)
	}
	router := common.HexToAddress(chainCfg.BondingCurveRouter)

	devAddr, err := wallet.DeriveAddress(l.masterSecret, p.EigenID, 0)
	if err != nil {
		return nil, err
	}

	allocation, ok := new(big.Int).SetString(p.AllocationWei, 10)
	if !ok || allocation.Sign() < 0 {
		return nil, svcerrors.InvalidInput("allocation", "must be a non-negative decimal wei string")
	}

	var txHashes []string

	// Front the dev wallet with allocation + gas from the treasury wallet.
	fundHash, err := l.send(ctx, cl, p.ChainID, treasuryScope, 0,
		wallet.AllowedTargets{SubWallets: map[common.Address]bool{devAddr: true}},
		devAddr, new(big.Int).Add(allocation, launchGasWei), nil)
	if err != nil {
		return nil, err
	}
	txHashes = append(txHashes, fundHash.Hex())

	calldata, err := createTokenMethod.Inputs.Pack(p.Name, p.Symbol, devAddr)
	if err != nil {
		return nil, svcerrors.Internal("launch: pack createToken", err)
	}
	calldata = append(append([]byte{}, createTokenMethod.ID...), calldata...)

	createHash, err := l.send(ctx, cl, p.ChainID, p.EigenID, 0,
		wallet.AllowedTargets{Router: router},
		router, allocation, calldata)
	if err != nil {
		return nil, err
	}
	txHashes = append(txHashes, createHash.Hex())

	receipt, status, err := cl.WaitReceipt(ctx, createHash, 60*time.Second)
	if err != nil {
		return nil, err
	}
	if status != chain.ReceiptSuccess {
		return nil, svcerrors.Reverted(createHash.Hex(), "token creation reverted")
	}

	for _, log := range receipt.Logs {
		if len(log.Topics) >= 3 && log.Topics[0] == tokenCreatedTopic {
			token := common.BytesToAddress(log.Topics[1].Bytes())
			poolID := log.Topics[2].Hex()
			return &Result{TokenAddress: token.Hex(), PoolID: poolID, TxHashes: txHashes}, nil
		}
	}
	return nil, svcerrors.BlockchainError("launch", nil).WithDetails("reason", "TokenCreated event not found in receipt")
}

// PoolFor builds the pool descriptor a launched token trades against.
func (l *Launcher) PoolFor(chainID int64, tokenAddress, poolID string) eigen.PoolDescriptor {
	chainCfg := l.chains.Get(chainID)
	return eigen.PoolDescriptor{
		Version:     eigen.PoolBondingCurve,
		PoolAddress: poolID,
		Token0:      tokenAddress,
		Token1:      chainCfg.StablecoinAddress,
		RouterHint:  chainCfg.BondingCurveRouter,
	}
}

// send signs and broadcasts one transaction from the derivation scope's
// sub-wallet at index, serialized through the shared nonce tracker.
func (l *Launcher) send(ctx context.Context, cl *chain.Client, chainID int64, scope string, index int, targets wallet.AllowedTargets, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	signer := wallet.NewSigner(l.masterSecret, scope, targets)
	from, err := signer.AddressAt(index)
	if err != nil {
		return common.Hash{}, err
	}

	chainNonce, err := cl.GetTransactionCount(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	l.nonces.Seed(from, chainNonce)

	fees, err := cl.SuggestFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit := uint64(2_000_000)
	if data == nil {
		gasLimit = 21_000
	}

	var txHash common.Hash
	err = l.nonces.WithNonce(ctx, from, func(nonce uint64) error {
		signedTx, _, signErr := signer.SignTx(wallet.TxRequest{
			ChainID:   big.NewInt(chainID),
			Index:     index,
			Nonce:     nonce,
			GasLimit:  gasLimit,
			GasTipCap: fees.TipCap,
			GasFeeCap: fees.FeeCap,
			To:        to,
			ValueWei:  value,
			Data:      data,
		})
		if signErr != nil {
			return signErr
		}
		hash, sendErr := cl.SendRaw(ctx, signedTx)
		if sendErr != nil {
			return sendErr
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	if _, status, waitErr := cl.WaitReceipt(ctx, txHash, 60*time.Second); waitErr != nil {
		return txHash, waitErr
	} else if status == chain.ReceiptReverted {
		return txHash, svcerrors.Reverted(txHash.Hex(), "transfer reverted")
	}
	return txHash, nil
}
