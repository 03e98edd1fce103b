package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// AllowedTargets is the signer's static allowlist for outbound transaction
// recipients: the approved router, the stablecoin, the traded token, and
// any sub-wallet belonging to the same eigen. The eigen's owner is also
// admitted so the withdraw lifecycle op can return the free balance; any
// other `to` is rejected.
type AllowedTargets struct {
	Router     common.Address
	Stablecoin common.Address
	Token      common.Address
	Owner      common.Address
	SubWallets map[common.Address]bool
}

func (a AllowedTargets) allows(to common.Address) bool {
	if to == a.Router || to == a.Stablecoin || to == a.Token {
		return true
	}
	if a.Owner != (common.Address{}) && to == a.Owner {
		return true
	}
	return a.SubWallets[to]
}

// TxRequest names every field the signer requires: the sub-wallet index,
// nonce, gas limit, fee caps, value, and calldata.
type TxRequest struct {
	ChainID   *big.Int
	Index     int
	Nonce     uint64
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	To        common.Address
	ValueWei  *big.Int
	Data      []byte
}

// Signer derives sub-wallets on demand and signs outbound transactions
// after checking the target allowlist.
type Signer struct {
	masterSecret []byte
	eigenID      string
	targets      AllowedTargets
}

// NewSigner constructs a Signer scoped to one eigen's sub-wallets.
func NewSigner(masterSecret []byte, eigenID string, targets AllowedTargets) *Signer {
	return &Signer{masterSecret: masterSecret, eigenID: eigenID, targets: targets}
}

// SignTx derives the sub-wallet at req.Index, validates req.To against the
// allowlist, and returns a signed EIP-1559 transaction ready for
// broadcast. It never sends the transaction itself.
func (s *Signer) SignTx(req TxRequest) (*types.Transaction, common.Address, error) {
	if !s.targets.allows(req.To) {
		return nil, common.Address{}, svcerrors.Forbidden(
			fmt.Sprintf("destination %s is not an approved target", req.To.Hex()))
	}
	if req.ChainID == nil {
		return nil, common.Address{}, svcerrors.InvalidInput("chainId", "required")
	}

	priv, err := Derive(s.masterSecret, s.eigenID, req.Index)
	if err != nil {
		return nil, common.Address{}, svcerrors.SigningFailed(err)
	}
	defer zero(priv)

	from := Address(priv)

	value := req.ValueWei
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   req.ChainID,
		Nonce:     req.Nonce,
		GasTipCap: req.GasTipCap,
		GasFeeCap: req.GasFeeCap,
		Gas:       req.GasLimit,
		To:        &req.To,
		Value:     value,
		Data:      req.Data,
	})

	signer := types.NewLondonSigner(req.ChainID)
	signedTx, err := types.SignTx(tx, signer, priv)
	if err != nil {
		return nil, common.Address{}, svcerrors.SigningFailed(err)
	}
	return signedTx, from, nil
}

// AddressAt returns the public address of the sub-wallet at index, without
// signing anything — used to populate Wallet Derivation Records and to
// check free balance before reserving gas.
func (s *Signer) AddressAt(index int) (common.Address, error) {
	return DeriveAddress(s.masterSecret, s.eigenID, index)
}

// ParseAddress is a small convenience wrapper used by callers building an
// AllowedTargets from config strings; it returns the zero address (not an
// error) for an empty input so optional fields can be left unset.
func ParseAddress(hexAddr string) common.Address {
	if strings.TrimSpace(hexAddr) == "" {
		return common.Address{}
	}
	return common.HexToAddress(hexAddr)
}
