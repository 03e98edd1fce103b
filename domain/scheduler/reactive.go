package scheduler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/wallet"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
)

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
var erc20TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// ReactiveIngestor watches the target token's transfer logs for buys by
// wallets outside the eigen's own sub-wallet set. A token transfer whose
// sender is the pool (or router) and whose receiver is a stranger is an
// external buy; its size feeds the reactive-sell policy.
type ReactiveIngestor struct {
	client     *chain.Client
	token      common.Address
	poolSide   map[common.Address]bool
	ownWallets map[common.Address]bool
	lastBlock  uint64
}

// NewReactiveIngestor builds an ingestor scoped to one eigen's pool. The
// sub-wallet set is derived once, from the walletCount at construction;
// sub-wallets added later are not in the set, so their buys count as
// external.
func NewReactiveIngestor(cl *chain.Client, e *eigen.Eigen, masterSecret []byte) *ReactiveIngestor {
	own := make(map[common.Address]bool, e.Config.WalletCount)
	for i := 0; i < e.Config.WalletCount; i++ {
		addr, err := wallet.DeriveAddress(masterSecret, e.ID, i)
		if err == nil {
			own[addr] = true
		}
	}
	poolSide := map[common.Address]bool{
		common.HexToAddress(e.Target.Pool.PoolAddress): true,
	}
	if e.Target.Pool.RouterHint != "" {
		poolSide[common.HexToAddress(e.Target.Pool.RouterHint)] = true
	}
	return &ReactiveIngestor{
		client:     cl,
		token:      common.HexToAddress(e.Target.TokenAddress),
		poolSide:   poolSide,
		ownWallets: own,
	}
}

// LargestExternalBuy scans token transfers since the previous scan and
// returns the largest external buy observed, as raw token units ("0" when
// none). The scan window advances even on empty results so each cadence
// tick only examines fresh blocks.
func (in *ReactiveIngestor) LargestExternalBuy(ctx context.Context) (string, error) {
	head, err := in.client.BlockNumber(ctx)
	if err != nil {
		return "0", err
	}
	if in.lastBlock == 0 || in.lastBlock > head {
		in.lastBlock = head
		return "0", nil
	}
	from := in.lastBlock + 1
	if from > head {
		return "0", nil
	}

	logs, err := in.client.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{in.token},
		Topics:    [][]common.Hash{{erc20TransferTopic}},
	})
	if err != nil {
		return "0", err
	}
	in.lastBlock = head

	largest := big.NewInt(0)
	for _, l := range logs {
		if len(l.Topics) != 3 {
			continue
		}
		sender := common.BytesToAddress(l.Topics[1].Bytes())
		receiver := common.BytesToAddress(l.Topics[2].Bytes())
		if !in.poolSide[sender] || in.ownWallets[receiver] {
			continue
		}
		amount := new(big.Int).SetBytes(l.Data)
		if amount.Cmp(largest) > 0 {
			largest = amount
		}
	}
	return largest.String(), nil
}

// Cursor exposes the last scanned block for persistence across restarts.
func (in *ReactiveIngestor) Cursor() uint64 { return in.lastBlock }

// SeedCursor restores a persisted scan position; ignored once scanning
// has begun.
func (in *ReactiveIngestor) SeedCursor(block uint64) {
	if in.lastBlock == 0 {
		in.lastBlock = block
	}
}
