package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceTracker holds one mutex per sub-wallet address and advances its
// local nonce only on confirmed SendRaw success; a send that fails
// without consuming the nonce rolls back. It is also the serialization
// point for two actions planned concurrently against the same wallet.
type NonceTracker struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
	next  map[common.Address]uint64
}

// NewNonceTracker returns an empty tracker; call Seed before first use of
// an address so the tracker starts from the chain's confirmed nonce.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{
		locks: make(map[common.Address]*sync.Mutex),
		next:  make(map[common.Address]uint64),
	}
}

func (t *NonceTracker) lockFor(addr common.Address) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		t.locks[addr] = l
	}
	return l
}

// Seed sets addr's next nonce if it has not been observed yet. Safe to
// call repeatedly; it never rewinds a nonce the tracker already advanced.
func (t *NonceTracker) Seed(addr common.Address, chainNonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.next[addr]; !ok {
		t.next[addr] = chainNonce
	}
}

// WithNonce runs fn holding addr's nonce lock, passing the next nonce to
// assign. When fn returns nil the tracker advances to nonce+1; when fn
// returns an error it leaves the counter untouched so the same nonce is
// retried next time.
func (t *NonceTracker) WithNonce(ctx context.Context, addr common.Address, fn func(nonce uint64) error) error {
	lock := t.lockFor(addr)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	nonce := t.next[addr]
	t.mu.Unlock()

	if err := fn(nonce); err != nil {
		return err
	}

	t.mu.Lock()
	t.next[addr] = nonce + 1
	t.mu.Unlock()
	return nil
}

// Peek returns the next nonce that will be assigned to addr without
// consuming it, used by read-only diagnostics.
func (t *NonceTracker) Peek(addr common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next[addr]
}
