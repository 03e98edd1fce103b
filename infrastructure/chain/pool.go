package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// rotatePatterns lists substrings of a JSON-RPC error message that mean
// "try the next endpoint" rather than "retry this one".
var rotatePatterns = []string{
	"rate limit",
	"too many requests",
	"block range",
	"exceeds the range",
	"query returned more than",
}

func isRotatePattern(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rotatePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

const unhealthyAfterFailures = 3

// Pool rotates across a chain's configured RPC endpoints, tracking
// consecutive-failure counters so /api/health can report which endpoint
// the keeper is currently leaning on.
type Pool struct {
	mu        sync.Mutex
	chain     *chainconfig.Chain
	clients   map[string]*ethclient.Client
	nextIndex int
}

// NewPool builds a Pool over chain's configured endpoints. Acquire starts
// at the first endpoint in configured order and rotates round-robin; the
// endpoints are not sorted and Priority and Weight are not read.
func NewPool(chainCfg *chainconfig.Chain) *Pool {
	return &Pool{
		chain:   chainCfg,
		clients: make(map[string]*ethclient.Client),
	}
}

// Len returns the number of configured endpoints.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chain.Endpoints)
}

// Acquire returns the next healthy endpoint in rotation order, dialing it
// lazily and caching the client. It falls back to an unhealthy endpoint
// rather than failing outright if every endpoint is currently marked
// unhealthy, since an outage on every listed endpoint is still worth one
// more attempt.
func (p *Pool) Acquire(ctx context.Context) (*chainconfig.Endpoint, *ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.chain.Endpoints)
	if n == 0 {
		return nil, nil, svcerrors.Internal("chain: no RPC endpoints configured", nil)
	}

	var candidate *chainconfig.Endpoint
	for i := 0; i < n; i++ {
		idx := (p.nextIndex + i) % n
		ep := &p.chain.Endpoints[idx]
		if !ep.Unhealthy {
			candidate = ep
			p.nextIndex = (idx + 1) % n
			break
		}
	}
	if candidate == nil {
		candidate = &p.chain.Endpoints[p.nextIndex%n]
		p.nextIndex = (p.nextIndex + 1) % n
	}

	client, ok := p.clients[candidate.URL]
	if !ok {
		dialed, err := ethclient.DialContext(ctx, candidate.URL)
		if err != nil {
			return candidate, nil, fmt.Errorf("chain: dial %s: %w", candidate.URL, err)
		}
		p.clients[candidate.URL] = dialed
		client = dialed
	}
	candidate.LastUsedAt = time.Now().UTC()
	return candidate, client, nil
}

// ReportSuccess clears an endpoint's failure streak.
func (p *Pool) ReportSuccess(ep *chainconfig.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.ConsecutiveFailures = 0
	ep.Unhealthy = false
	ep.LastError = ""
}

// ReportFailure increments an endpoint's failure streak and marks it
// unhealthy after unhealthyAfterFailures consecutive failures.
func (p *Pool) ReportFailure(ep *chainconfig.Endpoint, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.ConsecutiveFailures++
	if err != nil {
		ep.LastError = err.Error()
	}
	if ep.ConsecutiveFailures >= unhealthyAfterFailures {
		ep.Unhealthy = true
	}
}

// Snapshot returns a copy of the current endpoint health state for
// /api/health.
func (p *Pool) Snapshot() []chainconfig.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chainconfig.Endpoint, len(p.chain.Endpoints))
	copy(out, p.chain.Endpoints)
	return out
}
