package eigen

import (
	"context"
	"crypto/rand"
)

// idAlphabet avoids visually ambiguous characters (0/O, 1/I/L).
const idAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// NewID generates an `ES-xxxxxx` identifier with a 6-character suffix.
func NewID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return "ES-" + string(suffix), nil
}

// Page describes offset/limit paging for list queries.
type Page struct {
	Offset int
	Limit  int
}

// ListFilter narrows a registry listing to one owner and/or one status.
type ListFilter struct {
	OwnerAddress string
	Status       Status
}

// ConfigPatch carries only the fields a caller wants to change; nil fields
// are left untouched. Patch validation enforces FieldBounds and rejects the
// whole patch (previous config untouched) on any single out-of-range field.
type ConfigPatch struct {
	TradeFrequencyPerHour *float64
	OrderSize             *OrderSizeRange
	OrderSizePct          *PercentRange
	SpreadWidthBps        *int
	ProfitTargetBps       *int
	StopLossBps           *int
	RebalanceThreshold    *float64
	WalletCount           *int
	SlippageBps           *int
	ReactiveSellMode      *bool
	ReactiveSellPct       *float64
	StrategyPrompt        *string
	Class                 *Class
}

// CounterDelta applies incremental updates to position/budget counters
// under the registry's single-writer serialization for the eigen id.
type CounterDelta struct {
	TokenBalanceDeltaRaw string
	RealizedPnlDeltaWei  string
	GasSpentDeltaWei     string
	FeeAccruedDeltaWei   string
	VolumeDeltaWei       string
	TradeCountDelta      int64
	BuyCountDelta        int64
	SellCountDelta       int64
}

// Registry is the durable store of eigen configs, status, balances, and
// derived wallets. All mutations are serialized per eigen id so the
// ledger invariants hold under concurrent scheduler and HTTP access.
type Registry interface {
	Create(ctx context.Context, e *Eigen) error
	Get(ctx context.Context, id string) (*Eigen, error)
	List(ctx context.Context, filter ListFilter, page Page) ([]*Eigen, error)
	UpdateConfig(ctx context.Context, id string, patch ConfigPatch) (*Eigen, error)
	UpdateCounters(ctx context.Context, id string, delta CounterDelta) (*Eigen, error)
	TransitionStatus(ctx context.Context, id string, from, to Status) (*Eigen, error)
	// WithLock runs fn holding the per-eigen single-writer lock, for
	// multi-step mutations (reserve+execute+commit) that must not
	// interleave with other writers.
	WithLock(ctx context.Context, id string, fn func(e *Eigen) error) (*Eigen, error)
}

// ValidatePatch checks every non-nil field in patch against FieldBounds.
// Returns the first violated field, or "" if all pass.
func ValidatePatch(patch ConfigPatch) string {
	check := func(name string, v float64) bool {
		b, ok := FieldBounds[name]
		if !ok {
			return true
		}
		return v >= b.Min && v <= b.Max
	}

	if patch.TradeFrequencyPerHour != nil && !check("tradeFrequencyPerHour", *patch.TradeFrequencyPerHour) {
		return "tradeFrequencyPerHour"
	}
	if patch.SpreadWidthBps != nil && !check("spreadWidthBps", float64(*patch.SpreadWidthBps)) {
		return "spreadWidthBps"
	}
	if patch.ProfitTargetBps != nil && !check("profitTargetBps", float64(*patch.ProfitTargetBps)) {
		return "profitTargetBps"
	}
	if patch.StopLossBps != nil && !check("stopLossBps", float64(*patch.StopLossBps)) {
		return "stopLossBps"
	}
	if patch.RebalanceThreshold != nil && !check("rebalanceThreshold", *patch.RebalanceThreshold) {
		return "rebalanceThreshold"
	}
	if patch.WalletCount != nil && !check("walletCount", float64(*patch.WalletCount)) {
		return "walletCount"
	}
	if patch.SlippageBps != nil && !check("slippageBps", float64(*patch.SlippageBps)) {
		return "slippageBps"
	}
	if patch.ReactiveSellPct != nil && !check("reactiveSellPct", *patch.ReactiveSellPct) {
		return "reactiveSellPct"
	}
	return ""
}

// Apply mutates cfg in place with every non-nil field from patch. Callers
// must have already validated the patch and confirmed walletCount never
// decreases and class only moves upward while active.
func (patch ConfigPatch) Apply(cfg *Config) {
	if patch.TradeFrequencyPerHour != nil {
		cfg.TradeFrequencyPerHour = *patch.TradeFrequencyPerHour
	}
	if patch.OrderSize != nil {
		cfg.OrderSize = *patch.OrderSize
	}
	if patch.OrderSizePct != nil {
		cfg.OrderSizePct = *patch.OrderSizePct
	}
	if patch.SpreadWidthBps != nil {
		cfg.SpreadWidthBps = *patch.SpreadWidthBps
	}
	if patch.ProfitTargetBps != nil {
		cfg.ProfitTargetBps = *patch.ProfitTargetBps
	}
	if patch.StopLossBps != nil {
		cfg.StopLossBps = *patch.StopLossBps
	}
	if patch.RebalanceThreshold != nil {
		cfg.RebalanceThreshold = *patch.RebalanceThreshold
	}
	if patch.WalletCount != nil {
		cfg.WalletCount = *patch.WalletCount
	}
	if patch.SlippageBps != nil {
		cfg.SlippageBps = *patch.SlippageBps
	}
	if patch.ReactiveSellMode != nil {
		cfg.ReactiveSellMode = *patch.ReactiveSellMode
	}
	if patch.ReactiveSellPct != nil {
		cfg.ReactiveSellPct = *patch.ReactiveSellPct
	}
	if patch.StrategyPrompt != nil {
		cfg.StrategyPrompt = *patch.StrategyPrompt
	}
}

// IsNoop reports whether patch, applied to current, would change nothing —
// a no-op PATCH must not drift updatedAt.
func (patch ConfigPatch) IsNoop(current Config) bool {
	probe := current
	patch.Apply(&probe)
	return probe == current
}
