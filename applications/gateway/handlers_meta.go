package gateway

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
)

// ERC-20 metadata view methods for token verification.
var (
	nameMethod     = erc20View("name", "string")
	symbolMethod   = erc20View("symbol", "string")
	decimalsMethod = erc20View("decimals", "uint8")
)

func erc20View(name, outType string) abi.Method {
	t, err := abi.NewType(outType, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.NewMethod(name, name, abi.Function, "view", false, false, nil, abi.Arguments{{Name: name, Type: t}})
}

// handleVerifyToken reads a token's ERC-20 metadata to confirm it exists
// on the configured chain.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	chainID := httputil.QueryInt64(r, "chainId", s.defaultChain)
	cl := s.clientFor(chainID)
	if cl == nil {
		s.writeError(w, r, svcerrors.InvalidInput("chainId", "unconfigured chain"))
		return
	}
	token := common.HexToAddress(address)

	readString := func(m abi.Method) (string, bool) {
		raw, err := cl.Call(r.Context(), token, m.ID, nil)
		if err != nil || len(raw) == 0 {
			return "", false
		}
		values, err := m.Outputs.Unpack(raw)
		if err != nil || len(values) == 0 {
			return "", false
		}
		out, ok := values[0].(string)
		return out, ok
	}

	name, okName := readString(nameMethod)
	symbol, okSymbol := readString(symbolMethod)

	decimals := 0
	if raw, err := cl.Call(r.Context(), token, decimalsMethod.ID, nil); err == nil && len(raw) > 0 {
		if values, unpackErr := decimalsMethod.Outputs.Unpack(raw); unpackErr == nil && len(values) == 1 {
			if d, ok := values[0].(uint8); ok {
				decimals = int(d)
			}
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    okName && okSymbol,
		"name":     name,
		"symbol":   symbol,
		"decimals": decimals,
	})
}

// handlePricing lists the purchasable volume packages and class fee
// rates.
func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	type packageWire struct {
		ID              string  `json:"id"`
		USDAmount       float64 `json:"usdAmount"`
		VolumeTargetWei string  `json:"volumeTargetWei"`
		DurationHours   int     `json:"durationHours"`
	}
	packages := make([]packageWire, 0, len(payment.Packages))
	for _, id := range []string{"micro", "lite", "core", "pro"} {
		pkg := payment.Packages[id]
		packages = append(packages, packageWire{
			ID:              pkg.ID,
			USDAmount:       usdFromMinor(pkg.USDAmountMinor),
			VolumeTargetWei: pkg.VolumeTargetWei,
			DurationHours:   pkg.DurationHours,
		})
	}
	classes := map[string]int{}
	for _, class := range []eigen.Class{eigen.ClassLite, eigen.ClassCore, eigen.ClassPro, eigen.ClassUltra} {
		classes[string(class)] = eigen.FeeRateBps(class)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"packages":    packages,
		"feeRatesBps": classes,
	})
}

// usdFromMinor converts stablecoin minor units (6 decimals) to a decimal
// USD number for the wire.
func usdFromMinor(minor string) float64 {
	v, ok := new(big.Float).SetString(minor)
	if !ok {
		return 0
	}
	out, _ := new(big.Float).Quo(v, big.NewFloat(1e6)).Float64()
	return out
}

// handleHealth reports endpoint health per chain plus the treasury
// wallet's native balance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	chains := map[string]interface{}{}
	healthy := true
	for _, chainID := range []int64{s.defaultChain} {
		cl := s.clientFor(chainID)
		if cl == nil {
			healthy = false
			continue
		}
		entry := map[string]interface{}{}
		if head, err := cl.BlockNumber(r.Context()); err == nil {
			entry["blockNumber"] = head
		} else {
			entry["error"] = err.Error()
			healthy = false
		}
		if s.walletLister != nil {
			if treasury, err := s.walletLister("treasury", 1); err == nil && len(treasury) == 1 {
				entry["treasury"] = treasury[0].Address
				if bal, balErr := cl.GetBalance(r.Context(), common.HexToAddress(treasury[0].Address)); balErr == nil {
					entry["treasuryBalanceWei"] = bal.String()
				}
			}
		}
		if chainCfg := s.chains.Get(chainID); chainCfg != nil {
			endpoints := make([]map[string]interface{}, 0, len(chainCfg.Endpoints))
			for _, ep := range chainCfg.Endpoints {
				endpoints = append(endpoints, map[string]interface{}{
					"url":                 ep.URL,
					"unhealthy":           ep.Unhealthy,
					"consecutiveFailures": ep.ConsecutiveFailures,
				})
			}
			entry["endpoints"] = endpoints
		}
		chains[itoa64(chainID)] = entry
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"status":        state,
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"chains":        chains,
	})
}

// handleStats reports registry counts, live scheduler tasks, and process/
// host resource usage.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	totalDeposited := new(big.Int)
	totalBalance := new(big.Int)
	totalReserved := new(big.Int)
	for _, status := range []eigen.Status{eigen.StatusPendingFunding, eigen.StatusPendingLP, eigen.StatusActive, eigen.StatusSuspended, eigen.StatusLiquidating, eigen.StatusLiquidated, eigen.StatusTerminated, eigen.StatusClosed} {
		eigens, err := s.registry.List(r.Context(), eigen.ListFilter{Status: status}, eigen.Page{Limit: 1000})
		if err != nil {
			continue
		}
		counts[string(status)] = len(eigens)
		for _, e := range eigens {
			addInto(totalDeposited, e.Budget.DepositedWei)
			addInto(totalBalance, e.Budget.BalanceWei)
			addInto(totalReserved, e.Budget.ReservedWei)
		}
	}

	stats := map[string]interface{}{
		"eigens":     counts,
		"schedulers": s.manager.Running(),
		"treasury": map[string]string{
			"depositedWei": totalDeposited.String(),
			"balanceWei":   totalBalance.String(),
			"reservedWei":  totalReserved.String(),
		},
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memoryUsedPercent"] = vm.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		stats["cpuPercent"] = pcts[0]
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func addInto(total *big.Int, wei string) {
	v, ok := new(big.Int).SetString(wei, 10)
	if ok {
		total.Add(total, v)
	}
}
