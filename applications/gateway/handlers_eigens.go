package gateway

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
)

func (s *Server) handleListEigens(w http.ResponseWriter, r *http.Request) {
	offset, limit := httputil.PaginationParams(r, 50, 200)
	filter := eigen.ListFilter{
		OwnerAddress: strings.ToLower(httputil.QueryString(r, "owner", "")),
		Status:       eigen.Status(httputil.QueryString(r, "status", "")),
	}
	eigens, err := s.registry.List(r.Context(), filter, eigen.Page{Offset: offset, Limit: limit})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]eigenWire, 0, len(eigens))
	for _, e := range eigens {
		out = append(out, eigenToWire(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"eigens": out,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleGetEigen(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))
}

func (s *Server) handleEigenTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, limit := httputil.PaginationParams(r, 50, 500)
	trades, err := s.trades.ListByEigen(r.Context(), id, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]tradeWire, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeToWire(t))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"trades": out})
}

func (s *Server) handleEigenPnl(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"eigenId":           e.ID,
		"realizedPnlWei":    e.Position.RealizedPnlWei,
		"gasSpentWei":       e.Position.GasSpentWei,
		"feeAccruedWei":     e.Position.FeeAccruedWei,
		"volumeProducedWei": e.Position.VolumeProducedWei,
		"tradeCount":        e.Position.TradeCount,
	}

	// The oracle's USD mark is attached when available, with the reason
	// when not. Unrealized P&L is recomputed on read against the quote
	// engine's spot price and is omitted when no spot price can be read.
	result := s.oracle.Price(r.Context(), e.Target)
	if result.Price != nil {
		usd, _ := result.Price.Float64()
		resp["markPriceUsd"] = usd
		resp["priceStale"] = result.Stale
	} else {
		resp["priceUnavailable"] = result.Reason
	}
	if mark := s.markPriceWei(r, e); mark != "" {
		resp["unrealizedPnlWei"] = e.Position.UnrealizedPnl(mark)
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// markPriceWei reads the spot price (quote wei per raw token unit) for
// unrealized P&L; "" when the quote engine cannot produce one.
func (s *Server) markPriceWei(r *http.Request, e *eigen.Eigen) string {
	notional := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	q, err := s.quotes.Quote(r.Context(), e.Target, quote.DirectionSell, notional.String())
	if err != nil {
		return ""
	}
	out, ok := new(big.Int).SetString(q.AmountOutRaw, 10)
	if !ok || out.Sign() <= 0 {
		return ""
	}
	return new(big.Int).Div(out, notional).String()
}

func (s *Server) handleEigenWallets(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wallets, err := s.walletLister(e.ID, e.Config.WalletCount)
	if err != nil {
		s.writeError(w, r, svcerrors.Internal("derive wallets", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"eigenId": e.ID,
		"wallets": wallets,
	})
}

// handleEigenPriceHistory returns the execution-price series from the
// trade log, newest first.
func (s *Server) handleEigenPriceHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, limit := httputil.PaginationParams(r, 100, 1000)
	trades, err := s.trades.ListByEigen(r.Context(), id, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	type point struct {
		PriceWei  string `json:"priceWei"`
		Direction string `json:"direction"`
		At        string `json:"at"`
	}
	points := make([]point, 0, len(trades))
	for _, t := range trades {
		if t.Outcome != tradelog.OutcomeFilled {
			continue
		}
		points = append(points, point{PriceWei: t.PriceWei, Direction: t.Direction, At: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"prices": points})
}
