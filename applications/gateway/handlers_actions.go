package gateway

import (
	"net/http"

	"github.com/gorilla/mux"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
)

// handleAdjust applies a config patch through the lifecycle controller's
// write rules. A no-op patch answers 200 without touching updatedAt.
func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var patch configPatchWire
	if !httputil.DecodeJSON(w, r, &patch) {
		return
	}
	e, err := s.lifecycle.Adjust(r.Context(), ownerFromContext(r.Context()), mux.Vars(r)["id"], patch.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))
}

type actionRequest struct {
	SizeWei   string `json:"sizeWei"`
	AmountWei string `json:"amountWei"`
}

// handleAction dispatches POST /api/agent/eigens/{id}/{action}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]
	owner := ownerFromContext(r.Context())

	var body actionRequest
	if !httputil.DecodeJSONOptional(w, r, &body) {
		return
	}

	switch action {
	case "suspend":
		e, err := s.lifecycle.Suspend(r.Context(), owner, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))

	case "resume":
		e, err := s.lifecycle.Resume(r.Context(), owner, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))

	case "take-profit":
		if err := s.lifecycle.TakeProfit(r.Context(), owner, id, body.SizeWei); err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"eigenId": id, "settled": true})

	case "liquidate":
		e, err := s.lifecycle.Liquidate(r.Context(), owner, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))

	case "terminate":
		e, err := s.lifecycle.Terminate(r.Context(), owner, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))

	case "withdraw":
		amount := body.AmountWei
		if amount == "" {
			amount = "all"
		}
		withdrawn, err := s.lifecycle.Withdraw(r.Context(), owner, id, amount)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"eigenId": id, "withdrawnWei": withdrawn})

	case "fund":
		if body.AmountWei == "" {
			s.writeError(w, r, svcerrors.MissingParameter("amountWei"))
			return
		}
		e, err := s.registry.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if owner != e.OwnerAddress {
			s.writeError(w, r, svcerrors.OwnershipRequired(id))
			return
		}
		e, err = s.lifecycle.Fund(r.Context(), id, body.AmountWei)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, eigenToWire(e))

	default:
		s.writeError(w, r, svcerrors.InvalidInput("action", "unknown action "+action))
	}
}
