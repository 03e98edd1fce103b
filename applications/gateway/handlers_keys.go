package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/apikey"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/utils"
)

type createKeyRequest struct {
	Owner     string `json:"owner"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Label     string `json:"label"`
}

type keyWire struct {
	Prefix     string     `json:"prefix"`
	Owner      string     `json:"owner"`
	Label      string     `json:"label,omitempty"`
	RateLimit  int        `json:"rateLimit"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func keyToWire(k *apikey.Key) keyWire {
	return keyWire{
		Prefix:     k.Prefix,
		Owner:      k.Owner,
		Label:      k.Label,
		RateLimit:  k.RateLimit,
		Revoked:    k.Revoked,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// handleCreateKey enrolls a new API key from an EIP-191 signed message.
// The plaintext key is returned exactly once.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Owner == "" || req.Signature == "" {
		s.writeError(w, r, svcerrors.MissingParameter("owner/signature"))
		return
	}

	label := utils.Truncate(strings.TrimSpace(req.Label), 64)
	key, plain, err := apikey.Enroll(r.Context(), s.keys, req.Owner, req.Timestamp, req.Signature, label, time.Now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"key":    plain.Full,
		"record": keyToWire(key),
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	keys, err := s.keys.ListByOwner(r.Context(), keyFromContext(r.Context()).Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]keyWire, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyToWire(k))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"owner": owner,
		"keys":  out,
	})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	prefix := mux.Vars(r)["prefix"]
	target, err := s.keys.GetByPrefix(r.Context(), prefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !strings.EqualFold(target.Owner, keyFromContext(r.Context()).Owner) {
		s.writeError(w, r, svcerrors.OwnershipRequired("api_key"))
		return
	}
	if err := s.keys.Revoke(r.Context(), prefix); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}
