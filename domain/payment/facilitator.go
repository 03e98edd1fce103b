package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/resilience"
)

// HTTPFacilitator forwards signed authorizations to an external
// settlement endpoint over HTTP. A circuit breaker fronts the calls so a
// down facilitator fails purchases fast instead of burning the caller's
// signed authorization on a doomed settlement attempt.
type HTTPFacilitator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewHTTPFacilitator builds a Facilitator against baseURL, authenticating
// with apiKey as a bearer token when non-empty.
func NewHTTPFacilitator(baseURL, apiKey string, logger *logging.Logger) *HTTPFacilitator {
	return &HTTPFacilitator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 20 * time.Second},
		breaker: resilience.New(resilience.FacilitatorConfig(logger)),
	}
}

type settleRequest struct {
	Payload string `json:"payload"`
}

// Settle posts the base64 payload to the facilitator and decodes its
// {ok, txHash} or {ok: false, reason} response. While the breaker is
// open the call fails immediately with a facilitator error.
func (f *HTTPFacilitator) Settle(ctx context.Context, b64Payload string) (*FacilitatorResponse, error) {
	var out *FacilitatorResponse
	err := f.breaker.Execute(ctx, func() error {
		resp, settleErr := f.settle(ctx, b64Payload)
		if settleErr != nil {
			return settleErr
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *HTTPFacilitator) settle(ctx context.Context, b64Payload string) (*FacilitatorResponse, error) {
	body, err := json.Marshal(settleRequest{Payload: b64Payload})
	if err != nil {
		return nil, fmt.Errorf("facilitator: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("facilitator: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, svcerrors.UpstreamTimeout("facilitator settle")
	}
	defer resp.Body.Close()

	var out FacilitatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("facilitator: decode response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("facilitator: http %d", resp.StatusCode)
	}
	return &out, nil
}
