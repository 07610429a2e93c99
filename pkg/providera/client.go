// Package providera implements the Marketplace-A adapter: an HTTP client
// using the signed-delta quantity encoding ("+5" / "-3") and its own
// idempotency dedup log, since Marketplace-A's API has no native
// idempotency-key support.
package providera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/lotsync/pkg/provideradapter"
)

// callTimeout is the per-call adapter timeout; exceeding it yields a
// transient outcome.
const callTimeout = 30 * time.Second

// Dedup suppresses duplicate effects for a given idempotency key. The
// concrete implementation (pkg/providera.PostgresDedup) persists to
// provider_idempotency so suppression survives process restarts.
type Dedup interface {
	// Seen reports whether key has already been applied, and if so, the
	// stored result to replay instead of calling upstream again.
	Seen(ctx context.Context, key string) (result []byte, ok bool, err error)
	Record(ctx context.Context, key string, result []byte) error
}

// Client calls Marketplace-A's lot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dedup      Dedup
}

// NewClient creates a Marketplace-A client. baseURL is the provider's API
// root; dedup backs idempotency-key suppression.
func NewClient(baseURL string, dedup Dedup) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		baseURL:    baseURL,
		dedup:      dedup,
	}
}

var _ provideradapter.Adapter = (*Client)(nil)

type createLotRequest struct {
	PartNumber string `json:"part_number"`
	ColorID    string `json:"color_id"`
	Condition  string `json:"condition"`
	Quantity   int    `json:"quantity"`
	PriceCents *int64 `json:"price_cents,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type createLotResponse struct {
	LotID string `json:"lot_id"`
}

func (c *Client) CreateLot(ctx context.Context, creds provideradapter.Credentials, payload provideradapter.LotPayload, idempotencyKey string) (provideradapter.CreateResult, error) {
	if cached, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return provideradapter.CreateResult{}, transientErr(err)
	} else if ok {
		var resp createLotResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return provideradapter.CreateResult{ExternalLotID: resp.LotID}, nil
		}
	}

	body, err := json.Marshal(createLotRequest{
		PartNumber: payload.PartNumber,
		ColorID:    payload.ColorID,
		Condition:  payload.Condition,
		Quantity:   payload.QuantityAvailable,
		PriceCents: payload.PriceCents,
		Notes:      payload.Notes,
	})
	if err != nil {
		return provideradapter.CreateResult{}, &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}

	var resp createLotResponse
	if err := c.do(ctx, creds, http.MethodPost, "/lots", body, &resp); err != nil {
		return provideradapter.CreateResult{}, err
	}

	respBody, _ := json.Marshal(resp)
	if err := c.dedup.Record(ctx, idempotencyKey, respBody); err != nil {
		return provideradapter.CreateResult{}, transientErr(err)
	}

	return provideradapter.CreateResult{ExternalLotID: resp.LotID}, nil
}

type updateLotRequest struct {
	QuantityDelta string `json:"quantity_delta"`
}

func (c *Client) UpdateLot(ctx context.Context, creds provideradapter.Credentials, externalLotID string, delta provideradapter.DeltaUpdate, idempotencyKey string) error {
	if _, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return transientErr(err)
	} else if ok {
		return nil
	}

	body, err := json.Marshal(updateLotRequest{QuantityDelta: signedDeltaString(delta.SignedDelta)})
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}

	path := fmt.Sprintf("/lots/%s", externalLotID)
	if err := c.do(ctx, creds, http.MethodPatch, path, body, nil); err != nil {
		return err
	}

	return transientErr(c.dedup.Record(ctx, idempotencyKey, nil))
}

func (c *Client) DeleteLot(ctx context.Context, creds provideradapter.Credentials, externalLotID string, idempotencyKey string) error {
	if _, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return transientErr(err)
	} else if ok {
		return nil
	}

	path := fmt.Sprintf("/lots/%s", externalLotID)
	if err := c.do(ctx, creds, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	return transientErr(c.dedup.Record(ctx, idempotencyKey, nil))
}

func (c *Client) FetchReference(ctx context.Context, creds provideradapter.Credentials, kind provideradapter.ReferenceKind, key string) (provideradapter.ReferenceEntity, error) {
	path := fmt.Sprintf("/reference/%s/%s", kind, key)
	var raw json.RawMessage
	if err := c.do(ctx, creds, http.MethodGet, path, nil, &raw); err != nil {
		return provideradapter.ReferenceEntity{}, err
	}
	return provideradapter.ReferenceEntity{Payload: raw}, nil
}

// signedDeltaString formats a delta as "+N" or "-N", Provider A's wire
// format for quantity changes.
func signedDeltaString(delta int) string {
	if delta >= 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}

// do issues an HTTP request against Marketplace-A and classifies the result
// into the adapter error taxonomy. A nil out skips response decoding.
func (c *Client) do(ctx context.Context, creds provideradapter.Credentials, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", creds.APIKey)
	req.Header.Set("X-API-Secret", creds.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrNotFound, Message: "lot not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrRateLimited, Message: "marketplace-A rate limited the request"}
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Message: "marketplace-A rejected the payload"}
	case resp.StatusCode >= 500:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Message: fmt.Sprintf("marketplace-A returned HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Message: fmt.Sprintf("marketplace-A returned unexpected HTTP %d", resp.StatusCode)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
		}
	}
	return nil
}

func transientErr(err error) error {
	if err == nil {
		return nil
	}
	return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
}
